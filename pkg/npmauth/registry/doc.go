// Package registry reads and writes per-registry credentials in npm (.npmrc)
// and Yarn Berry (.yarnrc.yml) configuration files, at user and project scope,
// and resolves which registries a run should authenticate against.
package registry
