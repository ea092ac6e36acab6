// Package cmd wires the npmauth cobra commands. The root command runs the
// authentication flow; subcommands inspect registries and manage defaults.
package cmd
