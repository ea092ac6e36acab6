// Package auth acquires registry credentials from the Microsoft identity
// platform, preferring a stored refresh token and falling back to the OAuth 2.0
// device authorization grant, and persists the result into package-manager
// configuration.
package auth
