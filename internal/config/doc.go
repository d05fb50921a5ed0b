// Package config loads, normalizes, and validates the TOML configuration
// shared by the daemon and the CLI.
//
// Load merges the file on disk over repository defaults, expands ~ in paths,
// pulls secrets from the environment when the file omits them, and rejects
// configurations the daemon cannot run with. A sample configuration is
// embedded for `apflow config init`.
package config
