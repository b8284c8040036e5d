// Package commands defines the channeler CLI.
//
// Commands
//
//   - init     Create the home directory, config file and root key
//   - key      Print the root public key, discovery key and fingerprint
//   - derive   Print the keys of a writable or readable channel
//   - append   Append entries to one of our channels
//   - read     Read entries of a channel, optionally from a peer
//   - serve    Accept peers and replicate any core they ask for
//   - export   Seal the root key with a passphrase
//   - import   Replace the root key with a sealed one
//
// # Implementation
//
// The root command loads channeler.toml from --home and applies flag
// overrides before any subcommand runs. Commands that touch cores build an
// app.App, open it and close it on return.
package commands
