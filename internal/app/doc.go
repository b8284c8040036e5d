// Package app wires application dependencies for the CLI.
//
// It builds the byte storage, the store and the TCP transport from Config,
// exposing them via the App struct for commands to use.
package app
