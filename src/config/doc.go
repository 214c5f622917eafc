// Package config defines the configuration for the Botcash Nostr bridge.
//
// Regardless of how the bridge is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, the bridge relies on a data directory, defined by
// Config.DataDir, where it expects to find one additional file:
//
//	priv_key // a plain text file containing the relay's raw private key (generated on first run).
package config
