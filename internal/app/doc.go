// Package app provides application bootstrap for the adtoken CLI.
//
// NewApplication loads the config file, initializes logging, opens the
// configured durable credential backend and registers every configured
// context in a token.Registry. Commands then resolve the context they act on
// with Application.Context, optionally adjusted by command-line flags.
//
// The registry is owned by the Application and handed to commands
// explicitly; nothing in adtoken resolves contexts through global state.
//
// Close flushes pending credential writes and releases the backend. Call it
// before the process exits so asynchronous durable writes are not lost.
package app
