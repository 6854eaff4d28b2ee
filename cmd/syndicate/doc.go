// Package main hosts the syndicate CLI entrypoint and command graph.
//
// The Cobra-based command tree covers account validation, enqueueing publish
// targets, queue inspection and maintenance, and running the daemon in the
// foreground. It centralizes configuration resolution and .env loading so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
