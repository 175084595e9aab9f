// Package httpserver assembles the file server: it listens on a socket,
// hands accepted connections to a supervised pool of workers and wires the
// request handler chain, connection tracking and configuration reloads.
//
// The server provides strong guarantees on worker lifecycle. Once Run
// returns, the listener is closed and no worker serves requests, unless some
// workers failed to stop during the staged shutdown. Such workers are logged
// and abandoned.
package httpserver
