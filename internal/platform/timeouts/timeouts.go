// Package timeouts holds the HTTP server and worker durations shared by the
// process entrypoints.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Read and Write bound a whole request and response on the HTTP server.
const (
	Read  = 10 * time.Second
	Write = 15 * time.Second
)

// Idle closes keep-alive connections nobody reuses.
const Idle = 60 * time.Second

// Shutdown limits how long in-flight requests may finish after a stop signal.
const Shutdown = 10 * time.Second

// Publish caps one outbox publish to the event bus.
const Publish = 3 * time.Second
