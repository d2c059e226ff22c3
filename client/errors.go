package client

import "fmt"

// ConnectionError is returned by Connect when the handshake with the remote
// store fails or times out. It is advisory: the client keeps serving from
// the fallback store, and ConnectWithFallback absorbs it entirely.
type ConnectionError struct {
	// Attempts is the cumulative failed-connect count since the last
	// successful connection.
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("remote store connection failed (attempt %d): %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
