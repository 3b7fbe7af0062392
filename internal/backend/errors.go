package backend

import "errors"

var (
	// ErrConnection is returned when the backend is unreachable or rejects credentials
	ErrConnection = errors.New("backend: connection failed")

	// ErrNotConnected is returned for operations issued before Connect
	ErrNotConnected = errors.New("backend: not connected")

	// ErrClosed is returned for operations issued after Close
	ErrClosed = errors.New("backend: closed")
)
