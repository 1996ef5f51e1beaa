package transport

import (
	"context"
	"errors"
)

// The transport adapts a link exposing three primitives: a write, a pull-style
// read and a "data ready" notification. Link setup (connection, service
// discovery, enabling notifications) belongs to whoever builds the link.

type LinkWriter interface {
	// Write a single chunk. Only one write is outstanding at any time.
	Write(ctx context.Context, data []byte) error
}

type LinkReader interface {
	// Read the next buffered chunk. A zero-length result means there is
	// nothing more to read until the next notification.
	Read(ctx context.Context) ([]byte, error)
}

type LinkNotifier interface {
	// Channel receiving a value whenever new data can be read.
	// It is closed when the link is torn down.
	Notifications() <-chan struct{}
}

type Link interface {
	LinkWriter
	LinkReader
	LinkNotifier
}

var (
	ErrLinkClosed      = errors.New("transport: link closed")
	ErrTransportClosed = errors.New("transport: closed")
)

// StreamError is the terminal failure of one stream direction.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return "transport: " + e.Op + ": " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
