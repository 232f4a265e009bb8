package core

import "errors"

// Frame is a raw encoded envelope.
type Frame []byte

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// outbound buffer is full and ErrConnectionClosed after Close.
	TrySend(Frame) error
	Close()
}
