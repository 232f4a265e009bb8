package peerlink

import (
	"errors"
	"fmt"
)

var (
	ErrClosed      = errors.New("peerlink: link closed")
	ErrUnknownPeer = errors.New("peerlink: no link for peer")
	// ErrStale is returned by OpenAt when CloseAll ran after the epoch was read.
	ErrStale       = errors.New("peerlink: links were reset")
)

// Negotiation steps reported in NegotiationError.Op.
const (
	OpOffer         = "create-offer"
	OpAnswer        = "create-answer"
	OpApplyOffer    = "apply-offer"
	OpApplyAnswer   = "apply-answer"
	OpRollback      = "rollback"
	OpCandidate     = "add-candidate"
	OpAddTrack      = "add-track"
	OpSend          = "send"
	OpNewConnection = "new-connection"
)

// NegotiationError is a failed step of one link. The link stays usable.
type NegotiationError struct {
	Peer string
	Op   string
	Err  error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("peerlink %s: %s: %v", e.Peer, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
