// Package protocol models the messages exchanged over a Transport Channel
// between a participant and the relay.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope types.
const (
	TypeCreateOrJoin = "create_or_join"
	TypeLeaveRoom    = "leave_room"
	TypeMessage      = "message"
	TypeKickout      = "kickout"

	TypeCreated  = "created"
	TypeJoined   = "joined"
	TypeJoin     = "join"
	TypeReady    = "ready"
	TypeLeftRoom = "left_room"
	TypeLog      = "log"
	TypeError    = "error"
)

var ErrMissingType = errors.New("protocol: missing envelope type")

// Envelope is the single frame shape on the channel. Field meaning depends on
// Type: ID is the caller's own id in created/joined, the newcomer in ready and
// the evicted participant in a relayed kickout. From is only ever set by the
// relay.
type Envelope struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	Name    string          `json:"name,omitempty"`
	ID      string          `json:"id,omitempty"`
	Target  string          `json:"target,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(env)
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// SignalType discriminates the payload of a "message" envelope. The relay
// never looks at it.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
	SignalChat      SignalType = "chat"
	SignalGotStream SignalType = "gotstream"
	SignalLeave     SignalType = "leave"
)

// Signal is the participant-to-participant payload carried by "message".
type Signal struct {
	Type SignalType `json:"type"`

	SDP string `json:"sdp,omitempty"`

	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	Message    string `json:"message,omitempty"`
	SenderName string `json:"senderName,omitempty"`

	// Reply marks a targeted gotstream sent back in response to a room
	// announcement. Replies are never answered.
	Reply bool `json:"reply,omitempty"`
}

func (s Signal) Marshal() (json.RawMessage, error) {
	return json.Marshal(s)
}

func ParseSignal(raw json.RawMessage) (Signal, error) {
	var s Signal
	if len(raw) == 0 {
		return s, errors.New("protocol: empty signal payload")
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return s, fmt.Errorf("protocol: decode signal: %w", err)
	}
	return s, nil
}

// LeaveNotice is the synthetic payload the relay emits on behalf of a
// participant that left or whose channel closed.
func LeaveNotice() json.RawMessage {
	return json.RawMessage(`{"type":"leave"}`)
}
