package core

import "github.com/dkeye/Mesh/internal/domain"

// SessionID identifies one Transport Channel. The relay assigns it when the
// channel is established; it is the participant id seen by every client.
type SessionID string

// MemberSession binds domain.Member and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
