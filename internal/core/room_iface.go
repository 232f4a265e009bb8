package core

import (
	"errors"

	"github.com/dkeye/Mesh/internal/domain"
)

var (
	// ErrRoomClosed is returned by a room whose last member left. Callers
	// must fetch a fresh room from the RoomManager and retry.
	ErrRoomClosed = errors.New("room closed")
	ErrNotAdmin   = errors.New("not room admin")
	ErrNotMember  = errors.New("not a room member")
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

func (p *PublishResult) merge(o PublishResult) {
	p.SendTo += o.SendTo
	p.Dropped = append(p.Dropped, o.Dropped...)
}

// JoinFrames are the pre-encoded frames a join fans out. Created or Joined
// go to the caller; Join goes to the members already present; Ready goes to
// everyone once the caller is registered.
type JoinFrames struct {
	Created Frame
	Joined  Frame
	Join    Frame
	Ready   Frame
}

type JoinResult struct {
	Created bool
	PublishResult
}

type LeaveResult struct {
	WasMember bool
	WasAdmin  bool
	// Empty is set when the leave removed the last member. The room is closed
	// from then on.
	Empty bool
	PublishResult
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
	Admin    bool          `json:"admin"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources. Every
// mutation and every fan-out runs under the room's own lock, so they are
// observed by all members in one order.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Admin() (SessionID, bool)
	IsMember(sid SessionID) bool
	Closed() bool

	Join(sid SessionID, ms MemberSession, frames JoinFrames) (JoinResult, error)
	Leave(sid SessionID, notice Frame) LeaveResult
	Kick(by, target SessionID, order Frame) (LeaveResult, error)
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
	Admin       SessionID     `json:"admin,omitempty"`
}

type RoomManager interface {
	// GetOrCreate returns the live room for id, replacing a closed one.
	GetOrCreate(id domain.RoomID) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	// Release forgets room if it is still the one registered under its id
	// and it is closed.
	Release(room RoomService)
}
