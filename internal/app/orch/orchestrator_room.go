package orch

import (
	"errors"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

const (
	errRoomRequired  = "room id required"
	errRateLimited   = "too many join attempts"
	errNotInRoom     = "not in a room"
	errNotAuthorized = "not authorized"
	errTargetMissing = "target not in room"
)

func roomID(s string) domain.RoomID { return domain.RoomID(s) }

// CreateOrJoin puts sid into the room, creating it when it has no members.
func (o *Orchestrator) CreateOrJoin(sid core.SessionID, room string, name string) {
	if room == "" {
		o.replyError(sid, errRoomRequired)
		return
	}
	if o.Limiter != nil && !o.Limiter.Allow(sid) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("join rate limited")
		o.replyError(sid, errRateLimited)
		return
	}
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	id := roomID(room)
	if cur, ok := o.Registry.RoomOf(sid); ok && cur != id {
		o.leaveRoom(sid, cur, false)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(cur)).Msg("left previous room")
	}

	username := domain.TrimUsername(name)
	if username == "" {
		username = sess.Meta().User.Username
	}
	member := core.NewMemberSession(
		domain.NewMember(domain.NewUser(domain.UserID(sid), username)),
		sess.Signal(),
	)
	frames, ok := o.joinFrames(sid, room, username)
	if !ok {
		return
	}

	for {
		rs := o.Rooms.GetOrCreate(id)
		res, err := rs.Join(sid, member, frames)
		if errors.Is(err, core.ErrRoomClosed) {
			// Lost a race with the last member leaving; the manager hands
			// out a fresh room next time.
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("room", room).Msg("join failed")
			o.replyError(sid, err.Error())
			return
		}
		o.Registry.UpdateRoom(sid, id)
		if !rs.IsMember(sid) {
			// Kicked before the registry caught up.
			o.Registry.ClearRoom(sid, id)
			log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", room).Msg("removed while joining")
			o.handleDropped(res.Dropped)
			return
		}
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", room).Bool("created", res.Created).Msg("create or join")
		o.handleDropped(res.Dropped)
		return
	}
}

func (o *Orchestrator) joinFrames(sid core.SessionID, room, name string) (core.JoinFrames, bool) {
	var (
		f  core.JoinFrames
		ok bool
	)
	if f.Created, ok = o.encode(protocol.Envelope{Type: protocol.TypeCreated, Room: room, ID: string(sid), Name: name}); !ok {
		return f, false
	}
	if f.Joined, ok = o.encode(protocol.Envelope{Type: protocol.TypeJoined, Room: room, ID: string(sid), Name: name}); !ok {
		return f, false
	}
	if f.Join, ok = o.encode(protocol.Envelope{Type: protocol.TypeJoin, Room: room}); !ok {
		return f, false
	}
	if f.Ready, ok = o.encode(protocol.Envelope{Type: protocol.TypeReady, Room: room, ID: string(sid), Name: name}); !ok {
		return f, false
	}
	return f, true
}

// Leave handles an explicit leave_room.
func (o *Orchestrator) Leave(sid core.SessionID, room string) {
	cur, ok := o.Registry.RoomOf(sid)
	if !ok || (room != "" && roomID(room) != cur) {
		o.replyError(sid, errNotInRoom)
		return
	}
	o.leaveRoom(sid, cur, true)
}

func (o *Orchestrator) leaveRoom(sid core.SessionID, id domain.RoomID, ack bool) {
	o.Registry.ClearRoom(sid, id)
	rs, ok := o.Rooms.GetRoom(id)
	if !ok {
		return
	}
	notice, ok := o.encode(protocol.Envelope{
		Type:    protocol.TypeMessage,
		Room:    string(id),
		From:    string(sid),
		Payload: protocol.LeaveNotice(),
	})
	if !ok {
		return
	}
	res := rs.Leave(sid, notice)
	if res.Empty {
		o.Rooms.Release(rs)
	}
	o.handleDropped(res.Dropped)
	if ack && res.WasMember {
		o.reply(sid, protocol.Envelope{Type: protocol.TypeLeftRoom, Room: string(id)})
	}
}

// Kick evicts target from the caller's room. Only the room admin may kick.
func (o *Orchestrator) Kick(sid core.SessionID, target string, room string) {
	cur, ok := o.Registry.RoomOf(sid)
	if !ok || (room != "" && roomID(room) != cur) {
		o.reply(sid, protocol.Envelope{Type: protocol.TypeLog, Error: errNotAuthorized})
		return
	}
	rs, ok := o.Rooms.GetRoom(cur)
	if !ok {
		o.reply(sid, protocol.Envelope{Type: protocol.TypeLog, Error: errNotAuthorized})
		return
	}
	order, ok := o.encode(protocol.Envelope{Type: protocol.TypeKickout, ID: target, Room: string(cur)})
	if !ok {
		return
	}
	res, err := rs.Kick(sid, core.SessionID(target), order)
	switch {
	case errors.Is(err, core.ErrNotAdmin):
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("target", target).Msg("kick refused")
		o.reply(sid, protocol.Envelope{Type: protocol.TypeLog, Error: errNotAuthorized})
		return
	case errors.Is(err, core.ErrNotMember):
		o.reply(sid, protocol.Envelope{Type: protocol.TypeLog, Error: errTargetMissing})
		return
	case err != nil:
		o.replyError(sid, err.Error())
		return
	}
	o.Registry.ClearRoom(core.SessionID(target), cur)
	if res.Empty {
		o.Rooms.Release(rs)
	}
	o.handleDropped(res.Dropped)
}
