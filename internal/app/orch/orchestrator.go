package orch

import (
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the relay's Room Registry and Message Router. It is the only
// writer of room membership and the registry's room associations.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	Limiter  *app.JoinLimiter
}

func New(reg *app.Registry, rooms core.RoomManager, policy app.Policy, limiter *app.JoinLimiter) *Orchestrator {
	if policy == nil {
		policy = app.DropPolicy{}
	}
	return &Orchestrator{Registry: reg, Rooms: rooms, Policy: policy, Limiter: limiter}
}

// Relay routes a "message" envelope from sid. A target wins over a room; with
// neither the frame goes to every connected participant. Misses are dropped.
func (o *Orchestrator) Relay(sid core.SessionID, env protocol.Envelope) {
	out := protocol.Envelope{
		Type:    protocol.TypeMessage,
		Room:    env.Room,
		Target:  env.Target,
		From:    string(sid),
		Payload: env.Payload,
	}
	frame, ok := o.encode(out)
	if !ok {
		return
	}

	switch {
	case env.Target != "":
		target := core.SessionID(env.Target)
		sess, ok := o.Registry.GetSession(target)
		if !ok {
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("target", env.Target).Msg("relay target unknown")
			return
		}
		if err := sess.Signal().TrySend(frame); err != nil {
			o.handleDropped([]core.SessionID{target})
		}
	case env.Room != "":
		room, ok := o.Rooms.GetRoom(roomID(env.Room))
		if !ok {
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", env.Room).Msg("relay room unknown")
			return
		}
		res := room.Broadcast(sid, frame)
		o.handleDropped(res.Dropped)
	default:
		var dropped []core.SessionID
		for _, snap := range o.Registry.All() {
			if snap.SID == sid {
				continue
			}
			if err := snap.Session.Signal().TrySend(frame); err != nil {
				dropped = append(dropped, snap.SID)
			}
		}
		o.handleDropped(dropped)
	}
}

// OnDisconnect is the implicit leave of a closed channel.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	if id, ok := o.Registry.RoomOf(sid); ok {
		o.leaveRoom(sid, id, false)
	}
	o.Registry.Unbind(sid)
	if o.Limiter != nil {
		o.Limiter.Forget(sid)
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("participant gone")
}

func (o *Orchestrator) handleDropped(dropped []core.SessionID) {
	for _, sid := range dropped {
		switch o.Policy.OnBackPressure(sid) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("slow channel disconnected")
			o.Registry.Cancel(sid)
		case app.DropFrame:
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("frame dropped")
		}
	}
}

// reply sends env to sid alone.
func (o *Orchestrator) reply(sid core.SessionID, env protocol.Envelope) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return
	}
	frame, ok := o.encode(env)
	if !ok {
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		o.handleDropped([]core.SessionID{sid})
	}
}

// ReplyError tells sid that its last frame was refused.
func (o *Orchestrator) ReplyError(sid core.SessionID, msg string) {
	o.replyError(sid, msg)
}

func (o *Orchestrator) replyError(sid core.SessionID, msg string) {
	o.reply(sid, protocol.Envelope{Type: protocol.TypeError, Error: msg})
}

func (o *Orchestrator) encode(env protocol.Envelope) (core.Frame, bool) {
	b, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", env.Type).Msg("encode envelope")
		return nil, false
	}
	return b, true
}
