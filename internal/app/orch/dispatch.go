package orch

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Handle dispatches one decoded envelope received on sid's channel.
func (o *Orchestrator) Handle(sid core.SessionID, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCreateOrJoin:
		o.CreateOrJoin(sid, env.Room, env.Name)
	case protocol.TypeLeaveRoom:
		o.Leave(sid, env.Room)
	case protocol.TypeMessage:
		o.Relay(sid, env)
	case protocol.TypeKickout:
		target := env.Target
		if target == "" {
			target = env.ID
		}
		o.Kick(sid, target, env.Room)
	default:
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("type", env.Type).Msg("unknown envelope")
		o.replyError(sid, "unknown type "+env.Type)
	}
}
