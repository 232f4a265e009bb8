package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Mesh/internal/events"
	"github.com/dkeye/Mesh/internal/peerlink"
	"github.com/dkeye/Mesh/internal/protocol"
)

// Run feeds envelopes into Handle until in is closed or ctx ends.
func (c *Coordinator) Run(ctx context.Context, in <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-in:
			if !ok {
				return
			}
			c.Handle(env)
		}
	}
}

// Handle applies one envelope received from the relay. Envelopes must be
// handled in arrival order.
func (c *Coordinator) Handle(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeCreated:
		c.onCreated(env)
	case protocol.TypeJoined:
		c.onJoined(env)
	case protocol.TypeJoin:
		c.onJoin(env)
	case protocol.TypeReady:
		c.onReady(env)
	case protocol.TypeLeftRoom:
		c.log.Debug().Str("room", env.Room).Msg("relay confirmed leave")
	case protocol.TypeKickout:
		c.onKickout(env)
	case protocol.TypeLog:
		c.bus.Publish(events.Notification, events.NotificationPayload{Message: env.Error})
	case protocol.TypeError:
		c.onRelayError(env)
	case protocol.TypeMessage:
		c.onMessage(env)
	default:
		c.log.Debug().Str("type", env.Type).Msg("unhandled envelope")
	}
}

func (c *Coordinator) onCreated(env protocol.Envelope) {
	c.mu.Lock()
	if c.pendingRoom == "" || c.pendingRoom != env.Room {
		c.mu.Unlock()
		c.log.Warn().Str("room", env.Room).Msg("unexpected created")
		return
	}
	c.room, c.pendingRoom, c.selfID = env.Room, "", env.ID
	c.isAdmin, c.isInitiator, c.isReady = true, true, false
	name := c.name
	c.mu.Unlock()
	c.links.SetSelf(env.ID)

	c.log.Info().Str("room", env.Room).Str("self", env.ID).Msg("room created")
	c.bus.Publish(events.CreatedRoom, events.RoomPayload{Room: env.Room, SelfID: env.ID, Name: name, Admin: true})
}

func (c *Coordinator) onJoined(env protocol.Envelope) {
	c.mu.Lock()
	if c.pendingRoom == "" || c.pendingRoom != env.Room {
		c.mu.Unlock()
		c.log.Warn().Str("room", env.Room).Msg("unexpected joined")
		return
	}
	c.room, c.pendingRoom, c.selfID = env.Room, "", env.ID
	c.isAdmin, c.isInitiator, c.isReady = false, false, true
	name := c.name
	c.mu.Unlock()
	c.links.SetSelf(env.ID)

	c.log.Info().Str("room", env.Room).Str("self", env.ID).Msg("room joined")
	c.bus.Publish(events.JoinedRoom, events.RoomPayload{Room: env.Room, SelfID: env.ID, Name: name})
}

func (c *Coordinator) onJoin(env protocol.Envelope) {
	c.mu.Lock()
	if c.room == "" {
		c.mu.Unlock()
		return
	}
	c.isReady = true
	c.mu.Unlock()
	c.bus.Publish(events.Notification, events.NotificationPayload{Message: "a participant is joining " + env.Room})
}

func (c *Coordinator) onReady(env protocol.Envelope) {
	c.mu.Lock()
	if c.room == "" || env.ID == "" || env.ID == c.selfID {
		c.mu.Unlock()
		return
	}
	c.isInitiator, c.isReady = true, true
	c.later[env.ID] = true
	c.known[env.ID] = env.Name
	c.mu.Unlock()

	c.log.Info().Str("peer", env.ID).Msg("new participant")
	c.bus.Publish(events.NewParticipant, events.ParticipantPayload{ID: env.ID, Name: env.Name})
}

func (c *Coordinator) onKickout(env protocol.Envelope) {
	c.mu.Lock()
	room, self, name := c.room, c.selfID, c.name
	c.mu.Unlock()
	if room == "" {
		return
	}
	if env.ID != "" && env.ID != self {
		c.removePeer(env.ID)
		return
	}

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.links.CloseAll()
	// The relay already dropped this participant; the notice is what tells
	// the rest of the room.
	if err := c.sendSignal("", room, protocol.Signal{Type: protocol.SignalLeave}); err != nil {
		c.log.Warn().Err(err).Msg("send leave notice")
	}
	c.log.Info().Str("room", room).Msg("kicked from room")
	c.bus.Publish(events.Kicked, events.RoomPayload{Room: room, SelfID: self, Name: name})
}

func (c *Coordinator) onRelayError(env protocol.Envelope) {
	c.mu.Lock()
	c.pendingRoom = ""
	c.mu.Unlock()
	err := fmt.Errorf("%w: %s", ErrRelay, env.Error)
	c.log.Warn().Err(err).Msg("relay error")
	c.bus.Publish(events.Error, events.ErrorPayload{Err: err})
}

func (c *Coordinator) onMessage(env protocol.Envelope) {
	sig, err := protocol.ParseSignal(env.Payload)
	if err != nil {
		c.log.Warn().Err(err).Str("from", env.From).Msg("bad signal")
		return
	}
	from := env.From
	if from == "" {
		c.log.Debug().Str("type", string(sig.Type)).Msg("signal without sender")
		return
	}

	switch sig.Type {
	case protocol.SignalGotStream:
		c.onGotStream(from, sig.Reply)
	case protocol.SignalOffer:
		c.onOffer(from, sig.SDP)
	case protocol.SignalAnswer:
		_ = c.links.HandleAnswer(from, sig.SDP)
	case protocol.SignalCandidate:
		c.links.HandleCandidate(from, peerlink.CandidateFromSignal(sig))
	case protocol.SignalChat:
		c.bus.Publish(events.ChatMessage, events.ChatPayload{From: from, SenderName: sig.SenderName, Message: sig.Message})
	case protocol.SignalLeave:
		c.removePeer(from)
	default:
		c.log.Debug().Str("type", string(sig.Type)).Msg("unknown signal")
	}
}

// onGotStream connects to from once both sides have media. The participant
// that arrived later is always the answerer.
func (c *Coordinator) onGotStream(from string, reply bool) {
	c.mu.Lock()
	if c.room == "" {
		c.mu.Unlock()
		return
	}
	if !c.hasTracks || !c.isReady {
		c.mu.Unlock()
		c.log.Debug().Str("peer", from).Msg("gotstream ignored, not started")
		return
	}
	role := peerlink.RoleAnswerer
	if c.later[from] {
		role = peerlink.RoleOfferer
	}
	if _, ok := c.known[from]; !ok {
		c.known[from] = ""
	}
	epoch := c.links.Epoch()
	c.mu.Unlock()

	l, created, err := c.links.OpenAt(epoch, from, role)
	if errors.Is(err, peerlink.ErrStale) {
		c.log.Debug().Str("peer", from).Msg("left room, gotstream dropped")
		return
	}
	if err != nil {
		c.bus.Publish(events.Error, events.ErrorPayload{Err: err})
		return
	}
	if created {
		c.log.Info().Str("peer", from).Str("role", role.String()).Msg("connecting")
	}
	if l.Role() == peerlink.RoleOfferer {
		_ = l.Negotiate()
		return
	}
	if !reply {
		if err := c.sendSignal(from, c.Room(), protocol.Signal{Type: protocol.SignalGotStream, Reply: true}); err != nil {
			c.log.Warn().Err(err).Str("peer", from).Msg("send gotstream reply")
		}
	}
}

func (c *Coordinator) onOffer(from, sdp string) {
	c.mu.Lock()
	if c.room == "" {
		c.mu.Unlock()
		return
	}
	if _, ok := c.known[from]; !ok {
		c.known[from] = ""
	}
	epoch := c.links.Epoch()
	c.mu.Unlock()

	_, _, err := c.links.OpenAt(epoch, from, peerlink.RoleAnswerer)
	if errors.Is(err, peerlink.ErrStale) {
		c.log.Debug().Str("peer", from).Msg("left room, offer dropped")
		return
	}
	if err != nil {
		c.bus.Publish(events.Error, events.ErrorPayload{Err: err})
		return
	}
	_ = c.links.HandleOffer(from, sdp)
}

func (c *Coordinator) removePeer(id string) {
	name, existed := c.forget(id)
	closed := c.links.Close(id)
	if existed || closed {
		c.log.Info().Str("peer", id).Msg("participant removed")
		c.bus.Publish(events.ParticipantRemoved, events.ParticipantPayload{ID: id, Name: name})
	}
}
