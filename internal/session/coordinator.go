// Package session coordinates one participant's room membership and the
// peer links it opens to the other participants.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/events"
	"github.com/dkeye/Mesh/internal/peerlink"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport sends envelopes to the relay.
type Transport interface {
	Send(protocol.Envelope) error
}

type Config struct {
	Transport Transport
	Factory   peerlink.Factory
	Media     core.MediaSource
	Sink      core.MediaSink
	Bus       *events.Bus
}

// Participant is a remote member this client knows about.
type Participant struct {
	ID    string
	Name  string
	Link  string
	Later bool
}

type Coordinator struct {
	tr    Transport
	media core.MediaSource
	bus   *events.Bus
	links *peerlink.Manager
	log   zerolog.Logger

	mu          sync.Mutex
	room        string
	pendingRoom string
	selfID      string
	name        string
	isAdmin     bool
	isInitiator bool
	isReady     bool
	hasTracks   bool
	// later holds participants whose ready this client saw while in the room.
	later map[string]bool
	known map[string]string
}

func New(cfg Config) *Coordinator {
	bus := cfg.Bus
	if bus == nil {
		bus = events.NewBus()
	}
	c := &Coordinator{
		tr:    cfg.Transport,
		media: cfg.Media,
		bus:   bus,
		log:   log.With().Str("module", "session").Logger(),
		later: make(map[string]bool),
		known: make(map[string]string),
	}
	c.links = peerlink.NewManager(peerlink.Config{
		Factory:  cfg.Factory,
		Signaler: c,
		Sink:     cfg.Sink,
		OnError: func(err error) {
			c.bus.Publish(events.Error, events.ErrorPayload{Err: err})
		},
	})
	return c
}

func (c *Coordinator) Bus() *events.Bus { return c.bus }

func (c *Coordinator) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Coordinator) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

func (c *Coordinator) IsAdmin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isAdmin
}

func (c *Coordinator) IsInitiator() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isInitiator
}

func (c *Coordinator) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isReady
}

// LinkState reports the negotiation state of the link to peer.
func (c *Coordinator) LinkState(peer string) (peerlink.State, peerlink.Role, bool) {
	l, ok := c.links.Get(peer)
	if !ok {
		return peerlink.StateClosed, 0, false
	}
	return l.State(), l.Role(), true
}

func (c *Coordinator) LinkCount() int { return c.links.Len() }

// Participants lists the known remote participants, sorted by id.
func (c *Coordinator) Participants() []Participant {
	c.mu.Lock()
	ids := make(map[string]Participant, len(c.known))
	for id, name := range c.known {
		ids[id] = Participant{ID: id, Name: name, Later: c.later[id]}
	}
	c.mu.Unlock()
	for _, peer := range c.links.Peers() {
		p := ids[peer]
		p.ID = peer
		if l, ok := c.links.Get(peer); ok {
			p.Link = l.State().String()
		}
		ids[peer] = p
	}
	out := make([]Participant, 0, len(ids))
	for _, p := range ids {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Coordinator) reject(err error) error {
	c.log.Warn().Err(err).Msg("request rejected")
	c.bus.Publish(events.Notification, events.NotificationPayload{Message: err.Error()})
	return err
}

// JoinRoom asks the relay to create or join roomID.
func (c *Coordinator) JoinRoom(roomID, name string) error {
	roomID = strings.TrimSpace(roomID)
	name = strings.TrimSpace(name)

	c.mu.Lock()
	var err error
	switch {
	case c.room != "":
		err = ErrAlreadyInRoom
	case c.pendingRoom != "":
		err = ErrJoinPending
	case roomID == "":
		err = ErrEmptyRoomID
	case name == "":
		err = ErrEmptyName
	}
	if err != nil {
		c.mu.Unlock()
		return c.reject(err)
	}
	c.pendingRoom, c.name = roomID, name
	c.mu.Unlock()

	if err := c.tr.Send(protocol.Envelope{Type: protocol.TypeCreateOrJoin, Room: roomID, Name: name}); err != nil {
		c.mu.Lock()
		c.pendingRoom = ""
		c.mu.Unlock()
		return fmt.Errorf("send create_or_join: %w", err)
	}
	c.log.Info().Str("room", roomID).Msg("join requested")
	return nil
}

// LeaveRoom tears down every link and leaves the current room.
func (c *Coordinator) LeaveRoom() error {
	c.mu.Lock()
	room := c.room
	if room == "" {
		c.mu.Unlock()
		return c.reject(ErrNotInRoom)
	}
	self, name := c.selfID, c.name
	c.resetLocked()
	c.mu.Unlock()

	c.links.CloseAll()
	if err := c.tr.Send(protocol.Envelope{Type: protocol.TypeLeaveRoom, Room: room}); err != nil {
		c.log.Warn().Err(err).Str("room", room).Msg("send leave_room")
	}
	c.bus.Publish(events.LeftRoom, events.RoomPayload{Room: room, SelfID: self, Name: name})
	c.log.Info().Str("room", room).Msg("left room")
	return nil
}

// KickParticipant asks the relay to evict id. The local link goes right away.
func (c *Coordinator) KickParticipant(id string) error {
	c.mu.Lock()
	room, admin := c.room, c.isAdmin
	c.mu.Unlock()
	if room == "" {
		return c.reject(ErrNotInRoom)
	}
	if !admin {
		return c.reject(ErrNotAdmin)
	}

	name, _ := c.forget(id)
	c.links.Close(id)
	if err := c.tr.Send(protocol.Envelope{Type: protocol.TypeKickout, Target: id, Room: room}); err != nil {
		return fmt.Errorf("send kickout: %w", err)
	}
	c.bus.Publish(events.ParticipantRemoved, events.ParticipantPayload{ID: id, Name: name})
	c.log.Info().Str("room", room).Str("peer", id).Msg("kick requested")
	return nil
}

// AnnounceStreamReady acquires local media once per room stay and tells the
// room this client can be connected to.
func (c *Coordinator) AnnounceStreamReady(ctx context.Context) error {
	c.mu.Lock()
	room, has := c.room, c.hasTracks
	c.mu.Unlock()
	if room == "" {
		return c.reject(ErrNotInRoom)
	}

	if !has {
		tracks, err := c.media.AcquireLocalTracks(ctx)
		if err != nil {
			err = fmt.Errorf("acquire local media: %w", err)
			c.bus.Publish(events.Error, events.ErrorPayload{Err: err})
			return err
		}
		c.links.SetLocalTracks(tracks)
		c.mu.Lock()
		c.hasTracks = len(tracks) > 0
		c.mu.Unlock()
	}
	return c.sendSignal("", room, protocol.Signal{Type: protocol.SignalGotStream})
}

// SendChat broadcasts text to the room.
func (c *Coordinator) SendChat(text string) error {
	c.mu.Lock()
	room, self, name := c.room, c.selfID, c.name
	c.mu.Unlock()
	if room == "" {
		return c.reject(ErrNotInRoom)
	}
	if err := c.sendSignal("", room, protocol.Signal{Type: protocol.SignalChat, Message: text, SenderName: name}); err != nil {
		return err
	}
	c.bus.Publish(events.ChatMessage, events.ChatPayload{From: self, SenderName: name, Message: text, Local: true})
	return nil
}

// Close tears down every link without notifying the relay.
func (c *Coordinator) Close() {
	c.links.CloseAll()
}

// SendSignal delivers a link's payload to one participant.
func (c *Coordinator) SendSignal(to string, s protocol.Signal) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	return c.sendSignal(to, room, s)
}

func (c *Coordinator) sendSignal(target, room string, s protocol.Signal) error {
	payload, err := s.Marshal()
	if err != nil {
		return err
	}
	env := protocol.Envelope{Type: protocol.TypeMessage, Target: target, Room: room, Payload: payload}
	if err := c.tr.Send(env); err != nil {
		return fmt.Errorf("send %s: %w", s.Type, err)
	}
	return nil
}

func (c *Coordinator) resetLocked() {
	c.room, c.pendingRoom = "", ""
	c.isAdmin, c.isInitiator, c.isReady, c.hasTracks = false, false, false, false
	c.later = make(map[string]bool)
	c.known = make(map[string]string)
}

// forget drops id from the participant records.
func (c *Coordinator) forget(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, known := c.known[id]
	later := c.later[id]
	delete(c.known, id)
	delete(c.later, id)
	return name, known || later
}
