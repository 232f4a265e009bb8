// Package events is the typed notification surface a client UI subscribes to.
package events

import (
	"sync"
)

type Name string

const (
	Notification       Name = "notification"
	CreatedRoom        Name = "createdRoom"
	JoinedRoom         Name = "joinedRoom"
	LeftRoom           Name = "leftRoom"
	NewParticipant     Name = "newParticipant"
	ParticipantRemoved Name = "participantRemoved"
	Kicked             Name = "kicked"
	Error              Name = "error"
	ChatMessage        Name = "chatMessage"
)

type Event struct {
	Name    Name
	Payload any
}

type Handler func(Event)

// Handle identifies one subscription.
type Handle struct {
	name Name
	id   uint64
}

type subscription struct {
	id uint64
	fn Handler
}

// Bus delivers events synchronously, in publish order, to the subscribers of
// the event's name in subscription order.
type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[Name][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Name][]subscription)}
}

func (b *Bus) Subscribe(name Name, fn Handler) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.subs[name] = append(b.subs[name], subscription{id: b.next, fn: fn})
	return Handle{name: name, id: b.next}
}

// Unsubscribe reports whether h was still subscribed.
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[h.name]
	for i, s := range list {
		if s.id == h.id {
			b.subs[h.name] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) Publish(name Name, payload any) {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()
	ev := Event{Name: name, Payload: payload}
	for _, s := range list {
		s.fn(ev)
	}
}
