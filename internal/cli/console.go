package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/Mesh/internal/events"
	"github.com/dkeye/Mesh/internal/session"
)

// controller is the part of the coordinator the console drives.
type controller interface {
	SendChat(text string) error
	KickParticipant(id string) error
	LeaveRoom() error
	Participants() []session.Participant
}

var errUnknownCommand = errors.New("unknown command, try /chat /kick /leave /who")

type console struct {
	c     controller
	p     printer
	stats StatsFunc
}

// execLine runs one console line. It reports true once the user left.
func (k console) execLine(line string) (bool, error) {
	c, p := k.c, k.p
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, c.SendChat(line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/chat":
		if arg == "" {
			return false, nil
		}
		return false, c.SendChat(arg)
	case "/kick":
		if arg == "" {
			return false, errors.New("usage: /kick <id>")
		}
		return false, c.KickParticipant(arg)
	case "/leave":
		err := c.LeaveRoom()
		return err == nil, err
	case "/who":
		p.block(ParticipantsView(c.Participants(), k.stats))
		return false, nil
	default:
		return false, errUnknownCommand
	}
}

// run feeds lines from in to execLine until the user leaves, in ends or ctx
// is cancelled. It reports whether the user left the room.
func (k console) run(ctx context.Context, in io.Reader) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			left, err := k.execLine(line)
			if err != nil {
				k.p.err(err)
			}
			if left {
				return true
			}
		}
	}
}

// watchEvents prints coordinator events. Room entry is reported on entered,
// room exit on gone.
func watchEvents(bus *events.Bus, p printer, entered chan<- struct{}, gone chan<- string) []events.Handle {
	signal := func(ch chan<- string, v string) {
		select {
		case ch <- v:
		default:
		}
	}
	enter := func() {
		select {
		case entered <- struct{}{}:
		default:
		}
	}

	return []events.Handle{
		bus.Subscribe(events.CreatedRoom, func(e events.Event) {
			r := e.Payload.(events.RoomPayload)
			p.success("created room %s as %s (admin)", r.Room, r.SelfID)
			enter()
		}),
		bus.Subscribe(events.JoinedRoom, func(e events.Event) {
			r := e.Payload.(events.RoomPayload)
			p.success("joined room %s as %s", r.Room, r.SelfID)
			enter()
		}),
		bus.Subscribe(events.NewParticipant, func(e events.Event) {
			pp := e.Payload.(events.ParticipantPayload)
			p.info("%s joined (%s)", displayName(pp.Name), pp.ID)
		}),
		bus.Subscribe(events.ParticipantRemoved, func(e events.Event) {
			pp := e.Payload.(events.ParticipantPayload)
			p.info("%s left (%s)", displayName(pp.Name), pp.ID)
		}),
		bus.Subscribe(events.ChatMessage, func(e events.Event) {
			c := e.Payload.(events.ChatPayload)
			if !c.Local {
				p.chat(c.SenderName, c.Message)
			}
		}),
		bus.Subscribe(events.Notification, func(e events.Event) {
			p.warn("%s", e.Payload.(events.NotificationPayload).Message)
		}),
		bus.Subscribe(events.Error, func(e events.Event) {
			p.err(e.Payload.(events.ErrorPayload).Err)
		}),
		bus.Subscribe(events.LeftRoom, func(e events.Event) {
			r := e.Payload.(events.RoomPayload)
			p.info("left room %s", r.Room)
			signal(gone, "left")
		}),
		bus.Subscribe(events.Kicked, func(e events.Event) {
			r := e.Payload.(events.RoomPayload)
			p.warn("you were removed from room %s", r.Room)
			signal(gone, "kicked")
		}),
	}
}

func displayName(name string) string {
	if name == "" {
		return "someone"
	}
	return fmt.Sprintf("%q", name)
}
