package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Mesh/internal/core/mocks"
	"github.com/dkeye/Mesh/internal/events"
	"github.com/dkeye/Mesh/internal/peerlink"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

func join(t *testing.T, c *client, room, name string) {
	t.Helper()
	if err := c.JoinRoom(room, name); err != nil {
		t.Fatalf("%s join: %v", c.id, err)
	}
	eventually(t, c.id+" in "+room, func() bool { return c.Room() == room })
}

func expectMedia(t *testing.T, c *client, times int) {
	c.media.EXPECT().AcquireLocalTracks(gomock.Any()).Return([]webrtc.TrackLocal{audioTrack(t, c.id)}, nil).Times(times)
}

func linkOf(c *client, peer string) (peerlink.State, peerlink.Role, bool) {
	return c.LinkState(peer)
}

func connectPair(t *testing.T, a, b *client) {
	t.Helper()
	ctx := context.Background()
	if err := a.AnnounceStreamReady(ctx); err != nil {
		t.Fatal(err)
	}
	if err := b.AnnounceStreamReady(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "offerer connected", func() bool {
		st, _, ok := linkOf(a, b.id)
		return ok && st == peerlink.StateConnected
	})
	eventually(t, "answer sent", func() bool {
		st, _, ok := linkOf(b, a.id)
		return ok && st == peerlink.StateAnswerSent
	})
}

func TestScenarioR7(t *testing.T) {
	m := newMesh(t)
	alice, bob := m.connect("A"), m.connect("B")
	expectMedia(t, alice, 1)
	expectMedia(t, bob, 1)

	join(t, alice, "R7", "Alice")
	if !alice.IsAdmin() || !alice.IsInitiator() {
		t.Fatal("creator must be admin and initiator")
	}
	join(t, bob, "R7", "Bob")
	if bob.IsAdmin() || bob.IsInitiator() || !bob.IsReady() {
		t.Fatal("joiner flags wrong")
	}
	eventually(t, "alice sees bob", func() bool { return alice.rec.count(events.NewParticipant) == 1 })
	if ev, _ := alice.rec.last(events.NewParticipant); ev.Payload.(events.ParticipantPayload).Name != "Bob" {
		t.Fatalf("newParticipant = %+v", ev.Payload)
	}

	connectPair(t, alice, bob)
	if _, role, _ := linkOf(alice, "B"); role != peerlink.RoleOfferer {
		t.Fatalf("alice role %v", role)
	}
	if _, role, _ := linkOf(bob, "A"); role != peerlink.RoleAnswerer {
		t.Fatalf("bob role %v", role)
	}
	if alice.LinkCount() != 1 || bob.LinkCount() != 1 {
		t.Fatalf("links: alice=%d bob=%d", alice.LinkCount(), bob.LinkCount())
	}

	if err := alice.KickParticipant("B"); err != nil {
		t.Fatal(err)
	}
	if alice.LinkCount() != 0 {
		t.Fatal("kick must drop the local link at once")
	}
	eventually(t, "bob kicked", func() bool { return bob.rec.count(events.Kicked) == 1 })
	eventually(t, "bob cleared", func() bool { return bob.Room() == "" && bob.LinkCount() == 0 })

	rs, ok := m.o.Rooms.GetRoom("R7")
	if !ok {
		t.Fatal("R7 gone")
	}
	members := rs.MembersSnapshot()
	if len(members) != 1 || members[0].ID != "A" || !members[0].Admin {
		t.Fatalf("R7 members = %+v", members)
	}
	if adm, _ := rs.Admin(); adm != "A" {
		t.Fatalf("admin = %q", adm)
	}
}

func TestKickParticipant_NonAdminRejected(t *testing.T) {
	m := newMesh(t)
	alice, bob, carol := m.connect("A"), m.connect("B"), m.connect("C")
	join(t, alice, "R7", "Alice")
	join(t, bob, "R7", "Bob")
	join(t, carol, "R7", "Carol")

	if err := carol.KickParticipant("B"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v", err)
	}
	if carol.rec.count(events.Notification) == 0 {
		t.Fatal("rejection not notified")
	}
	rs, _ := m.o.Rooms.GetRoom("R7")
	if !rs.IsMember("B") || rs.MemberCount() != 3 {
		t.Fatal("membership changed")
	}
	if bob.rec.count(events.Kicked) != 0 {
		t.Fatal("bob kicked")
	}
}

func TestLeaveAndRejoin_FreshLinks(t *testing.T) {
	m := newMesh(t)
	alice, bob := m.connect("A"), m.connect("B")
	expectMedia(t, alice, 2)
	expectMedia(t, bob, 1)

	join(t, alice, "R1", "Alice")
	join(t, bob, "R1", "Bob")
	eventually(t, "alice sees bob", func() bool { return alice.rec.count(events.NewParticipant) == 1 })
	connectPair(t, alice, bob)

	if err := alice.LeaveRoom(); err != nil {
		t.Fatal(err)
	}
	if alice.LinkCount() != 0 || alice.IsAdmin() || alice.IsReady() {
		t.Fatal("leave left state behind")
	}
	if alice.rec.count(events.LeftRoom) != 1 {
		t.Fatal("leftRoom not raised")
	}
	eventually(t, "bob drops alice", func() bool {
		return bob.LinkCount() == 0 && bob.rec.count(events.ParticipantRemoved) == 1
	})

	// Alice comes back as the later arrival, so bob now offers.
	join(t, alice, "R1", "Alice")
	if alice.IsAdmin() {
		t.Fatal("rejoin must not restore admin")
	}
	eventually(t, "bob sees alice", func() bool { return bob.rec.count(events.NewParticipant) == 1 })
	if err := alice.AnnounceStreamReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "bob offers", func() bool {
		st, role, ok := linkOf(bob, "A")
		return ok && role == peerlink.RoleOfferer && st == peerlink.StateConnected
	})
	if _, role, _ := linkOf(alice, "B"); role != peerlink.RoleAnswerer {
		t.Fatalf("alice role %v", role)
	}
}

func TestGotStreamIgnoredUntilStarted(t *testing.T) {
	m := newMesh(t)
	alice, bob := m.connect("A"), m.connect("B")
	expectMedia(t, bob, 1)
	join(t, alice, "R1", "Alice")
	join(t, bob, "R1", "Bob")
	eventually(t, "alice sees bob", func() bool { return alice.rec.count(events.NewParticipant) == 1 })

	if err := bob.AnnounceStreamReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Alice has no local media yet, so nothing connects.
	if err := alice.SendChat("ping"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "chat delivered", func() bool { return bob.rec.count(events.ChatMessage) == 1 })
	if alice.LinkCount() != 0 || bob.LinkCount() != 0 {
		t.Fatalf("links opened before both sides started: %d/%d", alice.LinkCount(), bob.LinkCount())
	}
	ev, _ := bob.rec.last(events.ChatMessage)
	if p := ev.Payload.(events.ChatPayload); p.SenderName != "Alice" || p.Message != "ping" || p.From != "A" {
		t.Fatalf("chat = %+v", p)
	}
	if alice.rec.count(events.ChatMessage) != 1 {
		t.Fatal("local chat echo missing")
	}
}

func TestJoinRoom_Validation(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Transport: tr, Factory: stubFactory{}})
	rec := record(c.Bus(), events.Notification)

	cases := []struct {
		room, name string
		want       error
	}{
		{"", "Alice", ErrEmptyRoomID},
		{"R1", "  ", ErrEmptyName},
	}
	for _, tc := range cases {
		if err := c.JoinRoom(tc.room, tc.name); !errors.Is(err, tc.want) {
			t.Fatalf("JoinRoom(%q,%q) = %v, want %v", tc.room, tc.name, err, tc.want)
		}
	}
	if err := c.JoinRoom("R1", "Alice"); err != nil {
		t.Fatal(err)
	}
	if err := c.JoinRoom("R2", "Alice"); !errors.Is(err, ErrJoinPending) {
		t.Fatalf("pending join: %v", err)
	}
	c.Handle(protocol.Envelope{Type: protocol.TypeCreated, Room: "R1", ID: "self", Name: "Alice"})
	if err := c.JoinRoom("R2", "Alice"); !errors.Is(err, ErrAlreadyInRoom) {
		t.Fatalf("second join: %v", err)
	}
	if rec.count(events.Notification) != 4 {
		t.Fatalf("notifications = %d", rec.count(events.Notification))
	}
	if sent := tr.all(); len(sent) != 1 || sent[0].Type != protocol.TypeCreateOrJoin || sent[0].Name != "Alice" {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestNotInRoomRejections(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Transport: tr, Factory: stubFactory{}})

	if err := c.LeaveRoom(); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("leave: %v", err)
	}
	if err := c.KickParticipant("X"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("kick: %v", err)
	}
	if err := c.AnnounceStreamReady(context.Background()); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("announce: %v", err)
	}
	if err := c.SendChat("hi"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("chat: %v", err)
	}
	if len(tr.all()) != 0 {
		t.Fatal("rejected calls reached the relay")
	}
}

func TestRelayErrorClearsPendingJoin(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Transport: tr, Factory: stubFactory{}})
	rec := record(c.Bus(), events.Error)

	_ = c.JoinRoom("R1", "Alice")
	c.Handle(protocol.Envelope{Type: protocol.TypeError, Error: "too many join attempts"})
	ev, ok := rec.last(events.Error)
	if !ok || !errors.Is(ev.Payload.(events.ErrorPayload).Err, ErrRelay) {
		t.Fatalf("error event = %+v", ev)
	}
	if err := c.JoinRoom("R1", "Alice"); err != nil {
		t.Fatalf("retry after relay error: %v", err)
	}
}

func TestAnnounceStreamReady_MediaFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := &recordingTransport{}
	m := mocks.NewMockMediaSource(ctrl)
	m.EXPECT().AcquireLocalTracks(gomock.Any()).Return(nil, errors.New("no device"))
	c := New(Config{Transport: tr, Factory: stubFactory{}, Media: m})
	rec := record(c.Bus(), events.Error)

	_ = c.JoinRoom("R1", "Alice")
	c.Handle(protocol.Envelope{Type: protocol.TypeCreated, Room: "R1", ID: "A"})
	if err := c.AnnounceStreamReady(context.Background()); err == nil {
		t.Fatal("expected media error")
	}
	if rec.count(events.Error) != 1 {
		t.Fatal("error event missing")
	}
	for _, env := range tr.all() {
		if env.Type == protocol.TypeMessage {
			t.Fatal("gotstream sent without media")
		}
	}
}

func TestKickoutOfSelf_SendsLeaveNotice(t *testing.T) {
	tr := &recordingTransport{}
	c := New(Config{Transport: tr, Factory: stubFactory{}})
	rec := record(c.Bus(), events.Kicked)

	_ = c.JoinRoom("R7", "Bob")
	c.Handle(protocol.Envelope{Type: protocol.TypeJoined, Room: "R7", ID: "B"})
	c.Handle(protocol.Envelope{Type: protocol.TypeKickout, Room: "R7", ID: "B"})

	if c.Room() != "" || rec.count(events.Kicked) != 1 {
		t.Fatal("kickout not applied")
	}
	sent := tr.all()
	last := sent[len(sent)-1]
	if last.Type != protocol.TypeMessage || last.Room != "R7" || last.Target != "" {
		t.Fatalf("notice = %+v", last)
	}
	sig, err := protocol.ParseSignal(last.Payload)
	if err != nil || sig.Type != protocol.SignalLeave {
		t.Fatalf("notice payload = %+v, %v", sig, err)
	}
	for _, env := range sent {
		if env.Type == protocol.TypeLeaveRoom {
			t.Fatal("kicked client must not send leave_room")
		}
	}
}

func gotStreamFrom(t *testing.T, from, room string) protocol.Envelope {
	t.Helper()
	payload, err := protocol.Signal{Type: protocol.SignalGotStream}.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return protocol.Envelope{Type: protocol.TypeMessage, From: from, Room: room, Payload: payload}
}

func TestLeaveRoomRacingGotStream_LeavesNoLink(t *testing.T) {
	ctrl := gomock.NewController(t)
	media := mocks.NewMockMediaSource(ctrl)
	media.EXPECT().AcquireLocalTracks(gomock.Any()).Return([]webrtc.TrackLocal{audioTrack(t, "A")}, nil).AnyTimes()
	c := New(Config{Transport: &recordingTransport{}, Factory: stubFactory{}, Media: media})
	t.Cleanup(c.Close)

	enter := func() {
		t.Helper()
		if err := c.JoinRoom("R1", "Alice"); err != nil {
			t.Fatal(err)
		}
		c.Handle(protocol.Envelope{Type: protocol.TypeCreated, Room: "R1", ID: "A"})
		c.Handle(protocol.Envelope{Type: protocol.TypeReady, Room: "R1", ID: "B", Name: "Bob"})
		if err := c.AnnounceStreamReady(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	gotStream := gotStreamFrom(t, "B", "R1")
	for i := 0; i < 100; i++ {
		enter()
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Handle(gotStream)
		}()
		go func() {
			defer wg.Done()
			if err := c.LeaveRoom(); err != nil {
				t.Error(err)
			}
		}()
		wg.Wait()
		if c.Room() != "" || c.LinkCount() != 0 {
			t.Fatalf("iteration %d: room=%q links=%d after leave", i, c.Room(), c.LinkCount())
		}
	}

	// The next stay starts from a fresh link.
	enter()
	c.Handle(gotStream)
	eventually(t, "fresh offer", func() bool {
		st, role, ok := c.LinkState("B")
		return ok && role == peerlink.RoleOfferer && st == peerlink.StateOfferSent
	})
	if c.LinkCount() != 1 {
		t.Fatalf("links = %d", c.LinkCount())
	}
}

func TestThreeParticipants_EveryPairHasOneOfferer(t *testing.T) {
	m := newMesh(t)
	alice, bob, carol := m.connect("A"), m.connect("B"), m.connect("C")
	expectMedia(t, alice, 1)
	expectMedia(t, bob, 1)
	expectMedia(t, carol, 1)

	join(t, alice, "R3", "Alice")
	join(t, bob, "R3", "Bob")
	eventually(t, "alice sees bob", func() bool { return alice.rec.count(events.NewParticipant) == 1 })
	connectPair(t, alice, bob)

	join(t, carol, "R3", "Carol")
	eventually(t, "room sees carol", func() bool {
		return alice.rec.count(events.NewParticipant) == 2 && bob.rec.count(events.NewParticipant) == 1
	})
	if err := carol.AnnounceStreamReady(context.Background()); err != nil {
		t.Fatal(err)
	}

	clients := map[string]*client{"A": alice, "B": bob, "C": carol}
	pairs := []struct{ offerer, answerer string }{{"A", "B"}, {"A", "C"}, {"B", "C"}}
	for _, p := range pairs {
		off, ans := clients[p.offerer], clients[p.answerer]
		eventually(t, p.offerer+" offers to "+p.answerer, func() bool {
			st, role, ok := linkOf(off, p.answerer)
			return ok && role == peerlink.RoleOfferer && st == peerlink.StateConnected
		})
		eventually(t, p.answerer+" answers "+p.offerer, func() bool {
			st, role, ok := linkOf(ans, p.offerer)
			return ok && role == peerlink.RoleAnswerer && st == peerlink.StateAnswerSent
		})
	}
	for id, c := range clients {
		if c.LinkCount() != 2 {
			t.Fatalf("%s links = %d", id, c.LinkCount())
		}
	}
}
