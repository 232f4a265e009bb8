package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/core/mocks"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/events"
	"github.com/dkeye/Mesh/internal/peerlink"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"go.uber.org/mock/gomock"
)

// stubPC answers every negotiation step successfully.
type stubPC struct {
	mu        sync.Mutex
	remote    int
	connected bool
}

func (p *stubPC) CreateOffer(context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (p *stubPC) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (p *stubPC) SetRemoteDescription(webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote++
	return nil
}

func (p *stubPC) Rollback() error                              { return nil }
func (p *stubPC) AddICECandidate(webrtc.ICECandidateInit) error { return nil }
func (p *stubPC) AddTrack(webrtc.TrackLocal) error              { return nil }
func (p *stubPC) Close() error                                  { return nil }

func (p *stubPC) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

type stubFactory struct{}

func (stubFactory) NewPeerConnection(string, peerlink.Handlers) (peerlink.PeerConnection, error) {
	return &stubPC{}, nil
}

// relayPipe hands a client's envelopes straight to the orchestrator.
type relayPipe struct {
	o   *orch.Orchestrator
	sid core.SessionID
}

func (p relayPipe) Send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	decoded, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	p.o.Handle(p.sid, decoded)
	return nil
}

// chanConn is the relay side of a client's channel.
type chanConn struct {
	ch chan core.Frame
}

func (c *chanConn) TrySend(f core.Frame) error {
	select {
	case c.ch <- f:
		return nil
	default:
		return core.ErrBackpressure
	}
}

func (c *chanConn) Close() {}

type recorder struct {
	mu  sync.Mutex
	got map[events.Name][]events.Event
}

func record(bus *events.Bus, names ...events.Name) *recorder {
	r := &recorder{got: make(map[events.Name][]events.Event)}
	for _, n := range names {
		bus.Subscribe(n, func(e events.Event) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.got[e.Name] = append(r.got[e.Name], e)
		})
	}
	return r
}

func (r *recorder) count(n events.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got[n])
}

func (r *recorder) last(n events.Name) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.got[n]
	if len(list) == 0 {
		return events.Event{}, false
	}
	return list[len(list)-1], true
}

var allEvents = []events.Name{
	events.Notification, events.CreatedRoom, events.JoinedRoom, events.LeftRoom,
	events.NewParticipant, events.ParticipantRemoved, events.Kicked, events.Error, events.ChatMessage,
}

type client struct {
	*Coordinator
	id    string
	media *mocks.MockMediaSource
	rec   *recorder
}

type mesh struct {
	t    *testing.T
	o    *orch.Orchestrator
	ctrl *gomock.Controller
}

func newMesh(t *testing.T) *mesh {
	t.Helper()
	return &mesh{
		t:    t,
		o:    orch.New(app.NewRegistry(), app.NewRoomManager(), app.DropPolicy{}, nil),
		ctrl: gomock.NewController(t),
	}
}

func (m *mesh) connect(id string) *client {
	m.t.Helper()
	conn := &chanConn{ch: make(chan core.Frame, 1024)}
	sid := core.SessionID(id)
	ctx, cancel := context.WithCancel(context.Background())
	m.o.Registry.BindSignal(sid, core.NewMemberSession(domain.NewMember(domain.NewUser(domain.UserID(id), "")), conn), cancel)

	media := mocks.NewMockMediaSource(m.ctrl)
	coord := New(Config{Transport: relayPipe{o: m.o, sid: sid}, Factory: stubFactory{}, Media: media})
	c := &client{Coordinator: coord, id: id, media: media, rec: record(coord.Bus(), allEvents...)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-conn.ch:
				env, err := protocol.Decode(f)
				if err != nil {
					m.t.Errorf("%s: bad frame: %v", id, err)
					continue
				}
				coord.Handle(env)
			}
		}
	}()
	m.t.Cleanup(func() {
		cancel()
		<-done
		coord.Close()
	})
	return c
}

func audioTrack(t *testing.T, id string) webrtc.TrackLocal {
	t.Helper()
	tr, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio-"+id, "mesh-"+id)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// recordingTransport keeps envelopes instead of sending them.
type recordingTransport struct {
	mu   sync.Mutex
	sent []protocol.Envelope
}

func (r *recordingTransport) Send(env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordingTransport) all() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.sent...)
}
