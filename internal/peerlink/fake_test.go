package peerlink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
)

type fakePC struct {
	mu         sync.Mutex
	offers     int
	answers    int
	remote     []webrtc.SessionDescription
	candidates []string
	rollbacks  int
	tracks     int
	connected  bool
	closed     bool

	failOffer  error
	blockOffer chan struct{}
	offerEnter chan struct{}
	handlers   Handlers
}

func (f *fakePC) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if f.offerEnter != nil {
		close(f.offerEnter)
	}
	if f.blockOffer != nil {
		select {
		case <-f.blockOffer:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOffer != nil {
		err := f.failOffer
		f.failOffer = nil
		return webrtc.SessionDescription{}, err
	}
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", f.offers)}, nil
}

func (f *fakePC) CreateAnswer(context.Context) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.answers)}, nil
}

func (f *fakePC) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.SDP == "bad" {
		return errors.New("malformed sdp")
	}
	f.remote = append(f.remote, d)
	return nil
}

func (f *fakePC) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks++
	return nil
}

func (f *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.remote) == 0 {
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, c.Candidate)
	return nil
}

func (f *fakePC) AddTrack(webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks++
	return nil
}

func (f *fakePC) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePC) snapshot() fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakePC{
		offers:     f.offers,
		answers:    f.answers,
		remote:     append([]webrtc.SessionDescription(nil), f.remote...),
		candidates: append([]string(nil), f.candidates...),
		rollbacks:  f.rollbacks,
		tracks:     f.tracks,
		closed:     f.closed,
	}
}

type fakeFactory struct {
	mu   sync.Mutex
	pcs  map[string]*fakePC
	next func(peer string) *fakePC
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{pcs: make(map[string]*fakePC)}
}

func (f *fakeFactory) NewPeerConnection(peer string, h Handlers) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pc := &fakePC{}
	if f.next != nil {
		pc = f.next(peer)
	}
	pc.handlers = h
	f.pcs[peer] = pc
	return pc, nil
}

func (f *fakeFactory) pc(peer string) *fakePC {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pcs[peer]
}

type sent struct {
	to  string
	sig protocol.Signal
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
}

func (s *fakeSignaler) SendSignal(to string, sig protocol.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{to: to, sig: sig})
	return nil
}

func (s *fakeSignaler) ofType(t protocol.SignalType) []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sent
	for _, m := range s.sent {
		if m.sig.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type errSink struct {
	mu   sync.Mutex
	errs []error
}

func (e *errSink) add(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *errSink) all() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mid(s string) *string { return &s }

// drain waits until every operation queued on l so far has run.
func drain(t *testing.T, l *Link) {
	t.Helper()
	done := make(chan struct{})
	if err := l.submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("drain: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("link queue stuck")
	}
}
