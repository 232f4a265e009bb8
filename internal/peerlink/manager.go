package peerlink

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Config struct {
	Factory  Factory
	Signaler Signaler
	// Sink receives remote tracks. Optional.
	Sink core.MediaSink
	// OnError receives every *NegotiationError. It runs on a link goroutine
	// and must not close links synchronously.
	OnError func(error)
	Logger  *zerolog.Logger
}

// Manager owns the links of one client, at most one per remote participant.
type Manager struct {
	factory Factory
	sig     Signaler
	sink    core.MediaSink
	onError func(error)
	log     zerolog.Logger

	mu      sync.Mutex
	links   map[string]*Link
	pending map[string][]webrtc.ICECandidateInit
	tracks  []webrtc.TrackLocal
	self    string
	epoch   uint64
}

func NewManager(cfg Config) *Manager {
	logger := log.With().Str("module", "peerlink").Logger()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("module", "peerlink").Logger()
	}
	return &Manager{
		factory: cfg.Factory,
		sig:     cfg.Signaler,
		sink:    cfg.Sink,
		onError: cfg.OnError,
		log:     logger,
		links:   make(map[string]*Link),
		pending: make(map[string][]webrtc.ICECandidateInit),
	}
}

// SetLocalTracks sets the tracks added to links opened from now on.
func (m *Manager) SetLocalTracks(tracks []webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append([]webrtc.TrackLocal(nil), tracks...)
}

func (m *Manager) HasLocalTracks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks) > 0
}

// SetSelf records the local participant id. On offer glare the side with
// the lower id yields. Until it is set every link yields.
func (m *Manager) SetSelf(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = id
}

// Epoch identifies the current generation of links. CloseAll starts a new one.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// Open returns the link to peer, creating it with role if none exists.
// The bool is false when an existing link was reused.
func (m *Manager) Open(peer string, role Role) (*Link, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(peer, role)
}

// OpenAt is Open for a caller that decided to connect during epoch. It fails
// with ErrStale once CloseAll has run since.
func (m *Manager) OpenAt(epoch uint64, peer string, role Role) (*Link, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return nil, false, ErrStale
	}
	return m.openLocked(peer, role)
}

func (m *Manager) openLocked(peer string, role Role) (*Link, bool, error) {
	if l, ok := m.links[peer]; ok {
		return l, false, nil
	}

	pc, err := m.factory.NewPeerConnection(peer, Handlers{
		OnICECandidate: func(c webrtc.ICECandidateInit) {
			if err := m.sig.SendSignal(peer, candidateSignal(c)); err != nil {
				m.log.Warn().Err(err).Str("peer", peer).Msg("send candidate")
			}
		},
		OnTrack: func(t *webrtc.TrackRemote) {
			if m.sink != nil {
				m.sink.Attach(peer, t)
			}
		},
		OnConnected: func() {
			m.mu.Lock()
			cur := m.links[peer]
			m.mu.Unlock()
			if cur != nil {
				cur.transportConnected()
			}
		},
	})
	if err != nil {
		return nil, false, &NegotiationError{Peer: peer, Op: OpNewConnection, Err: err}
	}
	for _, t := range m.tracks {
		if err := pc.AddTrack(t); err != nil {
			_ = pc.Close()
			return nil, false, &NegotiationError{Peer: peer, Op: OpAddTrack, Err: fmt.Errorf("track %s: %w", t.ID(), err)}
		}
	}

	polite := m.self == "" || m.self < peer
	l := newLink(peer, role, polite, pc, m.sig, m.onError, m.log)
	m.links[peer] = l
	for _, c := range m.pending[peer] {
		_ = l.HandleCandidate(c)
	}
	delete(m.pending, peer)
	m.log.Info().Str("peer", peer).Str("role", role.String()).Msg("link opened")
	return l, true, nil
}

func (m *Manager) Get(peer string) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[peer]
	return l, ok
}

func (m *Manager) Negotiate(peer string) error {
	l, ok := m.Get(peer)
	if !ok {
		return ErrUnknownPeer
	}
	return l.Negotiate()
}

func (m *Manager) HandleOffer(peer, sdp string) error {
	l, ok := m.Get(peer)
	if !ok {
		return ErrUnknownPeer
	}
	return l.HandleOffer(sdp)
}

func (m *Manager) HandleAnswer(peer, sdp string) error {
	l, ok := m.Get(peer)
	if !ok {
		m.log.Debug().Str("peer", peer).Msg("answer without link ignored")
		return ErrUnknownPeer
	}
	return l.HandleAnswer(sdp)
}

// HandleCandidate routes c to the peer's link, or holds it until the link
// is opened.
func (m *Manager) HandleCandidate(peer string, c webrtc.ICECandidateInit) {
	m.mu.Lock()
	l, ok := m.links[peer]
	if !ok {
		m.pending[peer] = append(m.pending[peer], c)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	_ = l.HandleCandidate(c)
}

// Close tears down the link to peer. It reports whether one existed.
func (m *Manager) Close(peer string) bool {
	m.mu.Lock()
	l, ok := m.links[peer]
	delete(m.links, peer)
	delete(m.pending, peer)
	m.mu.Unlock()
	if !ok {
		return false
	}
	l.Close()
	if m.sink != nil {
		m.sink.Detach(peer)
	}
	return true
}

// CloseAll tears down every link concurrently, forgets the local tracks and
// starts a new epoch.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*Link)
	m.pending = make(map[string][]webrtc.ICECandidateInit)
	m.tracks = nil
	m.self = ""
	m.epoch++
	m.mu.Unlock()

	var wg conc.WaitGroup
	for peer, l := range links {
		wg.Go(func() {
			l.Close()
			if m.sink != nil {
				m.sink.Detach(peer)
			}
		})
	}
	wg.Wait()
	if len(links) > 0 {
		m.log.Info().Int("links", len(links)).Msg("all links closed")
	}
}

// Peers lists remote ids with a link, sorted.
func (m *Manager) Peers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.links))
	for p := range m.links {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}
