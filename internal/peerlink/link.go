package peerlink

import (
	"context"
	"sync"

	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Link is the negotiation with one remote participant. All transitions run
// on the link's own goroutine in submission order.
type Link struct {
	peer   string
	polite bool
	pc     PeerConnection
	sig    Signaler
	log    zerolog.Logger

	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	q      *opQueue
	done   chan struct{}

	mu    sync.Mutex
	state State
	role  Role

	// owned by the link goroutine
	remoteSet bool
	buffered  []webrtc.ICECandidateInit
}

func newLink(peer string, role Role, polite bool, pc PeerConnection, sig Signaler, onError func(error), logger zerolog.Logger) *Link {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Link{
		peer:    peer,
		polite:  polite,
		pc:      pc,
		sig:     sig,
		log:     logger.With().Str("peer", peer).Logger(),
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
		q:       newOpQueue(),
		done:    make(chan struct{}),
		state:   StateNew,
		role:    role,
	}
	go l.run()
	return l
}

func (l *Link) Peer() string { return l.peer }

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Role() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.role
}

func (l *Link) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateClosed {
		return
	}
	if l.state != s {
		l.log.Debug().Str("from", l.state.String()).Str("to", s.String()).Msg("link state")
	}
	l.state = s
}

func (l *Link) run() {
	defer close(l.done)
	for {
		o, ok := l.q.Dequeue()
		if !ok {
			return
		}
		if l.ctx.Err() != nil {
			return
		}
		o(l.ctx)
	}
}

func (l *Link) submit(o op) error {
	if !l.q.Enqueue(o) {
		return ErrClosed
	}
	return nil
}

func (l *Link) fail(op string, err error) {
	nerr := &NegotiationError{Peer: l.peer, Op: op, Err: err}
	l.log.Error().Err(err).Str("op", op).Msg("negotiation step failed")
	if l.onError != nil {
		l.onError(nerr)
	}
}

// discarded reports whether the link was closed while an operation ran.
func (l *Link) discarded(ctx context.Context) bool {
	if ctx.Err() != nil {
		l.log.Debug().Msg("link closed, result discarded")
		return true
	}
	return false
}

func (l *Link) send(s protocol.Signal) {
	if err := l.sig.SendSignal(l.peer, s); err != nil {
		l.fail(OpSend, err)
	}
}

// Negotiate starts an offer. Only a NEW link offers.
func (l *Link) Negotiate() error {
	return l.submit(func(ctx context.Context) {
		if l.pc.Connected() {
			l.log.Debug().Msg("already connected, offer skipped")
			return
		}
		if st := l.State(); st != StateNew {
			l.log.Debug().Str("state", st.String()).Msg("offer skipped")
			return
		}
		offer, err := l.pc.CreateOffer(ctx)
		if l.discarded(ctx) {
			return
		}
		if err != nil {
			l.fail(OpOffer, err)
			return
		}
		l.setState(StateOfferSent)
		l.send(protocol.Signal{Type: protocol.SignalOffer, SDP: offer.SDP})
	})
}

// HandleOffer applies a remote offer and answers it. On glare a polite link
// rolls its own offer back first; an impolite one ignores the remote offer
// and waits for the answer to its own.
func (l *Link) HandleOffer(sdp string) error {
	return l.submit(func(ctx context.Context) {
		if l.pc.Connected() {
			l.log.Debug().Msg("duplicate offer on connected link ignored")
			return
		}
		switch st := l.State(); st {
		case StateConnected:
			l.log.Debug().Msg("duplicate offer ignored")
			return
		case StateOfferSent:
			if !l.polite {
				l.log.Info().Msg("offer glare, keeping local offer")
				return
			}
			if err := l.pc.Rollback(); err != nil {
				l.fail(OpRollback, err)
				return
			}
			l.mu.Lock()
			l.role = RoleAnswerer
			l.mu.Unlock()
			l.log.Info().Msg("offer glare, answering remote offer")
		}

		l.setState(StateOfferReceived)
		err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
		if err != nil {
			l.setState(StateNew)
			l.fail(OpApplyOffer, err)
			return
		}
		l.remoteApplied()

		answer, err := l.pc.CreateAnswer(ctx)
		if l.discarded(ctx) {
			return
		}
		if err != nil {
			l.fail(OpAnswer, err)
			return
		}
		l.setState(StateAnswerSent)
		l.send(protocol.Signal{Type: protocol.SignalAnswer, SDP: answer.SDP})
	})
}

// HandleAnswer completes an offer this link sent.
func (l *Link) HandleAnswer(sdp string) error {
	return l.submit(func(ctx context.Context) {
		if l.pc.Connected() {
			l.log.Debug().Msg("duplicate answer on connected link ignored")
			return
		}
		switch st := l.State(); st {
		case StateOfferSent:
		case StateAnswerSent:
			// Both sides answered each other; neither will offer again.
			l.log.Warn().Msg("answer crossed our own answer, link needs a new offer")
			return
		default:
			l.log.Debug().Str("state", st.String()).Msg("unexpected answer ignored")
			return
		}
		err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
		if l.discarded(ctx) {
			return
		}
		if err != nil {
			l.fail(OpApplyAnswer, err)
			return
		}
		l.remoteApplied()
		l.setState(StateConnected)
	})
}

// HandleCandidate applies c, or holds it until a remote description exists.
func (l *Link) HandleCandidate(c webrtc.ICECandidateInit) error {
	return l.submit(func(ctx context.Context) {
		if !l.remoteSet {
			l.buffered = append(l.buffered, c)
			return
		}
		if err := l.pc.AddICECandidate(c); err != nil {
			l.fail(OpCandidate, err)
		}
	})
}

func (l *Link) remoteApplied() {
	l.remoteSet = true
	pending := l.buffered
	l.buffered = nil
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.fail(OpCandidate, err)
		}
	}
}

func (l *Link) transportConnected() {
	_ = l.submit(func(ctx context.Context) {
		if l.State() == StateAnswerSent {
			l.setState(StateConnected)
		}
	})
}

// Close tears the link down. Queued operations are dropped and an operation
// in flight has its result discarded.
func (l *Link) Close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.mu.Unlock()

	l.cancel()
	l.q.Close()
	if err := l.pc.Close(); err != nil {
		l.log.Warn().Err(err).Msg("peer connection close")
	}
	<-l.done
	l.log.Info().Msg("link closed")
}
