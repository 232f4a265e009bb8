package rtc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// FeedStats counts what arrived from one remote participant.
type FeedStats struct {
	Tracks  int
	Packets uint64
	Bytes   uint64
}

type feed struct {
	cancel  context.CancelFunc
	ctx     context.Context
	tracks  atomic.Int32
	packets atomic.Uint64
	bytes   atomic.Uint64
}

// DrainSink reads every remote track so its RTP buffers do not fill up, and
// keeps per-participant counters. Headless clients use it in place of a
// renderer.
type DrainSink struct {
	mu    sync.RWMutex
	feeds map[string]*feed
}

func NewDrainSink() *DrainSink {
	return &DrainSink{feeds: make(map[string]*feed)}
}

// Attach starts a read loop for track under peerID.
func (s *DrainSink) Attach(peerID string, track *webrtc.TrackRemote) {
	if track == nil {
		return
	}
	logger := log.With().
		Str("module", "sink").
		Str("peer", peerID).
		Str("kind", track.Kind().String()).
		Logger()

	s.mu.Lock()
	f, ok := s.feeds[peerID]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f = &feed{ctx: ctx, cancel: cancel}
		s.feeds[peerID] = f
	}
	s.mu.Unlock()

	f.tracks.Add(1)
	logger.Info().Msg("starting read loop")
	go f.loop(track, &logger)
}

func (f *feed) loop(track *webrtc.TrackRemote, logger *zerolog.Logger) {
	for {
		select {
		case <-f.ctx.Done():
			logger.Info().Msg("feed detached, stopping")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("read RTP stopped")
			return
		}
		f.packets.Add(1)
		f.bytes.Add(uint64(len(pkt.Payload)))
	}
}

// Detach stops the read loops of peerID. Loops blocked in a read exit once
// the peer connection closes.
func (s *DrainSink) Detach(peerID string) {
	s.mu.Lock()
	f, ok := s.feeds[peerID]
	if ok {
		delete(s.feeds, peerID)
	}
	s.mu.Unlock()
	if ok {
		f.cancel()
	}
}

// Stats reports the counters of peerID.
func (s *DrainSink) Stats(peerID string) (FeedStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feeds[peerID]
	if !ok {
		return FeedStats{}, false
	}
	return FeedStats{
		Tracks:  int(f.tracks.Load()),
		Packets: f.packets.Load(),
		Bytes:   f.bytes.Load(),
	}, true
}

// Peers reports how many participants currently have attached tracks.
func (s *DrainSink) Peers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.feeds)
}
