package rtc

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	opusPayloadType = 111
	opusFrame       = 20 * time.Millisecond
	opusFrameTicks  = 960
)

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource provides one Opus track that carries silence. It stands in
// for a microphone on headless clients.
type SilenceSource struct {
	StreamID string

	mu    sync.Mutex
	track *webrtc.TrackLocalStaticRTP
}

// AcquireLocalTracks creates the track on first use and starts writing to
// it until ctx ends. Later calls return the same track.
func (s *SilenceSource) AcquireLocalTracks(ctx context.Context) ([]webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track != nil {
		return []webrtc.TrackLocal{s.track}, nil
	}

	stream := s.StreamID
	if stream == "" {
		stream = "mesh-" + uuid.NewString()
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", stream,
	)
	if err != nil {
		return nil, err
	}
	s.track = track
	go writeSilence(ctx, track)
	return []webrtc.TrackLocal{track}, nil
}

func writeSilence(ctx context.Context, track *webrtc.TrackLocalStaticRTP) {
	logger := log.With().Str("module", "media").Str("track_id", track.ID()).Logger()
	ticker := time.NewTicker(opusFrame)
	defer ticker.Stop()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:     2,
			PayloadType: opusPayloadType,
		},
		Payload: opusSilence,
	}
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("silence writer stopped")
			return
		case <-ticker.C:
		}
		pkt.SequenceNumber++
		pkt.Timestamp += opusFrameTicks
		if err := track.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, stopping")
			return
		}
	}
}
