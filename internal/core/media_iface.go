package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=media_iface.go -destination=mocks/media_mock.go -package=mocks

// MediaSource provides the local tracks a client publishes to every peer.
type MediaSource interface {
	// AcquireLocalTracks is called once per room stay, before the first
	// stream-ready announcement.
	AcquireLocalTracks(ctx context.Context) ([]webrtc.TrackLocal, error)
}

// MediaSink consumes remote tracks per peer.
type MediaSink interface {
	// Attach is invoked for every remote track of peerID.
	Attach(peerID string, track *webrtc.TrackRemote)
	// Detach stops consuming all tracks of peerID.
	Detach(peerID string)
}
