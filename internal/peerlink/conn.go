package peerlink

import (
	"context"

	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the slice of a WebRTC peer connection a link drives.
// CreateOffer and CreateAnswer also apply the description locally.
type PeerConnection interface {
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	// Rollback discards a local offer that has not been answered.
	Rollback() error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	Connected() bool
	Close() error
}

// Handlers are the transport callbacks a PeerConnection reports through.
type Handlers struct {
	OnICECandidate func(webrtc.ICECandidateInit)
	OnTrack        func(*webrtc.TrackRemote)
	OnConnected    func()
}

type Factory interface {
	NewPeerConnection(peerID string, h Handlers) (PeerConnection, error)
}

// Signaler delivers a payload to one remote participant.
type Signaler interface {
	SendSignal(to string, s protocol.Signal) error
}

func candidateSignal(c webrtc.ICECandidateInit) protocol.Signal {
	return protocol.Signal{
		Type:          protocol.SignalCandidate,
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// CandidateFromSignal converts a received candidate payload.
func CandidateFromSignal(s protocol.Signal) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     s.Candidate,
		SDPMid:        s.SDPMid,
		SDPMLineIndex: s.SDPMLineIndex,
	}
}
