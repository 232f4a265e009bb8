package rtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// DefaultSTUNServers is used when no ICE servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
}

type TURNConfig struct {
	URL      string
	Username string
	Password string
}

type ICEConfig struct {
	STUN []string
	TURN TURNConfig
}

// WebRTCConfig builds the peer connection configuration.
func (c ICEConfig) WebRTCConfig() webrtc.Configuration {
	stun := c.STUN
	if len(stun) == 0 {
		stun = DefaultSTUNServers
	}
	servers := []webrtc.ICEServer{{URLs: stun}}
	if c.TURN.URL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{c.TURN.URL},
			Username:   c.TURN.Username,
			Credential: c.TURN.Password,
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// NewAPI builds a pion API with the default codecs and interceptors and
// pion logging routed through logger.
func NewAPI(logger zerolog.Logger) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	se := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Logger: logger}}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}
