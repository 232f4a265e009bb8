// Package signalclient is the participant side of a Transport Channel.
package signalclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed         = errors.New("signalclient: closed")
	ErrSendBufferFull = errors.New("signalclient: send buffer full")
)

type Config struct {
	URL        string
	Header     http.Header
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
	ReadLimit  int64
	SendBuffer int
}

func (c *Config) withDefaults() {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 64 * 1024
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
}

// Client manages the WebSocket connection to the relay.
type Client struct {
	cfg      Config
	conn     *websocket.Conn
	send     chan []byte
	incoming chan protocol.Envelope
	done     chan struct{}
	once     sync.Once
	log      zerolog.Logger
}

// Dial connects to the relay and starts the pumps.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	cfg.withDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &Client{
		cfg:      cfg,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		incoming: make(chan protocol.Envelope, cfg.SendBuffer),
		done:     make(chan struct{}),
		log:      log.With().Str("module", "signalclient").Logger(),
	}
	conn.SetReadLimit(cfg.ReadLimit)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	go c.readPump()
	go c.writePump()
	c.log.Info().Str("url", u.Redacted()).Msg("connected")
	return c, nil
}

// readPump decodes envelopes from the relay until the connection fails.
func (c *Client) readPump() {
	defer func() {
		close(c.incoming)
		c.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		env, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad frame skipped")
			continue
		}
		select {
		case c.incoming <- env:
		case <-c.done:
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait),
			)
			return
		}
	}
}

// Send queues env without blocking.
func (c *Client) Send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Incoming is closed when the connection ends.
func (c *Client) Incoming() <-chan protocol.Envelope {
	return c.incoming
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.log.Info().Msg("closed")
	})
}
