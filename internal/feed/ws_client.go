// Package feed supplies candles: a reconnecting WebSocket stream and CSV files.
//
// Stream wire format, one JSON object per message:
//
//	{"type":"candle","candle":{...}}        one candle
//	{"type":"candles","candles":[{...}]}    a batch
//	{"type":"heartbeat"}                    ignored
//	{"type":"error","message":"..."}        logged
//
// Candles carry an optional "closed" flag; bars still forming (closed=false)
// are dropped so downstream charts only see final data.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pnf-signal-lab/internal/domain"
	"pnf-signal-lab/internal/observability"
)

// ClientConfig configures WebSocket client behavior.
type ClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultClientConfig returns default WebSocket configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Client is a reconnecting candle feed client.
type Client struct {
	endpoint    string
	instruments []string
	config      ClientConfig
	log         zerolog.Logger
}

// NewClient creates a client. instruments are sent in the subscribe request;
// an empty list subscribes to everything the server offers.
func NewClient(endpoint string, instruments []string, config *ClientConfig, logger *zerolog.Logger) *Client {
	cfg := DefaultClientConfig()
	if config != nil {
		d := cfg
		cfg = *config
		// Zero fields keep their defaults
		if cfg.ReconnectDelay <= 0 {
			cfg.ReconnectDelay = d.ReconnectDelay
		}
		if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
			cfg.MaxReconnectDelay = max(d.MaxReconnectDelay, cfg.ReconnectDelay)
		}
		if cfg.PingInterval <= 0 {
			cfg.PingInterval = d.PingInterval
		}
		if cfg.ReadTimeout <= 0 {
			cfg.ReadTimeout = d.ReadTimeout
		}
		if cfg.WriteTimeout <= 0 {
			cfg.WriteTimeout = d.WriteTimeout
		}
	}
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "feed").Logger()
	}
	return &Client{
		endpoint:    endpoint,
		instruments: instruments,
		config:      cfg,
		log:         log,
	}
}

// Run streams candles into out until ctx is cancelled, reconnecting with
// exponential backoff. It always returns ctx.Err().
func (c *Client) Run(ctx context.Context, out chan<- *domain.Candle) error {
	delay := c.config.ReconnectDelay
	for {
		received, err := c.session(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			// Reset delay after a session that delivered data
			delay = c.config.ReconnectDelay
		}
		c.log.Warn().Err(err).Dur("retry_in", delay).Msg("feed disconnected")
		observability.RecordFeedReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		// Increase delay for next reconnect (exponential backoff)
		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// session runs one connection. It reports whether any candle was delivered.
func (c *Client) session(ctx context.Context, out chan<- *domain.Candle) (bool, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}

	var writeMu sync.Mutex
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err = conn.WriteJSON(subscribeRequest{Op: "subscribe", Instruments: c.instruments})
	writeMu.Unlock()
	if err != nil {
		return false, fmt.Errorf("write subscribe: %w", err)
	}
	c.log.Info().Str("endpoint", c.endpoint).Int("instruments", len(c.instruments)).Msg("feed connected")

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	})

	wg.Add(2)
	go func() {
		defer wg.Done()
		// Unblock ReadMessage on shutdown
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(conn, &writeMu, done)
	}()

	received := false
	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read: %w", err)
		}

		candles, err := c.handleMessage(message)
		if err != nil {
			observability.RecordFeedMessage("invalid")
			c.log.Debug().Err(err).Msg("invalid feed message")
			continue
		}
		for _, candle := range candles {
			select {
			case out <- candle:
				received = true
			case <-ctx.Done():
				return received, ctx.Err()
			}
		}
	}
}

// handleMessage decodes one message into final candles.
func (c *Client) handleMessage(message []byte) ([]*domain.Candle, error) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var raw []wireCandle
	switch env.Type {
	case "candle":
		if env.Candle == nil {
			return nil, errors.New("candle message without candle")
		}
		raw = []wireCandle{*env.Candle}
	case "candles":
		raw = env.Candles
	case "error":
		c.log.Warn().Str("message", env.Message).Msg("feed error message")
		observability.RecordFeedMessage("ignored")
		return nil, nil
	default:
		observability.RecordFeedMessage("ignored")
		return nil, nil
	}

	out := make([]*domain.Candle, 0, len(raw))
	for i := range raw {
		w := &raw[i]
		if w.Closed != nil && !*w.Closed {
			observability.RecordFeedMessage("ignored")
			continue
		}
		if err := validate(&w.Candle); err != nil {
			observability.RecordFeedMessage("invalid")
			c.log.Debug().Err(err).Str("instrument", w.InstrumentID).Msg("candle rejected")
			continue
		}
		candle := w.Candle
		out = append(out, &candle)
		observability.RecordFeedMessage("candle")
	}
	return out, nil
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Client) pingLoop(conn *websocket.Conn, writeMu *sync.Mutex, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				// Connection might be dead, reader will handle reconnect
				return
			}
		}
	}
}

func validate(c *domain.Candle) error {
	if c.InstrumentID == "" {
		return errors.New("missing instrument")
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("invalid timestamp %d", c.Timestamp)
	}
	for _, p := range []float64{c.Open, c.High, c.Low, c.Close} {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("invalid price %v", p)
		}
	}
	if c.Low > c.High {
		return fmt.Errorf("low %v above high %v", c.Low, c.High)
	}
	return nil
}

// WebSocket message types

type subscribeRequest struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments,omitempty"`
}

type envelope struct {
	Type    string       `json:"type"`
	Candle  *wireCandle  `json:"candle,omitempty"`
	Candles []wireCandle `json:"candles,omitempty"`
	Message string       `json:"message,omitempty"`
}

type wireCandle struct {
	domain.Candle
	Closed *bool `json:"closed,omitempty"`
}
