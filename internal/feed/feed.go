// Package feed is the Feed Adapter (C6): it dials the combined-stream
// depth-diff WebSocket, forwards raw frame bytes to the Ingress
// Dispatcher, and owns reconnect/backoff. It contributes no
// synchronization logic of its own.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production combined-stream host.
const DefaultBaseURL = "wss://stream.binance.com:9443/stream"

// FrameHandler is satisfied by ingress.Dispatcher.Dispatch.
type FrameHandler func(frame []byte)

// Client dials a single-symbol depth-diff stream and forwards every text
// frame to a FrameHandler, reconnecting with exponential backoff on any
// read error until its context is canceled.
type Client struct {
	baseURL     string
	symbol      string
	handler     FrameHandler
	logger      zerolog.Logger
	dialer      websocket.Dialer
	backoffBase time.Duration
	backoffMax  time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL, e.g. for a testnet endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithBackoff overrides the default reconnect backoff bounds.
func WithBackoff(base, max time.Duration) Option {
	return func(c *Client) { c.backoffBase, c.backoffMax = base, max }
}

// New returns a Client for symbol's depth-diff stream (lowercased per the
// exchange's WS convention), forwarding frames to handler.
func New(symbol string, handler FrameHandler, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		symbol:      strings.ToLower(symbol),
		handler:     handler,
		logger:      logger,
		dialer:      websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoffBase: time.Second,
		backoffMax:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) streamURL() string {
	return fmt.Sprintf("%s?streams=%s@depth@100ms", c.baseURL, url.QueryEscape(c.symbol))
}

func (c *Client) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := c.dialer.DialContext(dialCtx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial depth stream: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.resetReadDeadline()
	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
		c.resetReadDeadline()
		return err
	})
	return nil
}

func (c *Client) resetReadDeadline() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.SetReadDeadline(time.Now().Add(65 * time.Second))
	}
}

// Run dials the stream and reads frames until ctx is canceled. It blocks;
// call it from its own goroutine. Every read error triggers a reconnect
// with exponential backoff, capped at backoffMax, unless ctx has been
// canceled.
func (c *Client) Run(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		_, frame, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return nil
			}
			c.logger.Warn().Err(err).Msg("depth stream read error, reconnecting")
			if err := c.reconnectWithBackoff(ctx); err != nil {
				return err
			}
			continue
		}
		c.handler(frame)
	}
}

func (c *Client) reconnectWithBackoff(ctx context.Context) error {
	backoff := c.backoffBase
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if err := c.dial(ctx); err != nil {
			c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("reconnect attempt failed")
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}
		c.logger.Info().Msg("reconnected to depth stream")
		return nil
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the underlying connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
