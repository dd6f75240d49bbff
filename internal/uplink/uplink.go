// Package uplink is the peer side of the relay: it dials the relay, replays
// its hello frames on every (re)connect and hands relay frames to a callback.
// Reconnection is left to a supervisor.
package uplink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	DefaultURL   = "ws://127.0.0.1:27893/"
	dialTimeout  = 5 * time.Second
	writeTimeout = 3 * time.Second
)

var ErrNotConnected = errors.New("uplink not connected")

type Options struct {
	URL string
	// Hello returns the frames sent right after each successful dial.
	Hello func() []types.ClientMessage
	// OnFrame is called from the read goroutine for every relay frame.
	OnFrame func(types.ServerMessage)
	Logger  *zap.Logger
}

// Client implements supervisor.Link.
type Client struct {
	url     string
	hello   func() []types.ClientMessage
	onFrame func(types.ServerMessage)
	log     *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnFrame == nil {
		opts.OnFrame = func(types.ServerMessage) {}
	}
	return &Client{
		url:     opts.URL,
		hello:   opts.Hello,
		onFrame: opts.OnFrame,
		log:     opts.Logger.With(zap.String("component", "uplink")),
	}
}

// Connect dials the relay. The returned channel closes when the read loop
// ends, whether the relay went away or ctx was cancelled.
func (c *Client) Connect(ctx context.Context) (<-chan struct{}, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.hello != nil {
		for _, m := range c.hello() {
			if err := c.Send(ctx, m); err != nil {
				c.drop(conn)
				conn.Close(websocket.StatusInternalError, "hello failed")
				return nil, fmt.Errorf("send hello: %w", err)
			}
		}
	}

	lost := make(chan struct{})
	go c.readLoop(ctx, conn, lost)
	c.log.Info("connected to relay", zap.String("url", c.url))
	return lost, nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, lost chan struct{}) {
	defer close(lost)
	defer c.drop(conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("relay connection lost", zap.Error(err))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		msg, err := types.DecodeServer(data)
		if err != nil {
			c.log.Warn("dropping malformed relay frame", zap.Error(err))
			continue
		}
		c.onFrame(msg)
	}
}

// drop forgets conn if it is still the current connection.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one frame. While disconnected the frame is dropped with a warning.
func (c *Client) Send(ctx context.Context, m types.ClientMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.log.Warn("relay not connected, dropping frame", zap.String("p_type", m.Type()))
		return ErrNotConnected
	}

	payload, err := types.EncodeClient(m)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write %s: %w", m.Type(), err)
	}
	return nil
}

// Close ends the current connection, if any.
func (c *Client) Close() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}
