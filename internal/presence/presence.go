package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultAppID = "1396442355976110121"

	details    = "끄투코리아 플레이 중"
	largeImage = "rkk"
)

var ErrNotLinked = errors.New("presence not linked")

// Activity is the subset of a rich presence activity this relay sets.
type Activity struct {
	Details    string
	State      string
	LargeImage string
	Start      time.Time
}

// Driver talks to the local presence service.
type Driver interface {
	Login(appID string) error
	SetActivity(a Activity) error
	Logout()
}

// Client publishes the session as rich presence. It is safe for concurrent use
// and implements supervisor.Link.
type Client struct {
	appID  string
	driver Driver
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	linked  bool
	lost    chan struct{}
	started time.Time
}

func NewClient(appID string, driver Driver, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		appID:  appID,
		driver: driver,
		log:    log.With(zap.String("component", "presence")),
		now:    time.Now,
	}
}

// Connect performs the handshake. The returned channel closes when a later
// call finds the link broken.
func (c *Client) Connect(_ context.Context) (<-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.linked {
		return c.lost, nil
	}
	// rich-go keeps its own logged-in flag; start from a clean socket.
	c.driver.Logout()
	if err := c.driver.Login(c.appID); err != nil {
		return nil, fmt.Errorf("presence login: %w", err)
	}
	c.linked = true
	c.lost = make(chan struct{})
	return c.lost, nil
}

func (c *Client) Linked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linked
}

// Update shows the session. A failed write marks the link lost so the
// supervisor reconnects.
func (c *Client) Update(serverLabel string, room *int, phaseLabel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.linked {
		c.log.Warn("presence client is not connected")
		return ErrNotLinked
	}
	if c.started.IsZero() {
		c.started = c.now()
	}

	err := c.driver.SetActivity(Activity{
		Details:    details,
		State:      FormatState(serverLabel, room, phaseLabel),
		LargeImage: largeImage,
		Start:      c.started,
	})
	if err != nil {
		c.log.Error("updating presence failed", zap.Error(err))
		c.markLost()
		return fmt.Errorf("set activity: %w", err)
	}
	return nil
}

// Clear removes the activity. The presence service drops it when the IPC
// session ends, so clearing is a fresh handshake.
func (c *Client) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.linked {
		c.log.Warn("presence client is not connected")
		return ErrNotLinked
	}
	c.started = time.Time{}
	c.driver.Logout()
	if err := c.driver.Login(c.appID); err != nil {
		c.log.Error("clearing presence failed", zap.Error(err))
		c.markLost()
		return fmt.Errorf("presence relogin: %w", err)
	}
	return nil
}

// Close ends the session with the presence service.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.linked {
		c.driver.Logout()
		c.markLost()
	}
}

func (c *Client) markLost() {
	if c.linked {
		c.linked = false
		close(c.lost)
	}
}

// FormatState renders "감자서버 - 로비" or "감자서버 - 12번 방 대기중".
func FormatState(serverLabel string, room *int, phaseLabel string) string {
	if room == nil {
		return serverLabel + " - 로비"
	}
	return serverLabel + " - " + strconv.Itoa(*room) + "번 방 " + phaseLabel
}
