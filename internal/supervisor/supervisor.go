// Package supervisor keeps a link alive with a fixed retry interval.
//
// The interval is fixed: 2s for the browser uplink, 2m for the presence link.
// A supervisor never gives up; it stops only when its context is cancelled.
package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	UplinkInterval   = 2 * time.Second
	PresenceInterval = 2 * time.Minute
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Link is something that can be (re)connected. Connect returns a channel that
// is closed once the established connection is lost; it must not be nil on success.
type Link interface {
	Connect(ctx context.Context) (lost <-chan struct{}, err error)
}

type Supervisor struct {
	name     string
	link     Link
	interval time.Duration
	onStatus func(linked bool)
	log      *zap.Logger

	state    atomic.Int32
	attempts atomic.Int64
}

func New(name string, link Link, interval time.Duration, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		name:     name,
		link:     link,
		interval: interval,
		onStatus: func(bool) {},
		log:      log.With(zap.String("component", "supervisor"), zap.String("link", name)),
	}
}

// OnStatus registers the status-changed callback. Call before Run.
func (s *Supervisor) OnStatus(fn func(linked bool)) {
	if fn != nil {
		s.onStatus = fn
	}
}

func (s *Supervisor) State() State { return State(s.state.Load()) }

// Attempts counts Connect calls so far.
func (s *Supervisor) Attempts() int64 { return s.attempts.Load() }

func (s *Supervisor) Interval() time.Duration { return s.interval }

// Run connects immediately, then after every loss waits one interval before
// reconnecting. It returns nil when ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(Disconnected)

	first := true
	for {
		if !first {
			timer := time.NewTimer(s.interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
		first = false

		s.setState(Connecting)
		lost, err := backoff.Retry(ctx, func() (<-chan struct{}, error) {
			s.attempts.Add(1)
			return s.link.Connect(ctx)
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(s.interval)),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				s.log.Warn("connect failed", zap.Error(err), zap.Duration("retry_in", next))
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Error("retry stopped, rearming", zap.Error(err))
			s.setState(Disconnected)
			continue
		}

		s.setState(Connected)
		s.log.Info("link connected")
		s.onStatus(true)

		select {
		case <-lost:
			s.setState(Disconnected)
			s.log.Warn("link lost", zap.Duration("retry_in", s.interval))
			s.onStatus(false)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Supervisor) setState(st State) { s.state.Store(int32(st)) }
