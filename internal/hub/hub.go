package hub

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/engine"
	"github.com/DoyleJ11/kkuko-relay/internal/presence"
	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type StoreWord struct {
	Word  string
	Theme string
}

type Publish struct {
	State engine.State
}

// Flush replies once every message queued before it has been handled.
type Flush struct {
	Done chan struct{}
}

type ShutdownHub struct{}

func (StoreWord) isHubMsg()   {}
func (Publish) isHubMsg()     {}
func (Flush) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

// PresenceSink is implemented by *presence.Client.
type PresenceSink interface {
	Update(serverLabel string, room *int, phaseLabel string) error
	Clear() error
}

// Notifier is told about every archived word.
type Notifier interface {
	WordArchived(word, theme string)
}

type Options struct {
	Store     store.WordStore
	Presence  PresenceSink
	Notifiers []Notifier
	Logger    *zap.Logger
	QueueSize int
	Timeout   time.Duration // per store call
}

// Hub runs collaborator side effects (word archive, rich presence) on its own
// goroutine so a slow collaborator never stalls the lobby loop.
type Hub struct {
	inbox     chan HubMsg
	store     store.WordStore
	presence  PresenceSink
	notifiers []Notifier
	log       *zap.Logger
	timeout   time.Duration
	last      *engine.State // last state handed to presence
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	h := &Hub{
		inbox:     make(chan HubMsg, opts.QueueSize),
		store:     opts.Store,
		presence:  opts.Presence,
		notifiers: opts.Notifiers,
		log:       opts.Logger.With(zap.String("component", "hub")),
		timeout:   opts.Timeout,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after the hub has drained and stopped.
func (h *Hub) Done() <-chan struct{} { return h.done }

// StoreWord queues a word for the archive without waiting.
func (h *Hub) StoreWord(word, theme string) {
	h.enqueue(StoreWord{Word: word, Theme: theme})
}

// Publish queues a presence update for s without waiting.
func (h *Hub) Publish(s engine.State) {
	h.enqueue(Publish{State: s})
}

func (h *Hub) enqueue(m HubMsg) {
	select {
	case <-h.done:
		h.log.Warn("hub stopped, dropping message", zap.Any("msg", m))
		return
	default:
	}
	select {
	case h.inbox <- m:
	default:
		h.log.Error("hub inbox full, dropping message", zap.Any("msg", m))
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.drain()
			return

		case m := <-h.inbox:
			if !h.handle(m) {
				h.drain()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) handle(m HubMsg) bool {
	switch msg := m.(type) {
	case StoreWord:
		h.storeWord(msg.Word, msg.Theme)

	case Publish:
		h.publish(msg.State)

	case Flush:
		close(msg.Done)

	case ShutdownHub:
		return false
	}
	return true
}

// drain archives words already queued; presence updates are moot at shutdown.
func (h *Hub) drain() {
	for {
		select {
		case m := <-h.inbox:
			switch msg := m.(type) {
			case StoreWord:
				h.storeWord(msg.Word, msg.Theme)
			case Flush:
				close(msg.Done)
			}
		default:
			return
		}
	}
}

func (h *Hub) storeWord(word, theme string) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), h.timeout)
		err := h.store.Upsert(ctx, word, theme)
		cancel()
		if err != nil {
			h.log.Error("archiving word failed", zap.String("word", word), zap.Error(err))
			return
		}
	}
	for _, n := range h.notifiers {
		n.WordArchived(word, theme)
	}
}

func (h *Hub) publish(s engine.State) {
	if h.presence == nil {
		return
	}
	prev := h.last
	h.last = &s

	var err error
	if !s.HasServer() {
		if prev == nil || !prev.HasServer() {
			return // nothing is shown
		}
		err = h.presence.Clear()
	} else {
		if prev != nil && samePresence(*prev, s) {
			return
		}
		err = h.presence.Update(s.ServerLabel, s.RoomNumber, s.Phase.Label())
	}

	if errors.Is(err, presence.ErrNotLinked) {
		return // logged by the client
	}
	if err != nil {
		h.log.Error("presence update failed", zap.Error(err))
	}
}

// samePresence reports whether a and b render the same activity on the same link.
func samePresence(a, b engine.State) bool {
	if a.ServerLabel != b.ServerLabel || a.Phase != b.Phase || a.PresenceLinked != b.PresenceLinked {
		return false
	}
	if (a.RoomNumber == nil) != (b.RoomNumber == nil) {
		return false
	}
	return a.RoomNumber == nil || *a.RoomNumber == *b.RoomNumber
}
