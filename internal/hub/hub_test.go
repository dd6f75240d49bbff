package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/engine"
	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	upserts []string
}

func (f *fakeStore) Upsert(ctx context.Context, word, theme string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, word+"/"+theme)
	return nil
}
func (f *fakeStore) ListAll(context.Context) ([]store.Entry, error)      { return nil, nil }
func (f *fakeStore) Find(context.Context, string) ([]store.Entry, error) { return nil, nil }
func (f *fakeStore) Delete(context.Context, string) error                { return nil }
func (f *fakeStore) Close() error                                        { return nil }
func (f *fakeStore) words() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.upserts...)
}

type fakePresence struct {
	calls []string
	err   error
}

func (f *fakePresence) Update(server string, room *int, phase string) error {
	f.calls = append(f.calls, "update "+server+" "+engine.RoomString(room)+" "+phase)
	return f.err
}

func (f *fakePresence) Clear() error {
	f.calls = append(f.calls, "clear")
	return f.err
}

type notifierFunc func(word, theme string)

func (fn notifierFunc) WordArchived(word, theme string) { fn(word, theme) }

func flush(t *testing.T, h *Hub) {
	t.Helper()
	done := make(chan struct{})
	h.Inbox() <- Flush{Done: done}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for hub flush")
	}
}

func intp(v int) *int { return &v }

func TestHub_StoreWordUpsertsAndNotifies(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := &fakeStore{}
	var notified []string
	h := NewHub(ctx, Options{
		Store:     st,
		Notifiers: []Notifier{notifierFunc(func(w, _ string) { notified = append(notified, w) })},
	})

	h.StoreWord("사과", "과일")
	h.StoreWord("바나나", "")
	flush(t, h)

	assert.Equal(t, []string{"사과/과일", "바나나/"}, st.words())
	assert.Equal(t, []string{"사과", "바나나"}, notified)
}

func TestHub_StoreFailureIsLoggedNotRaised(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zapcore.ErrorLevel)
	st := &fakeStore{err: errors.New("disk full")}
	notified := 0
	h := NewHub(ctx, Options{
		Store:     st,
		Logger:    zap.New(core),
		Notifiers: []Notifier{notifierFunc(func(string, string) { notified++ })},
	})

	h.StoreWord("사과", "")
	flush(t, h)

	assert.Equal(t, 1, logs.FilterMessage("archiving word failed").Len())
	assert.Zero(t, notified)
}

func TestHub_PublishDrivesPresence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &fakePresence{}
	h := NewHub(ctx, Options{Presence: p})

	idle := engine.NewEmptyState()
	waiting := engine.State{ServerLabel: "감자서버", RoomNumber: intp(12), Phase: engine.PhaseWaiting}
	playing := waiting
	playing.Phase = engine.PhasePlaying
	relinked := playing
	relinked.PresenceLinked = true

	h.Publish(idle)     // nothing shown yet
	h.Publish(waiting)  // update
	h.Publish(waiting)  // unchanged
	h.Publish(playing)  // update
	h.Publish(relinked) // republish on a fresh link
	h.Publish(idle)     // clear
	h.Publish(idle)     // already clear
	flush(t, h)

	assert.Equal(t, []string{
		"update 감자서버 12 대기중",
		"update 감자서버 12 플레이중",
		"update 감자서버 12 플레이중",
		"clear",
	}, p.calls)
}

func TestHub_PresenceErrorIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zapcore.ErrorLevel)
	p := &fakePresence{err: errors.New("pipe closed")}
	h := NewHub(ctx, Options{Presence: p, Logger: zap.New(core)})

	h.Publish(engine.State{ServerLabel: "냉이서버", Phase: engine.PhaseLobby})
	flush(t, h)

	assert.Equal(t, 1, logs.FilterMessage("presence update failed").Len())
}

func TestHub_FullInboxDropsInsteadOfBlocking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, logs := observer.New(zapcore.ErrorLevel)
	st := &fakeStore{block: make(chan struct{})}
	h := NewHub(ctx, Options{Store: st, QueueSize: 1, Logger: zap.New(core)})

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.StoreWord("w", "")
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatalf("StoreWord blocked on a stalled store")
	}
	assert.Positive(t, logs.FilterMessage("hub inbox full, dropping message").Len())
	close(st.block)
}

func TestHub_ShutdownDrainsQueuedWords(t *testing.T) {
	st := &fakeStore{block: make(chan struct{})}
	h := NewHub(context.Background(), Options{Store: st})

	h.StoreWord("하나", "")
	h.StoreWord("둘", "")
	h.Inbox() <- ShutdownHub{}
	close(st.block)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("hub did not stop")
	}
	require.Equal(t, []string{"하나/", "둘/"}, st.words())
}
