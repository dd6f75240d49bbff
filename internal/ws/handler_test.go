package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/lobby"
	"github.com/DoyleJ11/kkuko-relay/internal/words"
	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type discardSink struct{}

func (discardSink) StoreWord(string, string) {}

func newRelay(t *testing.T) (*lobby.Lobby, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l := lobby.NewLobby(ctx, words.NewPipeline(discardSink{}, nil), nil, nil)
	srv := httptest.NewServer(Handler(l, nil))
	t.Cleanup(srv.Close)
	return l, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
}

func read(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	msg, err := types.DecodeServer(data)
	require.NoError(t, err)
	return msg
}

func waitPeers(t *testing.T, l *lobby.Lobby, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, err := l.State(context.Background())
		return err == nil && v.NumPeers == n
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_BroadcastsPrimaryEvents(t *testing.T) {
	l, url := newRelay(t)
	page := dial(t, url)
	popup := dial(t, url)
	waitPeers(t, l, 2)

	write(t, page, `{"p_type":"d-inSorR","data":{"server":0,"roomId":1042}}`)

	for _, c := range []*websocket.Conn{page, popup} {
		msg := read(t, c)
		assert.Equal(t, types.TypeSendState, msg.Type)
		require.NotNil(t, msg.Data)
		require.NotNil(t, msg.Data.ServerLabel)
		assert.Equal(t, "감자서버", *msg.Data.ServerLabel)
		assert.Equal(t, 42, *msg.Data.RoomNumber)
		assert.Equal(t, "연습중", msg.Data.Phase)
	}
}

func TestHandler_MalformedFrameKeepsConnection(t *testing.T) {
	l, url := newRelay(t)
	peer := dial(t, url)
	waitPeers(t, l, 1)

	write(t, peer, `not json`)
	write(t, peer, `{"p_type":"g-word"}`)
	write(t, peer, `{"p_type":"p-state"}`)

	msg := read(t, peer)
	assert.Equal(t, types.TypeSendState, msg.Type)
	assert.Equal(t, "", msg.Data.Phase)
	assert.Nil(t, msg.Data.ServerLabel)

	v, err := l.State(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.PrimaryID)
}

func TestHandler_PrimaryCloseResetsObservers(t *testing.T) {
	l, url := newRelay(t)
	page := dial(t, url)
	popup := dial(t, url)
	waitPeers(t, l, 2)

	write(t, page, `{"p_type":"d-inSorR","data":{"server":7,"roomId":12}}`)
	assert.Equal(t, "대기중", read(t, popup).Data.Phase)

	require.NoError(t, page.Close(websocket.StatusNormalClosure, "tab closed"))

	msg := read(t, popup)
	assert.Equal(t, "", msg.Data.Phase)
	assert.Nil(t, msg.Data.ServerLabel)
	assert.Nil(t, msg.Data.RoomNumber)
	waitPeers(t, l, 1)
}

func TestHandler_LobbyShutdownClosesSockets(t *testing.T) {
	l, url := newRelay(t)
	peer := dial(t, url)
	waitPeers(t, l, 1)

	require.True(t, l.Send(lobby.Shutdown{}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := peer.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

type failingWriter struct {
	writes int
	failAt int
	closed websocket.StatusCode
}

func (f *failingWriter) Write(context.Context, websocket.MessageType, []byte) error {
	f.writes++
	if f.writes == f.failAt {
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *failingWriter) Close(code websocket.StatusCode, _ string) error {
	f.closed = code
	return nil
}

func TestWriteLoop_FailureIsLoggedAndClosesConn(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := &failingWriter{failAt: 2}

	out := make(chan lobby.Snapshot, 4)
	out <- lobby.Snapshot{Version: 1}
	out <- lobby.Snapshot{Version: 2}
	out <- lobby.Snapshot{Version: 3}

	// returns without waiting for out to close
	writeLoop(context.Background(), w, out, zap.New(core))

	assert.Equal(t, 2, w.writes)
	assert.Equal(t, websocket.StatusGoingAway, w.closed)
	entries := logs.FilterMessage("write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestWriteLoop_ClosedOutboxClosesConn(t *testing.T) {
	w := &failingWriter{}
	out := make(chan lobby.Snapshot, 1)
	out <- lobby.Snapshot{Version: 1}
	close(out)

	writeLoop(context.Background(), w, out, zap.NewNop())
	assert.Equal(t, 1, w.writes)
	assert.Equal(t, websocket.StatusGoingAway, w.closed)
}
