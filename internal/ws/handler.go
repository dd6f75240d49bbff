package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/lobby"
	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

// Handler upgrades every request to a peer connection on l. Peers are local
// pages and extension scripts, so any origin is accepted.
func Handler(l *lobby.Lobby, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "ws"))

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		peerID := uuid.NewString()
		plog := log.With(zap.String("peer", peerID))

		out := make(chan lobby.Snapshot, outboxSize)
		if !l.Send(lobby.Join{PeerID: peerID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "shutting down")
			return
		}
		defer l.Send(lobby.Leave{PeerID: peerID})

		// Writer goroutine. The lobby closes out when it drops us, which ends
		// the socket and with it the reader below.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, plog)

		// Reader loop. No read deadline: an idle page is still a live peer.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					plog.Debug("peer closed")
				default:
					plog.Debug("read failed", zap.Error(err))
				}
				return
			}

			msg, err := types.DecodeClient(data)
			if err != nil {
				plog.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(data)))
				continue
			}
			if !l.Send(lobby.FromPeer{PeerID: peerID, Msg: msg}) {
				return
			}
		}
	}
}

// frameWriter is the write half of *websocket.Conn.
type frameWriter interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// writeLoop drains out to conn in order and closes conn when out closes or a
// write fails.
func writeLoop(ctx context.Context, conn frameWriter, out <-chan lobby.Snapshot, log *zap.Logger) {
	defer conn.Close(websocket.StatusGoingAway, "outbox closed")

	for snap := range out {
		payload, err := json.Marshal(snap.Frame())
		if err != nil {
			log.Error("encode snapshot", zap.Error(err))
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			log.Warn("write failed", zap.Int("version", snap.Version), zap.Error(err))
			return
		}
	}
}
