package lobby

import (
	"context"
	"errors"

	"github.com/DoyleJ11/kkuko-relay/internal/engine"
	"github.com/DoyleJ11/kkuko-relay/internal/words"
	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("lobby stopped")

type Msg interface{ isLobbyMsg() }

// Join registers a peer. It starts as an observer.
type Join struct {
	PeerID string
	Outbox chan Snapshot // where this peer wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ PeerID string }

func (Leave) isLobbyMsg() {}

// FromPeer is one decoded frame tagged with the peer that sent it.
type FromPeer struct {
	PeerID string
	Msg    types.ClientMessage
}

func (FromPeer) isLobbyMsg() {}

// PresenceStatus reports the presence link going up or down.
type PresenceStatus struct{ Linked bool }

func (PresenceStatus) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// GetState asks for the current view. The loop never waits on Reply: an
// unbuffered channel nobody is reading from gets no answer.
type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Snapshot struct {
	Version int
	State   engine.State
}

// View renders the snapshot for the wire.
func (s Snapshot) View() types.SnapshotView {
	v := types.SnapshotView{
		RoomNumber:     s.State.RoomNumber,
		Phase:          s.State.Phase.Label(),
		PresenceLinked: s.State.PresenceLinked,
	}
	if s.State.HasServer() {
		label := s.State.ServerLabel
		v.ServerLabel = &label
	}
	return v
}

func (s Snapshot) Frame() types.ServerMessage {
	return types.NewSendState(s.Version, s.View())
}

type View struct {
	Version   int
	NumPeers  int
	PrimaryID string
	State     engine.State
}

type Role string

const (
	RoleObserver Role = "observer"
	RolePrimary  Role = "primary"
)

// Publisher receives every new state for the presence integration. It must not block.
type Publisher interface {
	Publish(s engine.State)
}

type peer struct {
	id     string
	outbox chan Snapshot
	role   Role
	words  *words.Session
}

// Lobby owns the session snapshot. Every state-affecting message is handled to
// completion on the loop goroutine, one at a time.
type Lobby struct {
	inbox     chan Msg
	state     engine.State
	version   int
	peers     map[string]*peer
	primary   string
	pipeline  *words.Pipeline
	publisher Publisher
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewLobby(parent context.Context, pipeline *words.Pipeline, publisher Publisher, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		inbox:     make(chan Msg, 64), // Small buffer
		state:     engine.NewEmptyState(),
		peers:     make(map[string]*peer),
		pipeline:  pipeline,
		publisher: publisher,
		log:       log.With(zap.String("component", "lobby")),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				if _, dup := l.peers[msg.PeerID]; dup {
					l.log.Warn("duplicate peer id, ignoring join", zap.String("peer", msg.PeerID))
					close(msg.Outbox)
					break
				}
				l.peers[msg.PeerID] = &peer{
					id:     msg.PeerID,
					outbox: msg.Outbox,
					role:   RoleObserver,
					words:  l.pipeline.NewSession(),
				}
				l.log.Info("peer connected", zap.String("peer", msg.PeerID), zap.Int("peers", len(l.peers)))

			case Leave:
				l.removePeer(msg.PeerID, "closed")

			case FromPeer:
				l.handleFrame(msg.PeerID, msg.Msg)

			case PresenceStatus:
				l.apply(engine.Command{Type: engine.CmdPresence, Linked: msg.Linked})

			case GetState:
				select {
				case msg.Reply <- View{
					Version:   l.version,
					NumPeers:  len(l.peers),
					PrimaryID: l.primary,
					State:     l.state,
				}:
				default:
					l.log.Warn("state request not received, dropping reply")
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handleFrame(peerID string, m types.ClientMessage) {
	p := l.peers[peerID]
	if p == nil {
		l.log.Warn("frame from unknown peer", zap.String("peer", peerID), zap.String("p_type", m.Type()))
		return
	}

	// First claimer wins. This is not authentication; one game page per machine is expected.
	if l.primary == "" && types.IsRecognized(m) && !types.IsQuery(m) {
		l.primary = p.id
		p.role = RolePrimary
		l.log.Info("peer claimed primary", zap.String("peer", p.id), zap.String("p_type", m.Type()))
	}

	switch msg := m.(type) {
	case types.StateQuery:
		l.sendTo(p, l.snapshot())

	case types.EnterServerOrRoom:
		if l.fromPrimary(p, m) {
			l.apply(engine.Command{Type: engine.CmdEnter, Server: msg.Server, RoomID: msg.RoomID})
		}

	case types.StartGame:
		if l.fromPrimary(p, m) {
			l.apply(engine.Command{Type: engine.CmdRoundStarted})
		}

	case types.EndGame:
		if l.fromPrimary(p, m) {
			l.apply(engine.Command{Type: engine.CmdRoundEnded})
		}

	case types.Word:
		if _, err := p.words.Ingest(msg.Word, msg.Theme); errors.Is(err, words.ErrEmpty) {
			l.log.Warn("dropping empty word", zap.String("peer", p.id))
		}

	case types.Unknown:
		l.log.Warn("unknown p_type", zap.String("peer", p.id), zap.String("p_type", msg.PType))
	}
}

func (l *Lobby) fromPrimary(p *peer, m types.ClientMessage) bool {
	if p.role == RolePrimary {
		return true
	}
	l.log.Warn("ignoring state event from observer", zap.String("peer", p.id), zap.String("p_type", m.Type()))
	return false
}

// apply folds cmd into the snapshot, then publishes and broadcasts it.
func (l *Lobby) apply(cmd engine.Command) {
	next, err := engine.Apply(l.state, cmd)
	switch {
	case errors.Is(err, engine.ErrUnknownServer):
		l.log.Warn("unknown server, resetting session")
	case err != nil:
		l.log.Error("apply failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return
	}

	l.state = next
	l.version++
	l.log.Debug("session state",
		zap.Int("version", l.version),
		zap.String("server", l.state.ServerLabel),
		zap.String("room", engine.RoomString(l.state.RoomNumber)),
		zap.String("phase", string(l.state.Phase)),
		zap.Bool("presence", l.state.PresenceLinked),
	)
	// Publish first: broadcast may drop a stalled primary and apply a reset,
	// which must reach presence after this state.
	if l.publisher != nil {
		l.publisher.Publish(next)
	}
	l.broadcast(l.snapshot())
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{Version: l.version, State: l.state}
}

func (l *Lobby) broadcast(snap Snapshot) {
	var stalled []string
	for id, p := range l.peers {
		select {
		case p.outbox <- snap:
			//ok
		default:
			stalled = append(stalled, id)
		}
	}
	// Peer is slow/full - drop it. May reset and rebroadcast if it was primary.
	for _, id := range stalled {
		l.removePeer(id, "stalled")
	}
}

func (l *Lobby) sendTo(p *peer, snap Snapshot) {
	select {
	case p.outbox <- snap:
	default:
		l.removePeer(p.id, "stalled")
	}
}

func (l *Lobby) removePeer(id, reason string) {
	p := l.peers[id]
	if p == nil {
		return
	}
	delete(l.peers, id)
	close(p.outbox) // Tell peer no more snapshots
	l.log.Info("peer removed", zap.String("peer", id), zap.String("reason", reason), zap.Int("peers", len(l.peers)))

	if l.primary == id {
		l.primary = ""
		l.log.Info("primary peer left, resetting session", zap.String("peer", id))
		l.apply(engine.Command{Type: engine.CmdReset})
	}
}

func (l *Lobby) shutdown() {
	for id, p := range l.peers {
		close(p.outbox)
		delete(l.peers, id)
	}
	l.primary = ""
	l.cancel()
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless the lobby has stopped.
func (l *Lobby) Send(m Msg) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.done:
		return false
	}
}

// State asks the loop for the current view.
func (l *Lobby) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !l.Send(GetState{Reply: reply}) {
		return View{}, ErrStopped
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Done is closed once the loop has stopped and every outbox is closed.
func (l *Lobby) Done() <-chan struct{} { return l.done }
