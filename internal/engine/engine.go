package engine

import (
	"errors"
)

var ErrUnknownServer = errors.New("unknown server")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseLobby      Phase = "lobby"
	PhaseWaiting    Phase = "waiting"
	PhasePracticing Phase = "practicing"
	PhasePlaying    Phase = "playing"
)

// Label is the display text peers and the presence integration show.
func (p Phase) Label() string {
	switch p {
	case PhaseLobby:
		return "로비"
	case PhaseWaiting:
		return "대기중"
	case PhasePracticing:
		return "연습중"
	case PhasePlaying:
		return "플레이중"
	default:
		return ""
	}
}

// State is the session snapshot. RoomNumber is nil whenever ServerLabel is empty.
type State struct {
	ServerLabel    string
	RoomNumber     *int
	Phase          Phase
	PresenceLinked bool
}

// HasServer reports whether the session is on a known server.
func (s State) HasServer() bool { return s.ServerLabel != "" }

type CommandType string

const (
	CmdEnter        CommandType = "Enter"
	CmdRoundStarted CommandType = "RoundStarted"
	CmdRoundEnded   CommandType = "RoundEnded"
	CmdReset        CommandType = "Reset"
	CmdPresence     CommandType = "Presence"
)

/*
	CmdEnter        -> unknown server: Reset; no room: Lobby; room > 1000: Practicing; else Waiting
	CmdRoundStarted -> Practicing stays Practicing, anything else Playing
	CmdRoundEnded   -> Waiting
	CmdReset        -> Idle, no server, no room
	CmdPresence     -> only the PresenceLinked flag
*/

type Command struct {
	Type   CommandType
	Server *int // CmdEnter
	RoomID *int // CmdEnter
	Linked bool // CmdPresence
}

// Apply folds cmd into s. On ErrUnknownServer the returned state is the reset
// state and must still be published.
func Apply(s State, cmd Command) (State, error) {
	next := s

	switch cmd.Type {
	case CmdEnter:
		label, ok := serverLabel(cmd.Server)
		if !ok {
			return Reset(s), ErrUnknownServer
		}
		next.ServerLabel = label

		if cmd.RoomID == nil || *cmd.RoomID <= 0 {
			next.RoomNumber = nil
			next.Phase = PhaseLobby
			return next, nil
		}
		room := *cmd.RoomID % practiceOffset
		next.RoomNumber = &room
		if *cmd.RoomID > practiceOffset {
			next.Phase = PhasePracticing
		} else {
			next.Phase = PhaseWaiting
		}
		return next, nil

	case CmdRoundStarted:
		// practice rounds are not competitive play
		if s.Phase != PhasePracticing {
			next.Phase = PhasePlaying
		}
		return next, nil

	case CmdRoundEnded:
		next.Phase = PhaseWaiting
		return next, nil

	case CmdReset:
		return Reset(s), nil

	case CmdPresence:
		next.PresenceLinked = cmd.Linked
		return next, nil

	default:
		return s, ErrUnsupportedCommand
	}
}

// Reset clears the game position and keeps the presence flag.
func Reset(s State) State {
	return State{Phase: PhaseIdle, PresenceLinked: s.PresenceLinked}
}
