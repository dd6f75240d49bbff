package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame discriminators carried in the p_type field.
const (
	TypeEnterServerOrRoom = "d-inSorR"
	TypeStartGame         = "d-startGame"
	TypeEndGame           = "d-endGame"
	TypeWord              = "g-word"
	TypeStateQuery        = "p-state"
	TypeSendState         = "p-sendState"
)

var ErrMalformed = errors.New("malformed frame")

// ClientMessage is a decoded peer -> relay frame. The set of implementations is
// closed; switch on the concrete type.
type ClientMessage interface {
	isClientMessage()
	Type() string
}

// EnterServerOrRoom is sent whenever the game page changes server or room.
// A nil Server means the page is on no known server.
type EnterServerOrRoom struct {
	Server *int `json:"server"`
	RoomID *int `json:"roomId"`
}

// StartGame marks the start of a round.
type StartGame struct {
	Round int `json:"round,omitempty"`
}

// EndGame marks the result dialog of a finished game.
type EndGame struct{}

// Word carries one or more words shown in play, separated by whitespace.
type Word struct {
	Word  string `json:"word"`
	Theme string `json:"theme,omitempty"`
}

// StateQuery asks for the current snapshot. Echoed is set when the peer sent
// a p-sendState frame back at the relay, which is answered the same way.
type StateQuery struct {
	Echoed bool `json:"-"`
}

// Unknown keeps the discriminator of a frame this relay does not understand.
type Unknown struct {
	PType string
}

func (EnterServerOrRoom) isClientMessage() {}
func (StartGame) isClientMessage()         {}
func (EndGame) isClientMessage()           {}
func (Word) isClientMessage()              {}
func (StateQuery) isClientMessage()        {}
func (Unknown) isClientMessage()           {}

func (EnterServerOrRoom) Type() string { return TypeEnterServerOrRoom }
func (StartGame) Type() string         { return TypeStartGame }
func (EndGame) Type() string           { return TypeEndGame }
func (Word) Type() string              { return TypeWord }
func (q StateQuery) Type() string {
	if q.Echoed {
		return TypeSendState
	}
	return TypeStateQuery
}
func (u Unknown) Type() string { return u.PType }

// IsQuery reports whether m only reads state. Queries never claim the primary role.
func IsQuery(m ClientMessage) bool {
	_, ok := m.(StateQuery)
	return ok
}

// IsRecognized reports whether m is one of the known frame kinds.
func IsRecognized(m ClientMessage) bool {
	_, unknown := m.(Unknown)
	return !unknown
}

type envelope struct {
	Type string          `json:"p_type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wordPayload struct {
	Word  *string `json:"word"`
	Theme *string `json:"theme"`
}

// DecodeClient parses one peer frame. Any error wraps ErrMalformed.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing p_type", ErrMalformed)
	}

	switch env.Type {
	case TypeEnterServerOrRoom:
		if isAbsent(env.Data) {
			return nil, fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
		}
		var m EnterServerOrRoom
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
		return m, nil

	case TypeStartGame:
		var m StartGame
		if !isAbsent(env.Data) {
			if err := json.Unmarshal(env.Data, &m); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
			}
		}
		return m, nil

	case TypeEndGame:
		return EndGame{}, nil

	case TypeWord:
		if isAbsent(env.Data) {
			return nil, fmt.Errorf("%w: %s without data", ErrMalformed, env.Type)
		}
		var p wordPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
		if p.Word == nil {
			return nil, fmt.Errorf("%w: %s without word", ErrMalformed, env.Type)
		}
		m := Word{Word: *p.Word}
		if p.Theme != nil {
			m.Theme = *p.Theme
		}
		return m, nil

	case TypeStateQuery:
		return StateQuery{}, nil

	case TypeSendState:
		return StateQuery{Echoed: true}, nil

	default:
		return Unknown{PType: env.Type}, nil
	}
}

// EncodeClient renders m as a peer frame.
func EncodeClient(m ClientMessage) ([]byte, error) {
	var env struct {
		Type string `json:"p_type"`
		Data any    `json:"data,omitempty"`
	}
	env.Type = m.Type()

	switch msg := m.(type) {
	case EnterServerOrRoom:
		env.Data = msg
	case StartGame:
		env.Data = msg
	case EndGame:
		env.Data = struct{}{}
	case Word:
		env.Data = msg
	case StateQuery:
	case Unknown:
		if msg.PType == "" {
			return nil, fmt.Errorf("%w: empty p_type", ErrMalformed)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrMalformed, m)
	}
	return json.Marshal(env)
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
