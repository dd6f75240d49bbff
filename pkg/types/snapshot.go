package types

import (
	"encoding/json"
	"fmt"
)

// SnapshotView is the broadcast form of the session snapshot. JSON keys match
// what the browser extension popup already reads.
//
//	serverNumber:  "감자서버" | null
//	roomNumber:    number | null
//	play:          "" | "로비" | "대기중" | "연습중" | "플레이중"
//	rpcConnection: boolean
type SnapshotView struct {
	ServerLabel    *string `json:"serverNumber"`
	RoomNumber     *int    `json:"roomNumber"`
	Phase          string  `json:"play"`
	PresenceLinked bool    `json:"rpcConnection"`
}

// ServerMessage is a relay -> peer frame.
type ServerMessage struct {
	Type    string        `json:"p_type"` // "p-sendState"
	Version int           `json:"version"`
	Data    *SnapshotView `json:"data,omitempty"`
}

// NewSendState wraps a snapshot view in a p-sendState frame.
func NewSendState(version int, view SnapshotView) ServerMessage {
	return ServerMessage{Type: TypeSendState, Version: version, Data: &view}
}

// DecodeServer parses a relay frame on the peer side.
func DecodeServer(data []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Type == "" {
		return ServerMessage{}, fmt.Errorf("%w: missing p_type", ErrMalformed)
	}
	return m, nil
}
