package engine

import "strconv"

// Room ids above this are practice rooms; the visible room number is id mod this.
const practiceOffset = 1000

var serverNames = map[int]string{
	0: "감자",
	1: "냉이",
	2: "다래",
	3: "레몬",
	4: "망고",
	5: "보리",
	6: "상추",
	7: "아욱",
	8: "죽순",
	9: "이벤트",
}

func NewEmptyState() State {
	return State{Phase: PhaseIdle}
}

// ServerLabel returns the display label for a server id, e.g. "감자서버".
func ServerLabel(id int) (string, bool) {
	name, ok := serverNames[id]
	if !ok {
		return "", false
	}
	return name + "서버", true
}

func serverLabel(id *int) (string, bool) {
	if id == nil {
		return "", false
	}
	return ServerLabel(*id)
}

// RoomString formats a room number for logs.
func RoomString(room *int) string {
	if room == nil {
		return "-"
	}
	return strconv.Itoa(*room)
}
