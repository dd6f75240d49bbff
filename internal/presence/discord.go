package presence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/hugolgst/rich-go/client"
	"github.com/hugolgst/rich-go/ipc"
	"go.uber.org/zap"
)

const opFrame = 1

var errNoReply = errors.New("discord ipc: no reply")

// NewDiscordClient returns a Client backed by the local Discord IPC socket.
func NewDiscordClient(appID string, log *zap.Logger) *Client {
	return NewClient(appID, discordDriver{send: ipc.Send}, log)
}

// discordDriver logs in and out through rich-go but writes activity frames
// itself: client.SetActivity discards the reply, so a dead socket looks like
// success there.
type discordDriver struct {
	send func(opcode int, payload string) string
}

func (discordDriver) Login(appID string) error {
	return client.Login(appID)
}

func (d discordDriver) SetActivity(a Activity) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discord ipc: %v", r)
		}
	}()
	payload, err := activityFrame(a, os.Getpid(), uuid.NewString())
	if err != nil {
		return err
	}
	return checkReply(d.send(opFrame, string(payload)))
}

// Logout panics when the socket fails to close; a broken socket is already logged out.
func (discordDriver) Logout() {
	defer func() { _ = recover() }()
	client.Logout()
}

type rpcFrame struct {
	Cmd   string  `json:"cmd"`
	Args  rpcArgs `json:"args"`
	Nonce string  `json:"nonce"`
}

type rpcArgs struct {
	Pid      int         `json:"pid"`
	Activity rpcActivity `json:"activity"`
}

type rpcActivity struct {
	Details    string        `json:"details,omitempty"`
	State      string        `json:"state,omitempty"`
	Assets     *rpcAssets    `json:"assets,omitempty"`
	Timestamps *rpcTimestamp `json:"timestamps,omitempty"`
}

type rpcAssets struct {
	LargeImage string `json:"large_image,omitempty"`
}

type rpcTimestamp struct {
	Start int64 `json:"start,omitempty"` // unix ms
}

func activityFrame(a Activity, pid int, nonce string) ([]byte, error) {
	act := rpcActivity{Details: a.Details, State: a.State}
	if a.LargeImage != "" {
		act.Assets = &rpcAssets{LargeImage: a.LargeImage}
	}
	if !a.Start.IsZero() {
		act.Timestamps = &rpcTimestamp{Start: a.Start.UnixMilli()}
	}
	payload, err := json.Marshal(rpcFrame{
		Cmd:   "SET_ACTIVITY",
		Args:  rpcArgs{Pid: pid, Activity: act},
		Nonce: nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("encode activity: %w", err)
	}
	return payload, nil
}

// checkReply rejects what ipc.Send returns for a dead socket: an empty read
// or bytes that are not a JSON object. ipc reads into a 512 byte buffer, so a
// long reply may be cut short; only replies that parse are checked for an
// ERROR event.
func checkReply(reply string) error {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return errNoReply
	}
	if !strings.HasPrefix(reply, "{") {
		return fmt.Errorf("discord ipc: unexpected reply %q", truncate(reply, 64))
	}
	var evt struct {
		Evt  string `json:"evt"`
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if json.Unmarshal([]byte(reply), &evt) == nil && evt.Evt == "ERROR" {
		return fmt.Errorf("discord rejected activity: %s", evt.Data.Message)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
