// Command peer joins a running relay as an ordinary peer. It forwards frames
// read from stdin, one JSON object per line, and prints every snapshot the
// relay sends.
//
//	peer -server 0 -room 1042 < frames.jsonl
//	peer -query -once
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DoyleJ11/kkuko-relay/internal/logging"
	"github.com/DoyleJ11/kkuko-relay/internal/supervisor"
	"github.com/DoyleJ11/kkuko-relay/internal/uplink"
	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	addr := flag.String("addr", uplink.DefaultURL, "relay websocket url")
	server := flag.Int("server", -1, "server index to announce on connect (-1: none)")
	room := flag.Int("room", 0, "room id to announce with -server (0: lobby)")
	query := flag.Bool("query", false, "request the current snapshot on connect")
	once := flag.Bool("once", false, "exit after the first snapshot")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	log, err := logging.New(*logLevel, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hello := helloFrames(*server, *room, *query)
	out := json.NewEncoder(os.Stdout)

	c := uplink.New(uplink.Options{
		URL:    *addr,
		Hello:  func() []types.ClientMessage { return hello },
		Logger: log,
		OnFrame: func(m types.ServerMessage) {
			if m.Type != types.TypeSendState {
				return
			}
			if err := out.Encode(m); err != nil {
				log.Error("write snapshot", zap.Error(err))
			}
			if *once {
				cancel()
			}
		},
	})
	defer c.Close()

	sup := supervisor.New("uplink", c, supervisor.UplinkInterval, log)

	// stdin is not cancellable, so the reader lives outside the group.
	go forwardStdin(ctx, c, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sup.Run(gctx) })
	if err := g.Wait(); err != nil {
		log.Error("peer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func helloFrames(server, room int, query bool) []types.ClientMessage {
	var frames []types.ClientMessage
	if server >= 0 {
		m := types.EnterServerOrRoom{Server: &server}
		if room > 0 {
			m.RoomID = &room
		}
		frames = append(frames, m)
	}
	if query {
		frames = append(frames, types.StateQuery{})
	}
	return frames
}

func forwardStdin(ctx context.Context, c *uplink.Client, log *zap.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := types.DecodeClient(line)
		if err != nil {
			log.Warn("skipping stdin line", zap.Error(err))
			continue
		}
		// Send logs and drops while the relay is unreachable.
		_ = c.Send(ctx, msg)
	}
	if err := sc.Err(); err != nil {
		log.Error("read stdin", zap.Error(err))
	}
}
