package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/config"
	"github.com/DoyleJ11/kkuko-relay/internal/httpapi"
	"github.com/DoyleJ11/kkuko-relay/internal/hub"
	"github.com/DoyleJ11/kkuko-relay/internal/lobby"
	"github.com/DoyleJ11/kkuko-relay/internal/logging"
	"github.com/DoyleJ11/kkuko-relay/internal/presence"
	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"github.com/DoyleJ11/kkuko-relay/internal/store/postgres"
	"github.com/DoyleJ11/kkuko-relay/internal/store/sqlite"
	"github.com/DoyleJ11/kkuko-relay/internal/supervisor"
	"github.com/DoyleJ11/kkuko-relay/internal/words"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("relay stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The relay is useful without an archive; only the listener is fatal.
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("word store unavailable, archiving disabled", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	var (
		pc   *presence.Client
		sup  *supervisor.Supervisor
		sink hub.PresenceSink
	)
	if cfg.PresenceEnabled {
		pc = presence.NewDiscordClient(cfg.DiscordAppID, log)
		sup = supervisor.New("presence", pc, cfg.PresenceRetry, log)
		sink = pc
	}

	h := hub.NewHub(ctx, hub.Options{
		Store:     st,
		Presence:  sink,
		Notifiers: []hub.Notifier{archiveLog{log: log}},
		Logger:    log,
	})
	lb := lobby.NewLobby(ctx, words.NewPipeline(h, log), h, log)

	if sup != nil {
		sup.OnStatus(func(linked bool) {
			lb.Send(lobby.PresenceStatus{Linked: linked})
		})
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return multierr.Combine(
			fmt.Errorf("listen %s: %w", cfg.Addr, err),
			stopAll(lb, h, pc, st),
		)
	}

	srv := &http.Server{
		Handler:           httpapi.SetupRoutes(lb, st, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("relay listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if sup != nil {
		g.Go(func() error { return sup.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Close peers first; hijacked websocket conns are not tracked by Shutdown.
		lb.Send(lobby.Shutdown{})
		<-lb.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			srv.Shutdown(shutdownCtx),
			stopAll(lb, h, pc, st),
		)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.WordStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// stopAll stops the lobby, drains the hub and releases the collaborators.
func stopAll(lb *lobby.Lobby, h *hub.Hub, pc *presence.Client, st store.WordStore) error {
	lb.Send(lobby.Shutdown{})
	<-lb.Done()

	select {
	case h.Inbox() <- hub.ShutdownHub{}:
	case <-h.Done():
	}
	<-h.Done()

	if pc != nil {
		pc.Close()
	}
	if st != nil {
		if err := st.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}

type archiveLog struct {
	log *zap.Logger
}

func (a archiveLog) WordArchived(word, theme string) {
	a.log.Debug("word archived", zap.String("word", word), zap.String("theme", theme))
}
