package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/kkuko-relay/internal/lobby"
	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"github.com/DoyleJ11/kkuko-relay/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func SetupRoutes(l *lobby.Lobby, s store.WordStore, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	wsLog := log
	log = log.With(zap.String("component", "http"))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Peers dial the root path.
	r.Get("/", ws.Handler(l, wsLog))
	r.Get("/healthz", Healthz)
	r.Get("/state", State(l))

	// Vocabulary admin
	if s != nil {
		r.Route("/words", func(r chi.Router) {
			r.Get("/", ListWords(s, log))
			r.Get("/search", SearchWords(s, log))
			r.Delete("/{word}", DeleteWord(s, log))
		})
	}
	return r
}
