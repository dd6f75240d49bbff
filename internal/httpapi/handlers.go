package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/kkuko-relay/internal/lobby"
	"github.com/DoyleJ11/kkuko-relay/internal/store"
	"github.com/DoyleJ11/kkuko-relay/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const requestTimeout = 5 * time.Second

type stateResponse struct {
	Version int                `json:"version"`
	Peers   int                `json:"peers"`
	Primary bool               `json:"primary"`
	State   types.SnapshotView `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// State reports the session snapshot as peers would see it.
func State(l *lobby.Lobby) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		v, err := l.State(ctx)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		snap := lobby.Snapshot{Version: v.Version, State: v.State}
		writeJSON(w, http.StatusOK, stateResponse{
			Version: v.Version,
			Peers:   v.NumPeers,
			Primary: v.PrimaryID != "",
			State:   snap.View(),
		})
	}
}

func ListWords(s store.WordStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		entries, err := s.ListAll(ctx)
		if err != nil {
			log.Error("list words", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to list words")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func SearchWords(s store.WordStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, http.StatusBadRequest, "missing q")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		entries, err := s.Find(ctx, q)
		if err != nil {
			log.Error("search words", zap.String("q", q), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to search words")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func DeleteWord(s store.WordStore, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		word := chi.URLParam(r, "word")
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		err := s.Delete(ctx, word)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "word not found")
		case err != nil:
			log.Error("delete word", zap.String("word", word), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to delete word")
		default:
			log.Info("word deleted", zap.String("word", word))
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
