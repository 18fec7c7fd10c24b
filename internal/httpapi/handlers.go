package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/match-replay/internal/engine"
	"github.com/DoyleJ11/match-replay/internal/hub"
	"github.com/DoyleJ11/match-replay/internal/matchstore"
	"github.com/DoyleJ11/match-replay/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createSessionRequest struct {
	League string `json:"league"`
	Match  string `json:"match"`
}

func CreateSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.League == "" || req.Match == "" {
			http.Error(w, "league and match are required", http.StatusBadRequest)
			return
		}

		id := uuid.NewString()
		s := session.Open(d.Hub.Context(), session.Config{
			ID:           id,
			Match:        engine.MatchRef{League: req.League, Match: req.Match},
			Metadata:     d.Source,
			Fetcher:      d.Source,
			FetchTimeout: d.FetchTimeout,
			Logger:       d.Logger,
			Metrics:      d.Metrics,
		})

		ok := make(chan bool, 1)
		select {
		case d.Hub.Inbox() <- hub.Register{Session: s, Reply: ok}:
		case <-d.Hub.Context().Done():
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		if !<-ok {
			s.Inbox() <- session.Shutdown{}
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		if d.TickInterval > 0 {
			go session.Drive(d.Hub.Context(), s, d.TickInterval)
		}

		writeJSON(w, http.StatusCreated, struct {
			ID string `json:"id"`
		}{ID: id})
	}
}

func DeleteSession(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Inbox() <- hub.RemoveSession{ID: chi.URLParam(r, "id")}
		w.WriteHeader(http.StatusNoContent)
	}
}

func matchRef(r *http.Request) engine.MatchRef {
	return engine.MatchRef{League: chi.URLParam(r, "league"), Match: chi.URLParam(r, "match")}
}

func MatchMetadata(store *matchstore.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		meta, err := store.Metadata(matchRef(r))
		if err != nil {
			storeError(w, err, log)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

func MatchChunk(store *matchstore.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.ParseInt(chi.URLParam(r, "n"), 10, 64)
		if err != nil {
			http.Error(w, "bad chunk number", http.StatusBadRequest)
			return
		}
		data, err := store.RawChunk(matchRef(r), engine.ChunkID(n))
		if err != nil {
			storeError(w, err, log)
			return
		}

		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func storeError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, matchstore.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, matchstore.ErrInvalidRef):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error("match store", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
