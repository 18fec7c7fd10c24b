package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/match-replay/internal/chunk"
	"github.com/DoyleJ11/match-replay/internal/hub"
	"github.com/DoyleJ11/match-replay/internal/logging"
	"github.com/DoyleJ11/match-replay/internal/matchstore"
	"github.com/DoyleJ11/match-replay/internal/metrics"
	"github.com/DoyleJ11/match-replay/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Source is where sessions load match data from: the local store or an
// upstream replay server.
type Source interface {
	chunk.MetadataProvider
	chunk.Fetcher
}

type Deps struct {
	Hub *hub.Hub
	// Store, when set, is also served to other replay servers.
	Store  *matchstore.Store
	Source Source

	Gatherer     prometheus.Gatherer
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
	TickInterval time.Duration
	FetchTimeout time.Duration
}

func SetupRoutes(d Deps) http.Handler {
	d.Logger = logging.OrNop(d.Logger)
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/sessions", CreateSession(d))
	r.Delete("/sessions/{id}", DeleteSession(d.Hub))
	r.Get("/ws", ws.Handler(d.Hub, d.Logger))

	if d.Store != nil {
		r.Route("/matches/{league}/{match}", func(r chi.Router) {
			r.Get("/metadata", MatchMetadata(d.Store, d.Logger))
			r.Get("/chunks/{n}", MatchChunk(d.Store, d.Logger))
		})
	}
	return r
}
