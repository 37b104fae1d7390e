// Package api exposes the leaderboard, history, job triggers and write
// events over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/valueboard/internal/leaderboard"
	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
)

// Job is a run-once ingest job that records its own snapshot.
type Job interface {
	RunAndRecord(ctx context.Context, snapshotAt time.Time) (*model.PipelineRunResult, error)
}

// HistoryReader returns per-model price and score series.
type HistoryReader interface {
	History(ctx context.Context, slugs []string, w leaderboard.Window, now time.Time) ([]leaderboard.Series, error)
}

// Writer persists externally produced quality scores and prices.
type Writer interface {
	Ping(ctx context.Context) error
	UpsertQualityScore(ctx context.Context, q *model.QualityScore) error
	WriteCurrentPrice(ctx context.Context, p *model.PriceRecord) error
}

// Deps are the collaborators the handlers call. Pricing and Arena may be
// nil, in which case their trigger routes answer 503.
type Deps struct {
	Leaderboard leaderboard.Querier
	History     HistoryReader
	Pricing     Job
	Arena       Job
	Writer      Writer
	Publisher   recompute.Publisher
	Now         func() time.Time
}

type handler struct {
	Deps
}

// NewRouter builds the HTTP handler tree.
func NewRouter(d Deps, allowedOrigins []string) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	h := &handler{Deps: d}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/leaderboard", h.leaderboard)
		r.Get("/pricing/history", h.pricingHistory)
		r.Post("/pricing/run", h.runJob(h.Pricing, "pricing"))
		r.Post("/arena/ingest", h.runJob(h.Arena, "arena"))
		r.Post("/events/quality", h.qualityEvent)
		r.Post("/events/price", h.priceEvent)
	})
	return r
}
