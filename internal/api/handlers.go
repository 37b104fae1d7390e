package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/valueboard/internal/leaderboard"
	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
)

const maxBodyBytes = 1 << 20

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.Writer != nil {
		if err := h.Writer.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	p, err := parseParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", err)
		return
	}
	res, err := h.Leaderboard.Query(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parseParams reads leaderboard query parameters. Unparseable numbers and
// unknown domains are rejected; everything else is normalized.
func parseParams(q url.Values) (leaderboard.Params, error) {
	p := leaderboard.Params{
		Domain:    model.Domain(q.Get("domain")),
		SortField: leaderboard.SortField(q.Get("sort")),
		SortDir:   leaderboard.SortDir(strings.ToLower(q.Get("dir"))),
		Search:    q.Get("search"),
	}
	if p.Domain == "" {
		p.Domain = model.DomainText
	}
	if v := q.Get("vendors"); v != "" {
		p.Vendors = strings.Split(v, ",")
	}
	modality, err := model.ParseModality(q.Get("modality"))
	if err != nil {
		return p, err
	}
	p.Modality = modality

	floats := map[string]*float64{"priceMin": &p.PriceMin, "priceMax": &p.PriceMax}
	for key, dst := range floats {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return p, eris.Errorf("api: %s must be a number", key)
			}
			*dst = f
		}
	}
	ints := map[string]*int{"contextMin": &p.ContextMin, "limit": &p.Limit, "offset": &p.Offset}
	for key, dst := range ints {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return p, eris.Errorf("api: %s must be an integer", key)
			}
			*dst = n
		}
	}
	if v := q.Get("arenaOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, eris.New("api: arenaOnly must be a boolean")
		}
		p.ArenaOnly = b
	}
	return p.Normalize()
}

func (h *handler) pricingHistory(w http.ResponseWriter, r *http.Request) {
	var slugs []string
	for _, s := range strings.Split(r.URL.Query().Get("models"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			slugs = append(slugs, s)
		}
	}
	if len(slugs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_params", eris.New("api: models is required"))
		return
	}
	series, err := h.History.History(r.Context(), slugs, leaderboard.ParseWindow(r.URL.Query().Get("window")), h.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (h *handler) runJob(job Job, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if job == nil {
			writeError(w, http.StatusServiceUnavailable, "job_disabled", eris.Errorf("api: %s job is not configured", name))
			return
		}
		res, err := job.RunAndRecord(r.Context(), h.Now())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "job_failed", err)
			return
		}
		zap.L().Info("job triggered over http",
			zap.String("component", "api"),
			zap.String("job", name),
			zap.String("status", string(res.Status)),
			zap.Int("records", res.RecordsWritten),
		)
		writeJSON(w, http.StatusOK, res)
	}
}

type qualityRequest struct {
	ModelID      string   `json:"model_id"`
	ModelSlug    string   `json:"model_slug"`
	Domain       string   `json:"domain"`
	Score        float64  `json:"score"`
	CILower      *float64 `json:"ci_lower"`
	CIUpper      *float64 `json:"ci_upper"`
	Rank         *int     `json:"rank"`
	Votes        *int     `json:"votes"`
	SnapshotDate string   `json:"snapshot_date"`
}

type priceRequest struct {
	ModelID          string   `json:"model_id"`
	ModelSlug        string   `json:"model_slug"`
	PricingType      string   `json:"pricing_type"`
	InputPrice1M     *float64 `json:"input_price_1m"`
	OutputPrice1M    *float64 `json:"output_price_1m"`
	CachedInput1M    *float64 `json:"cached_input_1m"`
	BatchInput1M     *float64 `json:"batch_input_1m"`
	BatchOutput1M    *float64 `json:"batch_output_1m"`
	ImagePrice       *float64 `json:"image_price"`
	SourceURL        string   `json:"source_url"`
	SourceName       string   `json:"source_name"`
	SourceConfidence string   `json:"source_confidence"`
	SnapshotDate     string   `json:"snapshot_date"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return eris.Wrap(dec.Decode(v), "api: invalid request body")
}

// snapshotTime parses a YYYY-MM-DD date, defaulting to now.
func snapshotTime(date string, now time.Time) (time.Time, error) {
	if date == "" {
		return now.UTC(), nil
	}
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return time.Time{}, eris.Errorf("api: snapshot_date must be %s", model.DateLayout)
	}
	return t, nil
}

func (req qualityRequest) toScore(now time.Time) (*model.QualityScore, error) {
	d, err := model.ResolveDomain(req.Domain)
	if err != nil {
		return nil, err
	}
	at, err := snapshotTime(req.SnapshotDate, now)
	if err != nil {
		return nil, err
	}
	q, err := model.NewQualityScore(req.ModelID, req.ModelSlug, d, req.Score, at)
	if err != nil {
		return nil, err
	}
	q.CILower, q.CIUpper, q.Rank, q.Votes = req.CILower, req.CIUpper, req.Rank, req.Votes
	return q, nil
}

func (req priceRequest) toRecord(now time.Time) (*model.PriceRecord, error) {
	pt := model.PricingType(req.PricingType)
	if pt == "" {
		pt = model.PricingTypeAPI
	}
	at, err := snapshotTime(req.SnapshotDate, now)
	if err != nil {
		return nil, err
	}
	p, err := model.NewPriceRecord(req.ModelID, req.ModelSlug, pt, at.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}
	p.InputPrice1M, p.OutputPrice1M = req.InputPrice1M, req.OutputPrice1M
	p.CachedInput1M, p.BatchInput1M, p.BatchOutput1M = req.CachedInput1M, req.BatchInput1M, req.BatchOutput1M
	p.ImagePrice = req.ImagePrice
	p.SourceURL, p.SourceName = req.SourceURL, req.SourceName
	p.SourceConfidence = model.Confidence(req.SourceConfidence)
	if p.SourceConfidence == "" {
		p.SourceConfidence = model.ConfidenceMedium
	}
	p.FetchedAt = now.UTC()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// qualityEvent stores an externally scraped quality score and notifies
// the recompute side.
func (h *handler) qualityEvent(w http.ResponseWriter, r *http.Request) {
	var req qualityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}
	q, err := req.toScore(h.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_score", err)
		return
	}
	if err := h.Writer.UpsertQualityScore(r.Context(), q); err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed", err)
		return
	}
	h.publish(r, recompute.QualityEvent(q))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": q.ID})
}

// priceEvent stores an externally sourced price as current and notifies
// the recompute side.
func (h *handler) priceEvent(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err)
		return
	}
	p, err := req.toRecord(h.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_price", err)
		return
	}
	if err := h.Writer.WriteCurrentPrice(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "write_failed", err)
		return
	}
	h.publish(r, recompute.PriceEvent(p))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "id": p.ID})
}

func (h *handler) publish(r *http.Request, ev recompute.Event) {
	if h.Publisher == nil {
		return
	}
	if err := h.Publisher.Publish(r.Context(), ev); err != nil {
		zap.L().Warn("api: publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}
