package pricing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/recompute"
	"github.com/sells-group/valueboard/internal/resilience"
	"github.com/sells-group/valueboard/internal/store"
)

var runAt = time.Date(2025, 1, 2, 6, 0, 0, 0, time.UTC)

type mockSource struct {
	mock.Mock
	name string
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Fetch(ctx context.Context, snapshotAt time.Time) ([]model.RawPrice, error) {
	args := m.Called(ctx, snapshotAt)
	rows, _ := args.Get(0).([]model.RawPrice)
	return rows, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recompute.Event
}

func (r *recordingPublisher) Publish(_ context.Context, ev recompute.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func newPipelineStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pricing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	_, err = st.UpsertModels(ctx, []model.CatalogEntry{
		{ID: "m1", Slug: "gpt-4o", CanonicalName: "GPT-4o", VendorSlug: "openai", Active: true},
		{ID: "m2", Slug: "llama-3-70b", CanonicalName: "Llama 3 70B", VendorSlug: "meta", Active: true},
		{ID: "m3", Slug: "claude-3-5-sonnet", CanonicalName: "Claude 3.5 Sonnet", VendorSlug: "anthropic", Active: true},
		{ID: "m4", Slug: "retired", CanonicalName: "Retired", VendorSlug: "openai", Active: false},
	})
	require.NoError(t, err)
	return st
}

func raw(id string, in, out float64) model.RawPrice {
	return model.RawPrice{ExternalModelID: id, InputPrice1M: &in, OutputPrice1M: &out, Confidence: model.ConfidenceHigh}
}

func source(name string, rows []model.RawPrice, err error) *mockSource {
	s := &mockSource{name: name}
	s.On("Fetch", mock.Anything, runAt).Return(rows, err)
	return s
}

func currentInput(t *testing.T, st store.Store, modelID string) float64 {
	t.Helper()
	p, err := st.GetCurrentPrice(context.Background(), modelID, model.PricingTypeAPI)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Input()
}

func TestPipeline_PrimaryWinsOverFallback(t *testing.T) {
	st := newPipelineStore(t)
	primary := source("openrouter", []model.RawPrice{
		raw("openai/gpt-4o", 2.5, 10),
		raw("meta-llama/llama-3-70b", 0.5, 0.7),
		raw("unknown/thing", 1, 1),
	}, nil)
	fallback := source("fallback", []model.RawPrice{
		raw("openai/gpt-4o", 5, 15),
		raw("anthropic/claude-3-5-sonnet", 3, 15),
	}, nil)
	pub := &recordingPublisher{}

	res, err := NewPipeline(st, primary, fallback, WithPublisher(pub)).Run(context.Background(), runAt)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusCompleted, res.Status)
	assert.Equal(t, 3, res.RecordsWritten)
	assert.Equal(t, 3, res.ModelsMatched)
	assert.Empty(t, res.ModelsMissing)
	assert.Equal(t, []string{"unmatched:unknown/thing"}, res.Errors)

	assert.Equal(t, 2.5, currentInput(t, st, "m1"))
	assert.Equal(t, 0.5, currentInput(t, st, "m2"))
	assert.Equal(t, 3.0, currentInput(t, st, "m3"))

	require.Len(t, pub.events, 3)
	for _, ev := range pub.events {
		assert.Equal(t, recompute.EventPriceWritten, ev.Kind)
		assert.True(t, ev.Price.IsCurrent)
		assert.Equal(t, "2025-01-02", ev.Price.SnapshotDate)
	}
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}

func TestPipeline_RerunIsIdempotent(t *testing.T) {
	st := newPipelineStore(t)
	rows := []model.RawPrice{raw("openai/gpt-4o", 2.5, 10)}
	p := NewPipeline(st, source("openrouter", rows, nil), nil)
	ctx := context.Background()

	_, err := p.Run(ctx, runAt)
	require.NoError(t, err)
	_, err = p.Run(ctx, runAt)
	require.NoError(t, err)

	history, err := st.ListPriceHistory(ctx, "m1", model.PricingTypeAPI, "")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.PriceRecordID("m1", "2025-01-02", model.PricingTypeAPI), history[0].ID)
	assert.True(t, history[0].IsCurrent)
}

func TestPipeline_StatusMatrix(t *testing.T) {
	all := []model.RawPrice{
		raw("openai/gpt-4o", 2.5, 10),
		raw("meta-llama/llama-3-70b", 0.5, 0.7),
		raw("anthropic/claude-3-5-sonnet", 3, 15),
	}
	boom := errors.New("connection refused")

	tests := []struct {
		name        string
		primaryRows []model.RawPrice
		primaryErr  error
		fallbackErr error
		want        model.RunStatus
		wantErrs    []string
	}{
		{name: "all covered", primaryRows: all, want: model.RunStatusCompleted},
		{name: "errors and writes", primaryRows: all, fallbackErr: boom, want: model.RunStatusPartial,
			wantErrs: []string{"fallback:connection refused"}},
		{name: "errors and nothing written", primaryErr: boom, fallbackErr: boom, want: model.RunStatusFailed,
			wantErrs: []string{"openrouter:connection refused", "fallback:connection refused"}},
		{name: "no errors but uncovered", primaryRows: all[:2], want: model.RunStatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newPipelineStore(t)
			res, err := NewPipeline(st,
				source("openrouter", tt.primaryRows, tt.primaryErr),
				source("fallback", nil, tt.fallbackErr),
			).Run(context.Background(), runAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			for _, e := range tt.wantErrs {
				assert.Contains(t, res.Errors, e)
			}
		})
	}
}

func TestPipeline_CoverageFlagsDirectVendors(t *testing.T) {
	st := newPipelineStore(t)
	res, err := NewPipeline(st, source("openrouter", nil, nil), nil).Run(context.Background(), runAt)
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusPartial, res.Status)
	assert.Equal(t, []string{
		"claude-3-5-sonnet", "gpt-4o", "llama-3-70b",
		"anthropic/claude-3-5-sonnet", "openai/gpt-4o",
	}, res.ModelsMissing)
	assert.NotContains(t, res.ModelsMissing, "meta/llama-3-70b")
	assert.NotContains(t, res.ModelsMissing, "retired")
}

func TestPipeline_UnmatchedErrorsBounded(t *testing.T) {
	st := newPipelineStore(t)
	var rows []model.RawPrice
	for i := 0; i < 40; i++ {
		rows = append(rows, raw("nobody/model-"+string(rune('a'+i%26))+string(rune('a'+i/26)), 1, 1))
	}
	res, err := NewPipeline(st, source("openrouter", rows, nil), nil).Run(context.Background(), runAt)
	require.NoError(t, err)
	assert.Len(t, res.Errors, model.MaxReportedIDs)
}

func TestPipeline_OpenBreakerIsRecordedAsSourceError(t *testing.T) {
	st := newPipelineStore(t)
	b := resilience.NewBreaker("openrouter", 1, time.Hour)
	failing := source("openrouter", nil, errors.New("timeout"))
	fallback := source("fallback", []model.RawPrice{raw("openai/gpt-4o", 2.5, 10)}, nil)
	p := NewPipeline(st, failing, fallback, WithBreakers(map[string]*resilience.Breaker{"openrouter": b}))

	_, err := p.Run(context.Background(), runAt)
	require.NoError(t, err)
	require.Equal(t, resilience.BreakerOpen, b.State())

	res, err := p.Run(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, res.Status)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "circuit breaker is open")
	failing.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestPipeline_SourceFailureLogsErrorClass(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	st := newPipelineStore(t)
	unavailable := resilience.NewTransientError(errors.New("http 503 from openrouter"), 503)
	res, err := NewPipeline(st,
		source("openrouter", nil, unavailable),
		source("fallback", nil, errors.New("yaml: line 3: bad indentation")),
	).Run(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, res.Status)

	classes := make(map[string]any)
	for _, e := range logs.FilterMessage("price source failed").All() {
		ctx := e.ContextMap()
		classes[ctx["source"].(string)] = ctx["class"]
	}
	assert.Equal(t, map[string]any{"openrouter": "transient", "fallback": "permanent"}, classes)
	assert.Contains(t, res.Errors, "openrouter:http 503 from openrouter")
}

func TestPipeline_FetchTimeoutDegrades(t *testing.T) {
	st := newPipelineStore(t)
	slow := &mockSource{name: "openrouter"}
	slow.On("Fetch", mock.Anything, runAt).
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)

	res, err := NewPipeline(st, slow, nil, WithFetchTimeout(20*time.Millisecond)).Run(context.Background(), runAt)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, res.Status)
}

func TestPipeline_RunAndRecord(t *testing.T) {
	st := newPipelineStore(t)
	all := []model.RawPrice{
		raw("openai/gpt-4o", 2.5, 10),
		raw("meta-llama/llama-3-70b", 0.5, 0.7),
		raw("anthropic/claude-3-5-sonnet", 3, 15),
	}
	ctx := context.Background()

	res, err := NewPipeline(st, source("openrouter", all, nil), nil).RunAndRecord(ctx, runAt)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, res.Status)

	snap, err := st.LatestCompletedSnapshot(ctx, model.SourcePricing)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.RecordsCount)
	assert.Equal(t, "2025-01-02", snap.SnapshotDate)
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, model.RunStatusFailed, runStatus(1, 0, 0))
	assert.Equal(t, model.RunStatusPartial, runStatus(1, 2, 0))
	assert.Equal(t, model.RunStatusPartial, runStatus(0, 2, 1))
	assert.Equal(t, model.RunStatusCompleted, runStatus(0, 2, 0))
}

func TestUniq(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniq([]string{"a", "b", "a"}))
}
