// Package arena ingests per-domain benchmark leaderboards into quality scores.
package arena

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/valueboard/internal/fetcher"
	"github.com/sells-group/valueboard/internal/model"
)

// Source returns the raw leaderboard rows for one domain.
type Source interface {
	Fetch(ctx context.Context, domain model.Domain) ([]model.RawBenchmarkRow, error)
}

// HTTPSource reads a JSON array of rows from {BaseURL}/{domain}.
type HTTPSource struct {
	f       fetcher.Fetcher
	baseURL string
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(f fetcher.Fetcher, baseURL string) *HTTPSource {
	return &HTTPSource{f: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, domain model.Domain) ([]model.RawBenchmarkRow, error) {
	if s.baseURL == "" {
		return nil, eris.New("arena: base url not configured")
	}
	u := s.baseURL + "/" + url.PathEscape(string(domain))

	body, err := s.f.Download(ctx, u)
	if err != nil {
		return nil, eris.Wrapf(err, "arena: fetch %s", domain)
	}
	defer body.Close() //nolint:errcheck

	rows, err := fetcher.CollectJSONArray[model.RawBenchmarkRow](ctx, body)
	if err != nil {
		return nil, eris.Wrapf(err, "arena: decode %s", domain)
	}
	return rows, nil
}
