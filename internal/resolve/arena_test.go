package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/valueboard/internal/model"
)

func arenaCatalog() []model.CatalogEntry {
	return []model.CatalogEntry{
		{ID: "m1", Slug: "gpt-4o", Aliases: []string{"gpt-4o"}},
		{ID: "m2", Slug: "claude-3-5-sonnet", Aliases: []string{"Claude 3.5 Sonnet"}},
		{ID: "m3", Slug: "gemini-1-5-pro", Aliases: []string{"Gemini-1.5-Pro-002"}},
	}
}

func TestMatchArenaName(t *testing.T) {
	catalog := arenaCatalog()

	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"exact alias", "gpt-4o", "gpt-4o", true},
		{"case-insensitive alias", "claude 3.5 sonnet", "claude-3-5-sonnet", true},
		{"case-insensitive slug", "GEMINI-1-5-PRO", "gemini-1-5-pro", true},
		{"date suffix stripped", "GPT-4o-2024-05-13", "gpt-4o", true},
		{"compact date suffix stripped", "gpt-4o-20240513", "gpt-4o", true},
		{"version stripped both sides", "Gemini-1.5-Pro-Exp", "gemini-1-5-pro", true},
		{"surrounding whitespace", "  gpt-4o  ", "gpt-4o", true},
		{"unknown", "llama-3-70b", "", false},
		{"empty", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchArenaName(tt.in, catalog)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchArenaName_ExactAliasBeatsEarlierCaseInsensitiveSlug(t *testing.T) {
	catalog := []model.CatalogEntry{
		{ID: "a", Slug: "foo"},
		{ID: "b", Slug: "bar", Aliases: []string{"FOO"}},
	}
	got, ok := MatchArenaName("FOO", catalog)
	assert.True(t, ok)
	assert.Equal(t, "bar", got)
}

func TestMatchArenaName_EmptyCatalog(t *testing.T) {
	_, ok := MatchArenaName("gpt-4o", nil)
	assert.False(t, ok)
}
