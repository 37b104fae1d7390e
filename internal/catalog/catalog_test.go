package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valueboard/internal/model"
	"github.com/sells-group/valueboard/internal/store"
)

const yamlCatalog = `models:
  - id: m1
    slug: gpt-4o
    canonical_name: GPT-4o
    vendor_slug: openai
    vendor_name: OpenAI
    aliases: [gpt-4o-2024-08-06, chatgpt-4o-latest]
    modality: Multimodal
    context_window: 128000
  - id: m2
    slug: llama-3-70b
    vendor_slug: meta
    is_open_source: true
  - id: m3
    slug: retired
    vendor_slug: acme
    active: false
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	entries, err := LoadFile(writeFile(t, "catalog.yaml", yamlCatalog))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	gpt := entries[0]
	assert.Equal(t, model.ModalityMultimodal, gpt.Modality)
	assert.Equal(t, []string{"gpt-4o-2024-08-06", "chatgpt-4o-latest"}, gpt.Aliases)
	require.NotNil(t, gpt.ContextWindow)
	assert.Equal(t, 128000, *gpt.ContextWindow)
	assert.True(t, gpt.Active)

	llama := entries[1]
	assert.Equal(t, "llama-3-70b", llama.CanonicalName)
	assert.Equal(t, model.ModalityText, llama.Modality)
	assert.True(t, llama.IsOpenSource)
	assert.True(t, llama.Active)

	assert.False(t, entries[2].Active)
}

func TestLoadFile_JSON(t *testing.T) {
	entries, err := LoadFile(writeFile(t, "catalog.json",
		`{"models": [{"id": "m1", "slug": "gpt-4o", "vendor_slug": "openai", "active": true}]}`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gpt-4o", entries[0].Slug)
}

func TestLoadFile_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing slug", "models:\n  - id: m1\n"},
		{"bad modality", "models:\n  - id: m1\n    slug: a\n    modality: smell\n"},
		{"duplicate id", "models:\n  - id: m1\n    slug: a\n  - id: m1\n    slug: b\n"},
		{"duplicate slug", "models:\n  - id: m1\n    slug: a\n  - id: m2\n    slug: a\n"},
		{"negative context", "models:\n  - id: m1\n    slug: a\n    context_window: -1\n"},
		{"not yaml", "models: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, "catalog.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestImport(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	path := writeFile(t, "catalog.yaml", yamlCatalog)
	_, err = Import(ctx, st, path)
	require.NoError(t, err)
	_, err = Import(ctx, st, path)
	require.NoError(t, err)

	all, err := st.ListModels(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	active, err := st.ListModels(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
