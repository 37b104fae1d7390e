package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestCollectJSONArray(t *testing.T) {
	rows, err := CollectJSONArray[row](context.Background(), strings.NewReader(`[{"name":"a","score":1},{"name":"b","score":2.5}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1].Name)
	assert.Equal(t, 2.5, rows[1].Score)
}

func TestCollectJSONArray_Empty(t *testing.T) {
	rows, err := CollectJSONArray[row](context.Background(), strings.NewReader(`[]`))
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = CollectJSONArray[row](context.Background(), strings.NewReader(``))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCollectJSONArray_NotArray(t *testing.T) {
	_, err := CollectJSONArray[row](context.Background(), strings.NewReader(`{"name":"a"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestCollectJSONArray_BadElement(t *testing.T) {
	rows, err := CollectJSONArray[row](context.Background(), strings.NewReader(`[{"name":"a"},{"name":5}]`))
	require.Error(t, err)
	assert.Len(t, rows, 1)
}

func TestDecodeJSONObject(t *testing.T) {
	obj, err := DecodeJSONObject[row](strings.NewReader(`{"name":"x","score":3}`))
	require.NoError(t, err)
	assert.Equal(t, "x", obj.Name)

	_, err = DecodeJSONObject[row](strings.NewReader(`nope`))
	require.Error(t, err)
}
