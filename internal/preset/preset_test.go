package preset

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blendkit/internal/formula"
	"github.com/roach88/blendkit/internal/retry"
	"github.com/roach88/blendkit/internal/testutil"
)

// testOptions returns deterministic store options with instant retries.
func testOptions() []Option {
	return []Option{
		WithIDGenerator(testutil.NewSequenceGenerator("p")),
		WithClock(testutil.NewSteppingClock(testutil.Epoch, 0)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithWritePolicy(retry.Policy{
			Name:  "test write",
			Sleep: func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
		}),
	}
}

func TestDefaultsCompile(t *testing.T) {
	items := Defaults(testutil.NewSequenceGenerator("d"), testutil.NewDeterministicClock())
	require.Len(t, items, 4)

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
		_, err := formula.Compile(it.Formula.Expr)
		assert.NoError(t, err, it.Name)
		assert.Equal(t, testutil.Epoch.UnixMilli(), it.CreatedAt)
	}
	assert.Equal(t, []string{"Normal", "Multiply", "Screen", "Overlay"}, names)
	assert.Equal(t, "d-1", items[0].ID)
}

func TestFind(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "Caf\u00e9", Formula: Formula{Expr: "B"}},
		{ID: "2", Name: "Screen", Formula: Formula{Expr: "T"}},
	}

	// Decomposed form matches the composed name.
	it, ok := Find(items, "Cafe\u0301")
	require.True(t, ok)
	assert.Equal(t, "1", it.ID)

	_, ok = Find(items, "missing")
	assert.False(t, ok)
}

func TestNewItemValidates(t *testing.T) {
	ids, clock := testutil.NewSequenceGenerator("x"), testutil.NewDeterministicClock()

	_, err := newItem("  ", "B", ids, clock)
	assert.ErrorIs(t, err, ErrEmptyName)

	_, err = newItem("n", "\t", ids, clock)
	assert.ErrorIs(t, err, ErrEmptyExpr)

	it, err := newItem(" Cafe\u0301 ", " [rs, gs, bs] ", ids, clock)
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", it.Name)
	assert.Equal(t, "[rs, gs, bs]", it.Formula.Expr)
}

func TestDecodeFile(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		items   int
	}{
		{"valid", `{"version":1,"items":[{"id":"a","name":"n","formula":{"expr":"B"},"createdAt":5}]}`, false, 1},
		{"empty items", `{"version":2,"items":[]}`, false, 0},
		{"not json", `{version`, true, 0},
		{"missing version", `{"items":[]}`, true, 0},
		{"zero version", `{"version":0,"items":[]}`, true, 0},
		{"items object", `{"version":1,"items":{}}`, true, 0},
		{"items missing", `{"version":1}`, true, 0},
		{"items null", `{"version":1,"items":null}`, true, 0},
		{"bad item", `{"version":1,"items":[{"name":5}]}`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := decodeFile([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFile)
				return
			}
			require.NoError(t, err)
			assert.Len(t, f.Items, tt.items)
		})
	}
}

func TestEncodeFileIndented(t *testing.T) {
	data, err := encodeFile(nil)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"version\": 1,\n  \"items\": []\n}", string(data))

	data, err = encodeFile([]Item{{ID: "a", Name: "n", Formula: Formula{Expr: "B"}, CreatedAt: 7}})
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	item := raw["items"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"expr": "B"}, item["formula"])
	assert.Equal(t, float64(7), item["createdAt"])
}

func TestMerge(t *testing.T) {
	current := []Item{
		{ID: "c1", Name: "A", Formula: Formula{Expr: "B"}, CreatedAt: 1},
		{ID: "c2", Name: "B", Formula: Formula{Expr: "T"}, CreatedAt: 2},
	}
	imported := []Item{
		{ID: "old", Name: "C", Formula: Formula{Expr: "[rb, gb, bb]"}, CreatedAt: 99},
		{ID: "dup", Name: "A", Formula: Formula{Expr: "B"}, CreatedAt: 99},
		{ID: "same-name", Name: "B", Formula: Formula{Expr: "B"}, CreatedAt: 99},
	}
	clock := testutil.NewSteppingClock(time.UnixMilli(500), 0)
	got := merge(current, imported, testutil.NewSequenceGenerator("n"), clock)

	require.Len(t, got, 4)
	// A keeps its position but takes the imported value.
	assert.Equal(t, Item{ID: "n-2", Name: "A", Formula: Formula{Expr: "B"}, CreatedAt: 500}, got[0])
	assert.Equal(t, current[1], got[1])
	assert.Equal(t, Item{ID: "n-1", Name: "C", Formula: Formula{Expr: "[rb, gb, bb]"}, CreatedAt: 500}, got[2])
	// Same name, different expression: both kept.
	assert.Equal(t, "n-3", got[3].ID)
	assert.Equal(t, "B", got[3].Formula.Expr)
}

func TestMergeCollapsesCurrentDuplicates(t *testing.T) {
	current := []Item{
		{ID: "1", Name: "A", Formula: Formula{Expr: "B"}},
		{ID: "2", Name: "A", Formula: Formula{Expr: "B"}},
	}
	got := merge(current, nil, testutil.NewSequenceGenerator(""), testutil.NewDeterministicClock())
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestMergeNormalizesImported(t *testing.T) {
	current := []Item{{ID: "1", Name: "Caf\u00e9", Formula: Formula{Expr: "B"}}}
	imported := []Item{{Name: " Cafe\u0301", Formula: Formula{Expr: "B "}}}
	got := merge(current, imported, testutil.NewSequenceGenerator("n"), testutil.NewDeterministicClock())
	require.Len(t, got, 1)
	assert.Equal(t, "n-1", got[0].ID)
}

func TestWriteError(t *testing.T) {
	inner := errors.New("disk full")
	err := error(&WriteError{Path: "/tmp/formulas.json", Err: inner})
	assert.True(t, IsWriteError(err))
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "write presets /tmp/formulas.json: disk full", err.Error())
	assert.False(t, IsWriteError(inner))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "redis", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}
