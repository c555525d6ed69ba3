package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/blendkit/internal/apply"
	"github.com/roach88/blendkit/internal/composite"
	"github.com/roach88/blendkit/internal/document"
	"github.com/roach88/blendkit/internal/testutil"
)

const documentYAML = `width: 8
height: 6
layers:
  - id: "1"
    name: Base
    file: base.png
  - id: "2"
    name: Overlay
    file: fx.png
    left: 2
    top: 1
  - id: "4"
    name: Empty
`

// newDocument writes an 8x6 document with a blue background, a 4x4 red
// overlay at (2,1) and an empty layer with ID 4, so the next layer is 5.
// It returns the manifest path.
func newDocument(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WritePNG(t, filepath.Join(dir, "base.png"), testutil.SolidImage(8, 6, blue))
	testutil.WritePNG(t, filepath.Join(dir, "fx.png"), testutil.SolidImage(4, 4, red))
	path := filepath.Join(dir, "document.yaml")
	require.NoError(t, os.WriteFile(path, []byte(documentYAML), 0o644))
	return path
}

func TestLayersText(t *testing.T) {
	path := newDocument(t)

	cmd := NewLayersCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, path)
	require.NoError(t, err)
	assert.Contains(t, out, "Canvas 8x6, 3 layer(s)")
	assert.Contains(t, out, "Overlay")
	assert.Contains(t, out, "2,1,6,5")
	assert.Contains(t, out, "(empty)")
}

func TestLayersJSON(t *testing.T) {
	path := newDocument(t)

	cmd := NewLayersCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, path)
	require.NoError(t, err)

	var resp struct {
		Data []LayerInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 3)
	assert.Equal(t, LayerInfo{ID: "1", Name: "Base", Bounds: composite.Canvas(8, 6)}, resp.Data[0])
	assert.Equal(t, composite.XYWH(2, 1, 4, 4), resp.Data[1].Bounds)
	assert.True(t, resp.Data[2].Bounds.Empty())
}

func TestLayersMissingDocument(t *testing.T) {
	cmd := NewLayersCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, filepath.Join(t.TempDir(), "document.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")
}

func TestApplyCreatesResultLayer(t *testing.T) {
	isolate(t)
	path := newDocument(t)

	cmd := NewApplyCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, path, "--base", "1", "--blend", "2", "-f", overFormula, "--name", "Merged")
	require.NoError(t, err)

	var resp struct {
		Data apply.Outcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "5", resp.Data.LayerID)
	assert.Equal(t, composite.Canvas(8, 6), resp.Data.Rect)
	assert.Equal(t, overFormula, resp.Data.Formula)

	doc, err := document.Open(path)
	require.NoError(t, err)
	l, err := doc.Layer("5")
	require.NoError(t, err)
	assert.Equal(t, "Merged", l.Name)
	assert.Equal(t, composite.Canvas(8, 6), l.Bounds)

	img := testutil.ReadPNG(t, filepath.Join(filepath.Dir(path), "layer-5.png"))
	assert.Equal(t, blue, img.NRGBAAt(0, 0))
	assert.Equal(t, red, img.NRGBAAt(3, 2))
}

func TestApplyWithPresetAndDefaultName(t *testing.T) {
	isolate(t)
	path := newDocument(t)

	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, path, "--base", "1", "--blend", "2", "--preset", "Screen")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Created layer 5 (8x6 at 0,0)")

	doc, err := document.Open(path)
	require.NoError(t, err)
	l, err := doc.Layer("5")
	require.NoError(t, err)
	assert.Equal(t, apply.DefaultResultName, l.Name)
}

func TestApplyUsesConfiguredOutputFormat(t *testing.T) {
	isolate(t)
	path := newDocument(t)
	cfg := writeConfig(t, "document:\n  output_format: bmp\n")

	cmd := NewApplyCommand(&RootOptions{Format: "text", ConfigPath: cfg})
	_, err := execute(t, cmd, path, "--base", "1", "--blend", "2", "-f", overFormula)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(filepath.Dir(path), "layer-5.bmp"))
}

func TestApplyFailures(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantExit int
		wantCode string
	}{
		{"unknown layer", []string{"--base", "1", "--blend", "9", "-f", overFormula}, ExitCommandError, ErrCodeDocument},
		{"invalid formula", []string{"--base", "1", "--blend", "2", "-f", "[rs]"}, ExitFailure, ErrCodeCompile},
		{"empty layer", []string{"--base", "4", "--blend", "2", "-f", overFormula}, ExitFailure, ErrCodeComposite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			path := newDocument(t)

			cmd := NewApplyCommand(&RootOptions{Format: "json"})
			out, err := execute(t, cmd, append([]string{path}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestApplyBusyDocument(t *testing.T) {
	isolate(t)
	path := newDocument(t)
	require.NoError(t, os.WriteFile(path+".lock", []byte("export (pid 1)"), 0o644))
	cfg := writeConfig(t, "retry:\n  conflict_attempts: 2\n  conflict_backoff: 1ms\n")

	cmd := NewApplyCommand(&RootOptions{Format: "text", ConfigPath: cfg})
	out, err := execute(t, cmd, path, "--base", "1", "--blend", "2", "-f", overFormula)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, document.IsConflict(err))
	assert.Contains(t, out, "Error [E030]: document is busy")
	assert.Contains(t, out, "held by export (pid 1)")
}
