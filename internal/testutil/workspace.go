package testutil

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// DefaultCSV is a one-row results file referencing img.png.
const DefaultCSV = "id,image_path,score,prompt\n1,img.png,0.9,a cat\n"

// Workspace is a temporary working directory.
type Workspace struct {
	Root string
}

// NewWorkspace creates a complete working directory: results.csv with csv,
// config.json, README.txt, a grid image and img.png.
func NewWorkspace(t *testing.T, csv string) *Workspace {
	t.Helper()
	w := &Workspace{Root: t.TempDir()}
	w.WriteFile(t, "results.csv", csv)
	w.WriteFile(t, "config.json", "{}\n")
	w.WriteFile(t, "README.txt", "Evaluation report.\n")
	w.WritePNG(t, "grids/grid_1.png", 4, 4)
	w.WritePNG(t, "img.png", 4, 4)
	return w
}

// Path returns name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Root, filepath.FromSlash(name))
}

// WriteFile writes content to name, creating parent directories.
func (w *Workspace) WriteFile(t *testing.T, name, content string) {
	t.Helper()
	path := w.Path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// WritePNG writes a w×h gradient PNG to name.
func (w *Workspace) WritePNG(t *testing.T, name string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 40), G: uint8(y * 40), B: 128, A: 255})
		}
	}
	path := w.Path(name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// StaticEmbedder returns the same embeddings for every input.
type StaticEmbedder struct {
	Image []float64
	Text  []float64
}

func (s StaticEmbedder) EmbedImage(context.Context, image.Image) ([]float64, error) {
	return s.Image, nil
}

func (s StaticEmbedder) EmbedText(context.Context, string) ([]float64, error) {
	return s.Text, nil
}
