package report

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/vk/reportbundle/internal/history"
	"github.com/vk/reportbundle/internal/results"
	"github.com/vk/reportbundle/internal/scoring"
	"github.com/vk/reportbundle/internal/workspace"
)

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedImage(context.Context, image.Image) ([]float64, error) {
	return []float64{1, 0, 1}, nil
}

func (fakeEmbedder) EmbedText(context.Context, string) ([]float64, error) {
	return []float64{1, 1, 0}, nil
}

type memRecorder struct {
	reports []history.Report
}

func (m *memRecorder) Record(_ context.Context, r history.Report) (history.Report, error) {
	m.reports = append(m.reports, r)
	return r, nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// newWorkspace builds a one-row working directory without a config file.
func newWorkspace(t *testing.T) workspace.Layout {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "results.csv"), []byte("id,image_path,score,prompt\n1,img.png,0.9,a cat\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.txt"), []byte("readme\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "grids"), 0o755))
	writePNG(t, filepath.Join(root, "grids", "grid.png"))
	writePNG(t, filepath.Join(root, "img.png"))
	return workspace.DefaultLayout(root)
}

func TestGenerate_EndToEnd(t *testing.T) {
	// --- Arrange ---
	l := newWorkspace(t)
	scorer, err := scoring.NewScorer(fakeEmbedder{})
	require.NoError(t, err)
	rec := &memRecorder{}
	g := NewGenerator(l, WithScorer(scorer), WithRecorder(rec))

	// --- Act ---
	res, err := g.Generate(context.Background(), Settings{"run_1": map[string]any{"seed": 42.0}})

	// --- Assert ---
	require.NoError(t, err)

	zr, err := zip.OpenReader(l.OutputPath())
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"README.txt", "config.json", "grids/grid.png", "results.csv"}, names); diff != "" {
		t.Errorf("Archive entries mismatch (-want +got):\n%s", diff)
	}

	table, err := results.ReadFile(l.ResultsPath())
	require.NoError(t, err)
	wantHeader := []string{"id", "image_path", "score", "prompt", "clip_score", "lpips_score", "run_id"}
	if diff := cmp.Diff(wantHeader, table.Header); diff != "" {
		t.Errorf("Header mismatch (-want +got):\n%s", diff)
	}
	row := table.Rows[0]
	require.Equal(t, "run_1", row["run_id"])
	require.Equal(t, "0.0", row["lpips_score"])
	clip, err := strconv.ParseFloat(row["clip_score"], 64)
	require.NoError(t, err)
	require.Equal(t, 0.5, clip)

	config, err := os.ReadFile(l.ConfigPath())
	require.NoError(t, err)
	require.Equal(t, "{\n    \"run_1\": {\n        \"seed\": 42\n    }\n}\n", string(config))

	require.Len(t, rec.reports, 1)
	require.Equal(t, history.StatusSucceeded, rec.reports[0].Status)
	require.Equal(t, res.ReportID, rec.reports[0].ID)
	require.Equal(t, res.Archive.SHA256, rec.reports[0].SHA256)
	require.Len(t, rec.reports[0].Scores, 1)
}

func TestGenerate_WithoutScoringLeavesCSV(t *testing.T) {
	l := newWorkspace(t)
	before, err := os.ReadFile(l.ResultsPath())
	require.NoError(t, err)

	_, err = NewGenerator(l).Generate(context.Background(), Settings{})

	require.NoError(t, err)
	after, err := os.ReadFile(l.ResultsPath())
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestGenerate_NilSettingsRequiresConfig(t *testing.T) {
	l := newWorkspace(t)

	_, err := NewGenerator(l).Generate(context.Background(), nil)

	var missing *workspace.MissingFileError
	require.True(t, errors.As(err, &missing), "expected MissingFileError, got %v", err)
	require.Equal(t, "config.json", missing.Name)
}

func TestGenerate_MissingImageWritesNothing(t *testing.T) {
	l := newWorkspace(t)
	require.NoError(t, os.Remove(filepath.Join(l.Root, "img.png")))
	rec := &memRecorder{}

	_, err := NewGenerator(l, WithRecorder(rec)).Generate(context.Background(), Settings{})

	var missing *workspace.MissingImageError
	require.True(t, errors.As(err, &missing), "expected MissingImageError, got %v", err)
	_, statErr := os.Stat(l.OutputPath())
	require.True(t, os.IsNotExist(statErr), "archive must not be written")
	_, statErr = os.Stat(l.ConfigPath())
	require.True(t, os.IsNotExist(statErr), "config must not be written")
	require.Len(t, rec.reports, 1)
	require.Equal(t, history.StatusFailed, rec.reports[0].Status)
	require.Contains(t, rec.reports[0].Error, "img.png")
}

func TestGenerate_DuplicateColumnWritesNothing(t *testing.T) {
	l := newWorkspace(t)
	csv := "id,image_path,score,note,note\n1,img.png,0.9,first,second\n"
	require.NoError(t, os.WriteFile(l.ResultsPath(), []byte(csv), 0o644))
	scorer, err := scoring.NewScorer(fakeEmbedder{})
	require.NoError(t, err)

	_, err = NewGenerator(l, WithScorer(scorer)).Generate(context.Background(), Settings{})

	var dup *results.DuplicateColumnError
	require.ErrorAs(t, err, &dup)
	got, err := os.ReadFile(l.ResultsPath())
	require.NoError(t, err)
	require.Equal(t, csv, string(got))
	_, statErr := os.Stat(l.OutputPath())
	require.True(t, os.IsNotExist(statErr), "archive must not be written")
}

func TestGenerateOpen_HandleSurvivesLaterRun(t *testing.T) {
	// --- Arrange ---
	l := newWorkspace(t)
	g := NewGenerator(l)
	ctx := context.Background()

	// --- Act ---
	first, f, err := g.GenerateOpen(ctx, Settings{"run_1": map[string]any{"seed": 1.0}})
	require.NoError(t, err)
	defer f.Close()
	second, err := g.Generate(ctx, Settings{"run_1": map[string]any{"seed": 2.0, "sampler": "euler"}})
	require.NoError(t, err)

	// --- Assert ---
	h := sha256.New()
	n, err := io.Copy(h, f)
	require.NoError(t, err)
	require.Equal(t, first.Archive.Size, n)
	require.Equal(t, first.Archive.SHA256, hex.EncodeToString(h.Sum(nil)))
	require.NotEqual(t, first.Archive.SHA256, second.Archive.SHA256)
}
