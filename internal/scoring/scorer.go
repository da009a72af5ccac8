package scoring

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"time"

	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/fsutil"
	"github.com/vk/reportbundle/internal/results"
	"github.com/vk/reportbundle/internal/workspace"
)

// PlaceholderDistance is written when a row has no usable reference image.
const PlaceholderDistance = 0.0

// RowScore is the outcome of scoring one row.
type RowScore struct {
	RowID      string
	RunID      string
	Similarity float64
	Distance   float64
	// Measured is false when Distance is the placeholder.
	Measured bool
}

// Scorer scores result rows with the models it was built with.
type Scorer struct {
	embedder ImageTextEmbedder
	distance DistanceModel
	timeout  time.Duration
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithDistanceModel sets the perceptual distance model. Without one every
// row gets the placeholder distance.
func WithDistanceModel(m DistanceModel) Option {
	return func(s *Scorer) { s.distance = m }
}

// WithTimeout bounds each individual model call.
func WithTimeout(d time.Duration) Option {
	return func(s *Scorer) { s.timeout = d }
}

// NewScorer returns a Scorer backed by embedder. It returns ErrNoModel when
// embedder is nil.
func NewScorer(embedder ImageTextEmbedder, opts ...Option) (*Scorer, error) {
	if embedder == nil {
		return nil, ErrNoModel
	}
	s := &Scorer{embedder: embedder}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunID derives the run identifier for a row id.
func RunID(id string) string {
	return "run_" + id
}

// ScoreTable scores every row of t and writes the score columns into the
// rows, appending the columns to the header if absent. The first row error
// aborts the batch and leaves t partially updated in memory only.
func (s *Scorer) ScoreTable(ctx context.Context, l workspace.Layout, t *results.Table, settings map[string]any) ([]RowScore, error) {
	logger := ctxlog.FromContext(ctx)
	added := t.EnsureColumns(results.ScoreColumns...)
	logger.Debug("Scoring rows.", "rows", len(t.Rows), "columns_added", added)

	scores := make([]RowScore, 0, len(t.Rows))
	for _, row := range t.Rows {
		score, err := s.ScoreRow(ctx, l, row, settings)
		if err != nil {
			return nil, err
		}
		row[results.ColCLIPScore] = results.FormatFloat(score.Similarity)
		row[results.ColLPIPSScore] = results.FormatFloat(score.Distance)
		row[results.ColRunID] = score.RunID
		scores = append(scores, score)
	}
	return scores, nil
}

// ScoreRow computes the scores of a single row without modifying it.
func (s *Scorer) ScoreRow(ctx context.Context, l workspace.Layout, row results.Row, settings map[string]any) (RowScore, error) {
	id := row[results.ColID]
	score := RowScore{RowID: id, RunID: RunID(id), Distance: PlaceholderDistance}
	logger := ctxlog.FromContext(ctx).With("row", id)

	img, err := loadRowImage(l, id, row[results.ColImagePath])
	if err != nil {
		return RowScore{}, err
	}

	sim, err := s.similarity(ctx, img, promptFor(row, score.RunID, settings))
	if err != nil {
		return RowScore{}, fmt.Errorf("row %s: similarity: %w", id, err)
	}
	score.Similarity = sim

	refPath := row[results.ColReference]
	if refPath == "" || s.distance == nil {
		logger.Debug("Using placeholder distance.", "reference", refPath)
		return score, nil
	}
	ok, err := fsutil.Exists(l.Resolve(refPath))
	if err != nil {
		return RowScore{}, fmt.Errorf("row %s: stat reference: %w", id, err)
	}
	if !ok {
		logger.Debug("Reference image missing, using placeholder distance.", "reference", refPath)
		return score, nil
	}

	ref, err := LoadImage(l.Resolve(refPath))
	if err != nil {
		return RowScore{}, fmt.Errorf("row %s: %w", id, err)
	}
	dist, err := s.perceptualDistance(ctx, img, ref)
	if err != nil {
		return RowScore{}, fmt.Errorf("row %s: distance: %w", id, err)
	}
	score.Distance = dist
	score.Measured = true
	return score, nil
}

func (s *Scorer) similarity(ctx context.Context, img image.Image, prompt string) (float64, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	imgEmb, err := s.embedder.EmbedImage(callCtx, img)
	if err != nil {
		return 0, fmt.Errorf("embed image: %w", err)
	}

	callCtx, cancel = s.callContext(ctx)
	defer cancel()
	textEmb, err := s.embedder.EmbedText(callCtx, prompt)
	if err != nil {
		return 0, fmt.Errorf("embed text: %w", err)
	}
	if len(imgEmb) != len(textEmb) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(imgEmb), len(textEmb))
	}
	return Round6(CosineSimilarity(imgEmb, textEmb)), nil
}

// perceptualDistance resizes ref to the bounds of img and compares them.
func (s *Scorer) perceptualDistance(ctx context.Context, img, ref image.Image) (float64, error) {
	resized := Resize(ref, img.Bounds().Size())
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	d, err := s.distance.Distance(callCtx, ToTensor(img), ToTensor(resized))
	if err != nil {
		return 0, err
	}
	return Round6(d), nil
}

func (s *Scorer) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func loadRowImage(l workspace.Layout, id, path string) (image.Image, error) {
	if path == "" {
		return nil, &workspace.MissingImageError{RowID: id, Path: path}
	}
	img, err := LoadImage(l.Resolve(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &workspace.MissingImageError{RowID: id, Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", id, err)
	}
	return img, nil
}

// promptFor returns the row's prompt, falling back to the "prompt" entry of
// the run's settings.
func promptFor(row results.Row, runID string, settings map[string]any) string {
	if p := row[results.ColPrompt]; p != "" {
		return p
	}
	run, ok := settings[runID].(map[string]any)
	if !ok {
		return ""
	}
	p, _ := run["prompt"].(string)
	return p
}
