// Package report runs the bundle pipeline: validate the working directory,
// score and rewrite the results, write the run settings and archive
// everything.
package report

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vk/reportbundle/internal/archive"
	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/history"
	"github.com/vk/reportbundle/internal/results"
	"github.com/vk/reportbundle/internal/scoring"
	"github.com/vk/reportbundle/internal/workspace"
)

// Recorder persists the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, r history.Report) (history.Report, error)
}

// Result describes a successful run.
type Result struct {
	ReportID string
	Archive  *archive.Result
	Rows     int
	Scores   []scoring.RowScore
}

// Generator runs the pipeline for one working directory. Runs are
// serialized because they share files on disk.
type Generator struct {
	layout   workspace.Layout
	scorer   *scoring.Scorer
	recorder Recorder

	mu sync.Mutex
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithScorer enables scoring. Without a scorer the results CSV is archived
// unchanged.
func WithScorer(s *scoring.Scorer) GeneratorOption {
	return func(g *Generator) { g.scorer = s }
}

// WithRecorder records every run, successful or not.
func WithRecorder(r Recorder) GeneratorOption {
	return func(g *Generator) { g.recorder = r }
}

// NewGenerator creates a Generator for layout.
func NewGenerator(layout workspace.Layout, opts ...GeneratorOption) *Generator {
	g := &Generator{layout: layout}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Layout returns the working directory layout.
func (g *Generator) Layout() workspace.Layout { return g.layout }

// Generate runs the pipeline. With nil settings the existing config file is
// archived as-is and must exist; otherwise settings replace it.
func (g *Generator) Generate(ctx context.Context, settings Settings) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.run(ctx, settings)
}

// GenerateOpen runs the pipeline like Generate and opens the archive before
// a later run can replace it. The caller must close the file.
func (g *Generator) GenerateOpen(ctx context.Context, settings Settings) (*Result, *os.File, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, err := g.run(ctx, settings)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(res.Archive.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	return res, f, nil
}

func (g *Generator) run(ctx context.Context, settings Settings) (*Result, error) {
	id := history.NewID()
	ctx = ctxlog.With(ctx, "report_id", id)
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	res, err := g.generate(ctx, settings)
	if err != nil {
		logger.Error("Report generation failed.", "error", err)
		g.record(ctx, history.Report{ID: id, CreatedAt: started, Status: history.StatusFailed, Error: err.Error()})
		return nil, err
	}
	res.ReportID = id

	rec := history.Report{
		ID:          id,
		CreatedAt:   started,
		Status:      history.StatusSucceeded,
		Rows:        res.Rows,
		ArchivePath: res.Archive.Path,
		ArchiveSize: res.Archive.Size,
		SHA256:      res.Archive.SHA256,
	}
	for _, sc := range res.Scores {
		rec.Scores = append(rec.Scores, history.Score{
			RowID:      sc.RowID,
			RunID:      sc.RunID,
			Similarity: sc.Similarity,
			Distance:   sc.Distance,
			Measured:   sc.Measured,
		})
	}
	g.record(ctx, rec)

	logger.Info("📦 Report created.", "path", res.Archive.Path, "entries", len(res.Archive.Entries), "duration", time.Since(started))
	return res, nil
}

func (g *Generator) generate(ctx context.Context, settings Settings) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	table, err := workspace.Validate(ctx, g.layout, workspace.ValidateOptions{SkipConfig: settings != nil})
	if err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	res := &Result{Rows: len(table.Rows)}

	if g.scorer != nil {
		scores, err := g.scorer.ScoreTable(ctx, g.layout, table, settings)
		if err != nil {
			return nil, fmt.Errorf("score: %w", err)
		}
		if err := results.WriteFileAtomic(g.layout.ResultsPath(), table); err != nil {
			return nil, fmt.Errorf("rewrite results: %w", err)
		}
		res.Scores = scores
		logger.Debug("Results rewritten with scores.", "rows", len(scores))
	} else {
		logger.Debug("Scoring disabled, results left unchanged.")
	}

	if settings != nil {
		if err := WriteSettings(g.layout.ConfigPath(), settings); err != nil {
			return nil, err
		}
	}

	arch, err := archive.Build(ctx, g.layout)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	res.Archive = arch
	return res, nil
}

// record stores r when a recorder is configured. A ledger failure is logged
// and does not fail the run.
func (g *Generator) record(ctx context.Context, r history.Report) {
	if g.recorder == nil {
		return
	}
	if _, err := g.recorder.Record(context.WithoutCancel(ctx), r); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record report history.", "error", err)
	}
}
