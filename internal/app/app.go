package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/vk/reportbundle/internal/config"
	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/history"
	"github.com/vk/reportbundle/internal/report"
	"github.com/vk/reportbundle/internal/scoring"
	"github.com/vk/reportbundle/internal/workspace"
)

// ErrHistoryDisabled is returned by Reports when no ledger is configured.
var ErrHistoryDisabled = errors.New("report history is disabled")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	config    *config.Config
	layout    workspace.Layout
	generator *report.Generator
	store     *history.Store
	closers   []func() error

	embedder scoring.ImageTextEmbedder
	distance scoring.DistanceModel
}

// Option configures an App.
type Option func(*App)

// WithEmbedder replaces the configured embedding backend.
func WithEmbedder(e scoring.ImageTextEmbedder) Option {
	return func(a *App) { a.embedder = e }
}

// WithDistanceModel replaces the configured distance backend.
func WithDistanceModel(m scoring.DistanceModel) Option {
	return func(a *App) { a.distance = m }
}

// NewApp is the constructor for the main application. Model clients are
// created once here and shared by every run.
func NewApp(ctx context.Context, outW io.Writer, cfg *config.Config, opts ...Option) (*App, error) {
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:   outW,
		logger: logger,
		config: cfg,
		layout: layoutFromConfig(cfg.Workspace),
	}
	for _, opt := range opts {
		opt(a)
	}

	scorer, err := a.newScorer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	genOpts := []report.GeneratorOption{}
	if scorer != nil {
		genOpts = append(genOpts, report.WithScorer(scorer))
	}

	if cfg.History.Enabled {
		path := a.layout.Resolve(cfg.History.Path)
		store, err := history.NewStore(path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open report history %s: %w", path, err)
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		genOpts = append(genOpts, report.WithRecorder(store))
		logger.Debug("Report history opened.", "path", path)
	}

	a.generator = report.NewGenerator(a.layout, genOpts...)
	logger.Debug("App initialized.", "root", a.layout.Root, "scoring", scorer != nil, "history", a.store != nil)
	return a, nil
}

// Context returns ctx carrying the app logger.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Bundle runs the pipeline once against the existing config file.
func (a *App) Bundle(ctx context.Context) (*report.Result, error) {
	return a.generator.Generate(a.Context(ctx), nil)
}

// Reports returns up to limit recorded runs, newest first.
func (a *App) Reports(ctx context.Context, limit int) ([]history.Report, error) {
	if a.store == nil {
		return nil, ErrHistoryDisabled
	}
	return a.store.List(a.Context(ctx), limit)
}

// Close releases model connections and the history database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func layoutFromConfig(w config.Workspace) workspace.Layout {
	root := w.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return workspace.Layout{
		Root:    root,
		Results: w.Results,
		Config:  w.Config,
		Readme:  w.Readme,
		Grids:   w.Grids,
		Output:  w.Output,
	}
}
