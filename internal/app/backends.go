package app

import (
	"context"
	"fmt"

	"github.com/vk/reportbundle/internal/config"
	"github.com/vk/reportbundle/internal/ctxlog"
	"github.com/vk/reportbundle/internal/scoring"
	"github.com/vk/reportbundle/internal/scoring/gemini"
	"github.com/vk/reportbundle/internal/scoring/grpcmodel"
)

// newScorer builds the Scorer from the configured backends, or returns nil
// when scoring is disabled.
func (a *App) newScorer(ctx context.Context) (*scoring.Scorer, error) {
	logger := ctxlog.FromContext(ctx)
	sc := a.config.Scoring
	if !sc.Enabled {
		logger.Debug("Scoring disabled.")
		return nil, nil
	}

	var sidecar *grpcmodel.Client
	dialSidecar := func() (*grpcmodel.Client, error) {
		if sidecar != nil {
			return sidecar, nil
		}
		c, err := grpcmodel.NewClient(sc.GRPC.Address)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		logger.Debug("Scoring sidecar client created.", "address", sc.GRPC.Address)
		sidecar = c
		return c, nil
	}

	embedder := a.embedder
	if embedder == nil {
		switch sc.Embedder {
		case config.BackendGRPC:
			c, err := dialSidecar()
			if err != nil {
				return nil, err
			}
			embedder = c
		case config.BackendGemini:
			client, err := gemini.NewClient(ctx, gemini.ClientConfig{
				APIKey:   sc.Gemini.APIKey,
				Project:  sc.Gemini.Project,
				Location: sc.Gemini.Location,
			})
			if err != nil {
				return nil, err
			}
			embedder = gemini.NewEmbedder(client, sc.Gemini.Model)
			logger.Debug("Gemini embedder created.", "model", sc.Gemini.Model)
		default:
			return nil, fmt.Errorf("%w: unknown embedder %q", scoring.ErrNoModel, sc.Embedder)
		}
	}

	opts := []scoring.Option{scoring.WithTimeout(sc.Timeout)}
	distance := a.distance
	if distance == nil && sc.Distance == config.BackendGRPC {
		c, err := dialSidecar()
		if err != nil {
			return nil, err
		}
		distance = c
	}
	if distance != nil {
		opts = append(opts, scoring.WithDistanceModel(distance))
	}

	return scoring.NewScorer(embedder, opts...)
}
