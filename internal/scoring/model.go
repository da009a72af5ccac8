// Package scoring computes per-row similarity scores for generated images:
// an image-text similarity against the prompt and a perceptual distance
// against an optional reference image. The models themselves live behind
// the ImageTextEmbedder and DistanceModel interfaces.
package scoring

import (
	"context"
	"errors"
	"image"
)

// ErrNoModel is returned when scoring is requested without a model backend.
var ErrNoModel = errors.New("scoring: no model configured")

// ImageTextEmbedder maps images and text into a shared embedding space.
type ImageTextEmbedder interface {
	EmbedImage(ctx context.Context, img image.Image) ([]float64, error)
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// DistanceModel returns a scalar perceptual distance between two image
// tensors of equal shape. Lower is more similar.
type DistanceModel interface {
	Distance(ctx context.Context, a, b Tensor) (float64, error)
}

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Len is the number of elements implied by Shape.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}
