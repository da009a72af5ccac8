// Package gemini embeds images and text with Google's multimodal embedding
// models through google.golang.org/genai.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"google.golang.org/genai"

	"github.com/vk/reportbundle/internal/scoring"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "multimodalembedding@001"

// ClientConfig selects the genai backend. A non-empty Project selects
// Vertex AI; otherwise APIKey is used against the Gemini API.
type ClientConfig struct {
	APIKey   string
	Project  string
	Location string
}

// NewClient builds a genai client for cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*genai.Client, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// contentEmbedder is the subset of *genai.Models used here.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder implements scoring.ImageTextEmbedder on a genai model.
type Embedder struct {
	models    contentEmbedder
	modelName string
}

// NewEmbedder creates an Embedder using client's models service.
func NewEmbedder(client *genai.Client, modelName string) *Embedder {
	return newEmbedder(client.Models, modelName)
}

func newEmbedder(models contentEmbedder, modelName string) *Embedder {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Embedder{models: models, modelName: modelName}
}

// EmbedImage embeds img, sent inline as PNG.
func (e *Embedder) EmbedImage(ctx context.Context, img image.Image) ([]float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return e.embed(ctx, genai.NewPartFromBytes(buf.Bytes(), "image/png"))
}

// EmbedText embeds text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return e.embed(ctx, genai.NewPartFromText(text))
}

func (e *Embedder) embed(ctx context.Context, part *genai.Part) ([]float64, error) {
	contents := []*genai.Content{{Parts: []*genai.Part{part}}}
	result, err := e.models.EmbedContent(ctx, e.modelName, contents, &genai.EmbedContentConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	values := result.Embeddings[0].Values
	if len(values) == 0 {
		return nil, fmt.Errorf("empty embedding vector")
	}

	embedding := make([]float64, len(values))
	for i, v := range values {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

var _ scoring.ImageTextEmbedder = (*Embedder)(nil)
