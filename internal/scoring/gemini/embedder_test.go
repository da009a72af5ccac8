package gemini

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type mockModels struct {
	resp     *genai.EmbedContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (m *mockModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	m.model = model
	m.contents = contents
	return m.resp, m.err
}

func TestEmbedder(t *testing.T) {
	ok := &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.5, -1}}}}

	tests := []struct {
		name    string
		resp    *genai.EmbedContentResponse
		err     error
		image   bool
		want    []float64
		wantErr bool
	}{
		{name: "text", resp: ok, want: []float64{0.5, -1}},
		{name: "image", resp: ok, image: true, want: []float64{0.5, -1}},
		{name: "api error", err: errors.New("quota"), wantErr: true},
		{name: "no embeddings", resp: &genai.EmbedContentResponse{}, wantErr: true},
		{name: "empty vector", resp: &genai.EmbedContentResponse{Embeddings: []*genai.ContentEmbedding{{}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockModels{resp: tt.resp, err: tt.err}
			e := newEmbedder(m, "")

			var got []float64
			var err error
			if tt.image {
				got, err = e.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
			} else {
				got, err = e.EmbedText(context.Background(), "a cat")
			}

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, DefaultModel, m.model)
			require.Len(t, m.contents, 1)
			part := m.contents[0].Parts[0]
			if tt.image {
				require.Equal(t, "image/png", part.InlineData.MIMEType)
			} else {
				require.Equal(t, "a cat", part.Text)
			}
		})
	}
}
