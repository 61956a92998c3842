package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

// maxEmbedBatch is the per-request limit of the batch embedding endpoint.
const maxEmbedBatch = 100

// GeminiEmbedder embeds questions for similarity search over feedback.
type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	taskType  genai.TaskType
	attempts  int
	backoff   time.Duration
}

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string) (*GeminiEmbedder, error) {
	cl, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	return &GeminiEmbedder{
		client:    cl,
		modelName: modelName,
		taskType:  genai.TaskTypeRetrievalQuery,
		attempts:  defaultAttempts,
		backoff:   defaultBackoff,
	}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts embeds texts in batches of at most maxEmbedBatch, preserving order.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = g.taskType

	out := make([][]float32, 0, len(texts))
	for _, chunk := range batches(texts, maxEmbedBatch) {
		batch := em.NewBatch()
		for _, t := range chunk {
			batch.AddContent(genai.Text(t))
		}

		var resp *genai.BatchEmbedContentsResponse
		err := withRetry(ctx, "embed", g.attempts, g.backoff, func(ctx context.Context) error {
			var err error
			resp, err = em.BatchEmbedContents(ctx, batch)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != len(chunk) {
			return nil, fmt.Errorf("gemini batch embed: got %d embeddings for %d texts", len(resp.Embeddings), len(chunk))
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

func batches(texts []string, size int) [][]string {
	var out [][]string
	for len(texts) > size {
		out = append(out, texts[:size])
		texts = texts[size:]
	}
	if len(texts) > 0 {
		out = append(out, texts)
	}
	return out
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
