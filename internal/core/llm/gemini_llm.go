package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
)

// ErrBlocked is returned when the model stops for safety reasons.
var ErrBlocked = errors.New("response blocked by model safety filters")

// answerTemperature keeps routing verdicts and answers close to the evidence.
const answerTemperature = 0.2

type GeminiLLM struct {
	client    *genai.Client
	modelName string
	attempts  int
	backoff   time.Duration
}

func newClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	return genai.NewClient(ctx, option.WithAPIKey(apiKey))
}

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	cl, err := newClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName, attempts: defaultAttempts, backoff: defaultBackoff}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiLLM) ModelName() string { return g.modelName }

// Generate runs one system+user prompt against the model. Rate limits and
// server errors are retried; a safety stop returns ErrBlocked.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(answerTemperature)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	var resp *genai.GenerateContentResponse
	err := withRetry(ctx, "generate", g.attempts, g.backoff, func(ctx context.Context) error {
		var err error
		resp, err = m.GenerateContent(ctx, genai.Text(userPrompt))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if u := resp.UsageMetadata; u != nil {
		metrics.ModelTokens.WithLabelValues(g.modelName, "prompt").Add(float64(u.PromptTokenCount))
		metrics.ModelTokens.WithLabelValues(g.modelName, "completion").Add(float64(u.CandidatesTokenCount))
	}
	return candidateText(resp)
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini generate: empty response")
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return "", ErrBlocked
	}
	if c.Content == nil {
		return "", errors.New("gemini generate: empty response")
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ core.LLMProvider = (*GeminiLLM)(nil)
