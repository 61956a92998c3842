package core

import (
	"context"
	"time"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	ModelName() string
}

// AudioClip is a recorded clip handed to the transcription boundary.
type AudioClip struct {
	Data     []byte
	MimeType string
	FileName string
	Duration time.Duration
}

// Transcription is normalized speech-to-text output.
type Transcription struct {
	Text     string        `json:"text"`
	Duration time.Duration `json:"-"`
}

// Transcriber converts a clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip AudioClip) (*Transcription, error)
}
