package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

var (
	ErrEmptyClip = errors.New("audio clip is empty")
	// ErrNoSpeech means the clip was accepted but nothing intelligible was heard.
	ErrNoSpeech = errors.New("no speech detected in the recording")
)

// WhisperConfig holds Whisper API configuration
type WhisperConfig struct {
	APIKey   string
	Model    string // "whisper-1"
	Language string // optional hint, empty means auto-detect
	BaseURL  string
	Timeout  time.Duration
}

func DefaultWhisperConfig() *WhisperConfig {
	return &WhisperConfig{
		Model:   openai.Whisper1,
		BaseURL: "https://api.openai.com/v1",
		Timeout: 60 * time.Second,
	}
}

// WhisperProvider transcribes clips with OpenAI's audio/transcriptions endpoint.
type WhisperProvider struct {
	client *openai.Client
	logger zerolog.Logger
	config *WhisperConfig
}

func NewWhisperProvider(logger zerolog.Logger, config *WhisperConfig) *WhisperProvider {
	def := DefaultWhisperConfig()
	if config == nil {
		config = def
	}
	if config.Model == "" {
		config.Model = def.Model
	}
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}

	clientCfg := openai.DefaultConfig(config.APIKey)
	clientCfg.BaseURL = config.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &WhisperProvider{
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.With().Str("provider", "whisper-api").Logger(),
		config: config,
	}
}

func (p *WhisperProvider) Name() string { return "whisper-api" }

// Transcribe uploads the clip and returns the trimmed text. A clip that
// yields no text fails with ErrNoSpeech so the caller can ask for a retake.
func (p *WhisperProvider) Transcribe(ctx context.Context, clip core.AudioClip) (*core.Transcription, error) {
	if p.config.APIKey == "" {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: fmt.Errorf("OpenAI API key not configured")}
	}
	if len(clip.Data) == 0 {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: ErrEmptyClip}
	}
	start := time.Now()

	name := clip.FileName
	if name == "" {
		name = "audio.webm"
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.config.Model,
		FilePath: name,
		Reader:   bytes.NewReader(clip.Data),
		Language: p.config.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			p.logger.Error().Int("status", apiErr.HTTPStatusCode).Str("message", apiErr.Message).Msg("whisper API error")
		}
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: err}
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: ErrNoSpeech}
	}

	p.logger.Debug().Dur("took", time.Since(start)).Dur("clip", clip.Duration).Msg("transcription complete")

	return &core.Transcription{
		Text:     text,
		Duration: clip.Duration,
	}, nil
}

var _ core.Transcriber = (*WhisperProvider)(nil)
