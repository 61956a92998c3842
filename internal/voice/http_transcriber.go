package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/core/stt"
)

// TranscribeResponse is the body of POST /api/transcribe.
type TranscribeResponse struct {
	Success       bool            `json:"success"`
	Transcription *TranscribeText `json:"transcription,omitempty"`
	Error         string          `json:"error,omitempty"`
	Duration      float64         `json:"duration,omitempty"`
}

type TranscribeText struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
}

// HTTPTranscriber sends clips to the server's transcription endpoint.
type HTTPTranscriber struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPTranscriber(baseURL, token string) *HTTPTranscriber {
	return &HTTPTranscriber{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, clip core.AudioClip) (*core.Transcription, error) {
	name := clip.FileName
	if name == "" {
		name = "recording.webm"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	if err := writer.WriteField("duration", strconv.FormatFloat(clip.Duration.Seconds(), 'f', 3, 64)); err != nil {
		return nil, fmt.Errorf("write duration field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/api/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if t.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Token)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: fmt.Errorf("read response: %w", err)}
	}

	var out TranscribeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: fmt.Errorf("transcribe endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	if !out.Success || out.Transcription == nil {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("transcribe endpoint returned %d", resp.StatusCode)
		}
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: errors.New(msg)}
	}
	text := strings.TrimSpace(out.Transcription.Text)
	if text == "" {
		return nil, &core.TranscriptionError{Duration: clip.Duration, Err: stt.ErrNoSpeech}
	}
	return &core.Transcription{Text: text, Duration: clip.Duration}, nil
}

var _ core.Transcriber = (*HTTPTranscriber)(nil)
