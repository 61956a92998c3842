package stt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sairevanth-zz/signalsloop/internal/core"
)

func TestNewWhisperProvider_Defaults(t *testing.T) {
	p := NewWhisperProvider(zerolog.Nop(), &WhisperConfig{APIKey: "k"})

	assert.Equal(t, "whisper-1", p.config.Model)
	assert.Equal(t, "https://api.openai.com/v1", p.config.BaseURL)
	assert.Equal(t, 60*time.Second, p.config.Timeout)
	assert.Equal(t, "whisper-api", p.Name())
}

func TestWhisperProvider_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "clip.webm", hdr.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  what are users saying about pricing?  "}`))
	}))
	defer server.Close()

	p := NewWhisperProvider(zerolog.Nop(), &WhisperConfig{APIKey: "secret", BaseURL: server.URL})
	out, err := p.Transcribe(context.Background(), core.AudioClip{
		Data:     []byte("fake-audio"),
		FileName: "clip.webm",
		Duration: 4 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "what are users saying about pricing?", out.Text)
	assert.Equal(t, 4*time.Second, out.Duration)
}

func TestWhisperProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad audio"}`))
	}))
	defer server.Close()

	p := NewWhisperProvider(zerolog.Nop(), &WhisperConfig{APIKey: "secret", BaseURL: server.URL})
	_, err := p.Transcribe(context.Background(), core.AudioClip{Data: []byte("x"), Duration: 2 * time.Second})

	var terr *core.TranscriptionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 2*time.Second, terr.Duration)
}

func TestWhisperProvider_EmptyClip(t *testing.T) {
	p := NewWhisperProvider(zerolog.Nop(), &WhisperConfig{APIKey: "secret"})
	_, err := p.Transcribe(context.Background(), core.AudioClip{})
	assert.ErrorIs(t, err, ErrEmptyClip)
}

func TestWhisperProvider_MissingKey(t *testing.T) {
	p := NewWhisperProvider(zerolog.Nop(), nil)
	_, err := p.Transcribe(context.Background(), core.AudioClip{Data: []byte("x")})
	assert.Error(t, err)
}

func TestWhisperProvider_SilentClip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer server.Close()

	p := NewWhisperProvider(zerolog.Nop(), &WhisperConfig{APIKey: "secret", BaseURL: server.URL})
	out, err := p.Transcribe(context.Background(), core.AudioClip{Data: []byte("hiss"), Duration: 3 * time.Second})

	assert.Nil(t, out)
	var terr *core.TranscriptionError
	require.True(t, errors.As(err, &terr))
	assert.ErrorIs(t, err, ErrNoSpeech)
	assert.Equal(t, 3*time.Second, terr.Duration)
}
