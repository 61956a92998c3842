package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/core/stt"
	"github.com/sairevanth-zz/signalsloop/internal/metrics"
	"github.com/sairevanth-zz/signalsloop/internal/voice"
)

type TranscribeHandler struct {
	transcriber core.Transcriber
	maxBytes    int64
	maxDuration time.Duration
}

func NewTranscribeHandler(transcriber core.Transcriber, maxBytes int64, maxDuration time.Duration) *TranscribeHandler {
	return &TranscribeHandler{transcriber: transcriber, maxBytes: maxBytes, maxDuration: maxDuration}
}

// Transcribe accepts a multipart "audio" file plus an optional "duration" in
// seconds and returns the normalized text. Failures keep the clip duration.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, http.StatusRequestEntityTooLarge, 0, fmt.Errorf("audio clip exceeds %d bytes", h.maxBytes))
			return
		}
		h.fail(w, http.StatusBadRequest, 0, errors.New("invalid multipart body"))
		return
	}

	var duration time.Duration
	if v := r.FormValue("duration"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			h.fail(w, http.StatusBadRequest, 0, fmt.Errorf("invalid duration %q", v))
			return
		}
		duration = time.Duration(secs * float64(time.Second))
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		h.fail(w, http.StatusBadRequest, duration, errors.New("missing 'audio' file in request"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, http.StatusBadRequest, duration, errors.New("failed to read audio file"))
		return
	}
	switch {
	case len(data) == 0:
		h.fail(w, http.StatusBadRequest, duration, &core.TranscriptionError{Duration: duration, Err: stt.ErrEmptyClip})
		return
	case int64(len(data)) > h.maxBytes:
		h.fail(w, http.StatusRequestEntityTooLarge, duration, &core.TranscriptionError{Duration: duration, Err: fmt.Errorf("audio clip exceeds %d bytes", h.maxBytes)})
		return
	case h.maxDuration > 0 && duration > h.maxDuration:
		h.fail(w, http.StatusBadRequest, duration, &core.TranscriptionError{Duration: duration, Err: fmt.Errorf("recording exceeds %s", h.maxDuration)})
		return
	}

	out, err := h.transcriber.Transcribe(r.Context(), core.AudioClip{
		Data:     data,
		MimeType: header.Header.Get("Content-Type"),
		FileName: header.Filename,
		Duration: duration,
	})
	metrics.Transcriptions.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Dur("duration", duration).Msg("transcription failed")
		status := http.StatusBadGateway
		if errors.Is(err, stt.ErrNoSpeech) {
			status = http.StatusUnprocessableEntity
		}
		h.fail(w, status, duration, err)
		return
	}

	writeJSON(w, http.StatusOK, voice.TranscribeResponse{
		Success:       true,
		Transcription: &voice.TranscribeText{Text: out.Text, Duration: duration.Seconds()},
	})
}

func (h *TranscribeHandler) fail(w http.ResponseWriter, status int, duration time.Duration, err error) {
	writeJSON(w, status, voice.TranscribeResponse{Success: false, Error: err.Error(), Duration: duration.Seconds()})
}
