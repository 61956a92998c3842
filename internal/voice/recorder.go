// Package voice captures bounded voice questions and hands them to a transcriber.
package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sairevanth-zz/signalsloop/internal/core"
	"github.com/sairevanth-zz/signalsloop/internal/core/stt"
)

// warnFraction of the ceiling left triggers the one-time warning.
const warnFraction = 0.1

var ErrNotRecording = errors.New("no recording in progress")

// State of a Recorder.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
)

// Capture is the host's microphone. Audio transport itself is out of scope;
// the recorder only decides when capture starts and ends.
type Capture interface {
	Begin(ctx context.Context) error
	// End stops capturing and returns the clip.
	End() (data []byte, mimeType string, err error)
	// Discard stops capturing and drops the clip.
	Discard()
}

// Result is what the recorder reports after processing. Duration is kept even
// when Err is set.
type Result struct {
	Text     string
	Duration time.Duration
	Err      error
}

// Callbacks for UI synchronization.
type Callbacks struct {
	// OnStateChange runs with the recorder locked and must not call back into it.
	OnStateChange func(old, new State)
	// OnWarning fires once per recording when little time remains.
	OnWarning func(remaining time.Duration)
	// OnResult receives every finished recording, including auto-stopped ones.
	OnResult func(Result)
}

type timer interface {
	Stop() bool
}

// Recorder is a single-control voice input. Only one recording may be in
// flight; Start while recording or processing fails with core.ErrRecorderBusy.
type Recorder struct {
	mu sync.Mutex

	capture     Capture
	transcriber core.Transcriber
	maxDuration time.Duration
	callbacks   Callbacks
	logger      zerolog.Logger

	now       func() time.Time
	afterFunc func(time.Duration, func()) timer

	state     State
	session   uint64
	startedAt time.Time
	warned    bool
	timers    []timer
	ctx       context.Context
}

func NewRecorder(capture Capture, transcriber core.Transcriber, maxDuration time.Duration, callbacks Callbacks, logger zerolog.Logger) *Recorder {
	return &Recorder{
		capture:     capture,
		transcriber: transcriber,
		maxDuration: maxDuration,
		callbacks:   callbacks,
		logger:      logger.With().Str("component", "voice-recorder").Logger(),
		now:         time.Now,
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		state: StateIdle,
	}
}

func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Remaining is the time left before auto-stop, zero when not recording.
func (r *Recorder) Remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return 0
	}
	left := r.maxDuration - r.now().Sub(r.startedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Start begins a recording. ctx bounds the eventual transcription.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return core.ErrRecorderBusy
	}
	if r.maxDuration <= 0 {
		return fmt.Errorf("max recording duration must be positive")
	}
	if err := r.capture.Begin(ctx); err != nil {
		return fmt.Errorf("begin capture: %w", err)
	}

	r.session++
	id := r.session
	r.ctx = ctx
	r.startedAt = r.now()
	r.warned = false
	r.timers = []timer{
		r.afterFunc(r.maxDuration-time.Duration(float64(r.maxDuration)*warnFraction), func() { r.warn(id) }),
		r.afterFunc(r.maxDuration, func() { r.autoStop(id) }),
	}
	r.setState(StateRecording)
	r.logger.Debug().Dur("max", r.maxDuration).Msg("recording started")
	return nil
}

// Stop ends the recording and transcribes it. The returned Result is also
// passed to OnResult.
func (r *Recorder) Stop() (Result, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return Result{}, ErrNotRecording
	}
	return r.finish()
}

// Cancel discards an in-progress recording without transcribing it.
func (r *Recorder) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRecording {
		return false
	}
	r.stopTimers()
	r.capture.Discard()
	r.setState(StateIdle)
	r.logger.Debug().Msg("recording cancelled")
	return true
}

func (r *Recorder) warn(id uint64) {
	r.mu.Lock()
	if r.state != StateRecording || r.session != id || r.warned {
		r.mu.Unlock()
		return
	}
	r.warned = true
	remaining := r.maxDuration - r.now().Sub(r.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	cb := r.callbacks.OnWarning
	r.mu.Unlock()

	if cb != nil {
		cb(remaining)
	}
}

func (r *Recorder) autoStop(id uint64) {
	r.mu.Lock()
	if r.state != StateRecording || r.session != id {
		r.mu.Unlock()
		return
	}
	r.logger.Info().Dur("max", r.maxDuration).Msg("recording reached its limit")
	_, _ = r.finish()
}

// finish must be called with r.mu held; it releases it.
func (r *Recorder) finish() (Result, error) {
	r.stopTimers()
	duration := r.now().Sub(r.startedAt)
	if duration > r.maxDuration {
		duration = r.maxDuration
	}
	ctx := r.ctx
	r.setState(StateProcessing)
	r.mu.Unlock()

	res, err := r.transcribe(ctx, duration)

	r.mu.Lock()
	r.setState(StateIdle)
	cb := r.callbacks.OnResult
	r.mu.Unlock()

	if cb != nil {
		cb(res)
	}
	return res, err
}

func (r *Recorder) transcribe(ctx context.Context, duration time.Duration) (Result, error) {
	data, mimeType, err := r.capture.End()
	if err == nil && len(data) == 0 {
		err = errors.New("recording is empty")
	}
	if err != nil {
		terr := &core.TranscriptionError{Duration: duration, Err: err}
		return Result{Duration: duration, Err: terr}, terr
	}

	tr, err := r.transcriber.Transcribe(ctx, core.AudioClip{Data: data, MimeType: mimeType, Duration: duration})
	if err != nil {
		var terr *core.TranscriptionError
		if !errors.As(err, &terr) {
			terr = &core.TranscriptionError{Duration: duration, Err: err}
		}
		r.logger.Warn().Err(err).Dur("duration", duration).Msg("transcription failed")
		return Result{Duration: duration, Err: terr}, terr
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		terr := &core.TranscriptionError{Duration: duration, Err: stt.ErrNoSpeech}
		return Result{Duration: duration, Err: terr}, terr
	}
	return Result{Text: text, Duration: duration}, nil
}

func (r *Recorder) stopTimers() {
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
}

func (r *Recorder) setState(next State) {
	old := r.state
	r.state = next
	if r.callbacks.OnStateChange != nil && old != next {
		r.callbacks.OnStateChange(old, next)
	}
}
