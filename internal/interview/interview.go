// Package interview is the control surface a host uses to run realtime voice
// interviews: start and stop sessions and observe their state.
package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/capture"
	"github.com/lexiqai/interview-client/internal/observability"
	"github.com/lexiqai/interview-client/internal/playback"
	"github.com/lexiqai/interview-client/internal/realtime"
	"github.com/lexiqai/interview-client/internal/resilience"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("interview client is closed")

// Options configures an Interview. Nothing is read from the environment.
type Options struct {
	Endpoint string

	// Input and output are independent; each session opens its own stream
	// on Device and its own output on Speaker.
	Device  capture.Device
	Speaker playback.Speaker

	SampleRate int // defaults to audio.SampleRate
	FrameSize  int // defaults to audio.DefaultFrameSize

	Retry            *resilience.RetryConfig
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Logger is the parent of every session logger; nil uses the global logger
	Logger *zerolog.Logger

	// OnChange is called after every state, transcript or error change of the
	// current session. It may be called from several goroutines and may call
	// back into Stop, Close or Start.
	OnChange func(Snapshot)
}

// Snapshot is a consistent-enough view of the observable state
type Snapshot struct {
	State         realtime.State       `json:"state"`
	Connected     bool                 `json:"connected"`
	SessionActive bool                 `json:"session_active"`
	SessionID     string               `json:"session_id,omitempty"`
	Transcript    []realtime.Utterance `json:"transcript"`
	Err           string               `json:"error,omitempty"`
}

// Interview runs one session at a time. The transcript outlives sessions and
// is only cleared by Reset.
type Interview struct {
	opts       Options
	transcript *realtime.Transcript

	mu         sync.Mutex
	current    *realtime.Transport
	sessionID  string
	generation uint64
	closed     bool

	closeOnce sync.Once
}

// New creates an idle Interview
func New(opts Options) *Interview {
	if opts.SampleRate <= 0 {
		opts.SampleRate = audio.SampleRate
	}
	if opts.FrameSize <= 0 {
		opts.FrameSize = audio.DefaultFrameSize
	}
	return &Interview{
		opts:       opts,
		transcript: realtime.NewTranscript(),
	}
}

// Start stops any previous session and connects a new one. It returns once
// the connection is open and start_session has been sent, or the dial failed.
func (iv *Interview) Start(ctx context.Context, cfg realtime.SessionConfig) error {
	if cfg.SessionID == "" {
		cfg.SessionID = realtime.FallbackSessionID(time.Now())
	}

	iv.mu.Lock()
	if iv.closed {
		iv.mu.Unlock()
		return ErrClosed
	}
	previous := iv.current
	iv.generation++
	generation := iv.generation

	var base zerolog.Logger
	if iv.opts.Logger != nil {
		base = iv.opts.Logger.With().Str("correlation_id", observability.NewCorrelationID()).Logger()
	} else {
		base = observability.WithCorrelationID(observability.NewCorrelationID())
	}
	logger := base.With().
		Str("session_id", cfg.SessionID).
		Uint64("generation", generation).
		Logger()
	metrics := observability.NewSessionMetrics(cfg.SessionID)
	queue := playback.NewQueue(iv.opts.Speaker, iv.opts.SampleRate, logger, metrics)

	transport := realtime.NewTransport(realtime.Options{
		Endpoint: iv.opts.Endpoint,
		Session:  cfg,
		NewCapture: func(sink capture.Sink) realtime.Capture {
			return capture.NewPipeline(iv.opts.Device, sink, iv.opts.SampleRate, iv.opts.FrameSize, logger, metrics)
		},
		Playback:         queue,
		Transcript:       iv.transcript,
		Retry:            iv.opts.Retry,
		HandshakeTimeout: iv.opts.HandshakeTimeout,
		WriteTimeout:     iv.opts.WriteTimeout,
		Generation:       generation,
		OnChange:         iv.changed,
		Logger:           logger,
		Metrics:          metrics,
	})
	iv.current = transport
	iv.sessionID = cfg.SessionID
	iv.mu.Unlock()

	if previous != nil {
		logger.Info().Uint64("previous_generation", previous.Generation()).Msg("Superseding previous session")
		previous.Stop()
	}
	iv.changed(generation)

	return transport.Connect(ctx)
}

// Stop ends the current session. Safe to call at any time, any number of times.
func (iv *Interview) Stop() {
	iv.mu.Lock()
	transport := iv.current
	iv.mu.Unlock()

	if transport != nil {
		transport.Stop()
	}
}

// Close stops the current session exactly once and rejects later Starts
func (iv *Interview) Close() error {
	iv.closeOnce.Do(func() {
		iv.mu.Lock()
		iv.closed = true
		iv.mu.Unlock()
		iv.Stop()
	})
	return nil
}

// Reset clears the transcript
func (iv *Interview) Reset() {
	iv.transcript.Reset()

	iv.mu.Lock()
	generation := iv.generation
	iv.mu.Unlock()
	iv.changed(generation)
}

func (iv *Interview) transport() *realtime.Transport {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.current
}

// State returns the connection state of the current session
func (iv *Interview) State() realtime.State {
	if t := iv.transport(); t != nil {
		return t.State()
	}
	return realtime.StateDisconnected
}

// IsConnected reports whether the current session's socket is open. It stays
// true after a server error until the connection closes.
func (iv *Interview) IsConnected() bool {
	if t := iv.transport(); t != nil {
		return t.IsOpen()
	}
	return false
}

// IsSessionActive reports whether the server has started the interview
func (iv *Interview) IsSessionActive() bool {
	if t := iv.transport(); t != nil {
		return t.SessionActive()
	}
	return false
}

// Transcript returns a copy of the transcript
func (iv *Interview) Transcript() []realtime.Utterance {
	return iv.transcript.Snapshot()
}

// Err returns the last error of the current session, or ""
func (iv *Interview) Err() string {
	if t := iv.transport(); t != nil {
		return t.Err()
	}
	return ""
}

// Snapshot collects every observable
func (iv *Interview) Snapshot() Snapshot {
	iv.mu.Lock()
	t := iv.current
	sessionID := iv.sessionID
	iv.mu.Unlock()

	snap := Snapshot{
		State:      realtime.StateDisconnected,
		SessionID:  sessionID,
		Transcript: iv.transcript.Snapshot(),
	}
	if t != nil {
		snap.State = t.State()
		snap.Connected = t.IsOpen()
		snap.SessionActive = t.SessionActive()
		snap.Err = t.Err()
	}
	return snap
}

// changed forwards notifications from the current generation only
func (iv *Interview) changed(generation uint64) {
	iv.mu.Lock()
	current := generation == iv.generation
	iv.mu.Unlock()

	if current && iv.opts.OnChange != nil {
		iv.opts.OnChange(iv.Snapshot())
	}
}
