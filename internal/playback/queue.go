// Package playback buffers inbound speech chunks and plays them one at a time,
// in arrival order, on a lazily opened output.
package playback

import (
	"context"
	"errors"
	"sync"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/observability"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Enqueue once the queue has been torn down
var ErrClosed = errors.New("playback queue is closed")

// Output is an open audio output context.
type Output interface {
	// Play renders one chunk and returns when it has finished playing, or
	// early with ctx.Err() when ctx is cancelled.
	Play(ctx context.Context, samples []float32) error

	// Close releases the output
	Close() error
}

// Speaker opens audio outputs
type Speaker interface {
	Open(sampleRate int) (Output, error)
}

// SpeakerFunc adapts a function to the Speaker interface
type SpeakerFunc func(sampleRate int) (Output, error)

// Open calls f
func (f SpeakerFunc) Open(sampleRate int) (Output, error) {
	return f(sampleRate)
}

// Queue plays decoded chunks strictly in FIFO order with at most one chunk
// playing at any time
type Queue struct {
	speaker    Speaker
	sampleRate int
	logger     zerolog.Logger
	metrics    *observability.Metrics

	mu      sync.Mutex
	pending fifo[[]float32]
	playing bool
	closed  bool
	out     Output

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a playback queue. The output is not opened until the first chunk arrives.
func NewQueue(speaker Speaker, sampleRate int, logger zerolog.Logger, metrics *observability.Metrics) *Queue {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		speaker:    speaker,
		sampleRate: sampleRate,
		logger:     logger.With().Str("component", "playback").Logger(),
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Enqueue decodes a base64 PCM16 chunk and queues it for playback, starting
// the driver if it is idle. A malformed chunk is dropped and its DecodeError
// returned; chunks already queued are unaffected.
func (q *Queue) Enqueue(text string) error {
	samples, err := audio.DecodeChunk(text)
	if err != nil {
		q.logger.Error().Err(err).Int("length", len(text)).Msg("Dropping malformed audio chunk")
		q.metrics.RecordChunk("dropped")
		q.metrics.RecordError("decode_error", "playback")
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	q.pending.Enqueue(samples)
	q.metrics.RecordAudioBytes("in", int64(len(samples)*2))

	if !q.playing {
		q.playing = true
		q.wg.Add(1)
		go q.drive()
	}
	return nil
}

// drive plays queued chunks until the queue is empty or closed
func (q *Queue) drive() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed {
			q.playing = false
			q.mu.Unlock()
			return
		}
		chunk, ok := q.pending.Dequeue()
		if !ok {
			q.playing = false
			q.mu.Unlock()
			return
		}
		out, err := q.outputLocked()
		q.mu.Unlock()

		if err != nil {
			q.logger.Error().Err(err).Msg("Failed to open audio output, dropping chunk")
			q.metrics.RecordChunk("dropped")
			q.metrics.RecordError("output_open_error", "playback")
			continue
		}

		if err := out.Play(q.ctx, chunk); err != nil {
			if q.ctx.Err() != nil {
				q.metrics.RecordChunk("interrupted")
				continue
			}
			q.logger.Error().Err(err).Int("samples", len(chunk)).Msg("Audio chunk playback failed")
			q.metrics.RecordChunk("failed")
			q.metrics.RecordError("playback_error", "playback")
			continue
		}
		q.metrics.RecordChunk("played")
	}
}

// outputLocked returns the output context, opening it on first use
func (q *Queue) outputLocked() (Output, error) {
	if q.out != nil {
		return q.out, nil
	}
	if q.speaker == nil {
		return nil, errors.New("no audio output configured")
	}
	out, err := q.speaker.Open(q.sampleRate)
	if err != nil {
		return nil, err
	}
	q.logger.Debug().Int("sample_rate", q.sampleRate).Msg("Audio output opened")
	q.out = out
	return out, nil
}

// Close interrupts the chunk in flight, drops pending chunks, waits for the
// driver to exit and releases the output. Safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := q.pending.Len()
	q.pending.Clear()
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	out := q.out
	q.out = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Debug().Int("chunks", dropped).Msg("Discarded pending audio on close")
	}
	if out != nil {
		return out.Close()
	}
	return nil
}

// Len returns the number of chunks waiting to play
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Playing reports whether the driver is active
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}
