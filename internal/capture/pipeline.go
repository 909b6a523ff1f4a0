// Package capture turns a live audio input into a sequence of fixed-size,
// base64 PCM16 frames handed to the realtime transport.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/observability"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Start when Stop ran while the device was being acquired
var ErrStopped = errors.New("capture stopped during device acquisition")

// PermissionError reports that no input device could be acquired, either
// because access was denied or because none exists
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("microphone unavailable: %v", e.Err)
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}

// Stream is an acquired input device delivering mono float samples
type Stream interface {
	// Read blocks until samples are available. Close must unblock it.
	Read(buf []float32) (int, error)
	Close() error
}

// Device acquires input streams. Open may block on a permission prompt.
type Device interface {
	Open(ctx context.Context, sampleRate int) (Stream, error)
}

// Sink receives encoded frames
type Sink interface {
	// Connected reports whether frames can be sent right now
	Connected() bool
	SendAudio(text string) error
}

// Pipeline frames a device stream into fixed-size blocks and sends them in capture order
type Pipeline struct {
	device     Device
	sink       Sink
	sampleRate int
	frameSize  int
	logger     zerolog.Logger
	metrics    *observability.Metrics

	mu       sync.Mutex
	stream   Stream
	done     chan struct{}
	running  bool
	starting bool
	epoch    uint64 // bumped by every Stop
}

// NewPipeline creates a capture pipeline. Nothing is acquired until Start.
func NewPipeline(device Device, sink Sink, sampleRate, frameSize int, logger zerolog.Logger, metrics *observability.Metrics) *Pipeline {
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	if frameSize <= 0 {
		frameSize = audio.DefaultFrameSize
	}
	return &Pipeline{
		device:     device,
		sink:       sink,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		logger:     logger.With().Str("component", "capture").Logger(),
		metrics:    metrics,
	}
}

// Start acquires the input device and begins streaming frames. It blocks
// while the device is being acquired. Acquisition failures are returned as
// *PermissionError; if Stop ran in the meantime the stream is released and
// ErrStopped returned. Starting a running pipeline is a no-op.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running || p.starting {
		p.mu.Unlock()
		return nil
	}
	p.starting = true
	epoch := p.epoch
	stale := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	var stream Stream
	var err error
	if p.device == nil {
		err = errors.New("no input device")
	} else {
		stream, err = p.device.Open(ctx, p.sampleRate)
	}

	p.mu.Lock()
	p.starting = false
	if p.epoch != epoch {
		p.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		p.logger.Debug().Msg("Capture stopped while acquiring device, released")
		return ErrStopped
	}
	if err != nil {
		p.mu.Unlock()
		p.metrics.RecordError("permission_error", "capture")
		return &PermissionError{Err: err}
	}

	done := make(chan struct{})
	p.stream = stream
	p.done = done
	p.running = true
	p.mu.Unlock()

	p.logger.Info().
		Int("sample_rate", p.sampleRate).
		Int("frame_size", p.frameSize).
		Msg("Audio capture started")

	go p.loop(stream, done, epoch)
	return nil
}

// loop reads the stream until it fails or is closed, emitting each full frame
func (p *Pipeline) loop(stream Stream, done chan struct{}, epoch uint64) {
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.running = false
		}
		p.mu.Unlock()
		close(done)
	}()

	ring := audio.NewSampleRing(p.frameSize*4 + 1)
	buf := make([]float32, p.frameSize)
	frame := make([]float32, p.frameSize)

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if written := ring.Write(buf[:n]); written < n {
				p.logger.Warn().Int("dropped", n-written).Msg("Capture ring overflow, dropping samples")
			}
			for ring.Available() >= p.frameSize {
				ring.Read(frame)
				if !p.emit(frame, epoch) {
					return
				}
			}
		}

		if err != nil {
			if !p.current(epoch) {
				return
			}
			if errors.Is(err, io.EOF) {
				p.logger.Info().Msg("Audio input ended")
			} else {
				p.logger.Error().Err(err).Msg("Audio input failed, capture halted")
				p.metrics.RecordError("read_error", "capture")
			}
			return
		}
	}
}

// emit sends one frame, or drops it when the transport isn't connected.
// Returns false once the pipeline has been stopped.
func (p *Pipeline) emit(frame []float32, epoch uint64) bool {
	if !p.current(epoch) {
		return false
	}

	if !p.sink.Connected() {
		p.metrics.RecordFrameDropped("not_connected")
		return true
	}

	if err := p.sink.SendAudio(audio.EncodeFrame(frame)); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to send audio frame")
		p.metrics.RecordFrameDropped("send_failed")
		return true
	}
	p.metrics.RecordAudioBytes("out", int64(len(frame)*2))
	return true
}

func (p *Pipeline) current(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch == epoch
}

// Stop releases the input device and waits for the read loop to exit.
// Idempotent; a no-op when never started.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	p.epoch++
	stream := p.stream
	done := p.done
	wasRunning := p.running
	p.stream = nil
	p.done = nil
	p.running = false
	p.mu.Unlock()

	if stream == nil {
		return
	}
	if err := stream.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Error releasing audio input")
	}
	if done != nil {
		<-done
	}
	if wasRunning {
		p.logger.Info().Msg("Audio capture stopped")
	}
}

// Running reports whether frames are being captured
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
