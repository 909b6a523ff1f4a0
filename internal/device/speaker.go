package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/playback"
)

// PCMSpeaker renders audio as raw PCM16 LE mono to a writer such as stdout.
// Play returns once the chunk's natural duration has elapsed so a pipe into a
// player stays in step with the session. The writer is never closed.
type PCMSpeaker struct {
	Writer io.Writer

	mu sync.Mutex
}

var _ playback.Speaker = (*PCMSpeaker)(nil)

// Open returns an output bound to the speaker's writer
func (p *PCMSpeaker) Open(sampleRate int) (playback.Output, error) {
	if p.Writer == nil {
		return nil, fmt.Errorf("no output configured")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	return &pcmOutput{speaker: p, sampleRate: sampleRate}, nil
}

type pcmOutput struct {
	speaker    *PCMSpeaker
	sampleRate int
}

func (o *pcmOutput) Play(ctx context.Context, samples []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	data := audio.SamplesToBytes(audio.FloatToPCM16(samples))
	o.speaker.mu.Lock()
	_, err := o.speaker.Writer.Write(data)
	o.speaker.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	return waitOut(ctx, start, len(samples), o.sampleRate)
}

func (o *pcmOutput) Close() error {
	return nil
}

// WAVSpeaker records everything played into a mono PCM16 WAV file. The file
// is created on Open and its header sizes are fixed up on Close.
type WAVSpeaker struct {
	Path string
	Fast bool // skip real-time pacing
}

var _ playback.Speaker = (*WAVSpeaker)(nil)

// Open creates the file, truncating any previous recording
func (w *WAVSpeaker) Open(sampleRate int) (playback.Output, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	f, err := os.Create(w.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", w.Path, err)
	}
	if err := writeWAVHeader(f, sampleRate, 0); err != nil {
		f.Close()
		return nil, err
	}
	return &wavOutput{file: f, sampleRate: sampleRate, paced: !w.Fast}, nil
}

type wavOutput struct {
	sampleRate int
	paced      bool

	mu       sync.Mutex
	file     *os.File
	dataSize uint32
}

func (o *wavOutput) Play(ctx context.Context, samples []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	data := audio.SamplesToBytes(audio.FloatToPCM16(samples))
	o.mu.Lock()
	if o.file == nil {
		o.mu.Unlock()
		return os.ErrClosed
	}
	n, err := o.file.Write(data)
	o.dataSize += uint32(n)
	o.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	if !o.paced {
		return nil
	}
	return waitOut(ctx, start, len(samples), o.sampleRate)
}

func (o *wavOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}
	f := o.file
	o.file = nil

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("failed to rewind WAV file: %w", err)
	}
	if err := writeWAVHeader(f, o.sampleRate, o.dataSize); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// waitOut blocks until n samples started at start have finished playing
func waitOut(ctx context.Context, start time.Time, n, sampleRate int) error {
	due := start.Add(time.Duration(float64(time.Second) * audio.Duration(n, sampleRate)))
	d := time.Until(due)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
