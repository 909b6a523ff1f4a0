package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/capture"
)

var (
	// ErrDeviceBusy is returned when a second stream is opened on a source
	// that only supports one at a time
	ErrDeviceBusy = errors.New("input device is already in use")

	// ErrInputEnded is returned when opening a pipe source whose input is exhausted
	ErrInputEnded = errors.New("input has ended")
)

// blockDuration is the size of the blocks read from an input
const blockDuration = 20 * time.Millisecond

func blockSamples(rate int) int {
	n := int(int64(rate) * int64(blockDuration) / int64(time.Second))
	if n < 1 {
		return 1
	}
	return n
}

// PCMSource is a live microphone backed by a raw PCM16 LE byte stream such as
// stdin or a named pipe. The reader is consumed continuously once the first
// stream opens; input arriving while no stream is open is discarded.
type PCMSource struct {
	Reader     io.Reader
	SampleRate int // rate of the incoming audio; 0 means audio.SampleRate
	Channels   int // interleaved channels; 0 means mono

	startOnce sync.Once
	mu        sync.Mutex
	active    *stream
	ended     error
}

var _ capture.Device = (*PCMSource)(nil)

// Open attaches a stream to the source. Only one stream may be open.
func (p *PCMSource) Open(ctx context.Context, sampleRate int) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Reader == nil {
		return nil, fmt.Errorf("no input configured")
	}

	p.startOnce.Do(func() { go p.pump() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputEnded, p.ended)
	}
	if p.active != nil {
		return nil, ErrDeviceBusy
	}

	var s *stream
	s = newStream(p.rate(), sampleRate, func() { p.release(s) })
	p.active = s
	return s, nil
}

func (p *PCMSource) rate() int {
	if p.SampleRate > 0 {
		return p.SampleRate
	}
	return audio.SampleRate
}

func (p *PCMSource) channels() int {
	if p.Channels > 0 {
		return p.Channels
	}
	return 1
}

func (p *PCMSource) release(s *stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == s {
		p.active = nil
	}
}

func (p *PCMSource) pump() {
	channels := p.channels()
	buf := make([]byte, blockSamples(p.rate())*channels*2)

	for {
		n, err := io.ReadFull(p.Reader, buf)
		if usable := n - n%(2*channels); usable > 0 {
			samples, _ := audio.BytesToSamples(buf[:usable])
			block := downmix(samples, channels)

			p.mu.Lock()
			s := p.active
			p.mu.Unlock()
			if s != nil {
				s.deliver(block, false)
			}
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			p.mu.Lock()
			p.ended = err
			s := p.active
			p.mu.Unlock()
			if s != nil {
				s.finish(err)
			}
			return
		}
	}
}

// WAVSource is a microphone that plays back a PCM16 WAV file. Each Open
// starts from the beginning of the file; samples are released in real time
// unless Fast is set.
type WAVSource struct {
	Path string
	Fast bool
}

var _ capture.Device = (*WAVSource)(nil)

// Open opens the file and starts streaming it
func (w *WAVSource) Open(ctx context.Context, sampleRate int) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(w.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", w.Path, err)
	}

	format, err := readWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", w.Path, err)
	}

	s := newStream(format.SampleRate, sampleRate, func() { f.Close() })
	go pumpFile(f, format, s, !w.Fast)
	return s, nil
}

func pumpFile(r io.Reader, format wavFormat, s *stream, paced bool) {
	channels := format.Channels
	per := blockSamples(format.SampleRate)
	buf := make([]byte, per*channels*2)
	remaining := int64(format.DataSize)
	if remaining == 0 {
		// streaming writers leave the size unset
		remaining = -1
	}

	start := time.Now()
	var sent int
	for remaining != 0 {
		chunk := buf
		if remaining > 0 && int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, err := io.ReadFull(r, chunk)
		if remaining > 0 {
			remaining -= int64(n)
		}
		if usable := n - n%(2*channels); usable > 0 {
			samples, _ := audio.BytesToSamples(buf[:usable])
			block := downmix(samples, channels)
			if !s.deliver(block, true) {
				return
			}
			if paced {
				sent += len(block)
				due := start.Add(time.Duration(float64(time.Second) * audio.Duration(sent, format.SampleRate)))
				if !sleepUntil(due, s.closed) {
					return
				}
			}
		}
		if err != nil {
			if s.isClosed() {
				return
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			s.finish(err)
			return
		}
	}
	s.finish(io.EOF)
}

// sleepUntil waits for the deadline, returning false if stop closes first
func sleepUntil(deadline time.Time, stop <-chan struct{}) bool {
	d := time.Until(deadline)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
