package device

import (
	"errors"
	"sync"

	"github.com/lexiqai/interview-client/internal/audio"
)

// ErrStreamClosed is returned by Read after the stream has been closed
var ErrStreamClosed = errors.New("stream closed")

// blockBacklog bounds how many undelivered blocks a live stream holds
// before new input is dropped
const blockBacklog = 64

// stream is a capture.Stream fed by a pump goroutine. Blocks arrive as mono
// PCM16 at srcRate and are resampled to dstRate on read. Close unblocks a
// pending Read even if the pump is stuck in a blocking read of its own.
type stream struct {
	srcRate int
	dstRate int

	blocks  chan []int16
	closed  chan struct{}
	err     error
	pending []float32

	closeOnce sync.Once
	onClose   func()
}

func newStream(srcRate, dstRate int, onClose func()) *stream {
	return &stream{
		srcRate: srcRate,
		dstRate: dstRate,
		blocks:  make(chan []int16, blockBacklog),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// deliver hands a block to the reader. With wait unset a full backlog drops
// the block, which is what a live microphone does on overrun.
func (s *stream) deliver(block []int16, wait bool) bool {
	if wait {
		select {
		case s.blocks <- block:
			return true
		case <-s.closed:
			return false
		}
	}
	select {
	case s.blocks <- block:
		return true
	case <-s.closed:
		return false
	default:
		return false
	}
}

// finish marks the end of input. Must be called by the pump only, once.
func (s *stream) finish(err error) {
	s.err = err
	close(s.blocks)
}

// Read fills buf with up to len(buf) samples
func (s *stream) Read(buf []float32) (int, error) {
	if len(s.pending) == 0 {
		select {
		case <-s.closed:
			return 0, ErrStreamClosed
		case block, ok := <-s.blocks:
			if !ok {
				return 0, s.err
			}
			s.pending = audio.PCM16ToFloat(audio.Resample(block, s.srcRate, s.dstRate))
		}
	}
	n := copy(buf, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close releases the stream; safe to call more than once
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

func (s *stream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// downmix averages interleaved channels into mono
func downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		mono[i] = int16(sum / channels)
	}
	return mono
}
