package audio

import (
	"sync"
)

// SampleRing is a thread-safe ring buffer of float samples.
// The capture pipeline pushes device reads of arbitrary size into it and pulls
// fixed-size frames back out.
type SampleRing struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewSampleRing creates a ring that holds up to size-1 samples
func NewSampleRing(size int) *SampleRing {
	if size < 2 {
		size = 2
	}
	return &SampleRing{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write appends samples and returns how many fit.
// Samples beyond the free space are not written.
func (r *SampleRing) Write(samples []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	written := 0
	for _, s := range samples {
		if (r.write+1)%r.size == r.read {
			break // full
		}
		r.buffer[r.write] = s
		r.write = (r.write + 1) % r.size
		written++
	}
	return written
}

// Read fills dst with the oldest samples and returns the count read
func (r *SampleRing) Read(dst []float32) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	read := 0
	for i := range dst {
		if r.read == r.write {
			break // empty
		}
		dst[i] = r.buffer[r.read]
		r.read = (r.read + 1) % r.size
		read++
	}
	return read
}

// Available returns the number of samples ready to read
func (r *SampleRing) Available() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.available()
}

func (r *SampleRing) available() int {
	if r.write >= r.read {
		return r.write - r.read
	}
	return r.size - r.read + r.write
}
