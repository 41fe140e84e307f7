// Package buffer holds the most recent samples of a monitoring session.
package buffer

import (
	"sync"

	"github.com/amaresga/simtemp/internal/record"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 100

// Ring is a bounded FIFO of samples. When full, Push evicts the oldest
// sample. It is safe for one writer and any number of readers.
type Ring struct {
	mu    sync.Mutex
	data  []record.Sample
	start int
	size  int
}

func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Ring{data: make([]record.Sample, capacity)}
}

// Push appends s, evicting the oldest sample if the ring is full.
func (r *Ring) Push(s record.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == len(r.data) {
		r.data[r.start] = s
		r.start = (r.start + 1) % len(r.data)
		return
	}

	r.data[(r.start+r.size)%len(r.data)] = s
	r.size++
}

// Snapshot returns a copy of the samples, oldest first.
func (r *Ring) Snapshot() []record.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]record.Sample, r.size)
	n := copy(out, r.data[r.start:min(r.start+r.size, len(r.data))])
	copy(out[n:], r.data[:r.size-n])

	return out
}

// Latest returns the newest sample.
func (r *Ring) Latest() (record.Sample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return record.Sample{}, false
	}

	return r.data[(r.start+r.size-1)%len(r.data)], true
}

// Clear removes every sample.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.start = 0
	r.size = 0
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *Ring) Cap() int {
	return len(r.data)
}
