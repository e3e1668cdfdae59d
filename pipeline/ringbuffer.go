package pipeline

import "log"

// RingBuffer accumulates samples for a single source between mixing
// windows. Its capacity is capped at windowSize*8 samples; once full,
// the oldest samples are dropped to make room for new ones rather than
// blocking the capture callback, and the drop is logged. System-audio
// overflow is logged at a higher severity than microphone overflow
// because it more often indicates the mixer can't keep up rather than
// an ordinary short silence gap.
type RingBuffer struct {
	source   Source
	capacity int
	buf      []float32

	overflowStreak int
}

// NewRingBuffer builds a buffer sized from the mixer's window size.
func NewRingBuffer(source Source, windowSize int) *RingBuffer {
	return &RingBuffer{
		source:   source,
		capacity: windowSize * 8,
		buf:      make([]float32, 0, windowSize*8),
	}
}

// Push appends samples, dropping the oldest overflow if capacity is
// exceeded.
func (r *RingBuffer) Push(samples []float32) {
	r.buf = append(r.buf, samples...)
	if len(r.buf) <= r.capacity {
		r.overflowStreak = 0
		return
	}

	drop := len(r.buf) - r.capacity
	r.buf = append(r.buf[:0], r.buf[drop:]...)
	r.overflowStreak++

	if r.source == SourceSystemAudio && r.overflowStreak >= 3 {
		log.Printf("pipeline: WARNING system-audio ring buffer persistently overflowing, mixer may be falling behind (streak=%d)", r.overflowStreak)
	} else {
		log.Printf("pipeline: ring buffer overflow for source=%d, dropped %d oldest samples", r.source, drop)
	}
}

// Take removes and returns up to n samples from the front, zero-padded
// if fewer than n are available. It never holds the last available
// sample to pad a short window (no "last-sample-hold"): the remainder
// is always silence.
func (r *RingBuffer) Take(n int) []float32 {
	out := make([]float32, n)
	avail := len(r.buf)
	if avail > n {
		avail = n
	}
	copy(out, r.buf[:avail])
	r.buf = append(r.buf[:0], r.buf[avail:]...)
	return out
}

// Len reports how many samples are currently buffered.
func (r *RingBuffer) Len() int {
	return len(r.buf)
}
