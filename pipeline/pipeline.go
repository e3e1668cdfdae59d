package pipeline

import (
	"log"
	"time"
)

// defaultWindowMs is the mixing window duration. §5 allows 50-600ms;
// 200ms balances VAD responsiveness against mixing overhead.
const defaultWindowMs = 200
const sampleRate = 48000

// Pipeline receives raw per-source sample batches, buffers them per
// source, and emits fixed-size mixed windows. It exits only when both
// input channels are closed and every buffered sample has been
// flushed through a final window plus a sentinel chunk — never on an
// external stop flag, so no audio already in flight is ever silently
// dropped.
type Pipeline struct {
	windowSamples int
	mic           *RingBuffer
	sys           *RingBuffer
	out           chan AudioChunk
	nextID        int64
}

// New builds a pipeline with the default mixing window.
func New() *Pipeline {
	return NewWithWindow(defaultWindowMs)
}

// NewWithWindow builds a pipeline with an explicit window size in
// milliseconds, clamped to the 50-600ms range.
func NewWithWindow(windowMs int) *Pipeline {
	if windowMs < 50 {
		windowMs = 50
	}
	if windowMs > 600 {
		windowMs = 600
	}
	windowSamples := sampleRate * windowMs / 1000
	return &Pipeline{
		windowSamples: windowSamples,
		mic:           NewRingBuffer(SourceMicrophone, windowSamples),
		sys:           NewRingBuffer(SourceSystemAudio, windowSamples),
		out:           make(chan AudioChunk, 16),
	}
}

// Output returns the channel mixed chunks (and the terminal sentinel)
// are delivered on. Consumers (vad, saver) tee from this channel.
func (p *Pipeline) Output() <-chan AudioChunk {
	return p.out
}

// Run drains micIn and sysIn until both are closed, emitting a mixed
// window every time at least one full window's worth of samples has
// accumulated on either source, then flushes any remainder and sends
// the terminal sentinel. Run is meant to be called in its own
// goroutine and returns once the sentinel has been sent.
func (p *Pipeline) Run(micIn, sysIn <-chan []float32) {
	defer close(p.out)

	micOpen, sysOpen := true, true
	for micOpen || sysOpen {
		select {
		case s, ok := <-micIn:
			if !ok {
				micIn = nil
				micOpen = false
				continue
			}
			p.mic.Push(s)
		case s, ok := <-sysIn:
			if !ok {
				sysIn = nil
				sysOpen = false
				continue
			}
			p.sys.Push(s)
		}
		p.emitReady()
	}

	p.flushRemainder()
	p.out <- Sentinel()
}

// emitReady emits windows while either buffer holds at least one full
// window's worth of samples, so a fast source never grows unbounded
// while waiting on a slow one.
func (p *Pipeline) emitReady() {
	for p.mic.Len() >= p.windowSamples || p.sys.Len() >= p.windowSamples {
		p.emitWindow()
	}
}

// flushRemainder emits whatever is left in either buffer as final
// (possibly shorter, zero-padded) windows once both inputs have
// closed.
func (p *Pipeline) flushRemainder() {
	for p.mic.Len() > 0 || p.sys.Len() > 0 {
		p.emitWindow()
	}
}

func (p *Pipeline) emitWindow() {
	mic := p.mic.Take(p.windowSamples)
	sys := p.sys.Take(p.windowSamples)
	mixed := Mix(mic, sys)

	chunk := AudioChunk{
		ChunkID:   p.nextID,
		Samples:   mixed,
		Timestamp: time.Now(),
	}
	p.nextID++

	select {
	case p.out <- chunk:
	default:
		log.Printf("pipeline: output channel full, mixed window %d delayed", chunk.ChunkID)
		p.out <- chunk
	}
}
