package transcription

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sessioncore/errs"
)

// Segment is one unit of transcription work: a speech span produced by
// the vad package, tagged with the monotonic sequence number that
// fixes its place in the final transcript regardless of how long the
// provider takes to process it.
type Segment struct {
	SequenceID int64
	Samples    []float32 // 16kHz mono float32
	Language   string
	StartMs    int64 // offset from stream start, per the vad.Segment that produced this
	EndMs      int64
}

// Completion is delivered for each segment the pool finishes
// processing, in order.
type Completion struct {
	SequenceID int64
	Result     Result
	Err        error
	StartMs    int64
	EndMs      int64
}

// EventPublisher is the minimal surface the pool needs from the event
// bus; kept narrow so this package has no import-time dependency on
// eventbus's transport details.
type EventPublisher interface {
	Publish(name string, payload map[string]any)
}

const maxRetries = 2

// Pool runs segments through a Provider, serially by default, to
// guarantee strict sequence_id ordering of results even when the
// provider itself could serve requests concurrently (spec §5: ordering
// correctness takes priority over throughput for this pipeline stage).
type Pool struct {
	provider Provider
	events   EventPublisher

	in  chan Segment
	out chan Completion

	queued    int64
	completed int64

	speechDetectedOnce sync.Once

	wg sync.WaitGroup
}

// NewPool builds a pool around provider, publishing lifecycle events
// through events (may be nil in tests).
func NewPool(provider Provider, events EventPublisher) *Pool {
	return &Pool{
		provider: provider,
		events:   events,
		in:       make(chan Segment, 32),
		out:      make(chan Completion, 32),
	}
}

// Submit enqueues a segment for transcription. It blocks if the queue
// is full rather than dropping work, since losing a transcript
// silently would violate the ordering/completeness guarantee the
// coordinator relies on.
func (p *Pool) Submit(seg Segment) {
	atomic.AddInt64(&p.queued, 1)
	p.in <- seg
}

// Completions returns the channel completed results are delivered on,
// strictly in the order segments were submitted.
func (p *Pool) Completions() <-chan Completion {
	return p.out
}

// Run processes segments until Close is called and the queue drains.
// It is meant to run in its own goroutine.
func (p *Pool) Run() {
	p.wg.Add(1)
	defer p.wg.Done()
	defer close(p.out)

	for seg := range p.in {
		p.process(seg)
	}
}

// Close stops accepting new segments and waits for the queue to
// drain.
func (p *Pool) Close() {
	close(p.in)
	p.wg.Wait()
}

func (p *Pool) process(seg Segment) {
	if len(seg.Samples) == 0 {
		p.deliver(seg.SequenceID, Result{}, seg.StartMs, seg.EndMs, errs.New(errs.AudioTooShort, nil))
		return
	}

	if !p.provider.IsModelLoaded() {
		p.deliver(seg.SequenceID, Result{}, seg.StartMs, seg.EndMs, errs.New(errs.ModelNotLoaded, nil))
		return
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		result, err := p.provider.Transcribe(ctx, seg.Samples, seg.Language)
		cancel()
		if err == nil {
			atomic.AddInt64(&p.completed, 1)
			p.speechDetectedOnce.Do(func() {
				p.publish("speech-detected", map[string]any{"sequence_id": seg.SequenceID})
			})
			p.deliver(seg.SequenceID, result, seg.StartMs, seg.EndMs, nil)
			return
		}
		lastErr = err
		log.Printf("transcription: attempt %d/%d failed for sequence_id=%d: %v", attempt+1, maxRetries+1, seg.SequenceID, err)
	}

	p.publish("transcript-chunk-loss-detected", map[string]any{"sequence_id": seg.SequenceID})
	p.deliver(seg.SequenceID, Result{}, seg.StartMs, seg.EndMs, errs.New(errs.TranscriptionFailed, lastErr))
}

func (p *Pool) deliver(sequenceID int64, result Result, startMs, endMs int64, err error) {
	p.out <- Completion{SequenceID: sequenceID, Result: result, StartMs: startMs, EndMs: endMs, Err: err}
}

func (p *Pool) publish(name string, payload map[string]any) {
	if p.events != nil {
		p.events.Publish(name, payload)
	}
}

// Queued and Completed report the pool's chunk-loss bookkeeping
// counters (spec §5/§8): Queued counts every submitted segment,
// Completed only those the provider transcribed successfully. The pool
// itself raises transcript-chunk-loss-detected only from a segment's
// exhausted retry path; nothing in this module compares the two
// counters.
func (p *Pool) Queued() int64    { return atomic.LoadInt64(&p.queued) }
func (p *Pool) Completed() int64 { return atomic.LoadInt64(&p.completed) }
