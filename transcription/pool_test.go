package transcription

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"sessioncore/errs"
)

type fakeProvider struct {
	mu       sync.Mutex
	loaded   bool
	failN    int // fail this many calls before succeeding
	calls    int
	lastLang string
}

func (f *fakeProvider) Transcribe(ctx context.Context, samples []float32, language string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastLang = language
	if f.calls <= f.failN {
		return Result{}, fmt.Errorf("simulated failure %d", f.calls)
	}
	return Result{Text: fmt.Sprintf("ok-%d", len(samples)), Confidence: 1}, nil
}

func (f *fakeProvider) IsModelLoaded() bool { return f.loaded }
func (f *fakeProvider) CurrentModel() string { return "fake" }
func (f *fakeProvider) ProviderName() string { return "fake" }

type recordingPublisher struct {
	mu      sync.Mutex
	events  []string
}

func (p *recordingPublisher) Publish(name string, payload map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, name)
}

func (p *recordingPublisher) has(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e == name {
			return true
		}
	}
	return false
}

func TestPoolPreservesSequenceOrder(t *testing.T) {
	provider := &fakeProvider{loaded: true}
	pool := NewPool(provider, nil)
	go pool.Run()

	const n = 20
	for i := int64(0); i < n; i++ {
		pool.Submit(Segment{SequenceID: i, Samples: []float32{0.1, 0.2}, Language: "en"})
	}
	pool.Close()

	var got []int64
	for c := range pool.Completions() {
		got = append(got, c.SequenceID)
	}
	if len(got) != n {
		t.Fatalf("got %d completions, want %d", len(got), n)
	}
	for i, id := range got {
		if id != int64(i) {
			t.Errorf("completion order[%d] = %d, want %d", i, id, i)
		}
	}
}

func TestPoolEmptySegmentIsAudioTooShort(t *testing.T) {
	provider := &fakeProvider{loaded: true}
	pool := NewPool(provider, nil)
	go pool.Run()

	pool.Submit(Segment{SequenceID: 0})
	pool.Close()

	c := <-pool.Completions()
	var e *errs.Error
	if !errorsAs(c.Err, &e) || e.Kind != errs.AudioTooShort {
		t.Fatalf("err = %v, want errs.AudioTooShort", c.Err)
	}
}

func TestPoolModelNotLoaded(t *testing.T) {
	provider := &fakeProvider{loaded: false}
	pool := NewPool(provider, nil)
	go pool.Run()

	pool.Submit(Segment{SequenceID: 0, Samples: []float32{0.1}})
	pool.Close()

	c := <-pool.Completions()
	var e *errs.Error
	if !errorsAs(c.Err, &e) || e.Kind != errs.ModelNotLoaded {
		t.Fatalf("err = %v, want errs.ModelNotLoaded", c.Err)
	}
}

func TestPoolRetriesThenReportsChunkLoss(t *testing.T) {
	provider := &fakeProvider{loaded: true, failN: 100} // always fails
	publisher := &recordingPublisher{}
	pool := NewPool(provider, publisher)
	go pool.Run()

	pool.Submit(Segment{SequenceID: 0, Samples: []float32{0.1}})
	pool.Close()

	c := <-pool.Completions()
	var e *errs.Error
	if !errorsAs(c.Err, &e) || e.Kind != errs.TranscriptionFailed {
		t.Fatalf("err = %v, want errs.TranscriptionFailed", c.Err)
	}
	if !publisher.has("transcript-chunk-loss-detected") {
		t.Errorf("expected transcript-chunk-loss-detected to be published after exhausting retries")
	}
	if publisher.has("speech-detected") {
		t.Errorf("speech-detected must not be published for a segment that never successfully transcribes")
	}
	if provider.calls != maxRetries+1 {
		t.Errorf("provider called %d times, want %d (maxRetries+1)", provider.calls, maxRetries+1)
	}
}

func TestPoolRecoversAfterTransientFailures(t *testing.T) {
	provider := &fakeProvider{loaded: true, failN: maxRetries} // fails maxRetries times, succeeds on the last attempt
	pool := NewPool(provider, nil)
	go pool.Run()

	pool.Submit(Segment{SequenceID: 0, Samples: []float32{0.1, 0.2, 0.3}})
	pool.Close()

	c := <-pool.Completions()
	if c.Err != nil {
		t.Fatalf("expected eventual success, got err %v", c.Err)
	}
	if c.Result.Text == "" {
		t.Errorf("expected a non-empty transcription result")
	}
}

func TestPoolPublishesSpeechDetectedOnce(t *testing.T) {
	provider := &fakeProvider{loaded: true}
	publisher := &recordingPublisher{}
	pool := NewPool(provider, publisher)
	go pool.Run()

	for i := int64(0); i < 5; i++ {
		pool.Submit(Segment{SequenceID: i, Samples: []float32{0.1}})
	}
	pool.Close()
	for range pool.Completions() {
	}

	count := 0
	for _, e := range publisher.events {
		if e == "speech-detected" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("speech-detected published %d times, want exactly 1", count)
	}
}

func TestPoolCarriesSegmentTimingIntoCompletion(t *testing.T) {
	provider := &fakeProvider{loaded: true}
	pool := NewPool(provider, nil)
	go pool.Run()

	pool.Submit(Segment{SequenceID: 0, Samples: []float32{0.1}, StartMs: 1200, EndMs: 1850})
	pool.Close()

	c := <-pool.Completions()
	if c.StartMs != 1200 || c.EndMs != 1850 {
		t.Errorf("completion timing = (%d, %d), want (1200, 1850)", c.StartMs, c.EndMs)
	}
}

// errorsAs is a tiny local wrapper so tests read naturally without
// importing the standard errors package just for one call site.
func errorsAs(err error, target **errs.Error) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*errs.Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
