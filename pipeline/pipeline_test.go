package pipeline

import (
	"testing"
	"time"
)

func TestPipelineEmitsWindowsAndSentinel(t *testing.T) {
	p := NewWithWindow(50) // 2400 samples at 48kHz
	micIn := make(chan []float32, 4)
	sysIn := make(chan []float32, 4)

	done := make(chan struct{})
	go func() {
		p.Run(micIn, sysIn)
		close(done)
	}()

	micIn <- make([]float32, 2400)
	sysIn <- make([]float32, 2400)
	close(micIn)
	close(sysIn)

	var chunks []AudioChunk
	for c := range p.Output() {
		chunks = append(chunks, c)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after both input channels closed")
	}

	if len(chunks) == 0 {
		t.Fatalf("expected at least one emitted chunk")
	}
	last := chunks[len(chunks)-1]
	if !last.Sentinel {
		t.Errorf("last chunk must be the sentinel, got %+v", last)
	}
	if last.ChunkID != SentinelChunkID {
		t.Errorf("sentinel ChunkID = %d, want %d", last.ChunkID, SentinelChunkID)
	}

	for _, c := range chunks[:len(chunks)-1] {
		if c.Sentinel {
			t.Errorf("non-terminal chunk %d unexpectedly marked Sentinel", c.ChunkID)
		}
	}
}

func TestPipelineFlushesPartialRemainder(t *testing.T) {
	p := NewWithWindow(50)
	micIn := make(chan []float32, 1)
	sysIn := make(chan []float32, 1)

	go func() {
		micIn <- make([]float32, 100) // far short of one window
		close(micIn)
		close(sysIn)
	}()

	go p.Run(micIn, sysIn)

	var sawNonSentinel bool
	for c := range p.Output() {
		if !c.Sentinel {
			sawNonSentinel = true
			if len(c.Samples) != p.windowSamples {
				t.Errorf("flushed window length = %d, want zero-padded to %d", len(c.Samples), p.windowSamples)
			}
		}
	}
	if !sawNonSentinel {
		t.Errorf("expected the partial remainder to be flushed as one zero-padded window")
	}
}
