package dsp

import (
	"math"
	"testing"
)

func TestHighPassAttenuatesDCOffset(t *testing.T) {
	hp := NewHighPass(80)
	in := make([]float32, 2000)
	for i := range in {
		in[i] = 0.5 // constant DC offset
	}
	out := hp.Process(in)

	// A high-pass filter should drive a sustained DC input toward
	// zero well before the end of a 2000-sample block at 48kHz (~40ms).
	tail := out[len(out)-100:]
	var sum float64
	for _, s := range tail {
		sum += math.Abs(float64(s))
	}
	mean := sum / float64(len(tail))
	if mean > 0.1 {
		t.Errorf("high-pass filter did not attenuate sustained DC offset, tail mean abs = %v", mean)
	}
}

func TestHighPassPassesThroughZeroInput(t *testing.T) {
	hp := NewHighPass(80)
	in := make([]float32, 16)
	out := hp.Process(in)
	for i, s := range out {
		if s != 0 {
			t.Errorf("Process(zeros)[%d] = %v, want 0", i, s)
		}
	}
}

func TestLoudnessNormalizerLimitsTruePeak(t *testing.T) {
	ln := NewLoudnessNormalizer()
	in := make([]float32, 4096)
	for i := range in {
		in[i] = 2.0 // far above ceiling, to force the limiter to act regardless of gain
	}
	out := ln.Process(in)
	out = append(out, ln.Flush()...)

	ceiling := float32(math.Pow(10, defaultCeilingDBFS/20))
	for i, s := range out {
		if s > ceiling+1e-6 || s < -ceiling-1e-6 {
			t.Fatalf("Process()[%d] = %v exceeds true-peak ceiling %v", i, s, ceiling)
		}
	}
}

func TestLoudnessNormalizerFlushDrainsLookahead(t *testing.T) {
	ln := NewLoudnessNormalizer()
	in := make([]float32, 100) // well under the lookahead window
	for i := range in {
		in[i] = 0.1
	}
	out := ln.Process(in)
	if len(out) != 0 {
		t.Errorf("Process with input shorter than the lookahead window should buffer, not emit yet; got %d samples", len(out))
	}

	flushed := ln.Flush()
	if len(flushed) != len(in) {
		t.Errorf("Flush() returned %d samples, want %d buffered samples", len(flushed), len(in))
	}
}
