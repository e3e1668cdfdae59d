package dsp

import (
	"math"
	"testing"
)

func TestResamplerPassthroughAtUnityRatio(t *testing.T) {
	r := NewResampler(pipelineRate)
	in := []float32{0.1, -0.2, 0.3, -0.4}
	out := r.Process(in)
	if len(out) != len(in) {
		t.Fatalf("unity-ratio Process length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("unity-ratio Process[%d] = %v, want unchanged %v", i, out[i], in[i])
		}
	}
}

func TestResamplerProducesFiniteOutputAcrossChunks(t *testing.T) {
	r := NewResampler(44100)

	const chunkSize = 512
	const numChunks = 100
	var sumSquaresIn, sumSquaresOut float64
	var countIn, countOut int

	for c := 0; c < numChunks; c++ {
		in := make([]float32, chunkSize)
		for i := range in {
			// 440Hz tone at the native rate.
			phase := 2 * math.Pi * 440 * float64(c*chunkSize+i) / 44100
			in[i] = float32(0.5 * math.Sin(phase))
			sumSquaresIn += float64(in[i]) * float64(in[i])
		}
		countIn += len(in)

		out := r.Process(in)
		for _, s := range out {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				t.Fatalf("chunk %d produced non-finite sample %v", c, s)
			}
			sumSquaresOut += float64(s) * float64(s)
		}
		countOut += len(out)
	}

	if countOut == 0 {
		t.Fatalf("resampler produced no output samples across %d chunks", numChunks)
	}

	rmsIn := math.Sqrt(sumSquaresIn / float64(countIn))
	rmsOut := math.Sqrt(sumSquaresOut / float64(countOut))
	if rmsIn == 0 {
		t.Fatalf("test signal had zero RMS")
	}

	ratio := rmsOut / rmsIn
	if ratio < 0.5 || ratio > 1.5 {
		t.Errorf("resampled RMS drifted too far from input: in=%.4f out=%.4f ratio=%.2f", rmsIn, rmsOut, ratio)
	}
}

func TestResamplerResetClearsState(t *testing.T) {
	r := NewResampler(44100)
	in := make([]float32, 512)
	for i := range in {
		in[i] = float32(math.Sin(float64(i)))
	}
	r.Process(in)
	if len(r.history) == 0 {
		t.Fatalf("expected Process to accumulate history before Reset")
	}

	r.Reset()
	if len(r.history) != 0 {
		t.Errorf("Reset did not clear history, len=%d", len(r.history))
	}
	if r.phase != 0 {
		t.Errorf("Reset did not clear phase, got %v", r.phase)
	}
}
