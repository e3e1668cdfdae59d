// Package dsp implements the signal-processing primitives shared by
// the capture and enhancement stages: a persistent streaming
// resampler, the microphone enhancement chain (high-pass, noise
// suppression, loudness normalization with a true-peak limiter), and
// the shared ONNX Runtime initialization helper used by both the noise
// suppressor here and the vad package.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// pipelineRate is the sample rate every downstream stage operates at.
const pipelineRate = 48000

// resamplerParams holds the sinc-length/interpolation/oversampling
// triple selected for a given resample ratio, per the table derived
// from the ratio r = pipelineRate / nativeRate.
type resamplerParams struct {
	sincLen       int
	cubic         bool
	oversampling  int
}

func paramsForRatio(r float64) resamplerParams {
	switch {
	case r >= 2.0:
		return resamplerParams{sincLen: 512, cubic: true, oversampling: 512}
	case r >= 1.5:
		return resamplerParams{sincLen: 384, cubic: true, oversampling: 384}
	case r > 1.0:
		return resamplerParams{sincLen: 256, cubic: false, oversampling: 256}
	case r <= 0.5:
		return resamplerParams{sincLen: 512, cubic: true, oversampling: 512}
	default: // 0.5 < r < 1.0
		return resamplerParams{sincLen: 384, cubic: false, oversampling: 384}
	}
}

// Resampler converts a single persistent stream from nativeRate to
// pipelineRate using a windowed-sinc kernel precomputed once at
// construction. It is stateful: callers must reuse one instance for
// the lifetime of a device stream rather than building one per chunk,
// so that the residual tail of each Process call carries into the
// next and phase is preserved across chunk boundaries.
type Resampler struct {
	nativeRate float64
	ratio      float64
	params     resamplerParams
	kernel     []float64
	history    []float64 // trailing native-rate samples carried across Process calls
	phase      float64   // fractional output-sample position into the next native sample
}

// NewResampler builds a resampler for nativeRate -> 48000. If
// nativeRate already equals 48000 the caller should skip construction
// entirely and pass samples through unchanged (§4.2: "passthrough, no
// resampler instantiated").
func NewResampler(nativeRate int) *Resampler {
	r := &Resampler{
		nativeRate: float64(nativeRate),
		ratio:      float64(pipelineRate) / float64(nativeRate),
	}
	r.params = paramsForRatio(r.ratio)
	r.kernel = buildSincKernel(r.params.sincLen, r.params.oversampling)
	r.history = make([]float64, 0, r.params.sincLen*2)
	return r
}

// buildSincKernel constructs a Blackman-Harris windowed sinc table
// with oversampling fractional positions per integer tap, so the
// resampler can interpolate between table entries instead of
// recomputing sinc() per output sample.
func buildSincKernel(sincLen, oversampling int) []float64 {
	taps := sincLen * oversampling
	kernel := make([]float64, taps+1)
	w := make([]float64, taps+1)
	for i := range w {
		w[i] = 1
	}
	w = window.BlackmanHarris(w)
	for i := range kernel {
		x := float64(i)/float64(oversampling) - float64(sincLen)/2
		kernel[i] = sinc(x) * w[i]
	}
	return kernel
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// kernelAt evaluates the precomputed table at a fractional tap offset
// using the resampler's chosen interpolation order.
func (r *Resampler) kernelAt(offset float64) float64 {
	half := float64(r.params.sincLen) / 2
	pos := (offset + half) * float64(r.params.oversampling)
	i0 := int(math.Floor(pos))
	frac := pos - float64(i0)
	if i0 < 0 || i0+1 >= len(r.kernel) {
		return 0
	}
	if !r.params.cubic {
		return r.kernel[i0]*(1-frac) + r.kernel[i0+1]*frac
	}
	// Cubic Hermite interpolation between four neighboring table
	// entries for the higher-ratio bands where linear interpolation
	// would otherwise smear the passband.
	im1 := i0 - 1
	i1 := i0 + 1
	i2 := i0 + 2
	if im1 < 0 || i2 >= len(r.kernel) {
		return r.kernel[i0]*(1-frac) + r.kernel[i1]*frac
	}
	return cubicHermite(r.kernel[im1], r.kernel[i0], r.kernel[i1], r.kernel[i2], frac)
}

func cubicHermite(p0, p1, p2, p3, t float64) float64 {
	a := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	b := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c := -0.5*p0 + 0.5*p2
	d := p1
	return ((a*t+b)*t+c)*t + d
}

// Process resamples a chunk of native-rate float32 samples, returning
// pipeline-rate float32 samples. Process accepts input of any length
// and carries a history of at least sincLen samples between calls,
// which it maintains internally. Input is not regrouped into fixed
// 512-sample chunks: the capture processor passes each device
// callback's samples straight in, so block sizes follow the device.
func (r *Resampler) Process(in []float32) []float32 {
	if r.ratio == 1.0 {
		return in
	}

	hist := make([]float64, len(r.history)+len(in))
	copy(hist, r.history)
	for i, s := range in {
		hist[len(r.history)+i] = float64(s)
	}

	half := r.params.sincLen / 2
	out := make([]float32, 0, int(float64(len(in))*r.ratio)+1)

	// Output samples are produced at integer multiples of 1/ratio
	// input-sample spacing, tracked by r.phase across calls.
	pos := r.phase
	step := 1.0 / r.ratio
	maxCenter := float64(len(hist) - half - 1)
	for pos <= maxCenter {
		center := pos
		var acc float64
		base := int(math.Floor(center))
		for k := -half; k < half; k++ {
			idx := base + k
			if idx < 0 || idx >= len(hist) {
				continue
			}
			acc += hist[idx] * r.kernelAt(center-float64(idx))
		}
		out = append(out, float32(acc))
		pos += step
	}

	consumed := int(math.Floor(pos)) - half
	if consumed < 0 {
		consumed = 0
	}
	if consumed > len(hist) {
		consumed = len(hist)
	}
	r.phase = pos - float64(consumed)
	keep := r.params.sincLen
	if consumed > len(hist)-keep {
		consumed = len(hist) - keep
	}
	if consumed < 0 {
		consumed = 0
	}
	r.history = append(r.history[:0], hist[consumed:]...)

	return out
}

// Reset clears carried-over history and phase so samples from an
// earlier stream do not blend into the next one. The capture
// processor does not call it on reconnect.
func (r *Resampler) Reset() {
	r.history = r.history[:0]
	r.phase = 0
}
