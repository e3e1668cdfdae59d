package vad

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// minGuardedSamplesMs is the input duration below which the ONNX model
// isn't trusted to produce a meaningful probability (too little
// context), so an RMS/peak energy guard decides instead (§4.4).
const minGuardedSamplesMs = 100

// MinGuardedSamples converts the 100ms threshold into a sample count
// at the given sample rate.
func MinGuardedSamples(sampleRate int) int {
	return sampleRate * minGuardedSamplesMs / 1000
}

// IsSilentByEnergy implements the silence guard: an input is
// classified as silence when its RMS and peak amplitude fall under the
// fixed thresholds AND its spectrum is flat (no single band
// dominates). It does not check the input's length against
// MinGuardedSamples; the coordinator runs it on every downsampled
// mixing window before the ONNX model. The flatness check uses the
// same
// power-spectrum construction the VAD model's own feature front-end
// uses (FFT -> per-bin power), applied here as a cheap pre-check
// rather than a full mel filterbank.
func IsSilentByEnergy(samples []float32) bool {
	const rmsThreshold = 0.2
	const peakThreshold = 0.20
	// A single un-averaged periodogram is noisy by nature (its bins are
	// roughly chi-square distributed), so even genuine broadband noise
	// lands well below 1.0 -- in practice around 0.55-0.65. A tonal
	// signal concentrates nearly all its energy in one or two bins and
	// lands far lower, around 0.1-0.3. 0.35 separates the two with
	// margin on both sides.
	const flatnessThreshold = 0.35

	if len(samples) == 0 {
		return true
	}

	var sumSquares float64
	var peak float32
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
		if abs := float32(math.Abs(float64(s))); abs > peak {
			peak = abs
		}
	}
	rms := math.Sqrt(sumSquares / float64(len(samples)))

	if rms >= rmsThreshold || peak >= peakThreshold {
		return false
	}

	// Below this many samples the FFT's frequency resolution is too
	// coarse for the flatness ratio to mean anything; fall back to the
	// RMS/peak verdict alone.
	const minSpectralSamples = 64
	if len(samples) < minSpectralSamples {
		return true
	}
	return spectralFlatness(samples) >= flatnessThreshold
}

// spectralFlatness is the ratio of the geometric mean to the
// arithmetic mean of the power spectrum: 1.0 for digital silence,
// around 0.55-0.65 for broadband noise (see flatnessThreshold above),
// much lower for tonal or speech-like content. Used as
// a second opinion alongside the RMS/peak guard above so a quiet but
// clearly tonal signal (e.g. a faint ring tone) is never misclassified
// as silence.
func spectralFlatness(samples []float32) float64 {
	n := len(samples)
	data := make([]float64, n)
	for i, s := range samples {
		data[i] = float64(s)
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, data)

	bins := n/2 + 1
	power := make([]float64, bins)
	var sumLog, sumLinear float64
	for i := 0; i < bins; i++ {
		re, im := real(coeffs[i]), imag(coeffs[i])
		p := re*re + im*im
		if p < 1e-12 {
			p = 1e-12
		}
		power[i] = p
		sumLog += math.Log(p)
		sumLinear += p
	}

	geoMean := math.Exp(sumLog / float64(bins))
	arithMean := sumLinear / float64(bins)
	if arithMean <= 0 {
		return 1
	}
	return geoMean / arithMean
}
