package pipeline

import "math"

// DefaultSysWeight is the default system-audio scale applied before
// mixing. Configurable via MixWeighted; plain Mix always uses this
// default.
const DefaultSysWeight = 1.0

// Mix combines one mixing window's worth of mic and system-audio
// samples with soft-clip protection: where the raw sum would exceed
// the [-1, 1] range, the sample is instead divided by its own
// magnitude so amplitude never clips but intelligibility of both
// streams is preserved.
func Mix(mic, sys []float32) []float32 {
	return MixWeighted(mic, sys, DefaultSysWeight)
}

// MixWeighted is Mix with an explicit system-audio weight, letting
// callers tune how much system audio contributes to the mix relative
// to the microphone.
func MixWeighted(mic, sys []float32, sysWeight float32) []float32 {
	n := len(mic)
	if len(sys) > n {
		n = len(sys)
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var m, s float32
		if i < len(mic) {
			m = mic[i]
		}
		if i < len(sys) {
			s = sys[i]
		}
		sum := m + s*sysWeight
		if abs := float32(math.Abs(float64(sum))); abs > 1 {
			sum /= abs
		}
		out[i] = sum
	}
	return out
}
