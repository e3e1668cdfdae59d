package dsp

import (
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// HighPass is a first-order IIR high-pass filter, the same RC/alpha
// construction as the teacher's audio_filters.go high-pass stage,
// generalized to a configurable cutoff (the microphone enhancement
// chain uses 80 Hz per §4.2).
type HighPass struct {
	alpha  float64
	prevIn float64
	prevOut float64
	init   bool
}

// NewHighPass builds a high-pass filter for the given cutoff at
// pipelineRate.
func NewHighPass(cutoffHz float64) *HighPass {
	dt := 1.0 / float64(pipelineRate)
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	return &HighPass{alpha: rc / (rc + dt)}
}

// Process filters samples in place order, returning a new slice.
func (h *HighPass) Process(in []float32) []float32 {
	out := make([]float32, len(in))
	for i, x := range in {
		xf := float64(x)
		if !h.init {
			h.prevIn = xf
			h.prevOut = 0
			h.init = true
		}
		y := h.alpha * (h.prevOut + xf - h.prevIn)
		out[i] = float32(y)
		h.prevIn = xf
		h.prevOut = y
	}
	return out
}

// NoiseSuppressor runs an RNNoise-class denoising model over 10ms
// (480-sample at 48kHz) frames, carrying its recurrent state across
// calls the same way the vad package's Silero session carries LSTM
// state between ProcessChunk invocations.
type NoiseSuppressor struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	state   []float32
	frame   int
}

const noiseSuppressorFrame = 480 // 10ms @ 48kHz
const noiseSuppressorStateSize = 2 * 1 * 128

// NewNoiseSuppressor loads the denoising model and allocates its
// recurrent state. modelPath is supplied by configuration; spec.md
// treats the model artifact itself as out of scope, so this only
// wires the runtime session, not a bundled model.
func NewNoiseSuppressor(modelPath string) (*NoiseSuppressor, error) {
	if err := InitONNXRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input_frame", "input_state"},
		[]string{"output_frame", "output_state"},
		options)
	if err != nil {
		return nil, fmt.Errorf("create noise suppressor session: %w", err)
	}

	return &NoiseSuppressor{
		session: session,
		state:   make([]float32, noiseSuppressorStateSize),
		frame:   noiseSuppressorFrame,
	}, nil
}

// Process denoises one or more 10ms frames. Input not a multiple of
// the frame size is denoised frame-by-frame and any remainder is
// passed through unfiltered; the remainder is not buffered for the
// next call. The capture processor hands over blocks of whatever size
// the device callback and resampler produce, so those blocks need not
// be frame-aligned.
func (n *NoiseSuppressor) Process(in []float32) ([]float32, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]float32, 0, len(in))
	for i := 0; i+n.frame <= len(in); i += n.frame {
		frame := in[i : i+n.frame]
		denoised, err := n.runFrame(frame)
		if err != nil {
			return nil, err
		}
		out = append(out, denoised...)
	}
	if rem := len(in) % n.frame; rem != 0 {
		out = append(out, in[len(in)-rem:]...)
	}
	return out, nil
}

func (n *NoiseSuppressor) runFrame(frame []float32) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(n.frame)), append([]float32{}, frame...))
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), append([]float32{}, n.state...))
	if err != nil {
		return nil, fmt.Errorf("build state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := n.session.Run([]ort.Value{inputTensor, stateTensor}, outputs); err != nil {
		return nil, fmt.Errorf("run noise suppressor session: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor := outputs[0].(*ort.Tensor[float32])
	outStateTensor := outputs[1].(*ort.Tensor[float32])
	copy(n.state, outStateTensor.GetData())

	result := make([]float32, n.frame)
	copy(result, outputTensor.GetData())
	return result, nil
}

// Close releases the ONNX session.
func (n *NoiseSuppressor) Close() {
	if n.session != nil {
		n.session.Destroy()
	}
}

// LoudnessNormalizer implements a streaming EBU R128 style integrated
// loudness gain control with a true-peak limiter, the enhancement
// chain's final stage (§4.2). It is stateful: the gain it settles on
// is never reset mid-session, only recomputed as new energy accumulates,
// matching the teacher's "apply filters once per stream, not once per
// chunk" approach in audio_filters.go.
type LoudnessNormalizer struct {
	targetLUFS   float64
	ceilingDBFS  float64
	sumSquares   float64
	sampleCount  int64
	gain         float64
	lookahead    []float32 // 10ms lookahead buffer for the true-peak limiter
	lookaheadLen int
}

const defaultTargetLUFS = -23.0
const defaultCeilingDBFS = -1.0

// NewLoudnessNormalizer builds a normalizer targeting -23 LUFS
// integrated loudness with a -1 dBFS true-peak ceiling, the values
// spec.md names for the microphone enhancement chain.
func NewLoudnessNormalizer() *LoudnessNormalizer {
	lookaheadLen := pipelineRate / 100 // 10ms
	return &LoudnessNormalizer{
		targetLUFS:   defaultTargetLUFS,
		ceilingDBFS:  defaultCeilingDBFS,
		gain:         1.0,
		lookahead:    make([]float32, 0, lookaheadLen),
		lookaheadLen: lookaheadLen,
	}
}

// updateGain accumulates mean-square energy and recomputes the gain
// target every 512 samples, per §4.2; the gain is smoothed rather than
// snapped to avoid audible pumping.
func (l *LoudnessNormalizer) updateGain(block []float32) {
	for _, s := range block {
		l.sumSquares += float64(s) * float64(s)
	}
	l.sampleCount += int64(len(block))
	if l.sampleCount == 0 {
		return
	}
	meanSquare := l.sumSquares / float64(l.sampleCount)
	if meanSquare <= 0 {
		return
	}
	lufs := -0.691 + 10*math.Log10(meanSquare)
	targetGainDB := l.targetLUFS - lufs
	targetGain := math.Pow(10, targetGainDB/20)

	// Exponential smoothing toward the new target so gain changes are
	// gradual across the life of the session.
	const smoothing = 0.02
	l.gain = l.gain + smoothing*(targetGain-l.gain)
}

// Process applies the current gain and a lookahead true-peak limiter.
func (l *LoudnessNormalizer) Process(in []float32) []float32 {
	const updateEvery = 512
	out := make([]float32, 0, len(in))

	for i := 0; i < len(in); i += updateEvery {
		end := i + updateEvery
		if end > len(in) {
			end = len(in)
		}
		block := in[i:end]
		l.updateGain(block)

		for _, s := range block {
			gained := float64(s) * l.gain
			l.lookahead = append(l.lookahead, float32(gained))
			if len(l.lookahead) > l.lookaheadLen {
				out = append(out, l.limit(l.lookahead[0]))
				l.lookahead = l.lookahead[1:]
			}
		}
	}
	return out
}

// limit clamps a sample to the configured true-peak ceiling.
func (l *LoudnessNormalizer) limit(s float32) float32 {
	ceiling := float32(math.Pow(10, l.ceilingDBFS/20))
	if s > ceiling {
		return ceiling
	}
	if s < -ceiling {
		return -ceiling
	}
	return s
}

// Flush drains any samples still held in the lookahead buffer, called
// when the enhancement chain shuts down.
func (l *LoudnessNormalizer) Flush() []float32 {
	out := make([]float32, len(l.lookahead))
	for i, s := range l.lookahead {
		out[i] = l.limit(s)
	}
	l.lookahead = l.lookahead[:0]
	return out
}
