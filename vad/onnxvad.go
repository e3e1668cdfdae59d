// Package vad implements streaming voice-activity detection: a
// Silero-style ONNX frame classifier, an energy-based fallback for
// very short inputs, and the speech-segment state machine that turns
// per-frame probabilities into start/end boundaries.
package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"sessioncore/dsp"
)

// FrameSamples is the window size the ONNX model consumes at 16kHz
// (30ms), in place of the teacher's Silero wrapper's 512-sample (32ms)
// window.
const FrameSamples = 480

const vadSampleRate = 16000
const contextSamples = 64
const stateSize = 2 * 1 * 128

// OnnxVAD runs the Silero-style recurrent frame classifier. A single
// instance carries its LSTM hidden state and a small rolling context
// buffer across calls, matching ai/silero_vad.go's ProcessChunk
// pattern in the teacher repo.
type OnnxVAD struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	state   []float32
	context []float32
}

// NewOnnxVAD loads the VAD model at modelPath.
func NewOnnxVAD(modelPath string) (*OnnxVAD, error) {
	if err := dsp.InitONNXRuntime(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create vad session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options)
	if err != nil {
		return nil, fmt.Errorf("create vad session: %w", err)
	}

	return &OnnxVAD{
		session: session,
		state:   make([]float32, stateSize),
		context: make([]float32, contextSamples),
	}, nil
}

// Reset clears carried-over LSTM state and context so earlier audio
// does not influence the next probability produced. The coordinator
// does not call it; it builds a new OnnxVAD for each session.
func (v *OnnxVAD) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.state {
		v.state[i] = 0
	}
	for i := range v.context {
		v.context[i] = 0
	}
}

// ProcessFrame returns the speech probability for one FrameSamples
// window at 16kHz.
func (v *OnnxVAD) ProcessFrame(samples []float32) (float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	input := make([]float32, len(v.context)+len(samples))
	copy(input, v.context)
	copy(input[len(v.context):], samples)

	if len(samples) >= contextSamples {
		copy(v.context, samples[len(samples)-contextSamples:])
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("build vad input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	stateTensor, err := ort.NewTensor(ort.NewShape(2, 1, 128), append([]float32{}, v.state...))
	if err != nil {
		return 0, fmt.Errorf("build vad state tensor: %w", err)
	}
	defer stateTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{vadSampleRate})
	if err != nil {
		return 0, fmt.Errorf("build vad sr tensor: %w", err)
	}
	defer srTensor.Destroy()

	outputs := []ort.Value{nil, nil}
	if err := v.session.Run([]ort.Value{inputTensor, stateTensor, srTensor}, outputs); err != nil {
		return 0, fmt.Errorf("run vad session: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor := outputs[0].(*ort.Tensor[float32])
	stateNTensor := outputs[1].(*ort.Tensor[float32])
	copy(v.state, stateNTensor.GetData())

	out := outputTensor.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("vad session returned no output")
	}
	return out[0], nil
}

// Close releases the ONNX session.
func (v *OnnxVAD) Close() {
	if v.session != nil {
		v.session.Destroy()
	}
}

// Downsample48to16 converts 48kHz mono samples to 16kHz using a
// boxcar (moving-average) pre-filter followed by linear
// interpolation, the lightweight resampling approach §4.4 names for
// feeding the VAD model (as opposed to the full windowed-sinc
// resampler the capture layer uses for its output stream).
func Downsample48to16(in []float32) []float32 {
	const ratio = 3
	if len(in) < ratio {
		return nil
	}
	filtered := make([]float32, len(in))
	for i := range in {
		var sum float32
		count := 0
		for k := -1; k <= 1; k++ {
			idx := i + k
			if idx >= 0 && idx < len(in) {
				sum += in[idx]
				count++
			}
		}
		filtered[i] = sum / float32(count)
	}

	outLen := len(filtered) / ratio
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		out[i] = filtered[i*ratio]
	}
	return out
}
