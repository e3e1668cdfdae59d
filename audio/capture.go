package audio

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"sessioncore/dsp"
)

// Batch is one native-format-decoded, resampled, and (for the
// microphone) enhanced slice of 48kHz mono float32 samples delivered
// from a single source.
type Batch struct {
	Source     Kind
	Samples    []float32
	CapturedAt time.Time
}

// BatchHandler receives batches from a Processor. It must not block
// for long: the malgo callback thread that ultimately calls it is
// shared with device I/O.
type BatchHandler func(Batch)

// ErrorHandler receives capture-layer failures classified by ErrorKind.
type ErrorHandler func(Kind, *Error)

// EnhancementConfig controls the microphone-only enhancement chain
// (§4.2): high-pass, optional noise suppression, and loudness
// normalization with a true-peak limiter. System audio never runs
// through this chain.
type EnhancementConfig struct {
	HighPassCutoffHz  float64
	NoiseSuppression  bool
	NoiseModelPath    string
	LoudnessNormalize bool
}

// DefaultEnhancementConfig matches the values named in §4.2.
func DefaultEnhancementConfig() EnhancementConfig {
	return EnhancementConfig{
		HighPassCutoffHz:  80,
		NoiseSuppression:  false,
		LoudnessNormalize: true,
	}
}

// Processor owns one malgo capture device and turns its native-format
// callback frames into a stream of 48kHz mono Batches, applying a
// persistent resampler created once at Start (never per-chunk, so its
// phase state carries across the whole stream) and, for the
// microphone source, the enhancement chain.
type Processor struct {
	kind   Kind
	device *malgo.Device

	resampler  *dsp.Resampler
	highPass   *dsp.HighPass
	suppressor *dsp.NoiseSuppressor
	loudness   *dsp.LoudnessNormalizer

	onBatch BatchHandler
	onError ErrorHandler

	mu      sync.Mutex
	running bool
}

// NewMicrophoneProcessor builds a processor for the microphone source
// with the enhancement chain wired per cfg.
func NewMicrophoneProcessor(cfg EnhancementConfig, onBatch BatchHandler, onError ErrorHandler) (*Processor, error) {
	p := &Processor{kind: KindMicrophone, onBatch: onBatch, onError: onError}
	p.highPass = dsp.NewHighPass(cfg.HighPassCutoffHz)
	if cfg.LoudnessNormalize {
		p.loudness = dsp.NewLoudnessNormalizer()
	}
	if cfg.NoiseSuppression {
		suppressor, err := dsp.NewNoiseSuppressor(cfg.NoiseModelPath)
		if err != nil {
			return nil, NewError(ErrInitializationFailed, err)
		}
		p.suppressor = suppressor
	}
	return p, nil
}

// NewSystemAudioProcessor builds a processor for the system-audio
// source. System audio is never run through the microphone
// enhancement chain (§4.2).
func NewSystemAudioProcessor(onBatch BatchHandler, onError ErrorHandler) *Processor {
	return &Processor{kind: KindSystemAudio, onBatch: onBatch, onError: onError}
}

// Start opens the device and begins delivering batches. nativeRate and
// channels describe the format malgo negotiated for this device.
func (p *Processor) Start(ctx *malgo.AllocatedContext, deviceID malgo.DeviceID, nativeRate, channels uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	if nativeRate != pipelineRate {
		p.resampler = dsp.NewResampler(int(nativeRate))
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = nativeRate
	deviceConfig.Capture.DeviceID = deviceID.Pointer()

	onRecv := func(_, input []byte, frameCount uint32) {
		samples := decodeFloat32LE(input, int(frameCount)*int(channels))
		mono := downmix(samples, int(channels))
		p.deliver(mono)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecv,
		Stop: func() {
			p.reportError(NewError(ErrDeviceDisconnected, fmt.Errorf("%s device stopped", p.kind)))
		},
	})
	if err != nil {
		return NewError(ErrInitializationFailed, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return NewError(ErrStreamFailed, err)
	}

	p.device = device
	p.running = true
	log.Printf("audio: started %s capture at %d Hz, %d channel(s)", p.kind, nativeRate, channels)
	return nil
}

// deliver runs the resampler (mic and system) and the enhancement
// chain (mic only) before invoking the batch handler.
func (p *Processor) deliver(samples []float32) {
	if p.resampler != nil {
		samples = p.resampler.Process(samples)
	}
	if len(samples) == 0 {
		return
	}

	if p.kind == KindMicrophone {
		samples = p.highPass.Process(samples)
		if p.suppressor != nil {
			denoised, err := p.suppressor.Process(samples)
			if err != nil {
				p.reportError(NewError(ErrProcessingFailed, err))
			} else {
				samples = denoised
			}
		}
		if p.loudness != nil {
			samples = p.loudness.Process(samples)
		}
	}

	p.onBatch(Batch{Source: p.kind, Samples: samples, CapturedAt: time.Now()})
}

func (p *Processor) reportError(err *Error) {
	if p.onError != nil {
		p.onError(p.kind, err)
	}
}

// Stop uninitializes the device. Any samples still held in the
// loudness normalizer's lookahead buffer are flushed through the
// handler first so the microphone enhancement chain never silently
// drops its tail.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.device.Uninit()
	p.running = false

	if p.loudness != nil {
		if tail := p.loudness.Flush(); len(tail) > 0 {
			p.onBatch(Batch{Source: p.kind, Samples: tail, CapturedAt: time.Now()})
		}
	}
	if p.suppressor != nil {
		p.suppressor.Close()
	}
}

const pipelineRate = 48000

// decodeFloat32LE decodes little-endian IEEE-754 float32 samples from
// a raw byte buffer, matching the teacher's manual float32frombits
// decode in the malgo callback.
func decodeFloat32LE(buf []byte, numSamples int) []float32 {
	out := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		off := i * 4
		if off+4 > len(buf) {
			break
		}
		bits := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// downmix averages interleaved channels down to mono, using only the
// first min(channels, 2) channels: microphone arrays with more than
// two channels may carry anti-phase auxiliary beamforming channels
// that must not be folded into the average (§4.2 step 2). A single
// channel is returned unchanged.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	used := channels
	if used > 2 {
		used = 2
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < used; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(used)
	}
	return out
}
