// Package providers holds concrete Provider implementations. The STT
// model itself is out of scope (spec.md Non-goals); OnDevice exists so
// the pool has a real, loadable implementation to exercise and test
// against rather than requiring callers to hand-write a mock for every
// integration point, the same role ai.TranscriptionEngine's whisper/
// gigaam implementations play for the teacher's engine manager.
package providers

import (
	"context"
	"fmt"
	"sync"

	"sessioncore/transcription"
)

var _ transcription.Provider = (*OnDevice)(nil)

// OnDevice is a Provider backed by a locally loaded model path. The
// actual inference call is left to a pluggable function so tests can
// exercise the pool without a real model file, and so a genuine
// on-device backend can be wired in later without touching the pool.
type OnDevice struct {
	mu        sync.RWMutex
	modelPath string
	loaded    bool
	infer     func(samples []float32, language string) (transcription.Result, error)
}

// NewOnDevice builds a provider with no model loaded. infer is called
// for each Transcribe request once a model has been loaded via Load;
// passing nil uses a deterministic placeholder suitable for tests.
func NewOnDevice(infer func(samples []float32, language string) (transcription.Result, error)) *OnDevice {
	if infer == nil {
		infer = placeholderInfer
	}
	return &OnDevice{infer: infer}
}

// Load marks a model as ready to serve requests.
func (o *OnDevice) Load(modelPath string) error {
	if modelPath == "" {
		return fmt.Errorf("model path must not be empty")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.modelPath = modelPath
	o.loaded = true
	return nil
}

// Unload clears the currently loaded model, causing subsequent
// requests to fail with ModelNotLoaded at the pool level.
func (o *OnDevice) Unload() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loaded = false
	o.modelPath = ""
}

func (o *OnDevice) Transcribe(ctx context.Context, samples []float32, language string) (transcription.Result, error) {
	select {
	case <-ctx.Done():
		return transcription.Result{}, ctx.Err()
	default:
	}
	return o.infer(samples, language)
}

func (o *OnDevice) IsModelLoaded() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.loaded
}

func (o *OnDevice) CurrentModel() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.modelPath
}

func (o *OnDevice) ProviderName() string { return "on-device" }

func placeholderInfer(samples []float32, _ string) (transcription.Result, error) {
	return transcription.Result{Text: "", Confidence: 0, IsPartial: false}, fmt.Errorf("no inference backend wired for %d samples", len(samples))
}
