// Package transcription dispatches speech segments to a pluggable
// transcription backend and keeps strict sequence-ordered delivery of
// results.
package transcription

import "context"

// Result is what a provider returns for one segment.
type Result struct {
	Text       string
	Confidence float32
	IsPartial  bool
}

// Provider is the capability set a transcription backend must
// implement, modeled on the teacher's TranscriptionEngine interface in
// ai/engine.go: a minimal surface the pool can call without knowing
// anything about the concrete model behind it.
type Provider interface {
	// Transcribe runs inference on 16kHz mono float32 samples.
	Transcribe(ctx context.Context, samples []float32, language string) (Result, error)

	// IsModelLoaded reports whether the provider currently has a model
	// ready to serve requests.
	IsModelLoaded() bool

	// CurrentModel names the model identifier in use, or "" if none is
	// loaded.
	CurrentModel() string

	// ProviderName identifies the backend for logging and events.
	ProviderName() string
}
