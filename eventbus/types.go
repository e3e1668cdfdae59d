// Package eventbus publishes session lifecycle and transcript events
// to the surrounding desktop shell over a gRPC stream, reusing the
// same JSON-over-gRPC codec trick the teacher uses to avoid a protoc
// build step.
package eventbus

// Event is one published notification. Name is one of the fixed event
// names the coordinator and transcription pool raise (e.g.
// "transcript-update", "speech-detected", "recording-saved",
// "transcript-chunk-loss-detected", "device-disconnect",
// "device-reconnect"); Payload carries whatever fields are relevant to
// that event.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}
