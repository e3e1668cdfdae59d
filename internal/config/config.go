// Package config loads the core's flag-based configuration, mirroring
// the teacher's flag.String/flag.Bool/Load() construction (no viper,
// no env-var library).
package config

import (
	"flag"

	"sessioncore/eventbus"
)

// Config is the full set of session-recording options exposed on the
// command line.
type Config struct {
	DataDir  string
	GRPCAddr string
	TraceLog string

	MicDeviceName    string
	SystemDeviceName string
	CaptureSystem    bool

	Language           string
	TranscriptionModel string

	AutoSave          bool
	NoiseSuppression  bool
	NoiseModelPath    string
	HighPassCutoffHz  float64
	LoudnessNormalize bool
}

// Load parses command-line flags into a Config.
func Load() *Config {
	dataDir := flag.String("data", "data/sessions", "Directory for session data")
	grpcAddr := flag.String("grpc-addr", eventbus.DefaultAddr(), "gRPC event listen address (unix:/path/to.sock or npipe:\\\\.\\pipe\\name)")
	traceLog := flag.String("trace-log", "", "Optional file to tee log output to")

	micDevice := flag.String("mic-device", "", "Microphone device name (empty = system default)")
	systemDevice := flag.String("system-device", "", "System-audio device name (empty = auto-detect)")
	captureSystem := flag.Bool("capture-system", true, "Capture system audio in addition to the microphone")

	language := flag.String("language", "en", "Transcription language")
	transcriptionModel := flag.String("transcription-model", "", "Transcription provider model identifier")

	autoSave := flag.Bool("auto-save", true, "Persist audio checkpoints to disk in addition to transcripts")
	noiseSuppression := flag.Bool("noise-suppression", false, "Run microphone audio through the ONNX noise suppressor")
	noiseModelPath := flag.String("noise-model", "", "Path to the noise suppression ONNX model")
	highPassCutoff := flag.Float64("highpass-cutoff", 80, "Microphone high-pass filter cutoff, in Hz")
	loudnessNormalize := flag.Bool("loudness-normalize", true, "Apply EBU R128 loudness normalization to the microphone stream")

	flag.Parse()

	return &Config{
		DataDir:  *dataDir,
		GRPCAddr: *grpcAddr,
		TraceLog: *traceLog,

		MicDeviceName:    *micDevice,
		SystemDeviceName: *systemDevice,
		CaptureSystem:    *captureSystem,

		Language:           *language,
		TranscriptionModel: *transcriptionModel,

		AutoSave:          *autoSave,
		NoiseSuppression:  *noiseSuppression,
		NoiseModelPath:    *noiseModelPath,
		HighPassCutoffHz:  *highPassCutoff,
		LoudnessNormalize: *loudnessNormalize,
	}
}
