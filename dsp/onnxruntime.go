package dsp

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	onnxInitMu   sync.Mutex
	onnxInitDone bool
)

// InitONNXRuntime locates and loads the ONNX Runtime shared library and
// initializes the global environment. It is idempotent and safe to
// call from both the noise suppressor and the vad package, since both
// share a single process-wide ONNX Runtime environment.
func InitONNXRuntime() error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()
	if onnxInitDone {
		return nil
	}

	libPath, err := locateSharedLibrary()
	if err != nil {
		return fmt.Errorf("locate onnxruntime shared library: %w", err)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime environment: %w", err)
	}

	onnxInitDone = true
	return nil
}

func locateSharedLibrary() (string, error) {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"../Resources/libonnxruntime.dylib",
			"./libonnxruntime.dylib",
			"./third_party/onnxruntime/lib/libonnxruntime.dylib",
		}
	case "windows":
		candidates = []string{
			"./onnxruntime.dll",
			"./third_party/onnxruntime/lib/onnxruntime.dll",
		}
	default:
		candidates = []string{
			"./libonnxruntime.so",
			"./third_party/onnxruntime/lib/libonnxruntime.so",
			"/usr/lib/libonnxruntime.so",
		}
	}

	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return abs, nil
		}
	}

	return "", fmt.Errorf("no onnxruntime shared library found in candidate paths, set ONNXRUNTIME_SHARED_LIBRARY_PATH")
}
