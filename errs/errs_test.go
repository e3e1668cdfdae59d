package errs

import (
	"errors"
	"testing"
)

func TestRecoverable(t *testing.T) {
	recoverable := []Kind{DeviceDisconnected, StreamFailed, ProcessingFailed, BufferOverflow, TranscriptionFailed}
	for _, k := range recoverable {
		if !k.Recoverable() {
			t.Errorf("Kind %d should be recoverable", k)
		}
	}

	fatal := []Kind{PermissionDenied, SampleRateUnsupported, InitializationFailed, ConfigurationError, ChannelClosed, AudioTooShort, ModelNotLoaded}
	for _, k := range fatal {
		if k.Recoverable() {
			t.Errorf("Kind %d should not be recoverable", k)
		}
	}
}

func TestErrorWrapsAndUnwraps(t *testing.T) {
	cause := errors.New("device vanished")
	e := New(DeviceDisconnected, cause)

	if !errors.Is(e, cause) {
		t.Errorf("errors.Is should find the wrapped cause")
	}
	if e.Error() == "" {
		t.Errorf("Error() should not be empty")
	}
}

func TestErrorWithNilCauseUsesMessageOnly(t *testing.T) {
	e := New(ModelNotLoaded, nil)
	if e.Error() != ModelNotLoaded.Message() {
		t.Errorf("Error() = %q, want %q", e.Error(), ModelNotLoaded.Message())
	}
}
