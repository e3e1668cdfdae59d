package audio

import "sessioncore/errs"

// Re-exported so callers that only touch the audio package don't need
// a separate import for the shared error taxonomy.
type ErrorKind = errs.Kind
type Error = errs.Error

const (
	ErrDeviceDisconnected    = errs.DeviceDisconnected
	ErrStreamFailed          = errs.StreamFailed
	ErrProcessingFailed      = errs.ProcessingFailed
	ErrBufferOverflow        = errs.BufferOverflow
	ErrPermissionDenied      = errs.PermissionDenied
	ErrSampleRateUnsupported = errs.SampleRateUnsupported
	ErrInitializationFailed  = errs.InitializationFailed
	ErrConfigurationError    = errs.ConfigurationError
	ErrChannelClosed         = errs.ChannelClosed
)

// NewError wraps err with kind.
func NewError(kind ErrorKind, err error) *Error {
	return errs.New(kind, err)
}
