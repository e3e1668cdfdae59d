// Package coordinator owns the session lifecycle state machine and
// wires together the audio, pipeline, vad, transcription, and saver
// packages into one running recording session.
package coordinator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Phase is one state in the session lifecycle (spec §5).
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRecording
	PhasePaused
	PhaseReconnecting
	PhaseStopping
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRecording:
		return "recording"
	case PhasePaused:
		return "paused"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseStopping:
		return "stopping"
	case PhaseFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// maxConsecutiveRecoverableErrors is the threshold past which the
// coordinator gives up reconnecting and moves to Stopping, per §7
// ("10 recoverables" before forcing Stopping).
const maxConsecutiveRecoverableErrors = 10

// RecordingState is the single shared mutable aggregate for one
// session: a mix of lock-free atomic scalars for fields read on hot
// paths (phase, error streak) and a narrower mutex for the bookkeeping
// fields that change together (pause/resume timestamps), mirroring the
// teacher's Session type's combination of a RWMutex with plain fields.
type RecordingState struct {
	phase              atomic.Int32
	consecutiveErrors  atomic.Int32

	mu              sync.Mutex
	startedAt       time.Time
	pausedAt        time.Time
	totalPause      time.Duration
	lastDeviceError error
}

// NewRecordingState builds a state in PhaseIdle.
func NewRecordingState() *RecordingState {
	s := &RecordingState{}
	s.phase.Store(int32(PhaseIdle))
	return s
}

// Phase returns the current lifecycle phase.
func (s *RecordingState) Phase() Phase {
	return Phase(s.phase.Load())
}

// setPhase transitions unconditionally; callers are expected to only
// call this through the Coordinator's event handlers, which already
// validate the transition is legal.
func (s *RecordingState) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// MarkStarted records the session start time, used as the base for
// active-duration accounting.
func (s *RecordingState) MarkStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startedAt = time.Now()
}

// MarkPaused records the moment a pause began.
func (s *RecordingState) MarkPaused() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pausedAt = time.Now()
}

// MarkResumed folds the just-ended pause into the running total.
func (s *RecordingState) MarkResumed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pausedAt.IsZero() {
		s.totalPause += time.Since(s.pausedAt)
		s.pausedAt = time.Time{}
	}
}

// Durations returns the active recording duration (wall-clock minus
// total paused time) and the total paused time, both in seconds, for
// persistence into session metadata.
func (s *RecordingState) Durations() (activeSeconds, pauseSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0, 0
	}
	pause := s.totalPause
	if !s.pausedAt.IsZero() {
		pause += time.Since(s.pausedAt)
	}
	elapsed := time.Since(s.startedAt)
	active := elapsed - pause
	if active < 0 {
		active = 0
	}
	return active.Seconds(), pause.Seconds()
}

// RecordDeviceError increments the consecutive recoverable-error
// streak and returns whether the threshold has now been exceeded.
func (s *RecordingState) RecordDeviceError(err error) (exceeded bool) {
	s.mu.Lock()
	s.lastDeviceError = err
	s.mu.Unlock()
	n := s.consecutiveErrors.Add(1)
	return n > maxConsecutiveRecoverableErrors
}

// ResetErrorStreak clears the consecutive-error counter, called on any
// successful reconnect.
func (s *RecordingState) ResetErrorStreak() {
	s.consecutiveErrors.Store(0)
}

// LastDeviceError returns the most recently recorded device error, or
// nil.
func (s *RecordingState) LastDeviceError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDeviceError
}
