// Package saver implements crash-safe incremental on-disk persistence
// of a recording session: periodic MP3 checkpoints, always-on
// metadata/transcript files, and copy-codec finalize/recovery.
package saver

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// checkpointInterval is the accumulation cadence before a checkpoint
// is rotated to disk (spec: 30-second checkpoints).
const checkpointInterval = 30 * time.Second

const checkpointsDirName = ".checkpoints"
const finalAudioName = "full.mp3"

// Saver owns one session's on-disk state: it accepts mixed audio
// samples and transcript segments, rotates checkpoints every 30
// seconds, and finalizes into a single audio file plus metadata and
// transcript JSON.
type Saver struct {
	sessionDir     string
	checkpointsDir string
	autoSave       bool

	transcripts *TranscriptStore

	mu             sync.Mutex
	metadata       Metadata
	current        *checkpointEncoder
	checkpointIdx  int
	accumulatedDur time.Duration
	finalized      bool
}

// DeviceNames identifies the capture devices in use for a session, passed
// through to metadata.json's devices object. Either field may be left
// empty when that source was never opened.
type DeviceNames struct {
	Microphone  string
	SystemAudio string
}

// New creates the session directory (and, if autoSave is enabled, the
// checkpoints subdirectory) and writes the initial metadata.json.
// metadata.json and transcripts.json are always written regardless of
// autoSave; only the raw audio checkpoints are skipped when autoSave
// is false. The directory is named {sanitized session name}_{creation
// timestamp} per §6, not the raw sessionID, so the folder itself is a
// human-readable artifact a user can find on disk.
func New(baseDir, sessionID, title string, autoSave bool, devices DeviceNames) (*Saver, error) {
	createdAt := time.Now()
	sessionDir := filepath.Join(baseDir, sessionFolderName(title, createdAt))
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	s := &Saver{
		sessionDir: sessionDir,
		autoSave:   autoSave,
		metadata: Metadata{
			Version:        metadataVersion,
			SessionID:      sessionID,
			SessionName:    title,
			CreatedAt:      createdAt,
			Status:         StatusRecording,
			AutoSave:       autoSave,
			Devices:        Devices{Microphone: devices.Microphone, SystemAudio: devices.SystemAudio},
			TranscriptFile: "transcripts.json",
			SampleRate:     checkpointSampleRate,
		},
	}

	if autoSave {
		s.checkpointsDir = filepath.Join(sessionDir, checkpointsDirName)
		if err := os.MkdirAll(s.checkpointsDir, 0755); err != nil {
			return nil, fmt.Errorf("create checkpoints directory: %w", err)
		}
	}

	store, err := loadTranscriptStore(sessionDir)
	if err != nil {
		return nil, err
	}
	s.transcripts = store

	if err := writeMetadata(sessionDir, s.metadata); err != nil {
		return nil, err
	}
	return s, nil
}

// SessionDir returns the on-disk session folder, named per §6 rather
// than by the raw session ID.
func (s *Saver) SessionDir() string {
	return s.sessionDir
}

var nonFolderChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// sessionFolderName builds the {sanitized_session}_{YYYY-MM-DD_HH-MM}
// session folder name from the session title and its creation time.
func sessionFolderName(title string, createdAt time.Time) string {
	sanitized := strings.Trim(nonFolderChars.ReplaceAllString(title, "_"), "_")
	if sanitized == "" {
		sanitized = "session"
	}
	return fmt.Sprintf("%s_%s", sanitized, createdAt.Format("2006-01-02_15-04"))
}

// AppendAudio feeds mixed samples to the active checkpoint. When
// auto_save is disabled the samples are discarded at once, with no
// bookkeeping: transcripts are still produced from them upstream,
// only the raw audio is not retained.
func (s *Saver) AppendAudio(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return fmt.Errorf("saver already finalized")
	}
	if !s.autoSave {
		return nil
	}

	if s.current == nil {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	if err := s.current.write(samples); err != nil {
		return err
	}

	s.accumulatedDur += time.Duration(len(samples)) * time.Second / checkpointSampleRate
	if s.accumulatedDur >= checkpointInterval {
		return s.rotateLocked()
	}
	return nil
}

// rotateLocked closes the current checkpoint (if any) and opens the
// next one. Must be called with s.mu held.
func (s *Saver) rotateLocked() error {
	if s.current != nil {
		if err := s.current.close(); err != nil {
			return fmt.Errorf("close checkpoint %d: %w", s.checkpointIdx, err)
		}
	}
	s.checkpointIdx++
	path := filepath.Join(s.checkpointsDir, fmt.Sprintf("%06d.mp3", s.checkpointIdx))
	enc, err := newCheckpointEncoder(path)
	if err != nil {
		return err
	}
	s.current = enc
	s.accumulatedDur = 0
	return nil
}

// UpsertTranscript records or replaces a transcript segment and
// rewrites transcripts.json.
func (s *Saver) UpsertTranscript(seg TranscriptSegment) error {
	return s.transcripts.Upsert(seg)
}

// UpdateActiveDuration refreshes the pause/resume bookkeeping fields
// in metadata.json, generalized from the teacher's
// TotalDuration-on-save pattern.
func (s *Saver) UpdateActiveDuration(activeSeconds, pauseSeconds float64) error {
	s.mu.Lock()
	s.metadata.ActiveDurationS = activeSeconds
	s.metadata.TotalPauseS = pauseSeconds
	m := s.metadata
	s.mu.Unlock()
	return writeMetadata(s.sessionDir, m)
}

// Finalize stops accepting new audio, flushes the last checkpoint,
// concatenates every checkpoint's raw MP3 byte stream into a single
// full.mp3 (copy-codec concatenation: no decode/re-encode step, since
// every checkpoint was encoded with identical parameters), removes
// the checkpoints directory, and rewrites metadata.json with a
// completed status.
func (s *Saver) Finalize() error {
	return s.finalizeWithStatus(StatusCompleted)
}

// Fail finalizes the session the same way Finalize does, but marks
// metadata.json with status "error" instead of "completed" -- used
// when the coordinator is forced to stop by a fatal or
// threshold-exceeded device error rather than a user-requested stop.
func (s *Saver) Fail() error {
	return s.finalizeWithStatus(StatusError)
}

func (s *Saver) finalizeWithStatus(status Status) error {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return nil
	}
	s.finalized = true
	if s.current != nil {
		if err := s.current.close(); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("close final checkpoint: %w", err)
		}
		s.current = nil
	}
	s.mu.Unlock()

	audioFile := ""
	if s.autoSave {
		audioFile = finalAudioName
		if err := concatenateCheckpoints(s.checkpointsDir, filepath.Join(s.sessionDir, finalAudioName)); err != nil {
			return fmt.Errorf("concatenate checkpoints: %w", err)
		}
		if err := s.CleanupCheckpoints(); err != nil {
			log.Printf("saver: cleanup checkpoints for %s failed: %v", s.sessionDir, err)
		}
	}

	s.mu.Lock()
	s.metadata.Status = status
	completedAt := time.Now()
	s.metadata.CompletedAt = &completedAt
	s.metadata.AudioFile = audioFile
	duration := s.metadata.ActiveDurationS
	s.metadata.DurationSeconds = &duration
	m := s.metadata
	s.mu.Unlock()
	return writeMetadata(s.sessionDir, m)
}

// CleanupCheckpoints removes the checkpoints directory. It is
// idempotent: calling it when the directory is already gone is not an
// error.
func (s *Saver) CleanupCheckpoints() error {
	if s.checkpointsDir == "" {
		return nil
	}
	err := os.RemoveAll(s.checkpointsDir)
	if err != nil {
		return fmt.Errorf("remove checkpoints directory: %w", err)
	}
	return nil
}

// concatenateCheckpoints appends every checkpoint file's raw bytes, in
// filename order, into a single output file.
func concatenateCheckpoints(checkpointsDir, outPath string) error {
	entries, err := os.ReadDir(checkpointsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read checkpoints directory: %w", err)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create final audio file: %w", err)
	}
	defer out.Close()

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mp3" {
			continue
		}
		if err := appendFile(out, filepath.Join(checkpointsDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func appendFile(dst *os.File, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open checkpoint %s: %w", srcPath, err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy checkpoint %s: %w", srcPath, err)
	}
	return nil
}

// RecoveryResult summarizes what Recover found for an interrupted
// session.
type RecoveryResult struct {
	Status            Status
	ChunkCount         int
	EstimatedDuration  time.Duration
	Message            string
}

// Recover inspects sessionDir for an interrupted recording (status
// still "recording" with an orphaned checkpoints directory) and, if
// found, merges the checkpoints into full.mp3 the same way Finalize
// would, then marks the session completed. This mirrors the teacher's
// Manager.LoadSessions startup scan, applied to checkpoint files
// instead of chunk files.
func Recover(sessionDir string) (RecoveryResult, error) {
	meta, err := readMetadata(sessionDir)
	if err != nil {
		return RecoveryResult{}, err
	}

	checkpointsDir := filepath.Join(sessionDir, checkpointsDirName)
	entries, err := os.ReadDir(checkpointsDir)
	if err != nil && !os.IsNotExist(err) {
		return RecoveryResult{}, fmt.Errorf("read checkpoints directory: %w", err)
	}

	chunkCount := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".mp3" {
			chunkCount++
		}
	}

	if meta.Status != StatusRecording || chunkCount == 0 {
		return RecoveryResult{
			Status:  meta.Status,
			Message: "no orphaned checkpoints to recover",
		}, nil
	}

	outPath := filepath.Join(sessionDir, finalAudioName)
	if err := concatenateCheckpoints(checkpointsDir, outPath); err != nil {
		return RecoveryResult{}, fmt.Errorf("recover checkpoints: %w", err)
	}
	if err := os.RemoveAll(checkpointsDir); err != nil {
		log.Printf("saver: recovery cleanup of %s failed: %v", checkpointsDir, err)
	}

	meta.Status = StatusCompleted
	completedAt := time.Now()
	meta.CompletedAt = &completedAt
	meta.AudioFile = finalAudioName
	duration := estimateDuration(chunkCount).Seconds()
	meta.DurationSeconds = &duration
	if err := writeMetadata(sessionDir, meta); err != nil {
		return RecoveryResult{}, err
	}

	return RecoveryResult{
		Status:            StatusCompleted,
		ChunkCount:        chunkCount,
		EstimatedDuration: estimateDuration(chunkCount),
		Message:           fmt.Sprintf("recovered %d orphaned checkpoint(s)", chunkCount),
	}, nil
}

// estimateDuration gives the recovery summary's duration estimate: each
// checkpoint but the last holds a full 30s (the last is rotated out
// early by whatever audio had accumulated before the crash, but
// without decoding it there is no cheaper way to know its true length
// than to assume the same 30s as every other checkpoint).
func estimateDuration(chunkCount int) time.Duration {
	return time.Duration(chunkCount) * checkpointInterval
}
