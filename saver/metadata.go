package saver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is the on-disk session lifecycle marker, independent of (but
// derived from) the coordinator's in-memory state machine.
type Status string

const (
	StatusRecording Status = "recording"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

const metadataVersion = "1.0"

// Devices records the device identities in use for this session, each
// omitted when that source was never opened (e.g. system audio
// disabled).
type Devices struct {
	Microphone  string `json:"microphone,omitempty"`
	SystemAudio string `json:"system_audio,omitempty"`
}

// Metadata is the persisted session record, written to
// metadata.json on every meaningful change and always present even
// when auto_save is disabled and no audio is kept.
type Metadata struct {
	Version         string     `json:"version"`
	SessionID       string     `json:"session_id"`
	SessionName     string     `json:"session_name"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	Devices         Devices    `json:"devices"`
	AudioFile       string     `json:"audio_file"`
	TranscriptFile  string     `json:"transcript_file"`
	SampleRate      int        `json:"sample_rate"`
	Status          Status     `json:"status"`

	AutoSave        bool    `json:"-"`
	ActiveDurationS float64 `json:"-"`
	TotalPauseS     float64 `json:"-"`
}

func metadataPath(sessionDir string) string {
	return filepath.Join(sessionDir, "metadata.json")
}

// writeMetadata persists m atomically: write to a .tmp path, then
// rename over the final path, generalized from the teacher's
// Manager.SaveSessionMeta write idiom so a crash mid-write never
// leaves a half-written metadata.json behind.
func writeMetadata(sessionDir string, m Metadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	finalPath := metadataPath(sessionDir)
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write metadata tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("rename metadata tmp file: %w", err)
	}
	return nil
}

// readMetadata loads a previously persisted metadata.json, used by the
// recovery path.
func readMetadata(sessionDir string) (Metadata, error) {
	data, err := os.ReadFile(metadataPath(sessionDir))
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}
