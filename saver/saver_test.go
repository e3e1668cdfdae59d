package saver

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaverAutoSaveDisabledKeepsTranscriptsDropsAudio(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-1", "demo", false, DeviceNames{Microphone: "Built-in Mic"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.AppendAudio(make([]float32, 4800)); err != nil {
		t.Fatalf("AppendAudio: %v", err)
	}
	if err := s.UpsertTranscript(TranscriptSegment{SequenceID: 0, Text: "hello"}); err != nil {
		t.Fatalf("UpsertTranscript: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sessionDir := s.SessionDir()
	if _, err := os.Stat(filepath.Join(sessionDir, "metadata.json")); err != nil {
		t.Errorf("metadata.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(sessionDir, "transcripts.json")); err != nil {
		t.Errorf("transcripts.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(sessionDir, finalAudioName)); !os.IsNotExist(err) {
		t.Errorf("full.mp3 should not exist when auto_save is disabled, stat err = %v", err)
	}

	meta, err := readMetadata(sessionDir)
	if err != nil {
		t.Fatalf("readMetadata: %v", err)
	}
	if meta.Status != StatusCompleted {
		t.Errorf("Status = %v, want %v after Finalize", meta.Status, StatusCompleted)
	}
	if meta.Devices.Microphone != "Built-in Mic" {
		t.Errorf("Devices.Microphone = %q, want %q", meta.Devices.Microphone, "Built-in Mic")
	}
	if meta.AudioFile != "" {
		t.Errorf("AudioFile = %q, want empty when auto_save is disabled", meta.AudioFile)
	}
}

func TestSaverAutoSaveEnabledProducesFinalAudioAndCleansCheckpoints(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-2", "demo", true, DeviceNames{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := make([]float32, 1152*4)
	for i := 0; i < 3; i++ {
		if err := s.AppendAudio(samples); err != nil {
			t.Fatalf("AppendAudio: %v", err)
		}
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sessionDir := s.SessionDir()
	if _, err := os.Stat(filepath.Join(sessionDir, finalAudioName)); err != nil {
		t.Errorf("full.mp3 missing after Finalize with auto_save enabled: %v", err)
	}
	if _, err := os.Stat(filepath.Join(sessionDir, checkpointsDirName)); !os.IsNotExist(err) {
		t.Errorf(".checkpoints directory should be removed after Finalize, stat err = %v", err)
	}

	meta, err := readMetadata(sessionDir)
	if err != nil {
		t.Fatalf("readMetadata: %v", err)
	}
	if meta.AudioFile != finalAudioName {
		t.Errorf("AudioFile = %q, want %q", meta.AudioFile, finalAudioName)
	}
}

func TestSaverFailMarksStatusError(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-3b", "demo", false, DeviceNames{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Fail(); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	meta, err := readMetadata(s.SessionDir())
	if err != nil {
		t.Fatalf("readMetadata: %v", err)
	}
	if meta.Status != StatusError {
		t.Errorf("Status = %v, want %v after Fail", meta.Status, StatusError)
	}
}

func TestSaverFinalizeIsIdempotent(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-3", "demo", false, DeviceNames{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize (1): %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize (2) should be a no-op, got error: %v", err)
	}
}

func TestSaverAppendAudioAfterFinalizeErrors(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-4", "demo", true, DeviceNames{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := s.AppendAudio(make([]float32, 10)); err == nil {
		t.Errorf("AppendAudio after Finalize should error")
	}
}

func TestRecoverWithNoOrphanedCheckpoints(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, "sess-5", "demo", false, DeviceNames{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	result, err := Recover(s.SessionDir())
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if result.ChunkCount != 0 {
		t.Errorf("ChunkCount = %d, want 0 for an already-completed session", result.ChunkCount)
	}
}

func TestRecoverMergesOrphanedCheckpoints(t *testing.T) {
	base := t.TempDir()
	sessionDir := filepath.Join(base, "sess-6")
	checkpointsDir := filepath.Join(sessionDir, checkpointsDirName)
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(checkpointsDir, "000001.mp3"), []byte("abc"), 0644); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}
	if err := writeMetadata(sessionDir, Metadata{SessionID: "sess-6", Status: StatusRecording}); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}

	result, err := Recover(sessionDir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if result.ChunkCount != 1 {
		t.Errorf("ChunkCount = %d, want 1", result.ChunkCount)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %v, want %v", result.Status, StatusCompleted)
	}
	if _, err := os.Stat(filepath.Join(sessionDir, finalAudioName)); err != nil {
		t.Errorf("full.mp3 missing after recovery: %v", err)
	}
	if _, err := os.Stat(checkpointsDir); !os.IsNotExist(err) {
		t.Errorf("checkpoints directory should be removed after recovery")
	}
}

// TestRecoverEstimatesDurationAs30SPerChunk mirrors the crash-recovery
// scenario: 2 orphaned checkpoints must report an estimated duration
// of exactly 60s (30s per checkpoint), not a byte-size guess.
func TestRecoverEstimatesDurationAs30SPerChunk(t *testing.T) {
	base := t.TempDir()
	sessionDir := filepath.Join(base, "sess-7")
	checkpointsDir := filepath.Join(sessionDir, checkpointsDirName)
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, name := range []string{"000001.mp3", "000002.mp3"} {
		if err := os.WriteFile(filepath.Join(checkpointsDir, name), []byte("some mp3 bytes"), 0644); err != nil {
			t.Fatalf("write checkpoint %s: %v", name, err)
		}
	}
	if err := writeMetadata(sessionDir, Metadata{SessionID: "sess-7", Status: StatusRecording}); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}

	result, err := Recover(sessionDir)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if result.ChunkCount != 2 {
		t.Fatalf("ChunkCount = %d, want 2", result.ChunkCount)
	}
	if result.EstimatedDuration != 60*time.Second {
		t.Errorf("EstimatedDuration = %v, want 60s", result.EstimatedDuration)
	}
}
