package saver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestTranscriptStoreUpsertIsIdempotentAndOrdered(t *testing.T) {
	dir := t.TempDir()
	store := newTranscriptStore(dir)

	if err := store.Upsert(TranscriptSegment{SequenceID: 2, Text: "second"}); err != nil {
		t.Fatalf("Upsert(2): %v", err)
	}
	if err := store.Upsert(TranscriptSegment{SequenceID: 0, Text: "first"}); err != nil {
		t.Fatalf("Upsert(0): %v", err)
	}
	// Replaying the same sequence_id with updated content must replace,
	// not duplicate, the entry.
	if err := store.Upsert(TranscriptSegment{SequenceID: 0, Text: "first-revised"}); err != nil {
		t.Fatalf("Upsert(0 again): %v", err)
	}

	reloaded, err := loadTranscriptStore(dir)
	if err != nil {
		t.Fatalf("loadTranscriptStore: %v", err)
	}
	ordered := reloaded.orderedLocked()
	if len(ordered) != 2 {
		t.Fatalf("len(ordered) = %d, want 2", len(ordered))
	}
	if ordered[0].SequenceID != 0 || ordered[0].Text != "first-revised" {
		t.Errorf("ordered[0] = %+v, want sequence_id 0 with revised text", ordered[0])
	}
	if ordered[1].SequenceID != 2 {
		t.Errorf("ordered[1].SequenceID = %d, want 2", ordered[1].SequenceID)
	}
}

func TestTranscriptStorePersistsWireSchema(t *testing.T) {
	dir := t.TempDir()
	store := newTranscriptStore(dir)

	if err := store.Upsert(TranscriptSegment{SequenceID: 0, StartMs: 1000, EndMs: 2500, Text: "hi", Confidence: 0.9}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "transcripts.json"))
	if err != nil {
		t.Fatalf("read transcripts.json: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["version"] != "1.0" {
		t.Errorf("version = %v, want 1.0", doc["version"])
	}
	if doc["total_segments"].(float64) != 1 {
		t.Errorf("total_segments = %v, want 1", doc["total_segments"])
	}
	segments, ok := doc["segments"].([]any)
	if !ok || len(segments) != 1 {
		t.Fatalf("segments = %v, want a list of 1", doc["segments"])
	}
	seg := segments[0].(map[string]any)
	if seg["id"] == nil || seg["id"] == "" {
		t.Errorf("segment id should be auto-assigned, got %v", seg["id"])
	}
	if seg["audio_start_time"] != 1.0 {
		t.Errorf("audio_start_time = %v, want 1.0", seg["audio_start_time"])
	}
	if seg["audio_end_time"] != 2.5 {
		t.Errorf("audio_end_time = %v, want 2.5", seg["audio_end_time"])
	}
	if seg["duration"] != 1.5 {
		t.Errorf("duration = %v, want 1.5", seg["duration"])
	}
	if seg["display_time"] != "[00:01]" {
		t.Errorf("display_time = %v, want [00:01]", seg["display_time"])
	}
}

func TestLoadTranscriptStoreToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	store, err := loadTranscriptStore(dir)
	if err != nil {
		t.Fatalf("loadTranscriptStore on empty dir: %v", err)
	}
	if len(store.orderedLocked()) != 0 {
		t.Errorf("expected an empty store for a missing transcripts.json")
	}
}
