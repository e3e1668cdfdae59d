package saver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TranscriptSegment is one transcribed speech segment, keyed by the
// sequence_id assigned at the transcription pool, the direct
// descendant of the teacher's chunk-level upsert-by-ID bookkeeping in
// Manager.UpdateChunkTranscription. StartMs/EndMs are kept internally
// in milliseconds (as produced by the VAD segmenter) and translated to
// the on-disk seconds-based schema at marshal time.
type TranscriptSegment struct {
	ID         string
	SequenceID int64
	StartMs    int64
	EndMs      int64
	Text       string
	Confidence float32
}

// wireTranscriptSegment is the §6 on-disk shape for one segment.
type wireTranscriptSegment struct {
	ID              string  `json:"id"`
	Text            string  `json:"text"`
	AudioStartTime  float64 `json:"audio_start_time"`
	AudioEndTime    float64 `json:"audio_end_time"`
	Duration        float64 `json:"duration"`
	DisplayTime     string  `json:"display_time"`
	Confidence      float32 `json:"confidence"`
	SequenceID      int64   `json:"sequence_id"`
}

func (s TranscriptSegment) MarshalJSON() ([]byte, error) {
	startS := float64(s.StartMs) / 1000
	endS := float64(s.EndMs) / 1000
	return json.Marshal(wireTranscriptSegment{
		ID:             s.ID,
		Text:           s.Text,
		AudioStartTime: startS,
		AudioEndTime:   endS,
		Duration:       endS - startS,
		DisplayTime:    formatDisplayTime(startS),
		Confidence:     s.Confidence,
		SequenceID:     s.SequenceID,
	})
}

func (s *TranscriptSegment) UnmarshalJSON(data []byte) error {
	var w wireTranscriptSegment
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.ID = w.ID
	s.Text = w.Text
	s.StartMs = int64(w.AudioStartTime * 1000)
	s.EndMs = int64(w.AudioEndTime * 1000)
	s.Confidence = w.Confidence
	s.SequenceID = w.SequenceID
	return nil
}

// formatDisplayTime renders a "[MM:SS]" timestamp from a seconds
// offset, per §6.
func formatDisplayTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("[%02d:%02d]", total/60, total%60)
}

// transcriptDocument is the top-level transcripts.json shape.
type transcriptDocument struct {
	Version       string              `json:"version"`
	Segments      []TranscriptSegment `json:"segments"`
	LastUpdated   time.Time           `json:"last_updated"`
	TotalSegments int                 `json:"total_segments"`
}

// TranscriptStore tracks segments in memory and keeps transcripts.json
// in sync, rewriting the whole file on every upsert so a reader never
// observes a file with a segment missing that was already reported
// complete.
type TranscriptStore struct {
	mu       sync.Mutex
	path     string
	segments map[int64]TranscriptSegment
}

func newTranscriptStore(sessionDir string) *TranscriptStore {
	return &TranscriptStore{
		path:     filepath.Join(sessionDir, "transcripts.json"),
		segments: make(map[int64]TranscriptSegment),
	}
}

// Upsert inserts or replaces the segment for its sequence_id and
// persists the full set. Replaying the same sequence_id with identical
// content is a no-op write that still succeeds, matching §8's
// idempotence requirement. A segment submitted without an ID is
// assigned one.
func (t *TranscriptStore) Upsert(seg TranscriptSegment) error {
	if seg.ID == "" {
		seg.ID = uuid.New().String()
	}

	t.mu.Lock()
	t.segments[seg.SequenceID] = seg
	ordered := t.orderedLocked()
	t.mu.Unlock()

	return t.persist(ordered)
}

func (t *TranscriptStore) orderedLocked() []TranscriptSegment {
	ordered := make([]TranscriptSegment, 0, len(t.segments))
	for _, s := range t.segments {
		ordered = append(ordered, s)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SequenceID < ordered[j].SequenceID
	})
	return ordered
}

func (t *TranscriptStore) persist(segments []TranscriptSegment) error {
	doc := transcriptDocument{
		Version:       metadataVersion,
		Segments:      segments,
		LastUpdated:   time.Now(),
		TotalSegments: len(segments),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transcripts: %w", err)
	}
	tmpPath := t.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write transcripts tmp file: %w", err)
	}
	return os.Rename(tmpPath, t.path)
}

// loadTranscriptStore reads an existing transcripts.json, if any, when
// New opens a session folder. Recover does not use it.
func loadTranscriptStore(sessionDir string) (*TranscriptStore, error) {
	store := newTranscriptStore(sessionDir)
	data, err := os.ReadFile(store.path)
	if os.IsNotExist(err) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read transcripts: %w", err)
	}
	var doc transcriptDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal transcripts: %w", err)
	}
	for _, s := range doc.Segments {
		store.segments[s.SequenceID] = s
	}
	return store, nil
}
