package saver

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// checkpointEncoder streams mono float32 samples to an MP3 file using
// shine-mp3, a pure-Go encoder with no external ffmpeg dependency.
// Writing checkpoints as independent MP3 files and concatenating the
// raw encoded byte streams at finalize time (copy-codec concatenation,
// no re-encode) only works because every checkpoint is encoded with
// identical parameters by this same type.
type checkpointEncoder struct {
	file     *os.File
	encoder  *mp3.Encoder
	filePath string

	buffer []int16

	samplesWritten int64
	mu             sync.Mutex
	closed         bool
}

const checkpointSampleRate = 48000
const checkpointChannels = 1

func newCheckpointEncoder(filePath string) (*checkpointEncoder, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint file: %w", err)
	}

	return &checkpointEncoder{
		file:     file,
		encoder:  mp3.NewEncoder(checkpointSampleRate, checkpointChannels),
		filePath: filePath,
		buffer:   make([]int16, 0, 8192),
	}, nil
}

// write appends float32 samples, flushing to the encoder in
// 4-block-aligned chunks (1152 samples per channel is shine's MP3
// Layer III frame size).
func (w *checkpointEncoder) write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("checkpoint encoder is closed")
	}

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		w.buffer = append(w.buffer, int16(s*32767))
	}
	w.samplesWritten += int64(len(samples))

	blockSize := 1152 * checkpointChannels
	minBufferSize := blockSize * 4
	if len(w.buffer) >= minBufferSize {
		aligned := len(w.buffer) / blockSize * blockSize
		w.encoder.Write(w.file, w.buffer[:aligned])
		w.buffer = append(w.buffer[:0], w.buffer[aligned:]...)
	}
	return nil
}

func (w *checkpointEncoder) duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.samplesWritten) * time.Second / checkpointSampleRate
}

func (w *checkpointEncoder) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	if len(w.buffer) > 0 {
		blockSize := 1152 * checkpointChannels
		for len(w.buffer)%blockSize != 0 {
			w.buffer = append(w.buffer, 0)
		}
		w.encoder.Write(w.file, w.buffer)
	}

	return w.file.Close()
}
