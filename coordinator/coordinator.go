package coordinator

import (
	"fmt"
	"log"
	"sync"

	"sessioncore/audio"
	"sessioncore/errs"
	"sessioncore/pipeline"
	"sessioncore/saver"
	"sessioncore/transcription"
	"sessioncore/vad"
)

// EventPublisher is the narrow surface the coordinator needs from the
// event bus.
type EventPublisher interface {
	Publish(name string, payload map[string]any)
}

// Config bundles everything needed to start a session. The device
// identities and enhancement settings come from the caller's
// configuration surface (internal/config); the coordinator itself
// only needs to know which kind of device each is.
type Config struct {
	SessionID         string
	Title             string
	DataDir           string
	AutoSave          bool
	Language          string
	Enhancement       audio.EnhancementConfig
	MicDeviceName     string
	SystemDeviceName  string
}

// Coordinator runs one recording session's full lifecycle: it owns
// the device processors, the mixing pipeline, the VAD segmenter, the
// transcription pool, and the saver, and exposes the state machine
// transitions the surrounding application calls in response to user
// actions and device events.
type Coordinator struct {
	state  *RecordingState
	events EventPublisher

	mic *audio.Processor
	sys *audio.Processor

	pipe *pipeline.Pipeline
	seg  *vad.Segmenter
	onnx *vad.OnnxVAD
	pool *transcription.Pool
	sv   *saver.Saver

	micIn chan []float32
	sysIn chan []float32

	wg sync.WaitGroup

	mu       sync.Mutex
	sequence int64
	language string
}

// New builds a Coordinator in PhaseIdle. Start must be called to begin
// capturing.
func New(events EventPublisher, provider transcription.Provider) *Coordinator {
	return &Coordinator{
		state:  NewRecordingState(),
		events: events,
		pool:   transcription.NewPool(provider, events),
	}
}

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	return c.state.Phase()
}

// Start transitions Idle -> Starting -> Recording: it opens both
// device processors, wires the pipeline/VAD/transcription/saver chain,
// and launches the processing goroutines.
func (c *Coordinator) Start(cfg Config, micOpen func(audio.BatchHandler, audio.ErrorHandler) (*audio.Processor, error), sysOpen func(audio.BatchHandler, audio.ErrorHandler) (*audio.Processor, error)) error {
	if c.state.Phase() != PhaseIdle {
		return fmt.Errorf("cannot start: session is %s", c.state.Phase())
	}
	c.state.setPhase(PhaseStarting)
	c.publish("session-starting", map[string]any{"session_id": cfg.SessionID})

	sv, err := saver.New(cfg.DataDir, cfg.SessionID, cfg.Title, cfg.AutoSave, saver.DeviceNames{
		Microphone:  cfg.MicDeviceName,
		SystemAudio: cfg.SystemDeviceName,
	})
	if err != nil {
		c.state.setPhase(PhaseIdle)
		return errs.New(errs.InitializationFailed, err)
	}
	c.sv = sv

	onnx, err := vad.NewOnnxVAD("")
	if err == nil {
		c.onnx = onnx
	}
	c.seg = vad.NewSegmenter(30, 16000)

	c.pipe = pipeline.New()
	c.micIn = make(chan []float32, 64)
	c.sysIn = make(chan []float32, 64)
	c.language = cfg.Language

	mic, err := micOpen(c.onMicBatch, c.onDeviceError)
	if err != nil {
		c.state.setPhase(PhaseIdle)
		return err
	}
	c.mic = mic

	sys, err := sysOpen(c.onSysBatch, c.onDeviceError)
	if err != nil {
		c.mic.Stop()
		c.state.setPhase(PhaseIdle)
		return err
	}
	c.sys = sys

	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.pipe.Run(c.micIn, c.sysIn) }()
	go func() { defer c.wg.Done(); c.consumeMixedChunks() }()
	go func() { defer c.wg.Done(); c.pool.Run() }()

	go c.consumeCompletions()

	c.state.MarkStarted()
	c.state.setPhase(PhaseRecording)
	c.publish("session-started", map[string]any{"session_id": cfg.SessionID})
	return nil
}

func (c *Coordinator) onMicBatch(b audio.Batch) {
	if c.state.Phase() == PhasePaused {
		return
	}
	select {
	case c.micIn <- b.Samples:
	default:
		log.Printf("coordinator: mic input channel full, dropping batch")
	}
}

func (c *Coordinator) onSysBatch(b audio.Batch) {
	if c.state.Phase() == PhasePaused {
		return
	}
	select {
	case c.sysIn <- b.Samples:
	default:
		log.Printf("coordinator: system input channel full, dropping batch")
	}
}

func (c *Coordinator) onDeviceError(kind audio.Kind, err *errs.Error) {
	c.publish("device-error", map[string]any{"source": kind.String(), "error": err.Error()})

	if !err.Kind.Recoverable() {
		log.Printf("coordinator: fatal device error on %s: %v", kind, err)
		c.beginStop(true)
		return
	}

	if c.state.RecordDeviceError(err) {
		log.Printf("coordinator: too many consecutive recoverable errors, stopping session: %v", err)
		c.beginStop(true)
		return
	}

	c.state.setPhase(PhaseReconnecting)
	c.publish("device-disconnect", map[string]any{"source": kind.String()})
}

// NotifyReconnected is called by the device monitor once a previously
// disconnected device is available again.
func (c *Coordinator) NotifyReconnected(kind audio.Kind) {
	if c.state.Phase() != PhaseReconnecting {
		return
	}
	c.state.ResetErrorStreak()
	c.state.setPhase(PhaseRecording)
	c.publish("device-reconnect", map[string]any{"source": kind.String()})
}

// NotifyDisconnected is called by the device monitor when it detects a
// device drop outside of the malgo stream-stop callback path (e.g. a
// polled disconnect on system audio). It drives the same
// Recording -> Reconnecting transition as a stream failure.
func (c *Coordinator) NotifyDisconnected(kind audio.Kind) {
	if c.state.Phase() != PhaseRecording {
		return
	}
	c.state.setPhase(PhaseReconnecting)
	c.publish("device-disconnect", map[string]any{"source": kind.String()})
}

// Pause transitions Recording -> Paused. Device capture continues but
// batches from both sources are dropped before the mixing pipeline, so
// paused audio is neither saved nor transcribed; active-duration
// accounting excludes paused time.
func (c *Coordinator) Pause() error {
	if c.state.Phase() != PhaseRecording {
		return fmt.Errorf("cannot pause: session is %s", c.state.Phase())
	}
	c.state.MarkPaused()
	c.state.setPhase(PhasePaused)
	c.publish("session-paused", nil)
	return nil
}

// Resume transitions Paused -> Recording.
func (c *Coordinator) Resume() error {
	if c.state.Phase() != PhasePaused {
		return fmt.Errorf("cannot resume: session is %s", c.state.Phase())
	}
	c.state.MarkResumed()
	c.state.setPhase(PhaseRecording)
	c.publish("session-resumed", nil)
	return nil
}

// Stop transitions into Stopping then Finalizing, draining every
// in-flight chunk before the saver writes its final metadata.
func (c *Coordinator) Stop() error {
	switch c.state.Phase() {
	case PhaseIdle, PhaseStopping, PhaseFinalizing:
		return fmt.Errorf("cannot stop: session is %s", c.state.Phase())
	}
	c.beginStop(false)
	return nil
}

func (c *Coordinator) beginStop(failed bool) {
	c.state.setPhase(PhaseStopping)
	c.publish("session-stopping", nil)

	if c.mic != nil {
		c.mic.Stop()
	}
	if c.sys != nil {
		c.sys.Stop()
	}
	close(c.micIn)
	close(c.sysIn)

	c.wg.Wait()
	c.pool.Close()

	c.state.setPhase(PhaseFinalizing)
	c.publish("session-finalizing", nil)

	active, pause := c.state.Durations()
	if err := c.sv.UpdateActiveDuration(active, pause); err != nil {
		log.Printf("coordinator: failed to persist duration: %v", err)
	}
	if failed {
		if err := c.sv.Fail(); err != nil {
			log.Printf("coordinator: fail finalize failed: %v", err)
		}
	} else if err := c.sv.Finalize(); err != nil {
		log.Printf("coordinator: finalize failed: %v", err)
	}
	if c.onnx != nil {
		c.onnx.Close()
	}

	c.state.setPhase(PhaseIdle)
	c.publish("recording-saved", nil)
}

// consumeMixedChunks reads mixed windows off the pipeline, feeds the
// VAD, and submits completed speech segments to the transcription
// pool. It exits only on the pipeline's terminal sentinel, which the
// pipeline sends after both inputs have closed and every buffered
// sample has been emitted, never on a phase check, so no buffered
// audio is lost on shutdown.
func (c *Coordinator) consumeMixedChunks() {
	for chunk := range c.pipe.Output() {
		if chunk.Sentinel {
			if flushed, ok := c.seg.Flush(); ok {
				c.dispatchSegment(flushed)
			}
			return
		}

		if err := c.sv.AppendAudio(chunk.Samples); err != nil {
			log.Printf("coordinator: append audio failed: %v", err)
		}

		down := vad.Downsample48to16(chunk.Samples)
		var prob float32
		if len(down) > 0 && c.onnx != nil && !vad.IsSilentByEnergy(down) {
			p, err := c.onnx.ProcessFrame(padOrTrim(down, vad.FrameSamples))
			if err == nil {
				prob = p
			}
		}

		seg, closed := c.seg.PushFrame(prob, down)
		if closed {
			c.dispatchSegment(seg)
		}
	}
}

func (c *Coordinator) dispatchSegment(seg vad.Segment) {
	c.mu.Lock()
	c.sequence++
	id := c.sequence
	c.mu.Unlock()

	c.pool.Submit(transcription.Segment{
		SequenceID: id,
		Samples:    seg.Samples,
		Language:   c.language,
		StartMs:    seg.StartMs,
		EndMs:      seg.EndMs,
	})
}

func (c *Coordinator) consumeCompletions() {
	for completion := range c.pool.Completions() {
		if completion.Err != nil {
			log.Printf("coordinator: transcription failed for sequence_id=%d: %v", completion.SequenceID, completion.Err)
			continue
		}
		err := c.sv.UpsertTranscript(saver.TranscriptSegment{
			SequenceID: completion.SequenceID,
			Text:       completion.Result.Text,
			Confidence: completion.Result.Confidence,
			StartMs:    completion.StartMs,
			EndMs:      completion.EndMs,
		})
		if err != nil {
			log.Printf("coordinator: upsert transcript failed: %v", err)
			continue
		}
		c.publish("transcript-update", map[string]any{
			"sequence_id": completion.SequenceID,
			"text":        completion.Result.Text,
		})
	}
}

func (c *Coordinator) publish(name string, payload map[string]any) {
	if c.events != nil {
		c.events.Publish(name, payload)
	}
}

func padOrTrim(samples []float32, n int) []float32 {
	if len(samples) == n {
		return samples
	}
	out := make([]float32, n)
	copy(out, samples)
	return out
}
