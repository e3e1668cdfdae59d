package vad

// state is the segmenter's internal phase.
type state int

const (
	stateIdle state = iota
	stateInSpeech
	stateRedemption
)

const (
	positiveThreshold = 0.50
	negativeThreshold = 0.35
	redemptionMs      = 400
	minSegmentMs      = 250
	prePaddingMs      = 100
)

// Segment is one detected span of speech, in milliseconds from stream
// start, together with the accumulated samples across that span.
type Segment struct {
	StartMs int64
	EndMs   int64
	Samples []float32
}

// Segmenter turns a stream of per-frame speech probabilities into
// Segments using a three-state machine: Idle waits for a probability
// above positiveThreshold, InSpeech accumulates samples until the
// probability drops below negativeThreshold, at which point
// Redemption holds the segment open for redemptionMs in case speech
// resumes (avoiding fragmenting a single utterance on brief dips)
// before closing it.
type Segmenter struct {
	st           state
	frameMs      int64
	elapsedMs    int64
	segStartMs   int64
	accum        []float32
	redemptionMs int64
	prePad       []float32 // rolling buffer for pre-speech padding
	prePadCap    int
	sampleRate   int
}

// NewSegmenter builds a segmenter for frames of frameMs duration (the
// caller's chosen VAD frame size).
func NewSegmenter(frameMs int64, sampleRate int) *Segmenter {
	return &Segmenter{
		frameMs:    frameMs,
		prePadCap:  sampleRate * prePaddingMs / 1000,
		sampleRate: sampleRate,
	}
}

// PushFrame feeds one frame's probability and samples. It returns a
// completed Segment and true when a segment just closed because the
// probability stayed low until redemption expired. Open segments are
// force-closed by Flush, not by PushFrame.
func (s *Segmenter) PushFrame(prob float32, samples []float32) (Segment, bool) {
	switch s.st {
	case stateIdle:
		if prob >= positiveThreshold {
			s.beginSegment(samples)
		} else {
			s.pushPrePad(samples)
		}

	case stateInSpeech:
		s.accum = append(s.accum, samples...)
		if prob < negativeThreshold {
			s.st = stateRedemption
			s.redemptionMs = 0
		}

	case stateRedemption:
		s.accum = append(s.accum, samples...)
		if prob >= positiveThreshold {
			s.st = stateInSpeech
		} else {
			s.redemptionMs += s.frameMs
			if s.redemptionMs >= redemptionMs {
				return s.closeSegment()
			}
		}
	}

	s.elapsedMs += s.frameMs
	return Segment{}, false
}

func (s *Segmenter) beginSegment(samples []float32) {
	s.st = stateInSpeech
	prePadMs := int64(len(s.prePad)) * 1000 / int64(s.sampleRate)
	s.segStartMs = s.elapsedMs - prePadMs
	if s.segStartMs < 0 {
		s.segStartMs = 0
	}
	s.accum = append(s.accum[:0], s.prePad...)
	s.accum = append(s.accum, samples...)
	s.prePad = s.prePad[:0]
}

func (s *Segmenter) pushPrePad(samples []float32) {
	s.prePad = append(s.prePad, samples...)
	if excess := len(s.prePad) - s.prePadCap; excess > 0 {
		s.prePad = s.prePad[excess:]
	}
}

func (s *Segmenter) closeSegment() (Segment, bool) {
	endMs := s.elapsedMs
	startMs := s.segStartMs
	accum := s.accum
	// The redemption tail is silence; it does not count toward the
	// minimum segment length.
	var trailingMs int64
	if s.st == stateRedemption {
		trailingMs = s.redemptionMs
	}

	s.st = stateIdle
	s.accum = nil
	s.redemptionMs = 0
	s.prePad = s.prePad[:0]

	if endMs-startMs-trailingMs < minSegmentMs {
		return Segment{}, false
	}
	return Segment{StartMs: startMs, EndMs: endMs, Samples: accum}, true
}

// Flush force-closes any segment currently open (InSpeech or
// Redemption), used when the pipeline shuts down so no trailing
// speech is ever silently discarded.
func (s *Segmenter) Flush() (Segment, bool) {
	if s.st == stateIdle {
		return Segment{}, false
	}
	return s.closeSegment()
}
