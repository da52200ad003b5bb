package hls

import "sync"

// TimelineClass is the presentation's classification. Liveness checks are
// derived from this single enum rather than tracked as separate booleans,
// so the timeline can never report contradictory states.
type TimelineClass int

const (
	// ClassLive is a live presentation with a sliding availability window.
	ClassLive TimelineClass = iota

	// ClassEventInProgress is an EVENT presentation that is still growing.
	// Its availability window starts at 0 and only extends.
	ClassEventInProgress

	// ClassVOD is a finished presentation. Terminal: once VOD, a timeline
	// never reclassifies.
	ClassVOD
)

func (c TimelineClass) String() string {
	switch c {
	case ClassEventInProgress:
		return "event"
	case ClassVOD:
		return "vod"
	default:
		return "live"
	}
}

// PresentationTimeline is the shared time authority for one manifest. The
// update engine is its only writer; the player and tests read concurrently.
type PresentationTimeline struct {
	mu    sync.RWMutex
	class TimelineClass
	start float64
	end   float64
}

// NewPresentationTimeline creates a timeline with the given classification.
func NewPresentationTimeline(class TimelineClass) *PresentationTimeline {
	return &PresentationTimeline{class: class}
}

// Classification returns the current timeline classification.
func (t *PresentationTimeline) Classification() TimelineClass {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.class
}

// IsLive reports whether the presentation is live.
func (t *PresentationTimeline) IsLive() bool {
	return t.Classification() == ClassLive
}

// IsInProgress reports whether the presentation is an EVENT still growing.
func (t *PresentationTimeline) IsInProgress() bool {
	return t.Classification() == ClassEventInProgress
}

// MarkVOD reclassifies the timeline as VOD. The transition is
// one-directional; later calls to reclassify are ignored.
func (t *PresentationTimeline) MarkVOD() {
	t.mu.Lock()
	t.class = ClassVOD
	t.mu.Unlock()
}

// AvailabilityWindow returns the currently known segment availability
// window [start, end).
func (t *PresentationTimeline) AvailabilityWindow() (start, end float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.start, t.end
}

// ExtendWindow records newly observed segment coverage. The window end
// only advances. The start advances only for a live presentation, tracking
// eviction of the sliding window; for VOD and EVENT it stays at 0.
func (t *PresentationTimeline) ExtendWindow(start, end float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if end > t.end {
		t.end = end
	}
	if t.class == ClassLive && start > t.start {
		t.start = start
	}
}

// Duration returns the maximum known presentation duration in seconds.
func (t *PresentationTimeline) Duration() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.end
}
