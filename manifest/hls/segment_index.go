package hls

import (
	"sync"

	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// SegmentReference identifies one fetchable media segment with its
// position in the stream and its presentation time range.
type SegmentReference struct {
	// Position is the segment's sequence number. Positions within one
	// index are contiguous and sorted.
	Position int64 `json:"position"`

	// Start and End are presentation times in seconds. Within one index
	// references are non-overlapping and contiguous: a reference's End
	// equals the next reference's Start.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	URI       string            `json:"uri"`
	ByteRange *common.ByteRange `json:"byte_range,omitempty"`
	Init      *InitSegment      `json:"init,omitempty"`
}

// Duration returns the presentation duration of the segment in seconds.
func (r *SegmentReference) Duration() float64 {
	return r.End - r.Start
}

// SegmentIndex is the ordered collection of segment references for one
// stream. Updates swap a new backing slice into place as a single
// operation, so a snapshot handed to a reader stays valid while the engine
// evicts and appends behind it.
type SegmentIndex struct {
	mu   sync.RWMutex
	refs []SegmentReference
}

// NewSegmentIndex creates an empty segment index.
func NewSegmentIndex() *SegmentIndex {
	return &SegmentIndex{}
}

// Snapshot returns the current references. The returned slice is immutable;
// callers must not modify it. Snapshots taken before an update keep
// observing the pre-update state.
func (s *SegmentIndex) Snapshot() []SegmentReference {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs
}

// Len returns the number of references currently in the index.
func (s *SegmentIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// Replace publishes refs as the index's new content in one swap.
func (s *SegmentIndex) Replace(refs []SegmentReference) {
	s.mu.Lock()
	s.refs = refs
	s.mu.Unlock()
}

// Find returns the reference covering presentation time t, or false when t
// falls outside the availability window.
func (s *SegmentIndex) Find(t float64) (SegmentReference, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ref := range s.refs {
		if t >= ref.Start && t < ref.End {
			return ref, true
		}
	}
	return SegmentReference{}, false
}

// Window returns the availability window [start, end) covered by the
// retained references. An empty index reports (0, 0).
func (s *SegmentIndex) Window() (start, end float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.refs) == 0 {
		return 0, 0
	}
	return s.refs[0].Start, s.refs[len(s.refs)-1].End
}

// MinPosition returns the smallest retained position, or -1 when empty.
func (s *SegmentIndex) MinPosition() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.refs) == 0 {
		return -1
	}
	return s.refs[0].Position
}

// MaxPosition returns the largest retained position, or -1 when empty.
func (s *SegmentIndex) MaxPosition() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.refs) == 0 {
		return -1
	}
	return s.refs[len(s.refs)-1].Position
}
