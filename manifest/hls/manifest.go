package hls

// Stream is one playable elementary track. A stream owns its segment
// index; variants referencing the stream share it rather than duplicating
// the index.
type Stream struct {
	ID       int       `json:"id"`
	Type     MediaType `json:"type"`
	URI      string    `json:"uri"`
	Codecs   string    `json:"codecs,omitempty"`
	Language string    `json:"language,omitempty"`
	Index    *SegmentIndex
}

// Variant is one selectable quality level: a video stream paired with an
// optional audio stream. Variants live as long as the manifest.
type Variant struct {
	ID         int     `json:"id"`
	Bandwidth  int     `json:"bandwidth"`
	Resolution string  `json:"resolution,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	Video      *Stream
	Audio      *Stream
}

// Period groups the variants available over one span of the presentation.
// An HLS master playlist maps to a single period.
type Period struct {
	Variants []*Variant
}

// Manifest is the top-level description of a presentation. It is created
// on the first successful parse and then updated in place on each refresh
// cycle, so holders of the pointer observe live updates.
type Manifest struct {
	URI      string
	Periods  []*Period
	Timeline *PresentationTimeline
}

// Streams returns the distinct streams across all periods, in variant
// order with shared streams listed once.
func (m *Manifest) Streams() []*Stream {
	seen := make(map[int]bool)
	var streams []*Stream
	for _, period := range m.Periods {
		for _, variant := range period.Variants {
			for _, s := range []*Stream{variant.Video, variant.Audio} {
				if s != nil && !seen[s.ID] {
					seen[s.ID] = true
					streams = append(streams, s)
				}
			}
		}
	}
	return streams
}
