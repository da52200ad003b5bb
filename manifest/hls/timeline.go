package hls

import (
	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// TimelineUpdate is the outcome of diffing a media playlist against the
// references already known for its stream.
type TimelineUpdate struct {
	// Refs is the full new content for the segment index: retained prior
	// references followed by newly appended ones.
	Refs []SegmentReference

	// Appended and Evicted count the references added at the tail and
	// dropped from the front by this update.
	Appended int
	Evicted  int

	// Terminal reports that the playlist is finished: an #EXT-X-ENDLIST
	// was present or the playlist type is VOD.
	Terminal bool
}

// BuildTimeline converts a media playlist into updated segment references
// for one stream.
//
// The starting position is the playlist's declared media sequence; an
// absent #EXT-X-MEDIA-SEQUENCE means 0, so event playlists that re-list
// everything from the start diff cleanly against prior. Prior references
// that the playlist still covers are carried over untouched: a position's
// time range is assigned once, at first appearance, and held fixed. New
// trailing positions are appended with start times continuing from the
// last known end time, or from timeOffsetHint when nothing is known yet.
// Prior references whose position dropped below the declared media
// sequence are evicted.
func BuildTimeline(media *MediaPlaylist, prior []SegmentReference, timeOffsetHint float64) (*TimelineUpdate, error) {
	if media == nil {
		return nil, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeInvalidFormat, "nil media playlist", nil)
	}

	startPos := media.MediaSequence

	update := &TimelineUpdate{
		Terminal: media.EndList || media.Type == TypeVOD,
	}

	// Evict the prior prefix that slid out of the window. Positions never
	// come back once evicted, so a sequence number that moved backwards
	// evicts nothing.
	kept := prior
	for len(kept) > 0 && kept[0].Position < startPos {
		kept = kept[1:]
		update.Evicted++
	}

	// Time and position of the next appended reference.
	nextPos := startPos
	nextStart := timeOffsetHint
	if len(prior) > 0 {
		nextPos = prior[len(prior)-1].Position + 1
		nextStart = prior[len(prior)-1].End
	}

	refs := make([]SegmentReference, 0, len(kept)+len(media.Segments))
	refs = append(refs, kept...)

	for i := range media.Segments {
		pos := startPos + int64(i)
		if pos < nextPos {
			// Already established. Times for known positions are never
			// reassigned, even if the playlist re-declares them.
			continue
		}
		if pos > nextPos {
			// The playlist skipped positions we never saw. Timestamps
			// still continue monotonically from the last known end.
			logging.Warn("segment sequence gap", logging.Fields{
				"expected": nextPos,
				"got":      pos,
			})
			nextPos = pos
		}

		tag := &media.Segments[i]
		ref := SegmentReference{
			Position:  pos,
			Start:     nextStart,
			End:       nextStart + tag.Duration,
			URI:       tag.URI,
			ByteRange: tag.ByteRange,
			Init:      tag.Init,
		}
		refs = append(refs, ref)
		update.Appended++

		nextPos++
		nextStart = ref.End
	}

	update.Refs = refs
	return update, nil
}
