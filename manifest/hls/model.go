package hls

import (
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// PlaylistKind distinguishes a master playlist from a media playlist.
type PlaylistKind int

const (
	KindMaster PlaylistKind = iota
	KindMedia
)

// PlaylistType is the media playlist type from #EXT-X-PLAYLIST-TYPE.
// Absence of the tag means TypeLive.
type PlaylistType int

const (
	TypeLive PlaylistType = iota
	TypeEvent
	TypeVOD
)

func (t PlaylistType) String() string {
	switch t {
	case TypeEvent:
		return "EVENT"
	case TypeVOD:
		return "VOD"
	default:
		return "LIVE"
	}
}

// MediaType is the TYPE attribute of an #EXT-X-MEDIA tag.
type MediaType string

const (
	MediaTypeAudio     MediaType = "AUDIO"
	MediaTypeVideo     MediaType = "VIDEO"
	MediaTypeSubtitles MediaType = "SUBTITLES"
)

// Playlist is one parsed HLS document. Exactly one of Master and Media is
// non-nil, selected by Kind. Playlists are immutable once parsed; a refresh
// produces a new value.
type Playlist struct {
	Kind    PlaylistKind
	URI     string
	Version int
	Master  *MasterPlaylist
	Media   *MediaPlaylist
}

// MasterPlaylist lists variant streams and rendition groups.
type MasterPlaylist struct {
	Variants    []VariantStreamInfo
	MediaGroups []MediaGroupEntry
	Unknown     map[string]string
}

// VariantStreamInfo is one #EXT-X-STREAM-INF entry with its URI line.
type VariantStreamInfo struct {
	URI        string  `json:"uri"`
	Bandwidth  int     `json:"bandwidth"`
	Codecs     string  `json:"codecs,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty"`
	AudioGroup string  `json:"audio_group,omitempty"`
}

// MediaGroupEntry is one #EXT-X-MEDIA rendition entry.
type MediaGroupEntry struct {
	Type     MediaType `json:"type"`
	GroupID  string    `json:"group_id"`
	Language string    `json:"language,omitempty"`
	Name     string    `json:"name,omitempty"`
	URI      string    `json:"uri,omitempty"`
	Default  bool      `json:"default,omitempty"`
}

// MediaPlaylist lists media segments and playlist-level attributes.
type MediaPlaylist struct {
	Type           PlaylistType
	TargetDuration int
	MediaSequence  int64
	// HasMediaSequence records whether #EXT-X-MEDIA-SEQUENCE was present.
	// A declared sequence of 0 and an absent tag time segments differently.
	HasMediaSequence bool
	Segments         []SegmentTag
	EndList          bool
	Unknown          map[string]string
}

// SegmentTag is one #EXTINF entry with its URI line and the tags that
// applied to it (byte range, effective init segment).
type SegmentTag struct {
	URI       string            `json:"uri"`
	Duration  float64           `json:"duration"`
	Title     string            `json:"title,omitempty"`
	ByteRange *common.ByteRange `json:"byte_range,omitempty"`
	Init      *InitSegment      `json:"init,omitempty"`
}

// InitSegment describes an #EXT-X-MAP initialization segment. It applies to
// every following segment until superseded and is not itself playable.
type InitSegment struct {
	URI       string            `json:"uri"`
	ByteRange *common.ByteRange `json:"byte_range,omitempty"`
}
