package hls

import (
	"time"

	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// Config holds configuration for the manifest update engine.
type Config struct {
	// DefaultTimeOffset is the presentation time in seconds assigned to
	// the first segment of a stream before any timestamp is known.
	DefaultTimeOffset float64 `json:"default_time_offset"`

	// UpdateFloor is the minimum interval between refresh cycles. The
	// actual cadence is the playlist target duration clamped to this
	// floor.
	UpdateFloor time.Duration `json:"update_floor"`

	// UnsupportedContainerFatal controls what happens when a live
	// stream's start time must be read from segment content that is not
	// fragmented MP4. When true (the default) the stream fails with a
	// MANIFEST error; when false the stream is kept and its timestamps
	// fall back to DefaultTimeOffset.
	UnsupportedContainerFatal bool `json:"unsupported_container_fatal"`

	// StartTimeProbeBytes is how many leading bytes of a segment are
	// fetched when resolving its true start time. The tfdt box sits in
	// the moof header, well before the media payload.
	StartTimeProbeBytes int64 `json:"start_time_probe_bytes"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultTimeOffset:         0,
		UpdateFloor:               3 * time.Second,
		UnsupportedContainerFatal: true,
		StartTimeProbeBytes:       4096,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.UpdateFloor <= 0 {
		return common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeInvalidFormat, "update floor must be positive", nil)
	}
	if c.StartTimeProbeBytes <= 0 {
		return common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeInvalidFormat, "start time probe size must be positive", nil)
	}
	return nil
}
