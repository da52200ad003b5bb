// Package output renders manifest state for the command line tools.
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/hls-manifest-engine/manifest/hls"
)

// ManifestSummary is the flattened, serializable view of a manifest that
// the formatters render.
type ManifestSummary struct {
	URI            string          `json:"uri" yaml:"uri"`
	Classification string          `json:"classification" yaml:"classification"`
	WindowStart    float64         `json:"window_start" yaml:"window_start"`
	WindowEnd      float64         `json:"window_end" yaml:"window_end"`
	Duration       float64         `json:"duration" yaml:"duration"`
	Variants       []VariantLine   `json:"variants" yaml:"variants"`
	Streams        []StreamSummary `json:"streams" yaml:"streams"`
}

// VariantLine summarizes one selectable quality level.
type VariantLine struct {
	ID         int     `json:"id" yaml:"id"`
	Bandwidth  int     `json:"bandwidth" yaml:"bandwidth"`
	Resolution string  `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	FrameRate  float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	VideoID    int     `json:"video_stream" yaml:"video_stream"`
	AudioID    *int    `json:"audio_stream,omitempty" yaml:"audio_stream,omitempty"`
}

// StreamSummary summarizes one stream's segment index.
type StreamSummary struct {
	ID          int     `json:"id" yaml:"id"`
	Type        string  `json:"type" yaml:"type"`
	URI         string  `json:"uri" yaml:"uri"`
	Language    string  `json:"language,omitempty" yaml:"language,omitempty"`
	Segments    int     `json:"segments" yaml:"segments"`
	MinPosition int64   `json:"min_position" yaml:"min_position"`
	MaxPosition int64   `json:"max_position" yaml:"max_position"`
	WindowStart float64 `json:"window_start" yaml:"window_start"`
	WindowEnd   float64 `json:"window_end" yaml:"window_end"`
}

// Summarize flattens a manifest into a point-in-time summary. Segment
// counts and windows come from index snapshots, so a refresh cycle running
// concurrently cannot tear the numbers.
func Summarize(manifest *hls.Manifest) *ManifestSummary {
	start, end := manifest.Timeline.AvailabilityWindow()
	summary := &ManifestSummary{
		URI:            manifest.URI,
		Classification: manifest.Timeline.Classification().String(),
		WindowStart:    start,
		WindowEnd:      end,
		Duration:       manifest.Timeline.Duration(),
	}

	for _, period := range manifest.Periods {
		for _, variant := range period.Variants {
			line := VariantLine{
				ID:         variant.ID,
				Bandwidth:  variant.Bandwidth,
				Resolution: variant.Resolution,
				FrameRate:  variant.FrameRate,
				VideoID:    variant.Video.ID,
			}
			if variant.Audio != nil {
				id := variant.Audio.ID
				line.AudioID = &id
			}
			summary.Variants = append(summary.Variants, line)
		}
	}

	for _, stream := range manifest.Streams() {
		refs := stream.Index.Snapshot()
		streamSummary := StreamSummary{
			ID:          stream.ID,
			Type:        string(stream.Type),
			URI:         stream.URI,
			Language:    stream.Language,
			Segments:    len(refs),
			MinPosition: stream.Index.MinPosition(),
			MaxPosition: stream.Index.MaxPosition(),
		}
		streamSummary.WindowStart, streamSummary.WindowEnd = stream.Index.Window()
		summary.Streams = append(summary.Streams, streamSummary)
	}

	return summary
}

// Formatter renders a manifest summary into bytes.
type Formatter interface {
	Format(summary *ManifestSummary, prettyPrint bool) ([]byte, error)
}

// NewFormatter returns the formatter for a format name: "json", "yaml" or
// "text".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}, nil
	case "yaml":
		return &YAMLFormatter{}, nil
	case "text":
		return &TextFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONFormatter renders the summary as JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(summary *ManifestSummary, prettyPrint bool) ([]byte, error) {
	if prettyPrint {
		return json.MarshalIndent(summary, "", "  ")
	}
	return json.Marshal(summary)
}

// YAMLFormatter renders the summary as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(summary *ManifestSummary, prettyPrint bool) ([]byte, error) {
	return yaml.Marshal(summary)
}

// TextFormatter renders the summary as a human-readable report.
type TextFormatter struct{}

func (f *TextFormatter) Format(summary *ManifestSummary, prettyPrint bool) ([]byte, error) {
	var result strings.Builder

	fmt.Fprintf(&result, "%s (%s)\n", summary.URI, summary.Classification)
	fmt.Fprintf(&result, "availability window: %s to %s\n",
		FormatSeconds(summary.WindowStart), FormatSeconds(summary.WindowEnd))

	result.WriteString("\nvariants:\n")
	for _, variant := range summary.Variants {
		fmt.Fprintf(&result, "  #%d  %s", variant.ID, FormatBitrate(variant.Bandwidth))
		if variant.Resolution != "" {
			fmt.Fprintf(&result, "  %s", variant.Resolution)
		}
		if variant.AudioID != nil {
			fmt.Fprintf(&result, "  audio=%d", *variant.AudioID)
		}
		result.WriteString("\n")
	}

	result.WriteString("\nstreams:\n")
	for _, stream := range summary.Streams {
		fmt.Fprintf(&result, "  #%d  %-9s  %d segments  positions %d-%d  %s to %s\n",
			stream.ID, strings.ToLower(stream.Type), stream.Segments,
			stream.MinPosition, stream.MaxPosition,
			FormatSeconds(stream.WindowStart), FormatSeconds(stream.WindowEnd))
	}

	return []byte(result.String()), nil
}

// FormatSeconds renders a presentation time as h:mm:ss.mmm, dropping the
// hour when zero.
func FormatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := d.Seconds() - float64(hours*3600+minutes*60)
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%06.3f", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%06.3f", minutes, secs)
}

// FormatBitrate renders a bits-per-second value with a unit suffix.
func FormatBitrate(bps int) string {
	switch {
	case bps >= 1_000_000:
		return fmt.Sprintf("%.1f Mbps", float64(bps)/1e6)
	case bps >= 1_000:
		return fmt.Sprintf("%.0f kbps", float64(bps)/1e3)
	default:
		return fmt.Sprintf("%d bps", bps)
	}
}
