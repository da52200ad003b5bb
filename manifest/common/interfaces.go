package common

import (
	"context"
	"fmt"
)

// ByteRange identifies a sub-range of a resource: Length bytes starting at
// Offset. A nil *ByteRange means the whole resource.
type ByteRange struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the offset one past the last byte of the range.
func (r *ByteRange) End() int64 {
	return r.Offset + r.Length
}

func (r *ByteRange) String() string {
	return fmt.Sprintf("%d@%d", r.Length, r.Offset)
}

// FetchResult carries the body of a completed fetch plus the response
// content type, which the start-time resolver uses for container sniffing.
type FetchResult struct {
	URI         string
	Body        []byte
	ContentType string
}

// Fetcher is the injected networking collaborator. Retry and backoff policy
// live behind this interface; the engine only reacts to final success or
// failure. Implementations must honor context cancellation.
type Fetcher interface {
	// Fetch retrieves the resource at uri, restricted to byteRange when it
	// is non-nil.
	Fetch(ctx context.Context, uri string, byteRange *ByteRange) (*FetchResult, error)
}

// EventType identifies an event delivered through Observer.OnEvent.
type EventType string

const (
	EventStreamUpdated  EventType = "stream_updated"
	EventTimelineToVOD  EventType = "timeline_to_vod"
	EventManifestLoaded EventType = "manifest_loaded"
)

// Event is a notification about manifest state delivered to the consumer.
type Event struct {
	Type   EventType      `json:"type"`
	URI    string         `json:"uri,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// TimelineRegion describes a timed metadata region. The engine does not
// interpret regions, it passes them through to the observer.
type TimelineRegion struct {
	SchemeID string  `json:"scheme_id"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Payload  string  `json:"payload,omitempty"`
}

// Observer receives engine callbacks for the lifetime of a manifest. All
// methods are invoked from the engine's update goroutine; implementations
// should not block.
type Observer interface {
	// OnError reports a degraded stream or a failed refresh. Errors raised
	// during Start are returned directly instead.
	OnError(err error)

	// OnEvent reports manifest lifecycle events.
	OnEvent(event Event)

	// OnTimelineRegionAdded reports a new timed metadata region.
	OnTimelineRegionAdded(region TimelineRegion)
}

// NopObserver is an Observer that ignores every callback. Useful as a
// default when the consumer only polls the manifest tree.
type NopObserver struct{}

func (NopObserver) OnError(error) {}

func (NopObserver) OnEvent(Event) {}

func (NopObserver) OnTimelineRegionAdded(TimelineRegion) {}
