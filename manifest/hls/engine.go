package hls

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/mp4"
)

// engineState is the engine lifecycle: INIT -> STREAMING -> STOPPED.
type engineState int

const (
	stateInit engineState = iota
	stateStreaming
	stateStopped
)

// maxConcurrentFetches bounds sibling media playlist fetches in one cycle.
const maxConcurrentFetches = 6

// streamState tracks per-media-playlist update state. One streamState
// exists per unique media playlist URI, shared by every variant that
// references it.
type streamState struct {
	uri            string
	stream         *Stream
	targetDuration int

	// terminal latches once an ENDLIST is observed or the playlist type
	// is VOD. A server that later removes ENDLIST is violating the
	// protocol; the flag is never un-set.
	terminal bool

	// timeOffset anchors the first reference's start time.
	timeOffset float64
}

// Engine owns the fetch/parse/merge/evict cycle for one manifest. It is
// driven by a single pending timer; sibling playlist fetches within a
// cycle run concurrently but merge back into shared state only after the
// whole cycle's fetches complete.
type Engine struct {
	fetcher  common.Fetcher
	observer common.Observer
	config   *Config
	parser   *Parser
	logger   logging.Logger

	mu           sync.Mutex
	state        engineState
	manifest     *Manifest
	streams      map[string]*streamState
	streamOrder  []string
	nextStreamID int

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewEngine creates an update engine. A nil observer is replaced by
// NopObserver; a nil config by DefaultConfig.
func NewEngine(fetcher common.Fetcher, observer common.Observer, config *Config) *Engine {
	if observer == nil {
		observer = common.NopObserver{}
	}
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		fetcher:  fetcher,
		observer: observer,
		config:   config,
		parser:   NewParser(),
		logger:   logging.WithFields(logging.Fields{"component": "hls_engine"}),
		streams:  make(map[string]*streamState),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Manifest returns the manifest tree. The same object is updated in place
// across refresh cycles, so the pointer stays valid for the engine's
// lifetime. Nil before a successful Start.
func (e *Engine) Manifest() *Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest
}

// Start fetches and parses the master playlist plus every referenced
// media playlist, builds the initial manifest tree, and begins polling
// live playlists. Any error during the initial load rejects the whole
// load; no partial manifest is returned.
func (e *Engine) Start(ctx context.Context, masterURI string) (*Manifest, error) {
	e.mu.Lock()
	if e.state != stateInit {
		e.mu.Unlock()
		return nil, common.NewManifestError(common.CategoryManifest, masterURI,
			common.ErrCodeStopped, "engine already started", nil)
	}
	e.mu.Unlock()

	playlist, err := e.fetchPlaylist(ctx, masterURI, true)
	if err != nil {
		return nil, err
	}

	var master *MasterPlaylist
	switch playlist.Kind {
	case KindMaster:
		master = playlist.Master
	case KindMedia:
		// A media playlist fetched directly plays as a single unnamed
		// variant.
		master = &MasterPlaylist{
			Variants: []VariantStreamInfo{{URI: masterURI}},
		}
	}

	variants, order, err := e.buildStreams(master)
	if err != nil {
		return nil, err
	}

	medias, err := e.fetchMediaSet(ctx, order)
	if err != nil {
		return nil, err
	}

	// Classification comes from the first media playlist's type and
	// ENDLIST presence.
	first := medias[order[0]]
	timeline := NewPresentationTimeline(classify(first))

	for _, uri := range order {
		if err := e.initStream(ctx, e.streams[uri], medias[uri]); err != nil {
			return nil, err
		}
	}

	manifest := &Manifest{
		URI:      masterURI,
		Periods:  []*Period{{Variants: variants}},
		Timeline: timeline,
	}

	e.mu.Lock()
	e.manifest = manifest
	e.state = stateStreaming
	e.updateWindowLocked()
	allTerminal := e.allTerminalLocked()
	if allTerminal && timeline.Classification() != ClassVOD {
		// Every stream already carried ENDLIST or was VOD typed.
		timeline.MarkVOD()
	}
	if !allTerminal {
		e.loopDone = make(chan struct{})
		go e.loop()
	}
	e.mu.Unlock()

	e.observer.OnEvent(common.Event{
		Type: common.EventManifestLoaded,
		URI:  masterURI,
		Detail: map[string]any{
			"variants": len(variants),
			"streams":  len(order),
		},
	})

	return manifest, nil
}

// Stop cancels the pending refresh timer and all outstanding fetches.
// It is safe to call multiple times. No engine callback fires after Stop
// returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.state = stateStopped
	done := e.loopDone
	e.mu.Unlock()

	e.cancel()
	if done != nil {
		<-done
	}
}

// buildStreams creates the per-URI stream states and the variant list.
// Streams are deduplicated by URI: an audio rendition shared by several
// variants gets one stream, one segment index, and one fetch per cycle.
func (e *Engine) buildStreams(master *MasterPlaylist) ([]*Variant, []string, error) {
	if len(master.Variants) == 0 {
		return nil, nil, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeInvalidFormat, "master playlist has no variant streams", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	variants := make([]*Variant, 0, len(master.Variants))
	for i, info := range master.Variants {
		video := e.ensureStreamLocked(info.URI, MediaTypeVideo)
		video.Codecs = info.Codecs

		variant := &Variant{
			ID:         i,
			Bandwidth:  info.Bandwidth,
			Resolution: info.Resolution,
			FrameRate:  info.FrameRate,
			Video:      video,
		}

		if info.AudioGroup != "" {
			if entry, ok := pickRendition(master.MediaGroups, MediaTypeAudio, info.AudioGroup); ok {
				audio := e.ensureStreamLocked(entry.URI, MediaTypeAudio)
				audio.Language = entry.Language
				variant.Audio = audio
			} else {
				// A GROUP-ID with no matching rendition is tolerated by
				// omitting the association.
				e.logger.Warn("no rendition for audio group", logging.Fields{
					"group_id": info.AudioGroup,
				})
			}
		}

		variants = append(variants, variant)
	}

	return variants, e.streamOrder, nil
}

func (e *Engine) ensureStreamLocked(uri string, mediaType MediaType) *Stream {
	if st, exists := e.streams[uri]; exists {
		return st.stream
	}

	stream := &Stream{
		ID:    e.nextStreamID,
		Type:  mediaType,
		URI:   uri,
		Index: NewSegmentIndex(),
	}
	e.nextStreamID++
	e.streams[uri] = &streamState{
		uri:        uri,
		stream:     stream,
		timeOffset: e.config.DefaultTimeOffset,
	}
	e.streamOrder = append(e.streamOrder, uri)
	return stream
}

// pickRendition selects the rendition to play for a group: the DEFAULT
// entry when one carries a URI, else the first entry with a URI.
func pickRendition(groups []MediaGroupEntry, mediaType MediaType, groupID string) (MediaGroupEntry, bool) {
	var fallback MediaGroupEntry
	var found bool
	for _, entry := range groups {
		if entry.Type != mediaType || entry.GroupID != groupID || entry.URI == "" {
			continue
		}
		if entry.Default {
			return entry, true
		}
		if !found {
			fallback = entry
			found = true
		}
	}
	return fallback, found
}

// initStream builds a stream's first segment index. For a live playlist
// whose numbering starts mid-stream, the anchor time is recovered from
// the first segment's content.
func (e *Engine) initStream(ctx context.Context, st *streamState, media *MediaPlaylist) error {
	if needsStartTimeResolution(media) {
		anchor, err := e.resolveStreamAnchor(ctx, st, media)
		if err != nil {
			if e.config.UnsupportedContainerFatal {
				return err
			}
			e.logger.Warn("start time unresolved, using configured offset", logging.Fields{
				"uri":   st.uri,
				"error": err.Error(),
			})
		} else {
			st.timeOffset = anchor
		}
	}

	update, err := BuildTimeline(media, nil, st.timeOffset)
	if err != nil {
		return err
	}

	st.stream.Index.Replace(update.Refs)
	st.targetDuration = media.TargetDuration
	st.terminal = update.Terminal
	return nil
}

// needsStartTimeResolution reports whether the playlist's own numbering is
// trustworthy enough to anchor absolute time. A live window that starts at
// a nonzero sequence gives no hint of how much presentation time precedes
// it, so the anchor comes from the media itself.
func needsStartTimeResolution(media *MediaPlaylist) bool {
	return media.Type == TypeLive &&
		!media.EndList &&
		media.HasMediaSequence &&
		media.MediaSequence > 0 &&
		len(media.Segments) > 0
}

// resolveStreamAnchor fetches the leading bytes of the stream's first
// segment (prefixed by its init segment when one is declared) and
// extracts the true decode start time from the tfdt box.
func (e *Engine) resolveStreamAnchor(ctx context.Context, st *streamState, media *MediaPlaylist) (float64, error) {
	first := &media.Segments[0]

	var data []byte
	var contentType string

	if first.Init != nil {
		res, err := e.fetcher.Fetch(ctx, first.Init.URI, first.Init.ByteRange)
		if err != nil {
			return 0, common.NewManifestError(common.CategoryNetwork, first.Init.URI,
				common.ErrCodeFetchFailed, "failed to fetch init segment", err)
		}
		data = append(data, res.Body...)
	}

	probeRange := &common.ByteRange{Offset: 0, Length: e.config.StartTimeProbeBytes}
	if first.ByteRange != nil {
		probeRange = &common.ByteRange{
			Offset: first.ByteRange.Offset,
			Length: min(first.ByteRange.Length, e.config.StartTimeProbeBytes),
		}
	}

	res, err := e.fetcher.Fetch(ctx, first.URI, probeRange)
	if err != nil {
		return 0, common.NewManifestError(common.CategoryNetwork, first.URI,
			common.ErrCodeFetchFailed, "failed to fetch segment for start time resolution", err)
	}
	data = append(data, res.Body...)
	contentType = res.ContentType

	startTime, err := mp4.ResolveStartTime(data, contentType)
	if err != nil {
		return 0, err
	}
	return startTime, nil
}

// loop waits out the refresh delay and runs one update cycle at a time.
// A new cycle is never scheduled while a prior one is still merging.
func (e *Engine) loop() {
	defer close(e.loopDone)

	for {
		delay, ok := e.nextDelay()
		if !ok {
			return
		}

		timer := time.NewTimer(delay)
		select {
		case <-e.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		e.runCycle(e.ctx)

		if e.ctx.Err() != nil {
			return
		}
	}
}

// nextDelay computes the time until the next refresh: the smallest target
// duration among still-updating streams, clamped to the configured floor.
func (e *Engine) nextDelay() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	smallest := 0
	for _, st := range e.streams {
		if st.terminal {
			continue
		}
		if smallest == 0 || st.targetDuration < smallest {
			smallest = st.targetDuration
		}
	}
	if smallest == 0 && e.allTerminalLocked() {
		return 0, false
	}

	delay := time.Duration(smallest) * time.Second
	if delay < e.config.UpdateFloor {
		delay = e.config.UpdateFloor
	}
	return delay, true
}

// runCycle re-fetches every still-updating media playlist concurrently,
// then merges the results into shared state one stream at a time. A fetch
// or parse failure degrades that stream only; siblings still update.
func (e *Engine) runCycle(ctx context.Context) {
	e.mu.Lock()
	var pending []*streamState
	for _, uri := range e.streamOrder {
		if st := e.streams[uri]; !st.terminal {
			pending = append(pending, st)
		}
	}
	e.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	type fetchOutcome struct {
		media *MediaPlaylist
		err   error
	}
	outcomes := make([]fetchOutcome, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, st := range pending {
		g.Go(func() error {
			playlist, err := e.fetchPlaylist(gctx, st.uri, false)
			if err != nil {
				outcomes[i] = fetchOutcome{err: err}
				return nil
			}
			if playlist.Kind != KindMedia {
				outcomes[i] = fetchOutcome{err: common.NewManifestError(
					common.CategoryParser, st.uri, common.ErrCodeInvalidFormat,
					"expected a media playlist on refresh", nil)}
				return nil
			}
			outcomes[i] = fetchOutcome{media: playlist.Media}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		// Stopped mid-cycle; do not merge or notify.
		return
	}

	for i, st := range pending {
		outcome := outcomes[i]
		if outcome.err != nil {
			// Degrade this stream, keep its index unchanged.
			e.observer.OnError(outcome.err)
			continue
		}
		e.mergeStream(st, outcome.media)
	}

	e.mu.Lock()
	e.updateWindowLocked()
	allTerminal := e.allTerminalLocked()
	manifest := e.manifest
	e.mu.Unlock()

	if allTerminal && manifest.Timeline.Classification() != ClassVOD {
		manifest.Timeline.MarkVOD()
		e.observer.OnEvent(common.Event{Type: common.EventTimelineToVOD, URI: manifest.URI})
	}
}

// mergeStream diffs a freshly parsed playlist against the stream's known
// references and swaps in the result.
func (e *Engine) mergeStream(st *streamState, media *MediaPlaylist) {
	prior := st.stream.Index.Snapshot()

	update, err := BuildTimeline(media, prior, st.timeOffset)
	if err != nil {
		e.observer.OnError(err)
		return
	}

	st.stream.Index.Replace(update.Refs)

	e.mu.Lock()
	st.targetDuration = media.TargetDuration
	if update.Terminal {
		st.terminal = true
	}
	e.mu.Unlock()

	if update.Appended > 0 || update.Evicted > 0 {
		e.observer.OnEvent(common.Event{
			Type: common.EventStreamUpdated,
			URI:  st.uri,
			Detail: map[string]any{
				"appended": update.Appended,
				"evicted":  update.Evicted,
			},
		})
	}
}

// fetchPlaylist fetches and parses one playlist document.
func (e *Engine) fetchPlaylist(ctx context.Context, uri string, isMaster bool) (*Playlist, error) {
	res, err := e.fetcher.Fetch(ctx, uri, nil)
	if err != nil {
		code := common.ErrCodeFetchFailed
		if isMaster {
			code = common.ErrCodeMasterUnavailable
		}
		return nil, common.NewManifestError(common.CategoryNetwork, uri,
			code, "failed to fetch playlist", err)
	}
	return e.parser.Parse(string(res.Body), uri)
}

// fetchMediaSet fetches the given media playlist URIs concurrently. Any
// failure fails the whole set; this is only used during the initial load,
// where errors reject the load outright.
func (e *Engine) fetchMediaSet(ctx context.Context, uris []string) (map[string]*MediaPlaylist, error) {
	var mu sync.Mutex
	medias := make(map[string]*MediaPlaylist, len(uris))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, uri := range uris {
		g.Go(func() error {
			playlist, err := e.fetchPlaylist(gctx, uri, false)
			if err != nil {
				return err
			}
			if playlist.Kind != KindMedia {
				return common.NewManifestError(common.CategoryParser, uri,
					common.ErrCodeInvalidFormat, "expected a media playlist", nil)
			}
			mu.Lock()
			medias[uri] = playlist.Media
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return medias, nil
}

// classify derives the timeline classification from a media playlist.
func classify(media *MediaPlaylist) TimelineClass {
	switch {
	case media.EndList || media.Type == TypeVOD:
		return ClassVOD
	case media.Type == TypeEvent:
		return ClassEventInProgress
	default:
		return ClassLive
	}
}

func (e *Engine) allTerminalLocked() bool {
	for _, st := range e.streams {
		if !st.terminal {
			return false
		}
	}
	return true
}

// updateWindowLocked folds every stream's retained coverage into the
// shared availability window.
func (e *Engine) updateWindowLocked() {
	if e.manifest == nil {
		return
	}
	for _, st := range e.streams {
		start, end := st.stream.Index.Window()
		if end > 0 {
			e.manifest.Timeline.ExtendWindow(start, end)
		}
	}
}
