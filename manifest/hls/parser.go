package hls

import (
	"bufio"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// Parser turns raw playlist text into a typed Playlist. Tag handling goes
// through a registry so deployments can recognize vendor tags without
// forking the parser.
type Parser struct {
	tagHandlers map[string]TagHandler
}

// TagHandler defines how to handle a specific playlist tag.
type TagHandler struct {
	Name        string
	Description string
	Handler     func(value string, b *PlaylistBuilder, ctx *ParseContext) error
}

// ParseContext holds the current parsing state.
type ParseContext struct {
	LineNumber     int
	BaseURI        string
	CurrentSegment *SegmentTag
	CurrentVariant *VariantStreamInfo
	CurrentMap     *InitSegment

	// End offset of the previous segment's byte range. An #EXT-X-BYTERANGE
	// without an explicit offset continues from here.
	prevRangeEnd int64
}

// PlaylistBuilder accumulates tag state until the document can be
// classified as master or media.
type PlaylistBuilder struct {
	version          int
	playlistType     PlaylistType
	targetDuration   int
	mediaSequence    int64
	hasMediaSequence bool
	endList          bool
	segments         []SegmentTag
	variants         []VariantStreamInfo
	mediaGroups      []MediaGroupEntry
	unknown          map[string]string
}

// NewParser creates a parser with handlers for all recognized tags.
func NewParser() *Parser {
	p := &Parser{
		tagHandlers: make(map[string]TagHandler),
	}
	p.registerDefaultTagHandlers()
	return p
}

// Parse parses one playlist document. Relative URIs are resolved against
// baseURI. Structural problems are reported as PARSER category errors.
func (p *Parser) Parse(text, baseURI string) (*Playlist, error) {
	b := &PlaylistBuilder{
		playlistType: TypeLive,
		unknown:      make(map[string]string),
	}
	ctx := &ParseContext{BaseURI: baseURI}

	scanner := bufio.NewScanner(strings.NewReader(text))
	if !scanner.Scan() {
		return nil, common.NewManifestError(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "empty playlist", nil)
	}
	ctx.LineNumber++

	if strings.TrimSpace(scanner.Text()) != "#EXTM3U" {
		return nil, common.NewManifestErrorWithFields(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "missing #EXTM3U header", nil,
			logging.Fields{"line_number": ctx.LineNumber})
	}

	for scanner.Scan() {
		ctx.LineNumber++
		line := strings.TrimSpace(scanner.Text())

		// Skip blanks and plain comments. Tags all start with #EXT.
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "#EXT")) {
			continue
		}

		var err error
		if strings.HasPrefix(line, "#EXT") {
			err = p.parseTag(line, b, ctx)
		} else {
			err = p.handleURI(line, b, ctx)
		}
		if err != nil {
			return nil, err
		}
	}

	if ctx.CurrentSegment != nil {
		return nil, common.NewManifestErrorWithFields(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "#EXTINF without a following URI line", nil,
			logging.Fields{"line_number": ctx.LineNumber})
	}
	if ctx.CurrentVariant != nil {
		return nil, common.NewManifestErrorWithFields(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "#EXT-X-STREAM-INF without a following URI line", nil,
			logging.Fields{"line_number": ctx.LineNumber})
	}

	return p.classify(b, baseURI, ctx)
}

// classify decides master vs media from the tags actually seen.
func (p *Parser) classify(b *PlaylistBuilder, baseURI string, ctx *ParseContext) (*Playlist, error) {
	isMaster := len(b.variants) > 0 || len(b.mediaGroups) > 0
	isMedia := len(b.segments) > 0

	switch {
	case isMaster && isMedia:
		return nil, common.NewManifestError(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "playlist mixes master and media tags", nil)
	case isMaster:
		return &Playlist{
			Kind:    KindMaster,
			URI:     baseURI,
			Version: b.version,
			Master: &MasterPlaylist{
				Variants:    b.variants,
				MediaGroups: b.mediaGroups,
				Unknown:     b.unknown,
			},
		}, nil
	case isMedia:
		return &Playlist{
			Kind:    KindMedia,
			URI:     baseURI,
			Version: b.version,
			Media: &MediaPlaylist{
				Type:             b.playlistType,
				TargetDuration:   b.targetDuration,
				MediaSequence:    b.mediaSequence,
				HasMediaSequence: b.hasMediaSequence,
				Segments:         b.segments,
				EndList:          b.endList,
				Unknown:          b.unknown,
			},
		}, nil
	default:
		return nil, common.NewManifestErrorWithFields(common.CategoryParser, baseURI,
			common.ErrCodeInvalidFormat, "playlist contains neither variants nor segments", nil,
			logging.Fields{"lines": ctx.LineNumber})
	}
}

// parseTag dispatches one tag line to its registered handler.
func (p *Parser) parseTag(line string, b *PlaylistBuilder, ctx *ParseContext) error {
	name, value, _ := strings.Cut(line, ":")

	if handler, exists := p.tagHandlers[name]; exists {
		return handler.Handler(value, b, ctx)
	}

	// Forward-compatible ignore: unknown tags are preserved but carry no
	// meaning for higher layers.
	if cleanTag, found := strings.CutPrefix(name, "#EXT-X-"); found {
		b.unknown[strings.ToLower(cleanTag)] = value
	}
	return nil
}

// handleURI attaches a URI line to the pending #EXTINF or #EXT-X-STREAM-INF.
func (p *Parser) handleURI(uri string, b *PlaylistBuilder, ctx *ParseContext) error {
	resolved := ResolveURI(ctx.BaseURI, uri)

	switch {
	case ctx.CurrentSegment != nil:
		ctx.CurrentSegment.URI = resolved
		ctx.CurrentSegment.Init = ctx.CurrentMap
		if ctx.CurrentSegment.ByteRange != nil {
			ctx.prevRangeEnd = ctx.CurrentSegment.ByteRange.End()
		}
		b.segments = append(b.segments, *ctx.CurrentSegment)
		ctx.CurrentSegment = nil
	case ctx.CurrentVariant != nil:
		ctx.CurrentVariant.URI = resolved
		b.variants = append(b.variants, *ctx.CurrentVariant)
		ctx.CurrentVariant = nil
	default:
		return common.NewManifestErrorWithFields(common.CategoryParser, ctx.BaseURI,
			common.ErrCodeOrphanURI, "URI line with no preceding descriptor tag", nil,
			logging.Fields{"line_number": ctx.LineNumber, "uri": uri})
	}
	return nil
}

// registerDefaultTagHandlers registers all recognized tags.
func (p *Parser) registerDefaultTagHandlers() {
	handlers := []TagHandler{
		{
			Name:        "#EXT-X-VERSION",
			Description: "Playlist version",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return tagError(ctx, "#EXT-X-VERSION", value, err)
				}
				b.version = v
				return nil
			},
		},
		{
			Name:        "#EXT-X-PLAYLIST-TYPE",
			Description: "Playlist type (VOD or EVENT)",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				switch value {
				case "VOD":
					b.playlistType = TypeVOD
				case "EVENT":
					b.playlistType = TypeEvent
				default:
					return tagError(ctx, "#EXT-X-PLAYLIST-TYPE", value, nil)
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-TARGETDURATION",
			Description: "Target segment duration",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				v, err := strconv.Atoi(value)
				if err != nil {
					return tagError(ctx, "#EXT-X-TARGETDURATION", value, err)
				}
				b.targetDuration = v
				return nil
			},
		},
		{
			Name:        "#EXT-X-MEDIA-SEQUENCE",
			Description: "Media sequence number",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				v, err := strconv.ParseInt(value, 10, 64)
				if err != nil {
					return tagError(ctx, "#EXT-X-MEDIA-SEQUENCE", value, err)
				}
				b.mediaSequence = v
				b.hasMediaSequence = true
				return nil
			},
		},
		{
			Name:        "#EXT-X-ENDLIST",
			Description: "End of playlist marker",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				b.endList = true
				return nil
			},
		},
		{
			Name:        "#EXTINF",
			Description: "Segment duration and title",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				durStr, title, _ := strings.Cut(value, ",")
				duration, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
				if err != nil {
					return tagError(ctx, "#EXTINF", value, err)
				}
				ctx.CurrentSegment = &SegmentTag{
					Duration: duration,
					Title:    title,
				}
				return nil
			},
		},
		{
			Name:        "#EXT-X-BYTERANGE",
			Description: "Byte range for the next segment",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				if ctx.CurrentSegment == nil {
					return tagError(ctx, "#EXT-X-BYTERANGE", value, nil)
				}
				r, err := ParseByteRange(strings.Trim(value, "\""), ctx.prevRangeEnd)
				if err != nil {
					return tagError(ctx, "#EXT-X-BYTERANGE", value, err)
				}
				ctx.CurrentSegment.ByteRange = r
				return nil
			},
		},
		{
			Name:        "#EXT-X-MAP",
			Description: "Initialization segment",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				attrs, err := parseAttributes(value)
				if err != nil {
					return tagError(ctx, "#EXT-X-MAP", value, err)
				}
				uri := unquote(attrs["URI"])
				if uri == "" {
					return missingAttributeError(ctx, "#EXT-X-MAP", "URI")
				}
				initSeg := &InitSegment{URI: ResolveURI(ctx.BaseURI, uri)}
				if rangeStr, exists := attrs["BYTERANGE"]; exists {
					r, err := ParseByteRange(unquote(rangeStr), 0)
					if err != nil {
						return tagError(ctx, "#EXT-X-MAP", value, err)
					}
					initSeg.ByteRange = r
				}
				ctx.CurrentMap = initSeg
				return nil
			},
		},
		{
			Name:        "#EXT-X-STREAM-INF",
			Description: "Variant stream information",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				attrs, err := parseAttributes(value)
				if err != nil {
					return tagError(ctx, "#EXT-X-STREAM-INF", value, err)
				}

				bandwidthStr, exists := attrs["BANDWIDTH"]
				if !exists {
					return missingAttributeError(ctx, "#EXT-X-STREAM-INF", "BANDWIDTH")
				}
				bandwidth, err := strconv.Atoi(bandwidthStr)
				if err != nil {
					return tagError(ctx, "#EXT-X-STREAM-INF", value, err)
				}

				variant := &VariantStreamInfo{
					Bandwidth:  bandwidth,
					Codecs:     unquote(attrs["CODECS"]),
					Resolution: attrs["RESOLUTION"],
					AudioGroup: unquote(attrs["AUDIO"]),
				}
				if frameRate, exists := attrs["FRAME-RATE"]; exists {
					if f, err := strconv.ParseFloat(frameRate, 64); err == nil {
						variant.FrameRate = f
					}
				}
				ctx.CurrentVariant = variant
				return nil
			},
		},
		{
			Name:        "#EXT-X-MEDIA",
			Description: "Rendition group entry",
			Handler: func(value string, b *PlaylistBuilder, ctx *ParseContext) error {
				attrs, err := parseAttributes(value)
				if err != nil {
					return tagError(ctx, "#EXT-X-MEDIA", value, err)
				}

				mediaType := MediaType(attrs["TYPE"])
				switch mediaType {
				case MediaTypeAudio, MediaTypeVideo, MediaTypeSubtitles:
				default:
					return missingAttributeError(ctx, "#EXT-X-MEDIA", "TYPE")
				}
				groupID := unquote(attrs["GROUP-ID"])
				if groupID == "" {
					return missingAttributeError(ctx, "#EXT-X-MEDIA", "GROUP-ID")
				}

				entry := MediaGroupEntry{
					Type:     mediaType,
					GroupID:  groupID,
					Language: normalizeLanguage(unquote(attrs["LANGUAGE"])),
					Name:     unquote(attrs["NAME"]),
					Default:  attrs["DEFAULT"] == "YES",
				}
				if uri := unquote(attrs["URI"]); uri != "" {
					entry.URI = ResolveURI(ctx.BaseURI, uri)
				}
				b.mediaGroups = append(b.mediaGroups, entry)
				return nil
			},
		},
	}

	for _, handler := range handlers {
		p.RegisterTagHandler(handler)
	}
}

// RegisterTagHandler registers a tag handler, replacing any existing one
// with the same name.
func (p *Parser) RegisterTagHandler(handler TagHandler) {
	p.tagHandlers[handler.Name] = handler
}

// GetRegisteredTags returns the names of all registered tag handlers.
func (p *Parser) GetRegisteredTags() []string {
	tags := make([]string, 0, len(p.tagHandlers))
	for tag := range p.tagHandlers {
		tags = append(tags, tag)
	}
	return tags
}

func tagError(ctx *ParseContext, tag, value string, cause error) error {
	return common.NewManifestErrorWithFields(common.CategoryParser, ctx.BaseURI,
		common.ErrCodeInvalidFormat, fmt.Sprintf("malformed %s tag", tag), cause,
		logging.Fields{"line_number": ctx.LineNumber, "value": value})
}

func missingAttributeError(ctx *ParseContext, tag, attribute string) error {
	return common.NewManifestErrorWithFields(common.CategoryParser, ctx.BaseURI,
		common.ErrCodeMissingAttribute, fmt.Sprintf("%s is missing required attribute %s", tag, attribute), nil,
		logging.Fields{"line_number": ctx.LineNumber})
}

// ParseByteRange parses "length[@offset]". When the offset is absent the
// range continues at prevEnd, the end of the previous segment's range.
func ParseByteRange(value string, prevEnd int64) (*common.ByteRange, error) {
	lengthStr, offsetStr, hasOffset := strings.Cut(value, "@")

	length, err := strconv.ParseInt(lengthStr, 10, 64)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid byte range length %q", value)
	}

	offset := prevEnd
	if hasOffset {
		offset, err = strconv.ParseInt(offsetStr, 10, 64)
		if err != nil || offset < 0 {
			return nil, fmt.Errorf("invalid byte range offset %q", value)
		}
	}

	return &common.ByteRange{Offset: offset, Length: length}, nil
}

// parseAttributes parses attribute lists like
// 'BANDWIDTH=1280000,CODECS="avc1.42e00a,mp4a.40.2"' with quote-aware
// comma splitting.
func parseAttributes(attrString string) (map[string]string, error) {
	attrs := make(map[string]string)

	var parts []string
	var current strings.Builder
	inQuotes := false

	for _, char := range attrString {
		switch char {
		case '"':
			inQuotes = !inQuotes
			current.WriteRune(char)
		case ',':
			if inQuotes {
				current.WriteRune(char)
			} else {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(char)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quote in attribute list %q", attrString)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("malformed attribute %q", part)
		}
		attrs[key] = value
	}

	return attrs, nil
}

// unquote strips one pair of surrounding double quotes.
func unquote(value string) string {
	return strings.Trim(value, "\"")
}

// normalizeLanguage canonicalizes a LANGUAGE attribute into a BCP-47 tag.
// Unparseable values are kept as-is rather than dropped.
func normalizeLanguage(lang string) string {
	if lang == "" {
		return ""
	}
	if tag, err := language.Parse(lang); err == nil {
		return tag.String()
	}
	return lang
}

// ResolveURI resolves a possibly-relative URI against a base URI.
func ResolveURI(baseURI, uri string) string {
	if baseURI == "" {
		return uri
	}
	base, err := url.Parse(baseURI)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}
