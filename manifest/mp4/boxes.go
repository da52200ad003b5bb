// Package mp4 extracts the true decode start time of a fragmented MP4
// segment from its leading bytes. The update engine uses it to anchor
// presentation timestamps when a live playlist's own numbering cannot be
// trusted.
package mp4

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/RyanBlaney/hls-manifest-engine/logging"
	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

// DefaultTimescale is assumed when no mdhd or mvhd box is available.
// Legacy convention: 90 kHz, the MPEG transport clock.
const DefaultTimescale = 90000

// tsSyncByte starts every MPEG-2 TS packet.
const tsSyncByte = 0x47

var (
	errBoxNotFound  = errors.New("box not found")
	errBoxTruncated = errors.New("box extends past available bytes")
)

// ResolveStartTime walks the ISO-BMFF boxes in data and returns the
// fragment's base media decode time in seconds. data only needs to cover
// the moof header, not the media payload; fetching a truncated prefix is
// the caller's responsibility.
//
// The timescale comes from the mdhd (or mvhd) box when an initialization
// segment is prepended to data, otherwise DefaultTimescale is assumed.
//
// Content that is not fragmented MP4 yields an UNSUPPORTED_CONTAINER
// error; the caller decides whether that is fatal.
func ResolveStartTime(data []byte, contentTypeHint string) (float64, error) {
	hint := strings.ToLower(contentTypeHint)
	if strings.Contains(hint, "mp2t") || (len(data) > 0 && data[0] == tsSyncByte) {
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeUnsupportedContainer,
			"cannot parse start time from MPEG-2 TS content", nil)
	}
	if len(data) < 8 {
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeUnsupportedContainer,
			"content too short to contain a box header", nil)
	}

	tfdt, err := findBox(data, "moof", "traf", "tfdt")
	switch {
	case errors.Is(err, errBoxNotFound):
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeUnsupportedContainer,
			"cannot parse start time from this container: no tfdt box", nil)
	case errors.Is(err, errBoxTruncated):
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeTruncatedBox,
			"box declared larger than the bytes available", err)
	case err != nil:
		return 0, err
	}

	baseMediaDecodeTime, err := parseTfdt(tfdt)
	if err != nil {
		return 0, err
	}

	timescale := resolveTimescale(data)
	startTime := float64(baseMediaDecodeTime) / float64(timescale)

	logging.Debug("resolved segment start time", logging.Fields{
		"base_media_decode_time": baseMediaDecodeTime,
		"timescale":              timescale,
		"start_time":             startTime,
	})

	return startTime, nil
}

// parseTfdt decodes a tfdt full box payload: 1 byte version, 3 bytes
// flags, then a 32-bit (version 0) or 64-bit (version 1) decode time.
func parseTfdt(payload []byte) (uint64, error) {
	if len(payload) < 4 {
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeTruncatedBox, "tfdt box too short", nil)
	}

	version := payload[0]
	body := payload[4:]

	switch version {
	case 0:
		if len(body) < 4 {
			return 0, common.NewManifestError(common.CategoryManifest, "",
				common.ErrCodeTruncatedBox, "tfdt version 0 payload too short", nil)
		}
		return uint64(binary.BigEndian.Uint32(body)), nil
	case 1:
		if len(body) < 8 {
			return 0, common.NewManifestError(common.CategoryManifest, "",
				common.ErrCodeTruncatedBox, "tfdt version 1 payload too short", nil)
		}
		return binary.BigEndian.Uint64(body), nil
	default:
		return 0, common.NewManifestError(common.CategoryManifest, "",
			common.ErrCodeInvalidFormat, fmt.Sprintf("unknown tfdt version %d", version), nil)
	}
}

// resolveTimescale reads the track timescale from mdhd, falling back to
// the movie timescale from mvhd, falling back to DefaultTimescale. The
// moov box is only present when the caller prepended the init segment.
func resolveTimescale(data []byte) uint32 {
	if payload, err := findBox(data, "moov", "trak", "mdia", "mdhd"); err == nil {
		if ts, ok := timescaleFromHeaderBox(payload); ok {
			return ts
		}
	}
	if payload, err := findBox(data, "moov", "mvhd"); err == nil {
		if ts, ok := timescaleFromHeaderBox(payload); ok {
			return ts
		}
	}
	return DefaultTimescale
}

// timescaleFromHeaderBox extracts the timescale field shared by the mdhd
// and mvhd layouts: after version/flags come two timestamps sized by
// version, then the 32-bit timescale.
func timescaleFromHeaderBox(payload []byte) (uint32, bool) {
	if len(payload) < 4 {
		return 0, false
	}

	var offset int
	switch payload[0] {
	case 0:
		offset = 4 + 8
	case 1:
		offset = 4 + 16
	default:
		return 0, false
	}

	if len(payload) < offset+4 {
		return 0, false
	}
	ts := binary.BigEndian.Uint32(payload[offset:])
	if ts == 0 {
		return 0, false
	}
	return ts, true
}

// findBox descends through nested boxes following path, returning the
// payload of the final box. Each level scans sibling boxes by reading a
// 4-byte big-endian size and 4-byte ASCII type. A box that declares more
// bytes than are available stops the walk with errBoxTruncated rather
// than reading out of bounds.
func findBox(data []byte, path ...string) ([]byte, error) {
	payload := data
	for _, want := range path {
		next, err := findChildBox(payload, want)
		if err != nil {
			return nil, err
		}
		payload = next
	}
	return payload, nil
}

func findChildBox(payload []byte, want string) ([]byte, error) {
	offset := 0
	for offset+8 <= len(payload) {
		size := binary.BigEndian.Uint32(payload[offset:])
		boxType := string(payload[offset+4 : offset+8])
		headerLen := 8

		var boxEnd int
		switch size {
		case 0:
			// Box extends to the end of the enclosing space.
			boxEnd = len(payload)
		case 1:
			// 64-bit largesize.
			if offset+16 > len(payload) {
				return nil, errBoxTruncated
			}
			large := binary.BigEndian.Uint64(payload[offset+8:])
			if large < 16 || large > uint64(len(payload)-offset) {
				return nil, errBoxTruncated
			}
			headerLen = 16
			boxEnd = offset + int(large)
		default:
			if size < 8 {
				return nil, errBoxTruncated
			}
			boxEnd = offset + int(size)
			if boxEnd > len(payload) {
				return nil, errBoxTruncated
			}
		}

		if boxType == want {
			return payload[offset+headerLen : boxEnd], nil
		}
		offset = boxEnd
	}
	return nil, errBoxNotFound
}
