package mp4

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/hls-manifest-engine/manifest/common"
)

func box(boxType string, payload ...[]byte) []byte {
	size := 8
	for _, p := range payload {
		size += len(p)
	}
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, uint32(size))
	out = append(out, boxType...)
	for _, p := range payload {
		out = append(out, p...)
	}
	return out
}

func tfdtPayloadV0(baseMediaDecodeTime uint32) []byte {
	payload := []byte{0, 0, 0, 0}
	return binary.BigEndian.AppendUint32(payload, baseMediaDecodeTime)
}

func tfdtPayloadV1(baseMediaDecodeTime uint64) []byte {
	payload := []byte{1, 0, 0, 0}
	return binary.BigEndian.AppendUint64(payload, baseMediaDecodeTime)
}

// mdhd and mvhd share the same leading layout: version/flags, two
// version-sized timestamps, then the timescale.
func headerBoxPayloadV0(timescale uint32) []byte {
	payload := []byte{0, 0, 0, 0}
	payload = append(payload, make([]byte, 8)...)
	payload = binary.BigEndian.AppendUint32(payload, timescale)
	payload = binary.BigEndian.AppendUint32(payload, 0) // duration
	return payload
}

func headerBoxPayloadV1(timescale uint32) []byte {
	payload := []byte{1, 0, 0, 0}
	payload = append(payload, make([]byte, 16)...)
	payload = binary.BigEndian.AppendUint32(payload, timescale)
	return payload
}

func moofWithTfdt(tfdtPayload []byte) []byte {
	return box("moof", box("traf", box("tfdt", tfdtPayload)))
}

func assertManifestCode(t *testing.T, err error, code string) {
	t.Helper()
	var manifestErr *common.ManifestError
	require.True(t, errors.As(err, &manifestErr), "error: %v", err)
	assert.Equal(t, common.CategoryManifest, manifestErr.Category)
	assert.Equal(t, code, manifestErr.Code)
}

func TestResolveStartTime(t *testing.T) {
	t.Run("version 0 with default timescale", func(t *testing.T) {
		data := moofWithTfdt(tfdtPayloadV0(180000))

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 2.0, start)
	})

	t.Run("version 1 with default timescale", func(t *testing.T) {
		data := moofWithTfdt(tfdtPayloadV1(450000))

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 5.0, start)
	})

	t.Run("sibling boxes before moof are skipped", func(t *testing.T) {
		data := box("styp", []byte{'m', 's', 'd', 'h'})
		data = append(data, box("sidx", make([]byte, 24))...)
		data = append(data, moofWithTfdt(tfdtPayloadV0(90000))...)

		start, err := ResolveStartTime(data, "")
		require.NoError(t, err)
		assert.Equal(t, 1.0, start)
	})

	t.Run("zero decode time", func(t *testing.T) {
		data := moofWithTfdt(tfdtPayloadV0(0))

		start, err := ResolveStartTime(data, "")
		require.NoError(t, err)
		assert.Equal(t, 0.0, start)
	})
}

func TestResolveStartTimeWithInitSegment(t *testing.T) {
	t.Run("mdhd timescale wins", func(t *testing.T) {
		init := box("moov",
			box("mvhd", headerBoxPayloadV0(1000)),
			box("trak", box("mdia", box("mdhd", headerBoxPayloadV0(44100)))),
		)
		data := append(init, moofWithTfdt(tfdtPayloadV0(88200))...)

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 2.0, start)
	})

	t.Run("mvhd fallback when no mdhd", func(t *testing.T) {
		init := box("moov", box("mvhd", headerBoxPayloadV0(1000)))
		data := append(init, moofWithTfdt(tfdtPayloadV0(3000))...)

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 3.0, start)
	})

	t.Run("version 1 mdhd", func(t *testing.T) {
		init := box("moov", box("trak", box("mdia", box("mdhd", headerBoxPayloadV1(48000)))))
		data := append(init, moofWithTfdt(tfdtPayloadV0(96000))...)

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 2.0, start)
	})

	t.Run("zero timescale falls back to default", func(t *testing.T) {
		init := box("moov", box("mvhd", headerBoxPayloadV0(0)))
		data := append(init, moofWithTfdt(tfdtPayloadV0(90000))...)

		start, err := ResolveStartTime(data, "video/mp4")
		require.NoError(t, err)
		assert.Equal(t, 1.0, start)
	})
}

func TestResolveStartTimeUnsupportedContainer(t *testing.T) {
	t.Run("ts by content type", func(t *testing.T) {
		_, err := ResolveStartTime([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}, "video/mp2t")
		assertManifestCode(t, err, common.ErrCodeUnsupportedContainer)
	})

	t.Run("ts by sync byte", func(t *testing.T) {
		packet := make([]byte, 188)
		packet[0] = 0x47
		_, err := ResolveStartTime(packet, "")
		assertManifestCode(t, err, common.ErrCodeUnsupportedContainer)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveStartTime([]byte{0, 0}, "")
		assertManifestCode(t, err, common.ErrCodeUnsupportedContainer)
	})

	t.Run("no tfdt box", func(t *testing.T) {
		data := box("moof", box("traf", box("tfhd", []byte{0, 0, 0, 0})))
		_, err := ResolveStartTime(data, "")
		assertManifestCode(t, err, common.ErrCodeUnsupportedContainer)
	})

}

func TestResolveStartTimeTruncated(t *testing.T) {
	t.Run("box larger than data", func(t *testing.T) {
		data := moofWithTfdt(tfdtPayloadV0(180000))
		binary.BigEndian.PutUint32(data, uint32(len(data)+100))

		_, err := ResolveStartTime(data, "")
		assertManifestCode(t, err, common.ErrCodeTruncatedBox)
	})

	t.Run("tfdt payload too short for version 0", func(t *testing.T) {
		data := box("moof", box("traf", box("tfdt", []byte{0, 0, 0, 0, 0, 0})))
		_, err := ResolveStartTime(data, "")
		assertManifestCode(t, err, common.ErrCodeTruncatedBox)
	})

	t.Run("tfdt payload too short for version 1", func(t *testing.T) {
		data := box("moof", box("traf", box("tfdt", []byte{1, 0, 0, 0, 0, 0, 0, 0})))
		_, err := ResolveStartTime(data, "")
		assertManifestCode(t, err, common.ErrCodeTruncatedBox)
	})
}

func TestResolveStartTimeUnknownTfdtVersion(t *testing.T) {
	data := moofWithTfdt(append([]byte{9, 0, 0, 0}, make([]byte, 8)...))
	_, err := ResolveStartTime(data, "")
	assertManifestCode(t, err, common.ErrCodeInvalidFormat)
}

func TestFindChildBox(t *testing.T) {
	t.Run("largesize header", func(t *testing.T) {
		payload := []byte{0xAA, 0xBB}
		var data []byte
		data = binary.BigEndian.AppendUint32(data, 1)
		data = append(data, "free"...)
		data = binary.BigEndian.AppendUint64(data, uint64(16+len(payload)))
		data = append(data, payload...)

		got, err := findChildBox(data, "free")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("size zero extends to end", func(t *testing.T) {
		payload := []byte{1, 2, 3}
		var data []byte
		data = binary.BigEndian.AppendUint32(data, 0)
		data = append(data, "mdat"...)
		data = append(data, payload...)

		got, err := findChildBox(data, "mdat")
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("size below header length", func(t *testing.T) {
		var data []byte
		data = binary.BigEndian.AppendUint32(data, 4)
		data = append(data, "free"...)

		_, err := findChildBox(data, "free")
		assert.ErrorIs(t, err, errBoxTruncated)
	})

	t.Run("missing box", func(t *testing.T) {
		_, err := findChildBox(box("free"), "moof")
		assert.ErrorIs(t, err, errBoxNotFound)
	})
}
