package media

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slowclaw/internal/publish/models"
)

func box(typ string, payload ...[]byte) []byte {
	body := bytes.Join(payload, nil)
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(body)))
	copy(out[4:8], typ)
	return append(out, body...)
}

var identity = [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
var quarterTurn = [9]int32{0, 0x00010000, 0, -0x00010000, 0, 0, 0, 0, 0x40000000}

// tkhd builds a version 0 track header box.
func tkhd(trackID uint32, width, height uint16, matrix [9]int32) []byte {
	var b bytes.Buffer
	b.Write([]byte{0, 0, 0, 3}) // version 0, enabled|in_movie
	w := func(v any) { _ = binary.Write(&b, binary.BigEndian, v) }
	w(uint32(0))      // creation time
	w(uint32(0))      // modification time
	w(trackID)        // track id
	w(uint32(0))      // reserved
	w(uint32(1000))   // duration
	w([2]uint32{})    // reserved
	w(int16(0))       // layer
	w(int16(0))       // alternate group
	w(int16(0))       // volume
	w(uint16(0))      // reserved
	w(matrix)         // matrix
	w(uint32(width) << 16)
	w(uint32(height) << 16)
	return box("tkhd", b.Bytes())
}

func writeMP4(t *testing.T, tracks ...[]byte) string {
	t.Helper()
	ftyp := box("ftyp", []byte("isom"), []byte{0, 0, 2, 0}, []byte("isomiso2mp41"))
	var traks [][]byte
	for _, tk := range tracks {
		traks = append(traks, box("trak", tk))
	}
	moov := box("moov", traks...)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, append(ftyp, moov...), 0o600))
	return path
}

func TestAspectRatio(t *testing.T) {
	t.Run("reads the visual track dimensions", func(t *testing.T) {
		path := writeMP4(t, tkhd(1, 1920, 1080, identity))

		ar, err := AspectRatio(path)

		require.NoError(t, err)
		assert.Equal(t, models.AspectRatio{Width: 1920, Height: 1080}, ar)
	})

	t.Run("skips tracks without a size", func(t *testing.T) {
		path := writeMP4(t, tkhd(1, 0, 0, identity), tkhd(2, 720, 1280, identity))

		ar, err := AspectRatio(path)

		require.NoError(t, err)
		assert.Equal(t, models.AspectRatio{Width: 720, Height: 1280}, ar)
	})

	t.Run("swaps dimensions for rotated tracks", func(t *testing.T) {
		path := writeMP4(t, tkhd(1, 1920, 1080, quarterTurn))

		ar, err := AspectRatio(path)

		require.NoError(t, err)
		assert.Equal(t, models.AspectRatio{Width: 1080, Height: 1920}, ar)
	})

	t.Run("audio only file has no dimensions", func(t *testing.T) {
		path := writeMP4(t, tkhd(1, 0, 0, identity))

		_, err := AspectRatio(path)

		assert.ErrorIs(t, err, ErrNoDimensions)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := AspectRatio(filepath.Join(t.TempDir(), "nope.mp4"))
		assert.Error(t, err)
	})
}
