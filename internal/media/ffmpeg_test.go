package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func jpegBytes(payload ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, payload...)
	return append(frame, 0xFF, 0xD9)
}

func TestExtractJPEGFrame(t *testing.T) {
	first := jpegBytes(0x01, 0x02)
	second := jpegBytes(0x03)

	buffer := append(append([]byte{}, first...), second...)

	got := ExtractJPEGFrame(&buffer)
	require.Equal(t, first, got)

	got = ExtractJPEGFrame(&buffer)
	require.Equal(t, second, got)

	require.Nil(t, ExtractJPEGFrame(&buffer))
}

func TestExtractJPEGFrameIncomplete(t *testing.T) {
	buffer := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03}
	require.Nil(t, ExtractJPEGFrame(&buffer))
	// Buffer is kept intact until the end marker arrives.
	require.Len(t, buffer, 5)

	buffer = append(buffer, 0xFF, 0xD9)
	got := ExtractJPEGFrame(&buffer)
	require.NotNil(t, got)
	require.Empty(t, buffer)
}

func TestExtractJPEGFrameSkipsLeadingGarbage(t *testing.T) {
	frame := jpegBytes(0xAA)
	buffer := append([]byte{0x00, 0x11, 0x22}, frame...)

	got := ExtractJPEGFrame(&buffer)
	require.Equal(t, frame, got)
}

func TestScaleFilterPreservesAspectRatio(t *testing.T) {
	require.Equal(t, "scale='min(480,iw)':-2", scaleFilter(480))
	require.Equal(t, "scale='min(640,iw)':-2", scaleFilter(640))
}
