package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromaSpan(t *testing.T) {
	cases := []struct {
		w, h int
		want int
	}{
		{1280, 720, 1280 * 720 / 2},
		{640, 480, 640 * 480 / 2},
		{10, 10, 50},
		{9, 9, 2*4 + 4*9 + 2},
		{0, 10, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ChromaSpan(c.w, c.h), "%dx%d", c.w, c.h)
	}
}

func TestNewAllocatesModePlanes(t *testing.T) {
	lum := New(8, 6, LuminanceOnly)
	assert.Len(t, lum.Luminance, 48)
	assert.Len(t, lum.ChromaCombined, 24)
	assert.Nil(t, lum.ChromaU)
	assert.Equal(t, LuminanceOnly, lum.Mode())
	assert.True(t, lum.Fits(8, 6, LuminanceOnly))
	assert.False(t, lum.Fits(8, 6, CombinedChroma))

	chroma := New(8, 6, CombinedChroma)
	assert.Len(t, chroma.ChromaU, 23)
	assert.Len(t, chroma.ChromaV, 23)
	assert.Nil(t, chroma.ChromaCombined)
	assert.Equal(t, CombinedChroma, chroma.Mode())
	assert.True(t, chroma.Fits(8, 6, CombinedChroma))
	assert.False(t, chroma.Fits(10, 6, CombinedChroma))
}

func TestLoadNV12SplitsInterleavedChroma(t *testing.T) {
	f := New(4, 2, CombinedChroma)
	y := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	uv := []byte{10, 20, 11, 21}

	require.NoError(t, f.LoadNV12(42, y, uv))
	assert.Equal(t, uint64(42), f.Timestamp)
	assert.Equal(t, y, f.Luminance)
	assert.Equal(t, []byte{10, 20, 11}, f.ChromaU)
	assert.Equal(t, []byte{20, 11, 21}, f.ChromaV)

	// Buffers are copies, not aliases.
	y[0] = 99
	assert.Equal(t, byte(1), f.Luminance[0])
}

func TestLoadNV12RejectsShortPlanes(t *testing.T) {
	f := New(4, 2, LuminanceOnly)
	err := f.LoadNV12(0, make([]byte, 7), make([]byte, 4))
	assert.True(t, errors.Is(err, ErrPlaneSize))

	err = f.LoadNV12(0, make([]byte, 8), make([]byte, 3))
	assert.True(t, errors.Is(err, ErrPlaneSize))
}

func TestLoadLuminanceLeavesChroma(t *testing.T) {
	f := New(4, 2, LuminanceOnly)
	f.ChromaCombined[0] = 99

	require.NoError(t, f.LoadLuminance(7, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	assert.Equal(t, uint64(7), f.Timestamp)
	assert.Equal(t, byte(8), f.Luminance[7])
	assert.Equal(t, byte(99), f.ChromaCombined[0])

	assert.ErrorIs(t, f.LoadLuminance(0, make([]byte, 9)), ErrPlaneSize)
}

func TestDeviceModeParsing(t *testing.T) {
	for in, want := range map[string]DeviceMode{
		"luminance": LuminanceOnly,
		"iOS":       LuminanceOnly,
		"chroma":    CombinedChroma,
		" android ": CombinedChroma,
	} {
		got, err := ParseDeviceMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDeviceMode("rgb")
	assert.Error(t, err)

	m, err := FromPhoneModel(PhoneModelAndroid)
	require.NoError(t, err)
	assert.Equal(t, CombinedChroma, m)
	assert.Equal(t, PhoneModelIOS, LuminanceOnly.PhoneModel())
	_, err = FromPhoneModel(3)
	assert.Error(t, err)
}
