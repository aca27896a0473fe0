package extract

import (
	"bytes"
	"errors"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-ppg/internal/frame"
)

// --- Region layout ---

func TestTile9x9(t *testing.T) {
	regions := Tile(9, 9, 3)
	want := [][2]int{{0, 0}, {3, 0}, {6, 0}, {0, 3}, {3, 3}, {6, 3}, {0, 6}, {3, 6}, {6, 6}}
	require.Len(t, regions, 9)
	for r, reg := range regions {
		assert.Equal(t, want[r], [2]int{reg.X, reg.Y}, "region %d offset", r)
		assert.Equal(t, 3, reg.Width, "region %d width", r)
		assert.Equal(t, 3, reg.Height, "region %d height", r)
	}
}

// TestTile10x9 checks the leftover column handling.
//
// The row carry absorbs the extra column into the last region of a row once
// (r+2)*wstep/width strictly exceeds the row counter. For the bottom row of a
// 10x9 frame that quotient is exactly 3, so the final region keeps wstep.
func TestTile10x9(t *testing.T) {
	regions := Tile(10, 9, 3)
	widths := make([]int, len(regions))
	for i, reg := range regions {
		widths[i] = reg.Width
		assert.Equal(t, 3, reg.Height, "region %d height", i)
	}
	assert.Equal(t, []int{3, 3, 4, 3, 3, 4, 3, 3, 3}, widths)
	assert.Equal(t, Region{Index: 2, X: 6, Y: 0, Width: 4, Height: 3}, regions[2])
	assert.Equal(t, Region{Index: 5, X: 6, Y: 3, Width: 4, Height: 3}, regions[5])
	assert.Equal(t, Region{Index: 6, X: 0, Y: 6, Width: 3, Height: 3}, regions[6])
	assert.NoError(t, checkTiling(regions, 10, 9))
}

func TestTileCameraResolutionsPartitionFrame(t *testing.T) {
	for _, res := range [][2]int{{1280, 720}, {1920, 1080}, {640, 480}, {720, 480}, {352, 288}, {9, 9}} {
		w, h := res[0], res[1]
		regions := Tile(w, h, DefaultRegionsPerRow)
		require.NoError(t, checkTiling(regions, w, h), "%dx%d", w, h)
		assert.Equal(t, w*h, totalArea(regions), "%dx%d", w, h)
	}
}

// TestTilePartitionProperty generates frames whose leftover columns fit the
// row carry (wstep > n*(width mod n)) and whose height divides evenly, and
// checks the regions cover the frame exactly once.
func TestTilePartitionProperty(t *testing.T) {
	const n = DefaultRegionsPerRow
	property := func(a, b, c uint16) bool {
		hstep := 1 + int(a)%200
		rem := int(c) % n
		wstep := n*rem + 1 + int(b)%400
		w, h := n*wstep+rem, n*hstep

		regions := Tile(w, h, n)
		if checkTiling(regions, w, h) != nil {
			t.Logf("%dx%d: %v", w, h, checkTiling(regions, w, h))
			return false
		}
		if totalArea(regions) != w*h {
			t.Logf("%dx%d: area %d", w, h, totalArea(regions))
			return false
		}
		return true
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 500}); err != nil {
		t.Error(err)
	}
}

func TestCheckTilingRejectsEscapingRegions(t *testing.T) {
	err := checkTiling([]Region{{X: 8, Y: 0, Width: 3, Height: 3}}, 10, 9)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	err = checkTiling([]Region{
		{Index: 0, X: 0, Y: 0, Width: 4, Height: 3},
		{Index: 1, X: 3, Y: 0, Width: 3, Height: 3},
	}, 10, 9)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func totalArea(regions []Region) int {
	sum := 0
	for _, r := range regions {
		sum += r.Area()
	}
	return sum
}

// --- Extraction ---

func TestUniformLuminanceFrame(t *testing.T) {
	for _, v := range []byte{0, 1, 128, 255} {
		e, err := New(Config{Width: 12, Height: 9, Mode: frame.LuminanceOnly})
		require.NoError(t, err)

		s, err := e.ExtractOne(7, bytes.Repeat([]byte{v}, 12*9), make([]byte, frame.ChromaSpan(12, 9)))
		require.NoError(t, err)

		assert.Equal(t, uint64(7), s.Timestamp)
		require.Len(t, s.Signals, 30)
		for r := 0; r < 9; r++ {
			assert.Equal(t, float64(v), s.Signals[3*r], "region %d", r)
			assert.Zero(t, s.Signals[3*r+1])
			assert.Zero(t, s.Signals[3*r+2])
		}
		assert.Equal(t, []float64{0, 0, 0}, s.Signals[27:])
		assert.False(t, s.QualityWarning, "v=%d", v)
	}
}

func TestLuminanceGradientMeans(t *testing.T) {
	e, err := New(Config{Width: 9, Height: 9, Mode: frame.LuminanceOnly})
	require.NoError(t, err)

	// Pixel value equals its column, so a 3-wide region starting at X has
	// mean X+1.
	y := make([]byte, 81)
	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			y[row*9+col] = byte(col)
		}
	}
	f := frame.New(9, 9, frame.LuminanceOnly)
	copy(f.Luminance, y)

	s, err := e.Extract(f)
	require.NoError(t, err)
	for r, reg := range e.Regions() {
		assert.Equal(t, float64(reg.X+1), s.Signals[3*r], "region %d", r)
	}
}

func TestCombinedChromaUniformFrame(t *testing.T) {
	e, err := New(Config{Width: 1280, Height: 720, Mode: frame.CombinedChroma})
	require.NoError(t, err)

	f := frame.New(1280, 720, frame.CombinedChroma)
	fill(f.Luminance, 200)
	fill(f.ChromaU, 90)
	fill(f.ChromaV, 90)
	f.Timestamp = 1000

	s, err := e.Extract(f)
	require.NoError(t, err)
	for r := 0; r < 9; r++ {
		assert.Equal(t, 200.0, s.Signals[3*r])
		assert.Equal(t, 90.0, s.Signals[3*r+1])
		assert.Equal(t, 90.0, s.Signals[3*r+2])
	}
	assert.False(t, s.QualityWarning)
}

// TestCombinedChromaFallsBackIntoV checks that chroma indexes past the end of
// the U plane are read from the start of the V plane.
func TestCombinedChromaFallsBackIntoV(t *testing.T) {
	e, err := New(Config{Width: 6, Height: 6, Mode: frame.CombinedChroma})
	require.NoError(t, err)

	u := bytes.Repeat([]byte{1}, 10)
	v := bytes.Repeat([]byte{7}, 8)
	s, err := e.ExtractOne(0, make([]byte, 36), u, v)
	require.NoError(t, err)

	want := []float64{1, 1, 1, 1, 1, 7, 7, 7, 7}
	for r, w := range want {
		assert.Equal(t, w, s.Signals[3*r+1], "U mean region %d", r)
		assert.Equal(t, w, s.Signals[3*r+2], "V mean region %d", r)
	}
}

// TestCombinedChromaLastPairReadsVStart pins the last chroma pair: its V
// index equals len(U), so the read lands on V[0] (uv[1] of the NV12 buffer)
// rather than on uv[span-1].
func TestCombinedChromaLastPairReadsVStart(t *testing.T) {
	e, err := New(Config{Width: 6, Height: 6, Mode: frame.CombinedChroma})
	require.NoError(t, err)

	f := frame.New(6, 6, frame.CombinedChroma)
	span := len(f.ChromaU) + 1
	require.Equal(t, 18, span)
	uv := make([]byte, 18)
	for i := range uv {
		uv[i] = byte(10 + i)
	}
	require.NoError(t, f.LoadNV12(0, make([]byte, 36), uv))

	s, err := e.Extract(f)
	require.NoError(t, err)
	const last = 8
	assert.Equal(t, 26.0, s.Signals[3*last+1], "U reads uv[16]")
	assert.Equal(t, 11.0, s.Signals[3*last+2], "V wraps to uv[1], not uv[17]")
}

func TestExtractIsConcurrencySafe(t *testing.T) {
	e, err := New(Config{Width: 64, Height: 48, Mode: frame.LuminanceOnly})
	require.NoError(t, err)

	done := make(chan Sample, 8)
	for i := 0; i < 8; i++ {
		go func(v byte) {
			f := frame.New(64, 48, frame.LuminanceOnly)
			fill(f.Luminance, v)
			s, _ := e.Extract(f)
			done <- s
		}(byte(i * 10))
	}
	for i := 0; i < 8; i++ {
		s := <-done
		for r := 1; r < 9; r++ {
			assert.Equal(t, s.Signals[0], s.Signals[3*r])
		}
	}
}

// --- Validation ---

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := map[string]Config{
		"zero width":         {Width: 0, Height: 9, Mode: frame.LuminanceOnly},
		"negative height":    {Width: 9, Height: -1, Mode: frame.LuminanceOnly},
		"narrower than grid": {Width: 2, Height: 9, Mode: frame.LuminanceOnly},
		"unknown mode":       {Width: 9, Height: 9},
		"negative grid":      {Width: 9, Height: 9, Mode: frame.LuminanceOnly, RegionsPerRow: -3},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestExtractBeforeInitialize(t *testing.T) {
	var nilExtractor *Extractor
	_, err := nilExtractor.ExtractOne(0, nil, nil)
	assert.True(t, errors.Is(err, ErrNotInitialized))

	var zero Extractor
	_, err = zero.Extract(frame.New(9, 9, frame.LuminanceOnly))
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestExtractRejectsMismatchedFrames(t *testing.T) {
	lum, err := New(Config{Width: 10, Height: 10, Mode: frame.LuminanceOnly})
	require.NoError(t, err)
	chroma, err := New(Config{Width: 10, Height: 10, Mode: frame.CombinedChroma})
	require.NoError(t, err)

	cases := []struct {
		name string
		run  func() error
	}{
		{"short luminance", func() error {
			_, err := lum.ExtractOne(0, make([]byte, 99), make([]byte, 50))
			return err
		}},
		{"long luminance", func() error {
			_, err := lum.ExtractOne(0, make([]byte, 101), make([]byte, 50))
			return err
		}},
		{"short interleaved chroma", func() error {
			_, err := lum.ExtractOne(0, make([]byte, 100), make([]byte, 49))
			return err
		}},
		{"split planes in luminance mode", func() error {
			_, err := lum.ExtractOne(0, make([]byte, 100), make([]byte, 25), make([]byte, 25))
			return err
		}},
		{"short split chroma", func() error {
			_, err := chroma.ExtractOne(0, make([]byte, 100), make([]byte, 24), make([]byte, 25))
			return err
		}},
		{"missing V plane", func() error {
			_, err := chroma.Extract(&frame.Frame{Luminance: make([]byte, 100), ChromaU: make([]byte, 60)})
			return err
		}},
		{"nil frame", func() error {
			_, err := chroma.Extract(nil)
			return err
		}},
		{"frame from another geometry", func() error {
			_, err := chroma.Extract(frame.New(12, 10, frame.CombinedChroma))
			return err
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.True(t, errors.Is(c.run(), ErrFrameMismatch))
		})
	}
}

// --- Quality ---

func TestQualityWarningComputedButNotReported(t *testing.T) {
	e, err := New(Config{Width: 9, Height: 9, Mode: frame.LuminanceOnly})
	require.NoError(t, err)
	s, err := e.ExtractOne(0, make([]byte, 81), make([]byte, frame.ChromaSpan(9, 9)))
	require.NoError(t, err)
	assert.False(t, s.QualityWarning)

	dark := newQuality()
	dark.observe(0)
	assert.True(t, dark.warning(frame.LuminanceOnly))

	bright := newQuality()
	bright.observe(500)
	bright.observe(1000)
	assert.False(t, bright.warning(frame.LuminanceOnly))
}

func TestChromaQualityWindow(t *testing.T) {
	q := newQuality()
	q.observe(100)
	q.observe(120)
	q.spread(3)
	assert.False(t, q.warning(frame.CombinedChroma))

	q.spread(12)
	assert.True(t, q.warning(frame.CombinedChroma))

	low := newQuality()
	low.observe(5)
	assert.True(t, low.warning(frame.CombinedChroma))
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
