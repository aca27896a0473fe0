package extract

import "fmt"

// Region is one rectangular area of interest, in luminance pixel coordinates.
type Region struct {
	Index  int
	X, Y   int
	Width  int
	Height int
}

// Area returns the number of pixels covered by the region.
func (r Region) Area() int { return r.Width * r.Height }

func (r Region) String() string {
	return fmt.Sprintf("roi%d[%d,%d %dx%d]", r.Index, r.X, r.Y, r.Width, r.Height)
}

// Tile lays out n*n regions over a width×height frame in raster order.
//
// Algorithm:
//
//	wstep = width/n, hstep = height/n, row = 1, rest = 0
//	for r in 0..n*n-1:
//	  x = (r*wstep + rest) mod width
//	  y = ((r*wstep + rest) / width) * hstep
//	  if (r+2)*wstep/width > row:            // right edge crossed a row
//	    w = width - x
//	    rest += row*width - ((r+1)*wstep + rest)
//	    row++
//	  else: w = wstep
//	  if ((r+2)*wstep/width)*hstep/height > 1: h = height - y
//	  else: h = hstep
//
// The two edge tests are evaluated in single precision. The last region of a
// row absorbs the leftover columns, and regions past the bottom boundary
// absorb the leftover rows. Captured signals depend on this exact layout, so
// it must not be "rounded" into an even split.
//
// Tile does not validate its inputs; see checkTiling.
func Tile(width, height, n int) []Region {
	count := n * n
	wstep := width / n
	hstep := height / n
	row, rest := 1, 0

	regions := make([]Region, count)
	for r := 0; r < count; r++ {
		reg := Region{
			Index:  r,
			X:      (r*wstep + rest) % width,
			Y:      ((r*wstep + rest) / width) * hstep,
			Width:  wstep,
			Height: hstep,
		}

		edge := float32(r+2) * float32(wstep) / float32(width)
		if edge > float32(row) {
			reg.Width = width - reg.X
			rest += row*width - ((r+1)*wstep + rest)
			row++
		}
		if edge*float32(hstep)/float32(height) > 1 {
			reg.Height = height - reg.Y
		}
		regions[r] = reg
	}
	return regions
}

// checkTiling rejects layouts that would read outside the frame. Small or
// oddly shaped frames can make the row carry skip a boundary, after which
// offsets wrap past the right edge.
func checkTiling(regions []Region, width, height int) error {
	for _, reg := range regions {
		if reg.Width <= 0 || reg.Height <= 0 {
			return fmt.Errorf("%w: empty %s in %dx%d frame", ErrInvalidConfig, reg, width, height)
		}
		if reg.X < 0 || reg.Y < 0 || reg.X+reg.Width > width || reg.Y+reg.Height > height {
			return fmt.Errorf("%w: %s leaves %dx%d frame", ErrInvalidConfig, reg, width, height)
		}
	}
	for i := range regions {
		for j := i + 1; j < len(regions); j++ {
			if regions[i].overlaps(regions[j]) {
				return fmt.Errorf("%w: %s overlaps %s", ErrInvalidConfig, regions[i], regions[j])
			}
		}
	}
	return nil
}

func (r Region) overlaps(o Region) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}
