// Package frame defines the camera sample handed from capture to pipeline
// workers and back to the buffer pool.
//
// Ownership is exclusive: a Frame belongs to exactly one stage at a time
// (capture source → pipeline queue → worker → pool). A stage must not touch
// a Frame after handing it to the next one.
package frame

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPlaneSize is returned when pixel planes do not fit the frame geometry.
var ErrPlaneSize = errors.New("frame: plane size mismatch")

// DeviceMode selects the chroma layout a capture device delivers and, with
// it, which statistics the extractor produces.
type DeviceMode int

const (
	// LuminanceOnly devices deliver U and V interleaved in one plane.
	// Only luminance statistics are extracted.
	LuminanceOnly DeviceMode = iota + 1

	// CombinedChroma devices deliver U and V as separate planes.
	// Luminance and both chroma statistics are extracted.
	CombinedChroma
)

// Phone model identifiers used by recorded video-data files.
const (
	PhoneModelAndroid = 1
	PhoneModelIOS     = 2
)

// String returns the config spelling of the mode.
func (m DeviceMode) String() string {
	switch m {
	case LuminanceOnly:
		return "luminance"
	case CombinedChroma:
		return "chroma"
	default:
		return fmt.Sprintf("DeviceMode(%d)", int(m))
	}
}

// Valid reports whether m is a known mode.
func (m DeviceMode) Valid() bool {
	return m == LuminanceOnly || m == CombinedChroma
}

// PhoneModel maps the mode back to the recorded phone model identifier.
func (m DeviceMode) PhoneModel() int {
	if m == CombinedChroma {
		return PhoneModelAndroid
	}
	return PhoneModelIOS
}

// ParseDeviceMode accepts the config spellings of a mode.
func ParseDeviceMode(s string) (DeviceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "luminance", "luminance-only", "ios":
		return LuminanceOnly, nil
	case "chroma", "combined", "combined-chroma", "android":
		return CombinedChroma, nil
	}
	return 0, fmt.Errorf("frame: unknown device mode %q", s)
}

// FromPhoneModel maps a recorded phone model identifier to its mode.
func FromPhoneModel(model int) (DeviceMode, error) {
	switch model {
	case PhoneModelAndroid:
		return CombinedChroma, nil
	case PhoneModelIOS:
		return LuminanceOnly, nil
	}
	return 0, fmt.Errorf("frame: unknown phone model %d", model)
}

// LumaSize is the number of luminance bytes in a width×height frame.
func LumaSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return width * height
}

// ChromaSpan is the number of chroma bytes addressed when U and V samples are
// interleaved at half resolution with a row stride of width bytes. For even
// dimensions this is width*height/2.
func ChromaSpan(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	return 2*((width-1)/2) + ((height-1)/2)*width + 2
}

// Frame holds one camera sample.
//
// Exactly one chroma representation is populated: ChromaCombined for
// LuminanceOnly devices, ChromaU and ChromaV for CombinedChroma devices.
type Frame struct {
	// Luminance is row-major, exactly width*height bytes.
	Luminance []byte

	// ChromaCombined holds interleaved UV samples.
	ChromaCombined []byte

	// ChromaU and ChromaV hold split chroma planes. Split planes share the
	// semi-planar layout of Android YUV_420_888 buffers: U starts on the first
	// interleaved byte, V on the second, each one byte short of the span.
	ChromaU []byte
	ChromaV []byte

	// Timestamp is the capture time in milliseconds.
	Timestamp uint64
}

// New allocates a frame with planes sized for width×height in mode.
func New(width, height int, mode DeviceMode) *Frame {
	f := &Frame{Luminance: make([]byte, LumaSize(width, height))}
	span := ChromaSpan(width, height)
	switch mode {
	case LuminanceOnly:
		f.ChromaCombined = make([]byte, span)
	case CombinedChroma:
		f.ChromaU = make([]byte, span-1)
		f.ChromaV = make([]byte, span-1)
	}
	return f
}

// Mode reports which chroma representation the frame carries.
func (f *Frame) Mode() DeviceMode {
	switch {
	case f.ChromaCombined != nil:
		return LuminanceOnly
	case f.ChromaU != nil || f.ChromaV != nil:
		return CombinedChroma
	}
	return 0
}

// Fits reports whether the frame's planes were allocated for width×height in
// mode, i.e. whether it can be reused for that geometry.
func (f *Frame) Fits(width, height int, mode DeviceMode) bool {
	if f == nil || len(f.Luminance) != LumaSize(width, height) {
		return false
	}
	span := ChromaSpan(width, height)
	switch mode {
	case LuminanceOnly:
		return len(f.ChromaCombined) == span && f.ChromaU == nil && f.ChromaV == nil
	case CombinedChroma:
		return f.ChromaCombined == nil && len(f.ChromaU) == span-1 && len(f.ChromaV) == span-1
	}
	return false
}

// LoadLuminance copies only the Y plane and stamps the frame. The chroma
// buffers keep whatever they held, which is enough for luminance-only
// extraction since it never reads them.
func (f *Frame) LoadLuminance(timestamp uint64, y []byte) error {
	if len(y) != len(f.Luminance) {
		return fmt.Errorf("%w: luminance %d bytes, frame holds %d", ErrPlaneSize, len(y), len(f.Luminance))
	}
	copy(f.Luminance, y)
	f.Timestamp = timestamp
	return nil
}

// LoadNV12 copies an NV12 image (Y plane followed by interleaved UV) into the
// frame's own buffers and stamps it. y must be exactly the frame's luminance
// size and uv must cover the chroma span.
func (f *Frame) LoadNV12(timestamp uint64, y, uv []byte) error {
	if len(y) != len(f.Luminance) {
		return fmt.Errorf("%w: luminance %d bytes, frame holds %d", ErrPlaneSize, len(y), len(f.Luminance))
	}
	switch f.Mode() {
	case LuminanceOnly:
		if len(uv) < len(f.ChromaCombined) {
			return fmt.Errorf("%w: chroma %d bytes, need %d", ErrPlaneSize, len(uv), len(f.ChromaCombined))
		}
		copy(f.ChromaCombined, uv)
	case CombinedChroma:
		span := len(f.ChromaU) + 1
		if len(uv) < span {
			return fmt.Errorf("%w: chroma %d bytes, need %d", ErrPlaneSize, len(uv), span)
		}
		copy(f.ChromaU, uv[:span-1])
		copy(f.ChromaV, uv[1:span])
	default:
		return fmt.Errorf("%w: frame has no chroma planes", ErrPlaneSize)
	}
	copy(f.Luminance, y)
	f.Timestamp = timestamp
	return nil
}
