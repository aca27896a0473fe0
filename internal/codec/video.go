package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrMissingPlanes is returned for video frames without Y or UV data.
var ErrMissingPlanes = errors.New("codec: frame has no pixel data")

// VideoData is a recorded capture: NV12 planes per frame stored as JSON
// integer arrays. Field matching is case-insensitive, so both PascalCase and
// camelCase files decode.
type VideoData struct {
	Width      int          `json:"Width"`
	Height     int          `json:"Height"`
	PhoneModel int          `json:"PhoneModel"`
	Frames     []VideoFrame `json:"Frames"`
}

// VideoFrame is one recorded frame.
type VideoFrame struct {
	Timestamp uint64 `json:"Timestamp"`
	YData     []int  `json:"YData"`
	UVData    []int  `json:"UVData"`
	Width     int    `json:"Width"`
	Height    int    `json:"Height"`
}

// ReadVideoData parses a video data document.
func ReadVideoData(r io.Reader) (*VideoData, error) {
	var vd VideoData
	if err := json.NewDecoder(r).Decode(&vd); err != nil {
		return nil, fmt.Errorf("codec: decode video data: %w", err)
	}
	return &vd, nil
}

// ReadVideoDataFile parses the video data file at path.
func ReadVideoDataFile(path string) (*VideoData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codec: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadVideoData(f)
}

// Planes converts the frame's integer samples to bytes, clamping to 0..255,
// and checks the luminance plane against the frame's own dimensions.
func (vf VideoFrame) Planes() (y, uv []byte, err error) {
	if vf.YData == nil || vf.UVData == nil {
		return nil, nil, ErrMissingPlanes
	}
	if want := vf.Width * vf.Height; len(vf.YData) != want {
		return nil, nil, fmt.Errorf("codec: luminance size mismatch: expected %d, got %d", want, len(vf.YData))
	}
	return clampBytes(vf.YData), clampBytes(vf.UVData), nil
}

func clampBytes(in []int) []byte {
	out := make([]byte, len(in))
	for i, v := range in {
		out[i] = byte(min(255, max(0, v)))
	}
	return out
}
