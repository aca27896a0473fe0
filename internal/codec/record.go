package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-ppg/internal/extract"
)

// MaxRecordSize bounds a single record; larger length prefixes are treated
// as corruption.
const MaxRecordSize = 16 << 20

// ErrRecordTooLarge is returned for length prefixes above MaxRecordSize.
var ErrRecordTooLarge = errors.New("codec: record too large")

// Header is the first record of a recording.
type Header struct {
	SessionID     string    `msgpack:"session_id"`
	Width         int       `msgpack:"width"`
	Height        int       `msgpack:"height"`
	PhoneModel    int       `msgpack:"phone_model"`
	RegionsPerRow int       `msgpack:"regions_per_row"`
	StartedAt     time.Time `msgpack:"started_at"`
}

// Encoder writes a recording: 4-byte big-endian length followed by the
// msgpack body, one record per call.
//
// Encoder is not safe for concurrent use.
type Encoder struct {
	w     *bufio.Writer
	count int
}

// NewEncoder writes h as the first record of w.
func NewEncoder(w io.Writer, h Header) (*Encoder, error) {
	e := &Encoder{w: bufio.NewWriter(w)}
	if err := e.write(h); err != nil {
		return nil, fmt.Errorf("codec: write header: %w", err)
	}
	return e, nil
}

// Encode appends one sample.
func (e *Encoder) Encode(s extract.Sample) error {
	if err := e.write(s); err != nil {
		return fmt.Errorf("codec: write sample %d: %w", e.count, err)
	}
	e.count++
	return nil
}

// Count returns the number of samples encoded.
func (e *Encoder) Count() int { return e.count }

// Flush writes buffered records to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

func (e *Encoder) write(v any) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := e.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = e.w.Write(body)
	return err
}

// Decoder reads a recording written by Encoder.
type Decoder struct {
	r      *bufio.Reader
	header Header
	buf    []byte
}

// NewDecoder reads the header record from r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	d := &Decoder{r: bufio.NewReader(r)}
	if err := d.read(&d.header); err != nil {
		return nil, fmt.Errorf("codec: read header: %w", err)
	}
	return d, nil
}

// Header returns the recording header.
func (d *Decoder) Header() Header { return d.header }

// Decode reads the next sample. It returns io.EOF after the last record.
func (d *Decoder) Decode() (extract.Sample, error) {
	var s extract.Sample
	if err := d.read(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return s, io.EOF
		}
		return s, fmt.Errorf("codec: read sample: %w", err)
	}
	return s, nil
}

// ReadAll decodes every remaining sample.
func (d *Decoder) ReadAll() ([]extract.Sample, error) {
	var out []extract.Sample
	for {
		s, err := d.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

func (d *Decoder) read(v any) error {
	var prefix [4]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("truncated length prefix: %w", err)
		}
		return err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > MaxRecordSize {
		return fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}
	if cap(d.buf) < int(n) {
		d.buf = make([]byte, n)
	}
	body := d.buf[:n]
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("truncated record: %w", err)
	}
	return msgpack.Unmarshal(body, v)
}
