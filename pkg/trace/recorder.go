package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Recorder appends frames to a stream as consecutive msgpack values
type Recorder struct {
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	frames int
}

// NewRecorder creates a recorder writing to w. Frames are buffered until
// Flush.
func NewRecorder(w io.Writer) *Recorder {
	buf := bufio.NewWriter(w)
	return &Recorder{buf: buf, enc: msgpack.NewEncoder(buf)}
}

// Record appends one frame
func (r *Recorder) Record(f *Frame) error {
	if err := r.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Tick, err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded
func (r *Recorder) Frames() int {
	return r.frames
}

// Flush writes buffered frames to the underlying writer
func (r *Recorder) Flush() error {
	if err := r.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return nil
}

// Reader reads frames written by a Recorder
type Reader struct {
	dec *msgpack.Decoder
}

// NewReader creates a reader over r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Next returns the next frame, or io.EOF after the last one
func (r *Reader) Next() (*Frame, error) {
	f := &Frame{}
	if err := r.dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

// ReadAll reads every remaining frame
func ReadAll(r io.Reader) ([]*Frame, error) {
	rd := NewReader(r)
	var frames []*Frame
	for {
		f, err := rd.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
}
