package frame

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

// Marker terminates every frame (JPEG end-of-image).
var Marker = []byte{0xFF, 0xD9}

var (
	// ErrFrameTooLarge is returned when the buffer grows past the size limit without a marker.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrFrameStalled is returned when a partial frame saw no new bytes for too long.
	ErrFrameStalled = errors.New("partial frame timed out")
)

// Reassembler accumulates stream bytes and cuts a frame whenever the buffer ends with Marker.
// It is not safe for concurrent use.
type Reassembler struct {
	buf         bytes.Buffer
	maxSize     int
	idleTimeout time.Duration
	lastWrite   time.Time
	now         func() time.Time
}

// NewReassembler creates a Reassembler. A zero maxSize or idleTimeout disables that limit.
func NewReassembler(maxSize int, idleTimeout time.Duration) *Reassembler {
	return &Reassembler{
		maxSize:     maxSize,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Feed appends chunk and returns the completed frame when the buffer now ends with Marker.
// A buffer past the size limit is dropped even if it ends with Marker.
// The returned slice is owned by the caller.
func (r *Reassembler) Feed(chunk []byte) ([]byte, bool, error) {
	if len(chunk) == 0 {
		return nil, false, nil
	}

	r.buf.Write(chunk)
	r.lastWrite = r.now()

	if r.maxSize > 0 && r.buf.Len() > r.maxSize {
		size := r.buf.Len()
		r.Reset()
		return nil, false, fmt.Errorf("%w: %d bytes buffered, limit %d", ErrFrameTooLarge, size, r.maxSize)
	}

	if bytes.HasSuffix(r.buf.Bytes(), Marker) {
		frame := make([]byte, r.buf.Len())
		copy(frame, r.buf.Bytes())
		r.Reset()
		return frame, true, nil
	}

	return nil, false, nil
}

// Expire drops a partial frame that has not grown for longer than the idle timeout.
func (r *Reassembler) Expire(now time.Time) error {
	if r.idleTimeout <= 0 || r.buf.Len() == 0 {
		return nil
	}
	if idle := now.Sub(r.lastWrite); idle > r.idleTimeout {
		size := r.buf.Len()
		r.Reset()
		return fmt.Errorf("%w: %d bytes idle for %s", ErrFrameStalled, size, idle.Round(time.Millisecond))
	}
	return nil
}

// Reset discards any buffered bytes.
func (r *Reassembler) Reset() {
	r.buf.Reset()
	r.lastWrite = time.Time{}
}

// Len returns the number of buffered bytes.
func (r *Reassembler) Len() int {
	return r.buf.Len()
}
