package frame

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// splitAt cuts data before every index whose bit is set in mask.
func splitAt(data []byte, mask uint) [][]byte {
	var chunks [][]byte
	start := 0
	for i := 1; i < len(data); i++ {
		if mask&(1<<uint(i-1)) != 0 {
			chunks = append(chunks, data[start:i])
			start = i
		}
	}
	return append(chunks, data[start:])
}

func feedAll(t *testing.T, r *Reassembler, chunks [][]byte) [][]byte {
	t.Helper()

	var frames [][]byte
	for _, chunk := range chunks {
		frame, ok, err := r.Feed(chunk)
		require.NoError(t, err)
		if ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestReassembler_EveryChunkingYieldsOneFrame(t *testing.T) {
	data := append([]byte("AAAA"), Marker...)

	for mask := uint(0); mask < 1<<uint(len(data)-1); mask++ {
		r := NewReassembler(0, 0)
		frames := feedAll(t, r, splitAt(data, mask))

		require.Len(t, frames, 1, "mask %b", mask)
		assert.Equal(t, data, frames[0])
		assert.Zero(t, r.Len())
	}
}

func TestReassembler_RandomChunkingOfLargerFrames(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		body := make([]byte, 512+rng.Intn(4096))
		rng.Read(body)
		body = bytes.ReplaceAll(body, Marker, []byte{0xFF, 0x00})
		data := append(body, Marker...)

		var chunks [][]byte
		for rest := data; len(rest) > 0; {
			n := 1 + rng.Intn(300)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}

		frames := feedAll(t, NewReassembler(0, 0), chunks)
		require.Len(t, frames, 1)
		assert.Equal(t, data, frames[0])
	}
}

func TestReassembler_MarkerSplitAcrossChunks(t *testing.T) {
	r := NewReassembler(0, 0)

	frame, ok, err := r.Feed([]byte{'A', 'A', 0xFF})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, frame)

	frame, ok, err = r.Feed([]byte{0xD9})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{'A', 'A', 0xFF, 0xD9}, frame)
}

func TestReassembler_NoCrossFrameContamination(t *testing.T) {
	r := NewReassembler(0, 0)

	first, ok, err := r.Feed(append([]byte("first"), Marker...))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Zero(t, r.Len())

	second, ok, err := r.Feed(append([]byte("second"), Marker...))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, append([]byte("first"), Marker...), first)
	assert.Equal(t, append([]byte("second"), Marker...), second)
}

func TestReassembler_ReturnedFrameIsNotAliased(t *testing.T) {
	r := NewReassembler(0, 0)

	frame, ok, err := r.Feed(append([]byte("AAAA"), Marker...))
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = r.Feed([]byte("BBBBBB"))
	require.NoError(t, err)
	assert.Equal(t, append([]byte("AAAA"), Marker...), frame)
}

func TestReassembler_MaxFrameSize(t *testing.T) {
	r := NewReassembler(8, 0)

	_, ok, err := r.Feed([]byte("12345"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = r.Feed([]byte("67890"))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.False(t, ok)
	assert.Zero(t, r.Len())

	frame, ok, err := r.Feed(append([]byte("ok"), Marker...))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, append([]byte("ok"), Marker...), frame)
}

func TestReassembler_MaxFrameSizeAppliesToMarkerChunk(t *testing.T) {
	r := NewReassembler(10, 0)

	_, ok, err := r.Feed([]byte("12345678"))
	require.NoError(t, err)
	assert.False(t, ok)

	tail := append(bytes.Repeat([]byte{'x'}, 100), Marker...)
	frame, ok, err := r.Feed(tail)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.False(t, ok)
	assert.Nil(t, frame)
	assert.Zero(t, r.Len())
}

func TestReassembler_IdleTimeoutDropsPartialFrame(t *testing.T) {
	start := time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC)
	r := NewReassembler(0, time.Second)
	r.now = func() time.Time { return start }

	_, _, err := r.Feed([]byte("partial"))
	require.NoError(t, err)

	require.NoError(t, r.Expire(start.Add(500*time.Millisecond)))
	assert.Equal(t, 7, r.Len())

	assert.ErrorIs(t, r.Expire(start.Add(2*time.Second)), ErrFrameStalled)
	assert.Zero(t, r.Len())

	require.NoError(t, r.Expire(start.Add(time.Hour)))
}
