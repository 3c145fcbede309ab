package fat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEncodeTimestampRoundTrip(t *testing.T) {
	in := time.Date(2020, time.July, 28, 13, 45, 32, 120000000, time.Local)
	ts := EncodeTimestamp(in)
	out := DecodeTimestamp(ts.Date, ts.Time, ts.Centiseconds)

	assert.Equal(t, in.Year(), out.Year())
	assert.Equal(t, in.Month(), out.Month())
	assert.Equal(t, in.Day(), out.Day())
	assert.Equal(t, in.Hour(), out.Hour())
	assert.Equal(t, in.Minute(), out.Minute())
	assert.WithinDuration(t, in, out, 10*time.Millisecond)
}

func TestEncodeTimestampClampsBeforeEpoch(t *testing.T) {
	in := time.Date(1975, time.January, 1, 0, 0, 0, 0, time.Local)
	ts := EncodeTimestamp(in)
	assert.Equal(t, EncodeTimestamp(Epoch), ts)
}

func TestEncodeTimestampClampsAfterMax(t *testing.T) {
	in := time.Date(2200, time.January, 1, 0, 0, 0, 0, time.Local)
	ts := EncodeTimestamp(in)
	assert.Equal(t, EncodeTimestamp(MaxTimestamp), ts)
}

func TestEncodeTimestampOddSecondBit(t *testing.T) {
	in := time.Date(2020, time.July, 28, 0, 0, 1, 0, time.Local)
	ts := EncodeTimestamp(in)
	// Odd seconds lose their low bit in dos_time and recover it via the +100
	// centisecond offset.
	assert.Equal(t, uint8(100), ts.Centiseconds)
	out := DecodeTimestamp(ts.Date, ts.Time, ts.Centiseconds)
	assert.Equal(t, 1, out.Second())
}
