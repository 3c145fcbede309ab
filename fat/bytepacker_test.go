package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteUint(t *testing.T) {
	dst := make([]byte, 4)
	WriteUint(dst, 0x01020304)
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, dst)

	dst2 := make([]byte, 2)
	WriteUint(dst2, 0xBEEF)
	assert.Equal(t, []byte{0xEF, 0xBE}, dst2)
}

func TestWriteUintOverflowPanics(t *testing.T) {
	dst := make([]byte, 1)
	require.Panics(t, func() { WriteUint(dst, 256) })
}

func TestWriteString(t *testing.T) {
	dst := make([]byte, 11)
	WriteString(dst, "HELLO")
	assert.Equal(t, "HELLO      ", string(dst))

	dst2 := make([]byte, 4)
	WriteString(dst2, "ABCDEFG")
	assert.Equal(t, "ABCD", string(dst2))
}
