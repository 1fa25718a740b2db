package nbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackIsBigEndian(t *testing.T) {
	buf := make([]byte, 15)
	rest := PackUint16(buf, 0x0102)
	rest = PackUint32(rest, 0x03040506)
	rest = PackUint64(rest, 0x0708090A0B0C0D0E)
	rest = PackUint8(rest, 0xFF)

	assert.Empty(t, rest)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 0xFF}, buf)
}

func TestUnpackSigned(t *testing.T) {
	buf := make([]byte, 14)
	rest := PackInt16(buf, -2)
	rest = PackInt32(rest, -70000)
	PackInt64(rest, -1<<40)

	a, rest := UnpackInt16(buf)
	b, rest := UnpackInt32(rest)
	c, rest := UnpackInt64(rest)
	assert.Equal(t, int16(-2), a)
	assert.Equal(t, int32(-70000), b)
	assert.Equal(t, int64(-1<<40), c)
	assert.Empty(t, rest)
}

func TestFloatAndVector(t *testing.T) {
	buf := make([]byte, 16)
	rest := PackFloat32(buf, 1.5)
	PackVector(rest, [3]float32{-1, 0, 400.25})

	f, rest := UnpackFloat32(buf)
	v, _ := UnpackVector(rest)
	assert.Equal(t, float32(1.5), f)
	assert.Equal(t, [3]float32{-1, 0, 400.25}, v)
	// 1.5 = 0x3FC00000
	assert.Equal(t, []byte{0x3F, 0xC0, 0, 0}, buf[:4])
}

func TestFixedStrings(t *testing.T) {
	t.Run("Короткая строка дополняется нулями", func(t *testing.T) {
		buf := []byte{9, 9, 9, 9, 9, 9}
		rest := PackString(buf, "ab", 5)
		assert.Len(t, rest, 1)
		assert.Equal(t, []byte{'a', 'b', 0, 0, 0, 9}, buf)

		s, _ := UnpackString(buf, 5)
		assert.Equal(t, "ab", s)
	})

	t.Run("Длинная строка обрезается", func(t *testing.T) {
		buf := make([]byte, 3)
		PackString(buf, "abcdef", 3)
		s, rest := UnpackString(buf, 3)
		assert.Equal(t, "abc", s)
		assert.Empty(t, rest)
	})
}
