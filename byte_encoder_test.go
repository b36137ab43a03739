package webbs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByteEncoderULEB128(t *testing.T) {
	cases := []struct {
		in  uint64
		out []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xE5, 0x8E, 0x26}},
	}
	for _, c := range cases {
		e := newByteEncoder()
		e.writeULEB128(c.in)
		assert.Equal(t, c.out, e.Bytes())
	}
}

func TestByteEncoderSLEB128(t *testing.T) {
	cases := []struct {
		in  int64
		out []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7F}},
		{-128, []byte{0x80, 0x7F}},
		{63, []byte{0x3F}},
		{-64, []byte{0x40}},
	}
	for _, c := range cases {
		e := newByteEncoder()
		e.writeSLEB128(c.in)
		assert.Equal(t, c.out, e.Bytes())
	}
}

func TestByteEncoderName(t *testing.T) {
	e := newByteEncoder()
	e.writeName("hi")
	assert.Equal(t, []byte{0x02, 'h', 'i'}, e.Bytes())
}

func TestByteEncoderU32LE(t *testing.T) {
	e := newByteEncoder()
	e.writeU32LE(0x6D736100)
	assert.Equal(t, []byte{0x00, 0x61, 0x73, 0x6D}, e.Bytes())
}

func TestByteEncoderF32AndF64(t *testing.T) {
	e := newByteEncoder()
	e.writeF32(1.0)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, e.Bytes())

	e2 := newByteEncoder()
	e2.writeF64(1.0)
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xF0, 0x3F}, e2.Bytes())
}

func TestByteEncoderSizePatching(t *testing.T) {
	e := newByteEncoder()
	ph := e.reserveSize()
	e.writeBytes([]byte{1, 2, 3})
	e.patchSize(ph)

	out := e.Bytes()
	require5 := out[:5]
	for i := 0; i < 4; i++ {
		assert.NotZero(t, require5[i]&0x80, "continuation bit expected on byte %d", i)
	}
	assert.Equal(t, byte(3), out[0]&0x7F)
	assert.Equal(t, []byte{1, 2, 3}, out[5:])
}
