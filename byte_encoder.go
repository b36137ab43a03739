package webbs

import (
	"encoding/binary"
	"math"
)

// byteEncoder is a growable append-only output buffer with the target
// format's primitive encodings (spec.md §6): unsigned/signed LEB128
// varints, fixed-width little-endian floats, length-prefixed byte
// strings, and deferred section-size patching.
//
// Grounded on the teacher's vm_encoder.go, which also builds its output
// as a single growing []byte with small `encodeU16`-style append
// helpers and a second backpatching pass over recorded offsets — here
// the "recorded offset" is a section's length placeholder instead of a
// jump target.
type byteEncoder struct {
	buf []byte
}

func newByteEncoder() *byteEncoder { return &byteEncoder{} }

func (e *byteEncoder) Bytes() []byte { return e.buf }
func (e *byteEncoder) Len() int      { return len(e.buf) }

func (e *byteEncoder) writeByte(b byte) { e.buf = append(e.buf, b) }
func (e *byteEncoder) writeBytes(b []byte) { e.buf = append(e.buf, b...) }

// writeU32LE appends a fixed-width little-endian uint32, used only for
// the magic number and version fields of the module header.
func (e *byteEncoder) writeU32LE(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// writeULEB128 encodes v as an unsigned LEB128 varint (spec.md §6:
// "integers are LEB128, signed where the source value can be
// negative, unsigned otherwise").
func (e *byteEncoder) writeULEB128(v uint64) {
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		e.writeByte(b)
		if v == 0 {
			return
		}
	}
}

// writeSLEB128 encodes v as a signed LEB128 varint.
func (e *byteEncoder) writeSLEB128(v int64) {
	more := true
	for more {
		b := byte(v & 0x7F)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		e.writeByte(b)
	}
}

func (e *byteEncoder) writeF32(f float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(f))
}

func (e *byteEncoder) writeF64(f float64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(f))
}

// writeName writes a length-prefixed UTF-8 string (module/export/import
// names, spec.md §6).
func (e *byteEncoder) writeName(s string) {
	e.writeULEB128(uint64(len(s)))
	e.writeBytes([]byte(s))
}

// sizePlaceholder reserves space for a not-yet-known ULEB128 length and
// returns a token that patchSize uses to fill it in once the section
// body has been written. Five bytes are always reserved (the maximum
// width a ULEB128 encoding of a realistic section size needs) so the
// patch never has to shift already-written bytes, mirroring the
// teacher's two-pass "compute sizes, then emit" split in vm_encoder.go
// — except expressed as an in-place fixed-width patch instead of a
// second full encoding pass, since this format (unlike the teacher's
// jump-offset patching) allows a fixed reservation.
type sizePlaceholder struct {
	offset int
}

func (e *byteEncoder) reserveSize() sizePlaceholder {
	off := len(e.buf)
	e.buf = append(e.buf, 0, 0, 0, 0, 0)
	return sizePlaceholder{offset: off}
}

func (e *byteEncoder) patchSize(p sizePlaceholder) {
	bodyLen := len(e.buf) - p.offset - 5
	patched := leb128Fixed5(uint64(bodyLen))
	copy(e.buf[p.offset:p.offset+5], patched[:])
}

// leb128Fixed5 encodes v as exactly 5 ULEB128 bytes, padding all but
// the last with the continuation bit so the value still decodes
// correctly at a width a real decoder expects to vary.
func leb128Fixed5(v uint64) [5]byte {
	var out [5]byte
	for i := 0; i < 5; i++ {
		b := byte(v & 0x7F)
		v >>= 7
		if i < 4 {
			b |= 0x80
		}
		out[i] = b
	}
	return out
}
