// Package codec implements the signed LEB128-style variable-length integer
// encoding used throughout the APC wire format.
//
// Each byte carries seven payload bits, MSB-first continuation: encoding
// stops once the remaining value is a sign extension of the bits already
// written. There is no zig-zag step, so small negative numbers are cheap
// to encode (-1 is one byte) at the cost of large positive numbers needing
// an extra byte versus a zig-zag scheme.
package codec

// MaxPack32 is the maximum number of bytes PackInt32 can produce.
const MaxPack32 = 5

// MaxPack64 is the maximum number of bytes PackInt64 can produce.
const MaxPack64 = 10

// NoWrap is the wrapMask value that disables ring-buffer wrapping.
const NoWrap = -1

// PackInt32 encodes x into buf starting at *writePos, advancing *writePos
// (masked by wrapMask after each byte, enabling writes directly into a
// power-of-two ring buffer) and returns the number of bytes written.
//
// The caller must guarantee buf has at least MaxPack32 bytes available from
// *writePos (mod wrapMask+1 when wrapping).
func PackInt32(buf []byte, writePos *int, x int32, wrapMask int) int {
	return packInt(buf, writePos, int64(x), wrapMask)
}

// PackInt64 is the 64-bit equivalent of PackInt32.
func PackInt64(buf []byte, writePos *int, x int64, wrapMask int) int {
	return packInt(buf, writePos, x, wrapMask)
}

func packInt(buf []byte, writePos *int, x int64, wrapMask int) int {
	packed := 0
	for {
		b := byte(x & 0x7f)
		x >>= 7

		more := !((x == 0 && b&0x40 == 0) || (x == -1 && b&0x40 != 0))
		if more {
			b |= 0x80
		}

		idx := *writePos + packed
		if wrapMask >= 0 {
			idx &= wrapMask
		}
		buf[idx] = b
		packed++

		if !more {
			break
		}
	}

	*writePos += packed
	if wrapMask >= 0 {
		*writePos &= wrapMask
	}
	return packed
}

// UnpackInt32 decodes a varint from buf starting at *readPos, advancing
// *readPos past the bytes consumed.
func UnpackInt32(buf []byte, readPos *int) int32 {
	var shift uint
	var value int32
	var b byte = 0x80

	for b&0x80 != 0 {
		b = buf[*readPos]
		*readPos++
		value |= int32(b&0x7f) << shift
		shift += 7
	}

	if shift < 32 && b&0x40 != 0 {
		value |= -(int32(1) << shift)
	}
	return value
}

// UnpackInt64 is the 64-bit equivalent of UnpackInt32.
func UnpackInt64(buf []byte, readPos *int) int64 {
	var shift uint
	var value int64
	var b byte = 0x80

	for b&0x80 != 0 {
		b = buf[*readPos]
		*readPos++
		value |= int64(b&0x7f) << shift
		shift += 7
	}

	if shift < 64 && b&0x40 != 0 {
		value |= -(int64(1) << shift)
	}
	return value
}

// SizeOfPackInt32 reports the number of bytes PackInt32 would write for x,
// without writing anything. Used by callers that must reserve space ahead
// of committing a value.
func SizeOfPackInt32(x int32) int {
	var tmp [MaxPack32]byte
	pos := 0
	return PackInt32(tmp[:], &pos, x, NoWrap)
}

// SizeOfPackInt64 is the 64-bit equivalent of SizeOfPackInt32.
func SizeOfPackInt64(x int64) int {
	var tmp [MaxPack64]byte
	pos := 0
	return PackInt64(tmp[:], &pos, x, NoWrap)
}
