// Package codec implements the length prefix that frames entries.
//
// Lengths are unsigned LEB128 varints, the encoding of encoding/binary's
// Uvarint: seven bits per byte, least significant group first, high bit set
// on every byte but the last. Lengths below 128 take one byte and the largest
// supported length, MaxLength, takes MaxPrefixLength bytes.
//
// Decoding is resumable: a Decoder is fed one byte at a time, so a prefix that
// straddles two segments is decoded without re-reading consumed bytes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// MaxLength is the largest entry length that can be framed.
	MaxLength = math.MaxInt32
	// MaxPrefixLength is the number of bytes needed to encode MaxLength.
	MaxPrefixLength = 5
)

// ErrMalformedLength reports a prefix that is overlong or exceeds MaxLength.
var ErrMalformedLength = errors.New("malformed length prefix")

// AppendLength appends the encoding of n to dst.
func AppendLength(dst []byte, n int) []byte {
	if n < 0 || n > MaxLength {
		panic(fmt.Sprintf("codec: length %d out of range", n))
	}
	return binary.AppendUvarint(dst, uint64(n))
}

// LengthSize returns the number of bytes AppendLength writes for n.
func LengthSize(n int) int {
	size := 1
	for v := uint64(n); v >= 0x80; v >>= 7 {
		size++
	}
	return size
}

// Decoder decodes a length prefix one byte at a time. The zero value is ready
// to use.
type Decoder struct {
	value uint64
	shift uint
	n     int
	done  bool
}

// Feed consumes the next prefix byte and reports whether the prefix is
// complete.
func (d *Decoder) Feed(b byte) (bool, error) {
	if d.done {
		return true, nil
	}
	if d.n == MaxPrefixLength {
		return false, fmt.Errorf("%w: more than %d bytes", ErrMalformedLength, MaxPrefixLength)
	}

	d.value |= uint64(b&0x7f) << d.shift
	d.shift += 7
	d.n++

	if b&0x80 != 0 {
		if d.n == MaxPrefixLength {
			return false, fmt.Errorf("%w: more than %d bytes", ErrMalformedLength, MaxPrefixLength)
		}
		return false, nil
	}
	if d.value > MaxLength {
		return false, fmt.Errorf("%w: length %d exceeds %d", ErrMalformedLength, d.value, MaxLength)
	}
	d.done = true
	return true, nil
}

// Done reports whether a complete prefix has been fed.
func (d *Decoder) Done() bool {
	return d.done
}

// Consumed returns the number of prefix bytes fed so far.
func (d *Decoder) Consumed() int {
	return d.n
}

// Length returns the decoded length. It is only meaningful once Done.
func (d *Decoder) Length() int {
	return int(d.value)
}
