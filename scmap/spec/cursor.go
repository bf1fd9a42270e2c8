package spec

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strings"
)

// Cursor decodes primitive values sequentially from a byte stream in
// little-endian order. It is forward-only: there is no seeking back, so the
// read order must match the on-disk order. Every read either consumes exactly
// the stated number of bytes or fails with a *TruncatedError.
type Cursor struct {
	r   *bufio.Reader
	off int64
}

func NewCursor(r io.Reader) *Cursor {
	return &Cursor{r: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed so far.
func (c *Cursor) Offset() int64 { return c.off }

func (c *Cursor) read(buf []byte) error {
	n, err := io.ReadFull(c.r, buf)
	c.off += int64(n)
	if err != nil {
		return &TruncatedError{Offset: c.off, Want: len(buf) - n}
	}
	return nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, &TruncatedError{Offset: c.off, Want: 1}
	}
	c.off++
	return b, nil
}

func (c *Cursor) ReadI16() (int16, error) {
	var buf [2]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(buf[:])), nil
}

func (c *Cursor) ReadI32() (int32, error) {
	var buf [4]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	var buf [4]byte
	if err := c.read(buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func (c *Cursor) ReadF32() (float32, error) {
	bits, err := c.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// ReadU16Array reads count contiguous 16-bit values. The read is atomic: if
// the input ends mid-run no values are returned. Values are read in bounded
// chunks, so memory use tracks the bytes actually present in the stream
// rather than the declared count.
func (c *Cursor) ReadU16Array(count int) ([]uint16, error) {
	const chunkValues = 32 * 1024

	values := make([]uint16, 0, min(count, chunkValues))
	buf := make([]byte, 2*min(count, chunkValues))
	for remaining := count; remaining > 0; {
		n := min(remaining, chunkValues)
		if err := c.read(buf[:2*n]); err != nil {
			return nil, err
		}
		for i := range n {
			values = append(values, binary.LittleEndian.Uint16(buf[2*i:]))
		}
		remaining -= n
	}
	return values, nil
}

// ReadString reads bytes up to a NUL terminator (exclusive) and decodes them
// as UTF-8, substituting the replacement character for invalid sequences.
// Input ending before the first byte counts as truncation; input ending after
// at least one byte yields the bytes read so far.
func (c *Cursor) ReadString() (string, error) {
	data, err := c.r.ReadBytes(0)
	if err != nil && len(data) == 0 {
		return "", &TruncatedError{Offset: c.off, Want: 1}
	}
	c.off += int64(len(data))
	if err == nil {
		data = data[:len(data)-1] // drop the terminator
	}
	return strings.ToValidUTF8(string(data), "�"), nil
}

// Skip advances the cursor by n bytes without interpreting them.
func (c *Cursor) Skip(n int) error {
	discarded, err := c.r.Discard(n)
	c.off += int64(discarded)
	if err != nil {
		return &TruncatedError{Offset: c.off, Want: n - discarded}
	}
	return nil
}
