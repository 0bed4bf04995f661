package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// BinaryWriter appends little-endian fields to an in-memory payload.
//
// The first error is sticky: later writes become no-ops and Err reports it,
// so serializers can write a sequence of fields and check once.
type BinaryWriter struct {
	buf bytes.Buffer
	err error
}

// NewBinaryWriter creates a new binary writer.
func NewBinaryWriter() *BinaryWriter {
	return &BinaryWriter{}
}

// Err returns the first write error.
func (bw *BinaryWriter) Err() error { return bw.err }

// Bytes returns the payload written so far.
func (bw *BinaryWriter) Bytes() []byte { return bw.buf.Bytes() }

// Len returns the payload length.
func (bw *BinaryWriter) Len() int { return bw.buf.Len() }

func (bw *BinaryWriter) Write(p []byte) (int, error) {
	if bw.err != nil {
		return 0, bw.err
	}
	return bw.buf.Write(p)
}

func (bw *BinaryWriter) WriteUint8(v uint8) {
	if bw.err == nil {
		bw.err = bw.buf.WriteByte(v)
	}
}

func (bw *BinaryWriter) WriteUint32(v uint32) {
	if bw.err == nil {
		_, bw.err = bw.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	}
}

func (bw *BinaryWriter) WriteUint64(v uint64) {
	if bw.err == nil {
		_, bw.err = bw.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	}
}

func (bw *BinaryWriter) WriteFloat32(v float32) { bw.WriteUint32(math.Float32bits(v)) }

func (bw *BinaryWriter) WriteFloat64(v float64) { bw.WriteUint64(math.Float64bits(v)) }

// WriteFloat32Slice writes the raw elements without a length prefix.
func (bw *BinaryWriter) WriteFloat32Slice(vec []float32) {
	if bw.err != nil || len(vec) == 0 {
		return
	}
	if nativeLittleEndian && validateAlignment(vec) == nil {
		_, bw.err = bw.buf.Write(asBytes(vec))
		return
	}
	for _, v := range vec {
		bw.WriteFloat32(v)
	}
}

// WriteUint32Slice writes the raw elements without a length prefix.
func (bw *BinaryWriter) WriteUint32Slice(s []uint32) {
	if bw.err != nil || len(s) == 0 {
		return
	}
	if nativeLittleEndian && validateAlignment(s) == nil {
		_, bw.err = bw.buf.Write(asBytes(s))
		return
	}
	for _, v := range s {
		bw.WriteUint32(v)
	}
}

// WriteBytes writes a uint32 length prefix followed by b.
func (bw *BinaryWriter) WriteBytes(b []byte) {
	bw.WriteUint32(uint32(len(b)))
	if bw.err == nil && len(b) > 0 {
		_, bw.err = bw.buf.Write(b)
	}
}

// WriteString writes a length-prefixed string.
func (bw *BinaryWriter) WriteString(s string) { bw.WriteBytes([]byte(s)) }

// SliceReader provides bounds-checked reads from a payload.
//
// Every read fails with ErrTruncated instead of panicking when the payload
// is shorter than the schema requires.
type SliceReader struct {
	b   []byte
	off int
}

// NewSliceReader creates a reader over b.
func NewSliceReader(b []byte) *SliceReader {
	return &SliceReader{b: b}
}

// Offset returns the number of bytes consumed.
func (r *SliceReader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *SliceReader) Remaining() int { return len(r.b) - r.off }

func (r *SliceReader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("%w: %d bytes at offset %d (len=%d)", ErrTruncated, n, r.off, len(r.b))
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *SliceReader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *SliceReader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *SliceReader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *SliceReader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *SliceReader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadFloat32SliceInto fills dst from the payload.
func (r *SliceReader) ReadFloat32SliceInto(dst []float32) error {
	if len(dst) == 0 {
		return nil
	}
	bb, err := r.ReadBytes(len(dst) * 4)
	if err != nil {
		return err
	}
	if nativeLittleEndian {
		copy(asBytes(dst), bb)
		return nil
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(bb[i*4:]))
	}
	return nil
}

// ReadUint32Slice reads n elements into a new slice.
func (r *SliceReader) ReadUint32Slice(n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if n < 0 || n > r.Remaining()/4 {
		return nil, fmt.Errorf("%w: %d uint32 values at offset %d", ErrTruncated, n, r.off)
	}
	bb, _ := r.ReadBytes(n * 4)
	out := make([]uint32, n)
	if nativeLittleEndian {
		copy(asBytes(out), bb)
		return out, nil
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(bb[i*4:])
	}
	return out, nil
}

// ReadLenBytes reads a uint32 length prefix followed by that many bytes.
// The returned slice aliases the payload.
func (r *SliceReader) ReadLenBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// ReadString reads a length-prefixed string.
func (r *SliceReader) ReadString() (string, error) {
	b, err := r.ReadLenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
