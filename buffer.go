// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "fmt"

// Reader is a big-endian cursor over a borrowed byte range. It never copies
// the backing slice; every read is bounds-checked against the remaining
// range, mirroring the boundary checks the teacher codebase applies before
// every ReadUint32/ReadUint64 (helper.go), adapted here to big-endian order
// since the class file format is big-endian end to end.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential big-endian reads starting at offset 0.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset reports the current cursor position.
func (r *Reader) Offset() int { return r.pos }

// Len reports the total size of the borrowed range.
func (r *Reader) Len() int { return len(r.data) }

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// AtEnd reports whether the cursor has reached the end of its range.
func (r *Reader) AtEnd() bool { return r.pos >= len(r.data) }

func (r *Reader) need(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncatedInput, n, r.pos, r.Remaining())
	}
	return nil
}

// ReadU1 reads an unsigned 8-bit integer.
func (r *Reader) ReadU1() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadU2 reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadU2() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.data[r.pos])<<8 | uint16(r.data[r.pos+1])
	r.pos += 2
	return v, nil
}

// ReadU4 reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadU4() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := uint32(r.data[r.pos])<<24 | uint32(r.data[r.pos+1])<<16 |
		uint32(r.data[r.pos+2])<<8 | uint32(r.data[r.pos+3])
	r.pos += 4
	return v, nil
}

// ReadS1/ReadS2/ReadS4 are the signed counterparts, used by branch operands
// and by immediate-value instructions such as bipush/sipush/iinc.
func (r *Reader) ReadS1() (int8, error) {
	v, err := r.ReadU1()
	return int8(v), err
}

func (r *Reader) ReadS2() (int16, error) {
	v, err := r.ReadU2()
	return int16(v), err
}

func (r *Reader) ReadS4() (int32, error) {
	v, err := r.ReadU4()
	return int32(v), err
}

// Skip advances the cursor by n bytes without interpreting them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Bytes returns the next n bytes as a slice into the borrowed range (no
// copy) and advances the cursor past them.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Sub carves out a bounded sub-reader over the next n bytes, advancing this
// reader past them. Attribute decoders use this to enforce that a decoder
// consumes exactly the byte range its declared attribute_length promised:
// call Close on the sub-reader once decoding is done.
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// Close reports ErrTrailingGarbage if the reader has not consumed its whole
// range. The top-level class-file reader and every attribute sub-reader call
// this once decoding finishes, per the spec's decision to treat unconsumed
// attribute bytes as a hard error rather than a warning.
func (r *Reader) Close() error {
	if !r.AtEnd() {
		return fmt.Errorf("%w: %d bytes unconsumed at offset %d", ErrTrailingGarbage, r.Remaining(), r.pos)
	}
	return nil
}

// Writer is a big-endian append-only byte builder. Unlike the teacher's
// single-shot structUnpack writes (pe has no writer, being read-only), this
// writer is genuinely two-pass: callers pre-size it once layoutClassFile has
// run, then append in a second pass over the exact same structures.
type Writer struct {
	buf []byte
}

// NewWriter allocates a writer whose backing buffer is pre-sized to size
// bytes, matching the "exact pre-sized buffer" requirement of §4.A.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// WriteU1 appends an unsigned 8-bit integer.
func (w *Writer) WriteU1(v uint8) { w.buf = append(w.buf, v) }

// WriteU2 appends a big-endian unsigned 16-bit integer.
func (w *Writer) WriteU2(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// WriteU4 appends a big-endian unsigned 32-bit integer.
func (w *Writer) WriteU4(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteS2 appends a signed 16-bit integer (branch offsets, immediates).
func (w *Writer) WriteS2(v int16) { w.WriteU2(uint16(v)) }

// WriteS4 appends a signed 32-bit integer (wide branch offsets).
func (w *Writer) WriteS4(v int32) { w.WriteU4(uint32(v)) }

// WriteBytes appends a raw byte slice verbatim.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }
