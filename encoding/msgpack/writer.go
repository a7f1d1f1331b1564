package msgpack

import (
	"encoding/binary"
	"io"
	"math"
)

// Writer is a push writer that appends MessagePack structures to an internal
// buffer. Every scalar write emits the shortest valid encoding for its value.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written payload. The slice aliases the writer's buffer
// and is invalidated by further writes.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards the buffered payload while retaining capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// WriteTo flushes the buffered payload to dst and resets the writer.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf)
	w.buf = w.buf[:0]
	return int64(n), err
}

// WriteNil writes a nil token.
func (w *Writer) WriteNil() {
	w.buf = append(w.buf, formatNil)
}

// WriteBool writes a boolean token.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, formatTrue)
	} else {
		w.buf = append(w.buf, formatFalse)
	}
}

// WriteInt writes v in its shortest encoding: positive or negative fixint
// when it fits, otherwise the narrowest sized int/uint family member.
func (w *Writer) WriteInt(v int64) {
	if v >= 0 {
		w.WriteUint(uint64(v))
		return
	}
	switch {
	case v >= minNegFixInt:
		w.buf = append(w.buf, byte(v))
	case v >= math.MinInt8:
		w.buf = append(w.buf, formatInt8, byte(v))
	case v >= math.MinInt16:
		w.buf = append(w.buf, formatInt16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
	case v >= math.MinInt32:
		w.buf = append(w.buf, formatInt32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	default:
		w.buf = append(w.buf, formatInt64)
		w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
	}
}

// WriteUint writes v in its shortest encoding.
func (w *Writer) WriteUint(v uint64) {
	switch {
	case v <= maxFixInt:
		w.buf = append(w.buf, byte(v))
	case v <= math.MaxUint8:
		w.buf = append(w.buf, formatUint8, byte(v))
	case v <= math.MaxUint16:
		w.buf = append(w.buf, formatUint16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
	case v <= math.MaxUint32:
		w.buf = append(w.buf, formatUint32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
	default:
		w.buf = append(w.buf, formatUint64)
		w.buf = binary.BigEndian.AppendUint64(w.buf, v)
	}
}

// WriteChar writes a UTF-16 code unit as its integer value.
func (w *Writer) WriteChar(v uint16) {
	w.WriteUint(uint64(v))
}

// WriteFloat32 writes a float32 token.
func (w *Writer) WriteFloat32(v float32) {
	w.buf = append(w.buf, formatFloat32)
	w.buf = binary.BigEndian.AppendUint32(w.buf, math.Float32bits(v))
}

// WriteFloat64 writes a float64 token.
func (w *Writer) WriteFloat64(v float64) {
	w.buf = append(w.buf, formatFloat64)
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *Writer) writeStrHeader(n int) {
	switch {
	case n <= maxFixStrLen:
		w.buf = append(w.buf, fixStrMask|byte(n))
	case n <= math.MaxUint8:
		w.buf = append(w.buf, formatStr8, byte(n))
	case n <= math.MaxUint16:
		w.buf = append(w.buf, formatStr16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
	default:
		w.buf = append(w.buf, formatStr32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
	}
}

// WriteString writes a str token, choosing fixstr/str8/str16/str32 by length.
func (w *Writer) WriteString(v string) {
	w.writeStrHeader(len(v))
	w.buf = append(w.buf, v...)
}

// WriteStringBytes writes a str token from a UTF-8 byte body.
func (w *Writer) WriteStringBytes(v []byte) {
	w.writeStrHeader(len(v))
	w.buf = append(w.buf, v...)
}

// WriteBinary writes a bin token.
func (w *Writer) WriteBinary(v []byte) {
	n := len(v)
	switch {
	case n <= math.MaxUint8:
		w.buf = append(w.buf, formatBin8, byte(n))
	case n <= math.MaxUint16:
		w.buf = append(w.buf, formatBin16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
	default:
		w.buf = append(w.buf, formatBin32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
	}
	w.buf = append(w.buf, v...)
}

// WriteArrayHeader begins an array of n elements. The caller writes exactly
// n structures after it.
func (w *Writer) WriteArrayHeader(n int) {
	switch {
	case n <= maxFixLen:
		w.buf = append(w.buf, fixArrayMask|byte(n))
	case n <= math.MaxUint16:
		w.buf = append(w.buf, formatArray16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
	default:
		w.buf = append(w.buf, formatArray32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
	}
}

// WriteMapHeader begins a map of n pairs. The caller writes exactly 2n
// structures after it.
func (w *Writer) WriteMapHeader(n int) {
	switch {
	case n <= maxFixLen:
		w.buf = append(w.buf, fixMapMask|byte(n))
	case n <= math.MaxUint16:
		w.buf = append(w.buf, formatMap16)
		w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
	default:
		w.buf = append(w.buf, formatMap32)
		w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
	}
}

// WriteExtensionHeader begins an extension with the given type code and body
// length, choosing the fixext form when the length allows. The caller writes
// exactly n raw body bytes after it.
func (w *Writer) WriteExtensionHeader(typ int8, n int) {
	switch n {
	case 1:
		w.buf = append(w.buf, formatFixExt1)
	case 2:
		w.buf = append(w.buf, formatFixExt2)
	case 4:
		w.buf = append(w.buf, formatFixExt4)
	case 8:
		w.buf = append(w.buf, formatFixExt8)
	case 16:
		w.buf = append(w.buf, formatFixExt16)
	default:
		switch {
		case n <= math.MaxUint8:
			w.buf = append(w.buf, formatExt8, byte(n))
		case n <= math.MaxUint16:
			w.buf = append(w.buf, formatExt16)
			w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(n))
		default:
			w.buf = append(w.buf, formatExt32)
			w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(n))
		}
	}
	w.buf = append(w.buf, byte(typ))
}

// WriteExtension writes a whole extension structure.
func (w *Writer) WriteExtension(typ int8, body []byte) {
	w.WriteExtensionHeader(typ, len(body))
	w.buf = append(w.buf, body...)
}

// WriteRaw appends pre-encoded MessagePack bytes verbatim. The caller is
// responsible for p holding whole structures.
func (w *Writer) WriteRaw(p []byte) {
	w.buf = append(w.buf, p...)
}
