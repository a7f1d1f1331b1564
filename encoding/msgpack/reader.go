package msgpack

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"
)

// Reader is a synchronous pull reader over a fully buffered MessagePack
// payload. Every Read consumes exactly one structure; Peek classifies the
// next structure without consuming it.
//
// Reader is a value type. Fork returns a copy sharing the same buffer, which
// may be read ahead and discarded without committing the parent's position.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of p.
func NewReader(p []byte) Reader {
	return Reader{buf: p}
}

// Pos returns the current byte offset into the payload.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Fork returns a copy of the reader. Reads on the fork do not advance the
// parent; call Commit on the parent with the fork to adopt its position.
func (r *Reader) Fork() Reader { return *r }

// Commit adopts the position of a fork previously created from this reader.
func (r *Reader) Commit(fork Reader) { r.pos = fork.pos }

// Peek classifies the next structure without advancing.
func (r *Reader) Peek() (Type, error) {
	if r.pos >= len(r.buf) {
		return InvalidType, endOfStream(r.pos)
	}
	t := typeOf(r.buf[r.pos])
	if t == InvalidType {
		return InvalidType, malformed(r.pos, r.buf[r.pos], "any structure")
	}
	return t, nil
}

func (r *Reader) need(n int) error {
	if len(r.buf)-r.pos < n {
		return endOfStream(r.pos)
	}
	return nil
}

func (r *Reader) prefix() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// TryReadNil consumes a nil token if one is next and reports whether it did.
// On any other token the reader does not advance.
func (r *Reader) TryReadNil() bool {
	if r.pos < len(r.buf) && r.buf[r.pos] == formatNil {
		r.pos++
		return true
	}
	return false
}

// ReadNil consumes a nil token.
func (r *Reader) ReadNil() error {
	b, err := r.prefix()
	if err != nil {
		return err
	}
	if b != formatNil {
		r.pos--
		return malformed(r.pos, b, "nil")
	}
	return nil
}

// ReadBool consumes a boolean token.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.prefix()
	if err != nil {
		return false, err
	}
	switch b {
	case formatTrue:
		return true, nil
	case formatFalse:
		return false, nil
	default:
		r.pos--
		return false, malformed(r.pos, b, "bool")
	}
}

// readIntRaw consumes one integer token of either signedness. The result is
// (value, isNegative): non-negative magnitudes land in u, negative values in
// i with isNegative true.
func (r *Reader) readIntRaw() (u uint64, i int64, neg bool, err error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, 0, false, err
	}

	switch {
	case b <= maxFixInt:
		return uint64(b), 0, false, nil
	case b >= 0xe0:
		return 0, int64(int8(b)), true, nil
	}

	switch b {
	case formatUint8:
		if err := r.need(1); err != nil {
			return 0, 0, false, err
		}
		u = uint64(r.buf[r.pos])
		r.pos++
	case formatUint16:
		if err := r.need(2); err != nil {
			return 0, 0, false, err
		}
		u = uint64(binary.BigEndian.Uint16(r.buf[r.pos:]))
		r.pos += 2
	case formatUint32:
		if err := r.need(4); err != nil {
			return 0, 0, false, err
		}
		u = uint64(binary.BigEndian.Uint32(r.buf[r.pos:]))
		r.pos += 4
	case formatUint64:
		if err := r.need(8); err != nil {
			return 0, 0, false, err
		}
		u = binary.BigEndian.Uint64(r.buf[r.pos:])
		r.pos += 8
	case formatInt8:
		if err := r.need(1); err != nil {
			return 0, 0, false, err
		}
		i = int64(int8(r.buf[r.pos]))
		r.pos++
	case formatInt16:
		if err := r.need(2); err != nil {
			return 0, 0, false, err
		}
		i = int64(int16(binary.BigEndian.Uint16(r.buf[r.pos:])))
		r.pos += 2
	case formatInt32:
		if err := r.need(4); err != nil {
			return 0, 0, false, err
		}
		i = int64(int32(binary.BigEndian.Uint32(r.buf[r.pos:])))
		r.pos += 4
	case formatInt64:
		if err := r.need(8); err != nil {
			return 0, 0, false, err
		}
		i = int64(binary.BigEndian.Uint64(r.buf[r.pos:]))
		r.pos += 8
	default:
		r.pos = start
		return 0, 0, false, malformed(start, b, "integer")
	}

	if i >= 0 {
		return u + uint64(i), 0, false, nil
	}
	return 0, i, true, nil
}

// ReadInt consumes one integer token of either signedness as an int64.
func (r *Reader) ReadInt() (int64, error) {
	start := r.pos
	u, i, neg, err := r.readIntRaw()
	if err != nil {
		return 0, err
	}
	if neg {
		return i, nil
	}
	if u > math.MaxInt64 {
		return 0, overflow(start, u, "int64")
	}
	return int64(u), nil
}

// ReadUint consumes one integer token as a uint64. A negative value fails
// with ErrOverflow rather than wrapping.
func (r *Reader) ReadUint() (uint64, error) {
	start := r.pos
	u, i, neg, err := r.readIntRaw()
	if err != nil {
		return 0, err
	}
	if neg {
		return 0, overflow(start, i, "uint64")
	}
	return u, nil
}

// ReadInt8 reads an integer token checked against the int8 range.
func (r *Reader) ReadInt8() (int8, error) {
	return readIntRanged[int8](r, math.MinInt8, math.MaxInt8, "int8")
}

// ReadInt16 reads an integer token checked against the int16 range.
func (r *Reader) ReadInt16() (int16, error) {
	return readIntRanged[int16](r, math.MinInt16, math.MaxInt16, "int16")
}

// ReadInt32 reads an integer token checked against the int32 range.
func (r *Reader) ReadInt32() (int32, error) {
	return readIntRanged[int32](r, math.MinInt32, math.MaxInt32, "int32")
}

// ReadInt64 reads an integer token checked against the int64 range.
func (r *Reader) ReadInt64() (int64, error) { return r.ReadInt() }

// ReadUint8 reads an integer token checked against the uint8 range.
func (r *Reader) ReadUint8() (uint8, error) {
	return readUintRanged[uint8](r, math.MaxUint8, "uint8")
}

// ReadUint16 reads an integer token checked against the uint16 range.
func (r *Reader) ReadUint16() (uint16, error) {
	return readUintRanged[uint16](r, math.MaxUint16, "uint16")
}

// ReadUint32 reads an integer token checked against the uint32 range.
func (r *Reader) ReadUint32() (uint32, error) {
	return readUintRanged[uint32](r, math.MaxUint32, "uint32")
}

// ReadUint64 reads an integer token checked against the uint64 range.
func (r *Reader) ReadUint64() (uint64, error) { return r.ReadUint() }

func readIntRanged[T int8 | int16 | int32](r *Reader, lo, hi int64, name string) (T, error) {
	start := r.pos
	v, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, overflow(start, v, name)
	}
	return T(v), nil
}

func readUintRanged[T uint8 | uint16 | uint32](r *Reader, hi uint64, name string) (T, error) {
	start := r.pos
	v, err := r.ReadUint()
	if err != nil {
		return 0, err
	}
	if v > hi {
		return 0, overflow(start, v, name)
	}
	return T(v), nil
}

// ReadChar reads a UTF-16 code unit encoded as its integer value.
func (r *Reader) ReadChar() (rune, error) {
	u, err := r.ReadUint16()
	if err != nil {
		return 0, err
	}
	return utf16.Decode([]uint16{u})[0], nil
}

// ReadFloat32 consumes a float32 token. Doubles do not narrow; reading a
// float64 token as float32 fails with ErrOverflow.
func (r *Reader) ReadFloat32() (float32, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, err
	}
	switch b {
	case formatFloat32:
		if err := r.need(4); err != nil {
			return 0, err
		}
		v := math.Float32frombits(binary.BigEndian.Uint32(r.buf[r.pos:]))
		r.pos += 4
		return v, nil
	case formatFloat64:
		r.pos = start
		return 0, overflow(start, "float64 token", "float32")
	default:
		r.pos = start
		return 0, malformed(start, b, "float32")
	}
}

// ReadFloat64 consumes a float token, widening a float32 encoding.
func (r *Reader) ReadFloat64() (float64, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, err
	}
	switch b {
	case formatFloat32:
		if err := r.need(4); err != nil {
			return 0, err
		}
		v := math.Float32frombits(binary.BigEndian.Uint32(r.buf[r.pos:]))
		r.pos += 4
		return float64(v), nil
	case formatFloat64:
		if err := r.need(8); err != nil {
			return 0, err
		}
		v := math.Float64frombits(binary.BigEndian.Uint64(r.buf[r.pos:]))
		r.pos += 8
		return v, nil
	default:
		r.pos = start
		return 0, malformed(start, b, "float")
	}
}

// readStrLen consumes a str header and returns the body length.
func (r *Reader) readStrLen() (int, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, err
	}
	if b >= fixStrMask && b <= 0xbf {
		return int(b & maxFixStrLen), nil
	}
	switch b {
	case formatStr8:
		return r.readLen8()
	case formatStr16:
		return r.readLen16()
	case formatStr32:
		return r.readLen32()
	default:
		r.pos = start
		return 0, malformed(start, b, "str")
	}
}

func (r *Reader) readLen8() (int, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	n := int(r.buf[r.pos])
	r.pos++
	return n, nil
}

func (r *Reader) readLen16() (int, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	n := int(binary.BigEndian.Uint16(r.buf[r.pos:]))
	r.pos += 2
	return n, nil
}

func (r *Reader) readLen32() (int, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	if uint64(n) > uint64(math.MaxInt32) {
		return 0, overflow(r.pos-4, n, "int32 length")
	}
	return int(n), nil
}

// ReadStringBytes consumes a str token and returns its UTF-8 body as a
// subslice of the payload. The bytes alias the reader's buffer.
func (r *Reader) ReadStringBytes() ([]byte, error) {
	start := r.pos
	n, err := r.readStrLen()
	if err != nil {
		return nil, err
	}
	if err := r.need(n); err != nil {
		r.pos = start
		return nil, endOfStream(start)
	}
	p := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadString consumes a str token.
func (r *Reader) ReadString() (string, error) {
	p, err := r.ReadStringBytes()
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// ReadBinary consumes a bin token and returns its body as a subslice of the
// payload.
func (r *Reader) ReadBinary() ([]byte, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return nil, err
	}
	var n int
	switch b {
	case formatBin8:
		n, err = r.readLen8()
	case formatBin16:
		n, err = r.readLen16()
	case formatBin32:
		n, err = r.readLen32()
	default:
		r.pos = start
		return nil, malformed(start, b, "bin")
	}
	if err != nil {
		r.pos = start
		return nil, err
	}
	if err := r.need(n); err != nil {
		r.pos = start
		return nil, endOfStream(start)
	}
	p := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return p, nil
}

// ReadArrayHeader consumes an array header and returns the element count.
func (r *Reader) ReadArrayHeader() (int, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, err
	}
	if b >= fixArrayMask && b < fixStrMask {
		return int(b & maxFixLen), nil
	}
	switch b {
	case formatArray16:
		return r.readLen16()
	case formatArray32:
		return r.readLen32()
	default:
		r.pos = start
		return 0, malformed(start, b, "array")
	}
}

// ReadMapHeader consumes a map header and returns the pair count.
func (r *Reader) ReadMapHeader() (int, error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, err
	}
	if b >= fixMapMask && b < fixArrayMask {
		return int(b & maxFixLen), nil
	}
	switch b {
	case formatMap16:
		return r.readLen16()
	case formatMap32:
		return r.readLen32()
	default:
		r.pos = start
		return 0, malformed(start, b, "map")
	}
}

// ReadExtensionHeader consumes an extension header and returns the type code
// and body length. The body follows and must be consumed by the caller.
func (r *Reader) ReadExtensionHeader() (typ int8, n int, err error) {
	start := r.pos
	b, err := r.prefix()
	if err != nil {
		return 0, 0, err
	}
	switch b {
	case formatFixExt1:
		n = 1
	case formatFixExt2:
		n = 2
	case formatFixExt4:
		n = 4
	case formatFixExt8:
		n = 8
	case formatFixExt16:
		n = 16
	case formatExt8:
		n, err = r.readLen8()
	case formatExt16:
		n, err = r.readLen16()
	case formatExt32:
		n, err = r.readLen32()
	default:
		r.pos = start
		return 0, 0, malformed(start, b, "ext")
	}
	if err != nil {
		r.pos = start
		return 0, 0, err
	}
	if err := r.need(1); err != nil {
		r.pos = start
		return 0, 0, endOfStream(start)
	}
	typ = int8(r.buf[r.pos])
	r.pos++
	return typ, n, nil
}

// ReadExtension consumes a whole extension and returns the type code and
// body as a subslice of the payload.
func (r *Reader) ReadExtension() (int8, []byte, error) {
	start := r.pos
	typ, n, err := r.ReadExtensionHeader()
	if err != nil {
		return 0, nil, err
	}
	if err := r.need(n); err != nil {
		r.pos = start
		return 0, nil, endOfStream(start)
	}
	p := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return typ, p, nil
}

// Skip consumes exactly one structure, recursing through the elements of
// arrays and the pairs of maps.
func (r *Reader) Skip() error {
	t, err := r.Peek()
	if err != nil {
		return err
	}
	switch t {
	case NilType:
		return r.ReadNil()
	case BoolType:
		_, err = r.ReadBool()
		return err
	case IntType:
		_, _, _, err = r.readIntRaw()
		return err
	case UintType:
		_, err = r.ReadUint()
		return err
	case Float32Type:
		_, err = r.ReadFloat32()
		return err
	case Float64Type:
		_, err = r.ReadFloat64()
		return err
	case StrType:
		_, err = r.ReadStringBytes()
		return err
	case BinType:
		_, err = r.ReadBinary()
		return err
	case ExtType:
		_, _, err = r.ReadExtension()
		return err
	case ArrayType:
		n, err := r.ReadArrayHeader()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := r.Skip(); err != nil {
				return fmt.Errorf("array element %d: %w", i, err)
			}
		}
		return nil
	case MapType:
		n, err := r.ReadMapHeader()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := r.Skip(); err != nil {
				return fmt.Errorf("map key %d: %w", i, err)
			}
			if err := r.Skip(); err != nil {
				return fmt.Errorf("map value %d: %w", i, err)
			}
		}
		return nil
	default:
		return malformed(r.pos, r.buf[r.pos], "any structure")
	}
}

// ReadRaw consumes one structure and returns its framed bytes unparsed, as a
// subslice of the payload.
func (r *Reader) ReadRaw() ([]byte, error) {
	start := r.pos
	if err := r.Skip(); err != nil {
		return nil, err
	}
	return r.buf[start:r.pos:r.pos], nil
}
