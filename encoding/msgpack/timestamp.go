package msgpack

import (
	"encoding/binary"
	"fmt"
	"time"
)

// TimestampExtension is the extension type code of the canonical MessagePack
// timestamp extension.
const TimestampExtension = -1

const (
	max34BitSeconds = 1<<34 - 1
	nanosPerSecond  = 1_000_000_000
)

// WriteTimestamp writes t as the timestamp extension, choosing the shortest
// of the 32-, 64- and 96-bit encodings that represents it exactly.
func (w *Writer) WriteTimestamp(t time.Time) {
	sec := t.Unix()
	nsec := int64(t.Nanosecond())

	if sec>>34 == 0 {
		data := uint64(nsec)<<34 | uint64(sec)
		if data&0xffffffff00000000 == 0 {
			var body [4]byte
			binary.BigEndian.PutUint32(body[:], uint32(data))
			w.WriteExtension(TimestampExtension, body[:])
			return
		}
		var body [8]byte
		binary.BigEndian.PutUint64(body[:], data)
		w.WriteExtension(TimestampExtension, body[:])
		return
	}

	var body [12]byte
	binary.BigEndian.PutUint32(body[:4], uint32(nsec))
	binary.BigEndian.PutUint64(body[4:], uint64(sec))
	w.WriteExtension(TimestampExtension, body[:])
}

// ReadTimestamp consumes a timestamp extension in any of its three
// encodings.
func (r *Reader) ReadTimestamp() (time.Time, error) {
	start := r.pos
	typ, body, err := r.ReadExtension()
	if err != nil {
		return time.Time{}, err
	}
	if typ != TimestampExtension {
		r.pos = start
		return time.Time{}, fmt.Errorf("offset %d: ext type %d where timestamp expected: %w", start, typ, ErrMalformed)
	}

	switch len(body) {
	case 4:
		sec := binary.BigEndian.Uint32(body)
		return time.Unix(int64(sec), 0).UTC(), nil
	case 8:
		data := binary.BigEndian.Uint64(body)
		nsec := data >> 34
		sec := data & max34BitSeconds
		if nsec >= nanosPerSecond {
			r.pos = start
			return time.Time{}, fmt.Errorf("offset %d: timestamp nanoseconds %d: %w", start, nsec, ErrMalformed)
		}
		return time.Unix(int64(sec), int64(nsec)).UTC(), nil
	case 12:
		nsec := binary.BigEndian.Uint32(body[:4])
		sec := int64(binary.BigEndian.Uint64(body[4:]))
		if nsec >= nanosPerSecond {
			r.pos = start
			return time.Time{}, fmt.Errorf("offset %d: timestamp nanoseconds %d: %w", start, nsec, ErrMalformed)
		}
		return time.Unix(sec, int64(nsec)).UTC(), nil
	default:
		r.pos = start
		return time.Time{}, fmt.Errorf("offset %d: timestamp body of %d bytes: %w", start, len(body), ErrMalformed)
	}
}
