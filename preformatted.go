package typepack

import (
	"bytes"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// PreformattedString caches the three representations of a recurring string:
// the decoded form, its UTF-8 bytes and its fully framed MessagePack
// encoding. Object converters build one per property name so that
// serialization splices pre-encoded bytes and deserialization matches
// incoming keys without allocating.
type PreformattedString struct {
	Value  string
	UTF8   []byte
	Framed []byte
}

// NewPreformattedString builds the cached representations of s.
func NewPreformattedString(s string) *PreformattedString {
	w := msgpack.NewWriter()
	w.WriteString(s)
	framed := make([]byte, w.Len())
	copy(framed, w.Bytes())
	return &PreformattedString{
		Value:  s,
		UTF8:   []byte(s),
		Framed: framed,
	}
}

// MatchBytes reports whether b is the UTF-8 encoding of the cached string:
// a length check and a byte comparison, no decoding.
func (p *PreformattedString) MatchBytes(b []byte) bool {
	return len(b) == len(p.UTF8) && bytes.Equal(b, p.UTF8)
}

// WriteTo splices the framed representation into w.
func (p *PreformattedString) WriteTo(w *msgpack.Writer) {
	w.WriteRaw(p.Framed)
}
