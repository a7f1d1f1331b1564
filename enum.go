package typepack

import (
	"strings"

	"github.com/typepack/typepack-go/encoding/msgpack"
	"github.com/typepack/typepack-go/shapes"
)

// enumConverter writes enums by ordinal or, when configured, by declared
// name. The reader accepts both regardless of mode: a numeric token always
// falls back to the ordinal path so payloads written under the other mode
// still load.
type enumConverter struct {
	byName bool
	fns    *shapes.EnumFuncs

	// nameOf is the declared name per ordinal, first declaration winning.
	nameOf map[int64]*PreformattedString

	// exact and folded index declared names for the reader; folded is the
	// case-insensitive table, preferring the first declared on collisions.
	exact  map[string]int64
	folded map[string]int64
}

func newEnumConverter(s *shapes.Shape, byName bool) (Converter, error) {
	if s.Enum == nil {
		return nil, newError(UnsupportedType, "shape %s: enum without accessors", s.ID)
	}
	c := &enumConverter{
		byName: byName,
		fns:    s.Enum,
		nameOf: make(map[int64]*PreformattedString, len(s.Members)),
		exact:  make(map[string]int64, len(s.Members)),
		folded: make(map[string]int64, len(s.Members)),
	}
	for _, m := range s.Members {
		if _, ok := c.nameOf[m.Value]; !ok {
			c.nameOf[m.Value] = NewPreformattedString(m.Name)
		}
		if _, ok := c.exact[m.Name]; !ok {
			c.exact[m.Name] = m.Value
		}
		lower := strings.ToLower(m.Name)
		if _, ok := c.folded[lower]; !ok {
			c.folded[lower] = m.Value
		}
	}
	return c, nil
}

func (c *enumConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	ordinal := c.fns.ToOrdinal(v)
	if c.byName {
		if name, ok := c.nameOf[ordinal]; ok {
			name.WriteTo(w)
			return nil
		}
		// an ordinal with no declared name still round-trips numerically
	}
	w.WriteInt(ordinal)
	return nil
}

func (c *enumConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	start := r.Pos()
	t, err := r.Peek()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}

	switch t {
	case msgpack.StrType:
		p, err := r.ReadStringBytes()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}
		if ordinal, ok := c.exact[string(p)]; ok {
			return c.fns.FromOrdinal(ordinal), nil
		}
		if ordinal, ok := c.folded[strings.ToLower(string(p))]; ok {
			return c.fns.FromOrdinal(ordinal), nil
		}
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: "unknown enum name " + string(p)}
	case msgpack.IntType, msgpack.UintType:
		ordinal, err := r.ReadInt()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}
		return c.fns.FromOrdinal(ordinal), nil
	default:
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: "token " + t.String() + " where enum expected"}
	}
}
