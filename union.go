package typepack

import (
	"fmt"
	"reflect"

	"github.com/typepack/typepack-go/encoding/msgpack"
	"github.com/typepack/typepack-go/logging"
	"github.com/typepack/typepack-go/shapes"
)

// unionConverter frames polymorphic values declared as a union base type:
// a two-element array of discriminator and payload. The discriminator is
// the case's string alias when one is registered, its integer index
// otherwise, and nil when the runtime value is exactly the declared base
// type.
//
// Sites whose declared type is a concrete case use that case's converter
// directly, so framing never nests redundantly.
type unionConverter struct {
	id    string
	cases []unionBoundCase
	base  Converter

	baseType reflect.Type

	byIndex map[int]int
	byAlias map[string]int
	byType  map[reflect.Type]int
}

type unionBoundCase struct {
	c     shapes.UnionCase
	conv  Converter
	alias *PreformattedString
}

func newUnionConverter(g *generation, s *shapes.Shape) (Converter, error) {
	uc := &unionConverter{
		id:       s.ID,
		baseType: s.Type,
		byIndex:  map[int]int{},
		byAlias:  map[string]int{},
		byType:   map[reflect.Type]int{},
	}

	if s.Base != nil {
		base, err := g.converterFor(s.Base)
		if err != nil {
			return nil, err
		}
		uc.base = base
		uc.baseType = s.Base.Type
	}

	// cases build in declaration order with the same builder, so nested
	// unions compose
	for _, c := range s.Cases {
		conv, err := g.converterFor(c.Shape)
		if err != nil {
			return nil, fmt.Errorf("union case %d: %w", c.Index, err)
		}
		slot := len(uc.cases)
		bc := unionBoundCase{c: c, conv: conv}
		if c.Alias != "" {
			bc.alias = NewPreformattedString(c.Alias)
			uc.byAlias[c.Alias] = slot
		}
		uc.cases = append(uc.cases, bc)
		uc.byIndex[c.Index] = slot
		if c.Shape.Type != nil {
			uc.byType[c.Shape.Type] = slot
		}
	}
	return uc, nil
}

// caseFor resolves the runtime type of v to a registered case. An exact
// match wins; otherwise the case list is walked in declaration order for
// the nearest registered ancestor (an interface the runtime type satisfies,
// or a type it is assignable to).
func (uc *unionConverter) caseFor(ctx *Context, v any) (int, bool) {
	rt := reflect.TypeOf(v)
	if slot, ok := uc.byType[rt]; ok {
		return slot, true
	}
	// the boxed representation of case values is a pointer; match the
	// pointee as well
	if rt != nil && rt.Kind() == reflect.Pointer {
		if slot, ok := uc.byType[rt.Elem()]; ok {
			return slot, true
		}
	}

	for slot := range uc.cases {
		ct := uc.cases[slot].c.Shape.Type
		if ct == nil {
			continue
		}
		if ct.Kind() == reflect.Interface && rt != nil && rt.Implements(ct) {
			ctx.Logger().Logf(logging.Warn, "union %s: runtime type %s served by ancestor case %d", uc.id, rt, uc.cases[slot].c.Index)
			return slot, true
		}
		if rt != nil && rt.AssignableTo(ct) {
			ctx.Logger().Logf(logging.Warn, "union %s: runtime type %s served by assignable case %d", uc.id, rt, uc.cases[slot].c.Index)
			return slot, true
		}
	}
	return 0, false
}

func (uc *unionConverter) isExactBase(v any) bool {
	if uc.base == nil || uc.baseType == nil {
		return false
	}
	rt := reflect.TypeOf(v)
	if rt == uc.baseType {
		return true
	}
	return rt != nil && rt.Kind() == reflect.Pointer && rt.Elem() == uc.baseType
}

func (uc *unionConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	w.WriteArrayHeader(2)

	if uc.isExactBase(v) {
		w.WriteNil()
		return uc.base.Write(ctx, w, v)
	}

	slot, ok := uc.caseFor(ctx, v)
	if !ok {
		return newError(UnknownSubType, "union %s: runtime type %T matches no registered case", uc.id, v)
	}

	bc := &uc.cases[slot]
	if bc.alias != nil {
		bc.alias.WriteTo(w)
	} else {
		w.WriteInt(int64(bc.c.Index))
	}
	return bc.conv.Write(ctx, w, v)
}

func (uc *unionConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	start := r.Pos()
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if n != 2 {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("union envelope of %d elements where 2 expected", n)}
	}

	if r.TryReadNil() {
		if uc.base == nil {
			return nil, &Error{Kind: UnknownSubType, Offset: start,
				Msg: fmt.Sprintf("union %s: nil discriminator with no base case", uc.id)}
		}
		return uc.base.Read(ctx, r)
	}

	t, err := r.Peek()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}

	slot := -1
	switch t {
	case msgpack.IntType, msgpack.UintType:
		idx, err := r.ReadInt()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}
		if s, ok := uc.byIndex[int(idx)]; ok {
			slot = s
		} else {
			return nil, &Error{Kind: UnknownSubType, Offset: start,
				Msg: fmt.Sprintf("union %s: unknown case index %d", uc.id, idx)}
		}
	case msgpack.StrType:
		alias, err := r.ReadStringBytes()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}
		if s, ok := uc.byAlias[string(alias)]; ok {
			slot = s
		} else {
			return nil, &Error{Kind: UnknownSubType, Offset: start,
				Msg: fmt.Sprintf("union %s: unknown case alias %q", uc.id, alias)}
		}
	default:
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("token %s where union discriminator expected", t)}
	}

	return uc.cases[slot].conv.Read(ctx, r)
}

func (uc *unionConverter) PreferAsync() bool {
	for i := range uc.cases {
		if preferAsync(uc.cases[i].conv) {
			return true
		}
	}
	return uc.base != nil && preferAsync(uc.base)
}
