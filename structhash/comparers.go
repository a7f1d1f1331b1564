package structhash

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/typepack/typepack-go/internal/siphash"
	"github.com/typepack/typepack-go/shapes"
)

// Domain seeds keep structurally different values from colliding by
// construction: an empty list and an empty map must not share a hash.
var (
	seedList     = siphash.Sum([]byte("structhash/list"))
	seedMap      = siphash.Sum([]byte("structhash/map"))
	seedObject   = siphash.Sum([]byte("structhash/object"))
	seedNone     = siphash.Sum([]byte("structhash/none"))
	seedSome     = siphash.Sum([]byte("structhash/some"))
	seedNaN      = siphash.Sum([]byte("structhash/nan"))
	seedTime     = siphash.Sum([]byte("structhash/time"))
	seedUnionNil = siphash.Sum([]byte("structhash/union-base"))
)

// mix folds the next 64-bit component into a running hash through the
// keyed function, so per-element collision resistance carries through to
// the aggregate.
func mix(h, next uint64) uint64 {
	var p [16]byte
	binary.LittleEndian.PutUint64(p[:8], h)
	binary.LittleEndian.PutUint64(p[8:], next)
	return siphash.Sum(p[:])
}

type boolComparer struct{}

func (boolComparer) Equal(a, b any) bool { return a.(bool) == b.(bool) }

func (boolComparer) Hash(v any) uint64 {
	if v.(bool) {
		return siphash.Sum64(1)
	}
	return siphash.Sum64(0)
}

type intComparer struct{}

func (intComparer) Equal(a, b any) bool { return asInt(a) == asInt(b) }
func (intComparer) Hash(v any) uint64   { return siphash.Sum64(uint64(asInt(v))) }

type uintComparer struct{}

func (uintComparer) Equal(a, b any) bool { return asUint(a) == asUint(b) }
func (uintComparer) Hash(v any) uint64   { return siphash.Sum64(asUint(v)) }

// Floats normalize before hashing: both zeroes hash alike, as do all NaN
// bit patterns. Equality agrees, so the hash-equality contract holds.

type float32Comparer struct{}

func (float32Comparer) Equal(a, b any) bool {
	af, bf := a.(float32), b.(float32)
	if isNaN32(af) || isNaN32(bf) {
		return isNaN32(af) && isNaN32(bf)
	}
	return af == bf
}

func (float32Comparer) Hash(v any) uint64 {
	f := v.(float32)
	if isNaN32(f) {
		return seedNaN
	}
	if f == 0 {
		f = 0 // collapse -0 to +0
	}
	return siphash.Sum64(uint64(math.Float32bits(f)))
}

func isNaN32(f float32) bool { return f != f }

type float64Comparer struct{}

func (float64Comparer) Equal(a, b any) bool {
	af, bf := a.(float64), b.(float64)
	if math.IsNaN(af) || math.IsNaN(bf) {
		return math.IsNaN(af) && math.IsNaN(bf)
	}
	return af == bf
}

func (float64Comparer) Hash(v any) uint64 {
	f := v.(float64)
	if math.IsNaN(f) {
		return seedNaN
	}
	if f == 0 {
		f = 0
	}
	return siphash.Sum64(math.Float64bits(f))
}

type stringComparer struct{}

func (stringComparer) Equal(a, b any) bool { return a.(string) == b.(string) }

func (stringComparer) Hash(v any) uint64 {
	return siphash.Sum([]byte(v.(string)))
}

type bytesComparer struct{}

func (bytesComparer) Equal(a, b any) bool { return bytes.Equal(a.([]byte), b.([]byte)) }
func (bytesComparer) Hash(v any) uint64   { return siphash.Sum(v.([]byte)) }

type timestampComparer struct{}

func (timestampComparer) Equal(a, b any) bool {
	return a.(time.Time).Equal(b.(time.Time))
}

func (timestampComparer) Hash(v any) uint64 {
	t := v.(time.Time)
	h := mix(seedTime, uint64(t.Unix()))
	return mix(h, uint64(t.Nanosecond()))
}

type enumComparer struct {
	fns *shapes.EnumFuncs
}

func (c enumComparer) Equal(a, b any) bool {
	return c.fns.ToOrdinal(a) == c.fns.ToOrdinal(b)
}

func (c enumComparer) Hash(v any) uint64 {
	return siphash.Sum64(uint64(c.fns.ToOrdinal(v)))
}

type optionalComparer struct {
	elem Comparer
	fns  *shapes.OptFuncs
}

func (c *optionalComparer) Equal(a, b any) bool {
	an, bn := c.fns.IsNone(a), c.fns.IsNone(b)
	if an || bn {
		return an == bn
	}
	return c.elem.Equal(c.fns.Unwrap(a), c.fns.Unwrap(b))
}

func (c *optionalComparer) Hash(v any) uint64 {
	if c.fns.IsNone(v) {
		return seedNone
	}
	return mix(seedSome, c.elem.Hash(c.fns.Unwrap(v)))
}

type sequenceComparer struct {
	elem Comparer
	fns  *shapes.SeqFuncs
	rank int
}

func (c *sequenceComparer) Equal(a, b any) bool { return c.equalAt(a, b, c.rank) }

func (c *sequenceComparer) equalAt(a, b any, rank int) bool {
	if rank == 0 {
		return c.elem.Equal(a, b)
	}
	if c.fns.Len(a) != c.fns.Len(b) {
		return false
	}

	bs := make([]any, 0, c.fns.Len(b))
	_ = c.fns.Iterate(b, func(elem any) error {
		bs = append(bs, elem)
		return nil
	})

	i := 0
	equal := true
	_ = c.fns.Iterate(a, func(elem any) error {
		if !c.equalAt(elem, bs[i], rank-1) {
			equal = false
			return errStop
		}
		i++
		return nil
	})
	return equal
}

func (c *sequenceComparer) Hash(v any) uint64 { return c.hashAt(v, c.rank) }

func (c *sequenceComparer) hashAt(v any, rank int) uint64 {
	if rank == 0 {
		return c.elem.Hash(v)
	}
	h := seedList
	_ = c.fns.Iterate(v, func(elem any) error {
		h = mix(h, c.hashAt(elem, rank-1))
		return nil
	})
	return h
}

// mapComparer compares maps as unordered multisets and hashes them
// order-independently: the XOR of the per-pair hashes.
type mapComparer struct {
	key, value Comparer
	fns        *shapes.MapFuncs
}

func (c *mapComparer) Equal(a, b any) bool {
	if c.fns.Len(a) != c.fns.Len(b) {
		return false
	}

	type pair struct{ k, v any }
	bs := make([]pair, 0, c.fns.Len(b))
	_ = c.fns.Iterate(b, func(k, v any) error {
		bs = append(bs, pair{k, v})
		return nil
	})
	matched := make([]bool, len(bs))

	equal := true
	_ = c.fns.Iterate(a, func(k, v any) error {
		for i := range bs {
			if matched[i] || !c.key.Equal(k, bs[i].k) || !c.value.Equal(v, bs[i].v) {
				continue
			}
			matched[i] = true
			return nil
		}
		equal = false
		return errStop
	})
	return equal
}

func (c *mapComparer) Hash(v any) uint64 {
	h := seedMap
	_ = c.fns.Iterate(v, func(k, val any) error {
		h ^= mix(c.key.Hash(k), c.value.Hash(val))
		return nil
	})
	return h
}

type propertyComparer struct {
	get      func(any) any
	comparer Comparer
}

type objectComparer struct {
	props []propertyComparer
}

func (c *objectComparer) Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	for i := range c.props {
		if !c.props[i].comparer.Equal(c.props[i].get(a), c.props[i].get(b)) {
			return false
		}
	}
	return true
}

func (c *objectComparer) Hash(v any) uint64 {
	h := seedObject
	for i := range c.props {
		h = mix(h, c.props[i].comparer.Hash(c.props[i].get(v)))
	}
	return h
}

type unionCaseComparer struct {
	c        shapes.UnionCase
	comparer Comparer
}

type unionComparer struct {
	cases    []unionCaseComparer
	base     Comparer
	baseType reflect.Type
}

// caseOf resolves a runtime value to its case slot, -1 meaning the declared
// base itself.
func (c *unionComparer) caseOf(v any) (int, bool) {
	rt := reflect.TypeOf(v)
	for i := range c.cases {
		ct := c.cases[i].c.Shape.Type
		if ct == nil {
			continue
		}
		if rt == ct || (rt != nil && rt.Kind() == reflect.Pointer && rt.Elem() == ct) {
			return i, true
		}
	}
	if c.base != nil && (rt == c.baseType ||
		(rt != nil && rt.Kind() == reflect.Pointer && rt.Elem() == c.baseType)) {
		return -1, true
	}
	return 0, false
}

func (c *unionComparer) Equal(a, b any) bool {
	as, aok := c.caseOf(a)
	bs, bok := c.caseOf(b)
	if !aok || !bok || as != bs {
		return false
	}
	if as == -1 {
		return c.base.Equal(a, b)
	}
	return c.cases[as].comparer.Equal(a, b)
}

func (c *unionComparer) Hash(v any) uint64 {
	slot, ok := c.caseOf(v)
	if !ok {
		return 0
	}
	if slot == -1 {
		return mix(seedUnionNil, c.base.Hash(v))
	}
	return mix(uint64(c.cases[slot].c.Index), c.cases[slot].comparer.Hash(v))
}

type surrogateComparer struct {
	target Comparer
	to     func(any) (any, error)
}

func (c *surrogateComparer) Equal(a, b any) bool {
	as, aerr := c.to(a)
	bs, berr := c.to(b)
	if aerr != nil || berr != nil {
		return false
	}
	return c.target.Equal(as, bs)
}

func (c *surrogateComparer) Hash(v any) uint64 {
	s, err := c.to(v)
	if err != nil {
		return 0
	}
	return c.target.Hash(s)
}

var errStop = errStopSentinel{}

type errStopSentinel struct{}

func (errStopSentinel) Error() string { return "stop" }

func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	default:
		return reflect.ValueOf(v).Int()
	}
}

func asUint(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	default:
		return reflect.ValueOf(v).Uint()
	}
}
