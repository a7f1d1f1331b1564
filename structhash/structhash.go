// Package structhash derives deep structural equality and
// collision-resistant 64-bit hashing from type shapes. It is a visitor over
// the same shape model the serializer consumes, producing one Comparer per
// shape with the same caching and delayed-recursion discipline as the
// converter graph.
//
// Every scalar bit pattern routes through SipHash-2-4 under a key drawn
// once per process from the platform RNG, so hashes are collision-resistant
// against adversarial inputs but not stable across processes.
package structhash

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/typepack/typepack-go/shapes"
)

// Comparer implements deep by-value equality and hashing for one shape.
type Comparer interface {
	Equal(a, b any) bool
	Hash(v any) uint64
}

// Registry caches one Comparer per shape identity.
type Registry struct {
	cache sync.Map // string -> Comparer
	group singleflight.Group
}

// NewRegistry returns an empty comparer registry.
func NewRegistry() *Registry {
	return &Registry{}
}

var defaultRegistry = NewRegistry()

// For returns the comparer for shape from the package registry.
func For(shape *shapes.Shape) (Comparer, error) {
	return defaultRegistry.For(shape)
}

// Equal deep-compares two values of shape.
func Equal(shape *shapes.Shape, a, b any) (bool, error) {
	c, err := For(shape)
	if err != nil {
		return false, err
	}
	return c.Equal(a, b), nil
}

// Hash returns the structural hash of a value of shape.
func Hash(shape *shapes.Shape, v any) (uint64, error) {
	c, err := For(shape)
	if err != nil {
		return 0, err
	}
	return c.Hash(v), nil
}

// EqualValues deep-compares two Go values under the default reflection
// provider's shape for T.
func EqualValues[T any](a, b T) (bool, error) {
	shape, err := shapes.For[T]()
	if err != nil {
		return false, err
	}
	return Equal(shape, shapes.Box(a), shapes.Box(b))
}

// HashValue hashes a Go value under the default reflection provider's shape
// for T.
func HashValue[T any](v T) (uint64, error) {
	shape, err := shapes.For[T]()
	if err != nil {
		return 0, err
	}
	return Hash(shape, shapes.Box(v))
}

// For returns the cached comparer for shape, building the graph beneath it
// on first use.
func (reg *Registry) For(shape *shapes.Shape) (Comparer, error) {
	if c, ok := reg.cache.Load(shape.ID); ok {
		return c.(Comparer), nil
	}

	v, err, _ := reg.group.Do(shape.ID, func() (any, error) {
		if c, ok := reg.cache.Load(shape.ID); ok {
			return c, nil
		}
		gen := &generation{reg: reg, building: map[string]*delayedComparer{}}
		return gen.comparerFor(shape)
	})
	if err != nil {
		return nil, err
	}
	return v.(Comparer), nil
}

type generation struct {
	reg      *Registry
	building map[string]*delayedComparer
}

// comparerFor mirrors the converter registry's recursion discipline: a
// shape re-entered mid-build resolves to a delayed comparer whose one-shot
// cell settles when the outer build returns.
func (g *generation) comparerFor(s *shapes.Shape) (Comparer, error) {
	if c, ok := g.reg.cache.Load(s.ID); ok {
		return c.(Comparer), nil
	}
	if d, ok := g.building[s.ID]; ok {
		return d, nil
	}

	d := &delayedComparer{}
	g.building[s.ID] = d

	c, err := g.build(s)
	if err != nil {
		delete(g.building, s.ID)
		return nil, err
	}

	d.settle(c)
	delete(g.building, s.ID)
	g.reg.cache.Store(s.ID, c)
	return c, nil
}

func (g *generation) build(s *shapes.Shape) (Comparer, error) {
	if s.ComparerOverride != nil {
		c, ok := s.ComparerOverride.(Comparer)
		if !ok {
			return nil, fmt.Errorf("shape %s: comparer override %T does not implement Comparer", s.ID, s.ComparerOverride)
		}
		return c, nil
	}

	switch s.Kind {
	case shapes.KindBool:
		return boolComparer{}, nil
	case shapes.KindInt8, shapes.KindInt16, shapes.KindInt32, shapes.KindInt64:
		return intComparer{}, nil
	case shapes.KindUint8, shapes.KindUint16, shapes.KindUint32, shapes.KindUint64, shapes.KindChar:
		return uintComparer{}, nil
	case shapes.KindFloat32:
		return float32Comparer{}, nil
	case shapes.KindFloat64:
		return float64Comparer{}, nil
	case shapes.KindString:
		return stringComparer{}, nil
	case shapes.KindBinary, shapes.KindExtension:
		return bytesComparer{}, nil
	case shapes.KindTimestamp:
		return timestampComparer{}, nil

	case shapes.KindEnum:
		return enumComparer{fns: s.Enum}, nil

	case shapes.KindOptional:
		elem, err := g.comparerFor(s.Element)
		if err != nil {
			return nil, err
		}
		return &optionalComparer{elem: elem, fns: s.Opt}, nil

	case shapes.KindSequence, shapes.KindMultiArray:
		elem, err := g.comparerFor(s.Element)
		if err != nil {
			return nil, err
		}
		rank := 1
		if s.Kind == shapes.KindMultiArray {
			rank = s.Rank
		}
		return &sequenceComparer{elem: elem, fns: s.Seq, rank: rank}, nil

	case shapes.KindMap:
		key, err := g.comparerFor(s.Key)
		if err != nil {
			return nil, err
		}
		value, err := g.comparerFor(s.Value)
		if err != nil {
			return nil, err
		}
		return &mapComparer{key: key, value: value, fns: s.Assoc}, nil

	case shapes.KindObject:
		oc := &objectComparer{}
		for _, p := range s.Properties {
			if p.Ignore {
				continue
			}
			pc, err := g.comparerFor(p.Shape)
			if err != nil {
				return nil, fmt.Errorf("property %s: %w", p.Name, err)
			}
			oc.props = append(oc.props, propertyComparer{get: p.Get, comparer: pc})
		}
		return oc, nil

	case shapes.KindUnion:
		return g.buildUnion(s)

	case shapes.KindSurrogate:
		target, err := g.comparerFor(s.Surrogate)
		if err != nil {
			return nil, err
		}
		return &surrogateComparer{target: target, to: s.ToSurrogate}, nil

	default:
		return nil, fmt.Errorf("shape %s: kind %s has no comparer", s.ID, s.Kind)
	}
}

func (g *generation) buildUnion(s *shapes.Shape) (Comparer, error) {
	uc := &unionComparer{}
	if s.Base != nil {
		base, err := g.comparerFor(s.Base)
		if err != nil {
			return nil, err
		}
		uc.base = base
		uc.baseType = s.Base.Type
	}
	for _, c := range s.Cases {
		cc, err := g.comparerFor(c.Shape)
		if err != nil {
			return nil, fmt.Errorf("union case %d: %w", c.Index, err)
		}
		uc.cases = append(uc.cases, unionCaseComparer{c: c, comparer: cc})
	}
	return uc, nil
}

// delayedComparer is the recursion indirection: calls forward through a
// one-shot cell settled when the outer build returns.
type delayedComparer struct {
	inner Comparer
}

func (d *delayedComparer) settle(c Comparer) {
	if d.inner != nil {
		panic("structhash: delayed comparer settled twice")
	}
	d.inner = c
}

func (d *delayedComparer) Equal(a, b any) bool { return d.inner.Equal(a, b) }
func (d *delayedComparer) Hash(v any) uint64   { return d.inner.Hash(v) }
