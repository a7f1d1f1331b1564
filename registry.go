package typepack

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/typepack/typepack-go/shapes"
)

// registry caches one converter per (shape identity, configuration
// fingerprint). Reads are lock-free; a miss funnels concurrent builders of
// the same key through singleflight so each graph is synthesized once.
type registry struct {
	opts  *SerializerOptions
	print string

	cache sync.Map // string -> Converter
	group singleflight.Group
}

func newRegistry(opts *SerializerOptions) *registry {
	return &registry{opts: opts, print: opts.fingerprint()}
}

func (reg *registry) key(s *shapes.Shape) string {
	return reg.print + "|" + s.ID
}

// converterFor returns the cached converter for s, synthesizing the graph
// beneath it on first use.
func (reg *registry) converterFor(s *shapes.Shape) (Converter, error) {
	key := reg.key(s)
	if c, ok := reg.cache.Load(key); ok {
		return c.(Converter), nil
	}

	v, err, _ := reg.group.Do(key, func() (any, error) {
		if c, ok := reg.cache.Load(key); ok {
			return c, nil
		}
		gen := &generation{reg: reg, building: map[string]*delayedConverter{}}
		return gen.converterFor(s)
	})
	if err != nil {
		return nil, err
	}
	return v.(Converter), nil
}

// generation is the context of one graph build. It hands child converters
// to the visitor, inserting a delayed placeholder whenever a shape re-enters
// while still under construction; the placeholder's cell is settled when
// that shape's own build returns.
type generation struct {
	reg      *registry
	building map[string]*delayedConverter
}

func (g *generation) converterFor(s *shapes.Shape) (Converter, error) {
	key := g.reg.key(s)
	if c, ok := g.reg.cache.Load(key); ok {
		return c.(Converter), nil
	}
	if d, ok := g.building[s.ID]; ok {
		return d, nil
	}

	d := &delayedConverter{}
	g.building[s.ID] = d

	c, err := g.build(s)
	if err != nil {
		delete(g.building, s.ID)
		return nil, err
	}

	d.settle(c)
	delete(g.building, s.ID)
	g.reg.cache.Store(key, c)
	return c, nil
}

// build is the visitor: one arm per shape variant.
func (g *generation) build(s *shapes.Shape) (Converter, error) {
	if s.ConverterOverride != nil {
		c, ok := s.ConverterOverride.(Converter)
		if !ok {
			return nil, newError(UnsupportedType, "shape %s: converter override %T does not implement Converter", s.ID, s.ConverterOverride)
		}
		return c, nil
	}

	switch s.Kind {
	case shapes.KindBool:
		return boolConverter{}, nil
	case shapes.KindInt8:
		return int8Converter{}, nil
	case shapes.KindInt16:
		return int16Converter{}, nil
	case shapes.KindInt32:
		return int32Converter{}, nil
	case shapes.KindInt64:
		return int64Converter{}, nil
	case shapes.KindUint8:
		return uint8Converter{}, nil
	case shapes.KindUint16:
		return uint16Converter{}, nil
	case shapes.KindUint32:
		return uint32Converter{}, nil
	case shapes.KindUint64:
		return uint64Converter{}, nil
	case shapes.KindFloat32:
		return float32Converter{}, nil
	case shapes.KindFloat64:
		return float64Converter{}, nil
	case shapes.KindChar:
		return charConverter{}, nil
	case shapes.KindString:
		return stringConverter{intern: g.reg.opts.InternStrings}, nil
	case shapes.KindBinary:
		return binaryConverter{}, nil
	case shapes.KindTimestamp:
		return timestampConverter{}, nil
	case shapes.KindExtension:
		return extensionConverter{code: s.ExtType}, nil

	case shapes.KindEnum:
		return newEnumConverter(s, g.reg.opts.SerializeEnumsByName)

	case shapes.KindOptional:
		elem, err := g.converterFor(s.Element)
		if err != nil {
			return nil, err
		}
		return &optionalConverter{elem: elem, fns: s.Opt}, nil

	case shapes.KindSequence:
		elem, err := g.converterFor(s.Element)
		if err != nil {
			return nil, err
		}
		return &sequenceConverter{elem: elem, fns: s.Seq}, nil

	case shapes.KindMultiArray:
		elem, err := g.converterFor(s.Element)
		if err != nil {
			return nil, err
		}
		return &multiArrayConverter{
			elem:   elem,
			fns:    s.Seq,
			rank:   s.Rank,
			format: g.reg.opts.MultiArray,
		}, nil

	case shapes.KindMap:
		key, err := g.converterFor(s.Key)
		if err != nil {
			return nil, err
		}
		value, err := g.converterFor(s.Value)
		if err != nil {
			return nil, err
		}
		return &mapConverter{key: key, value: value, fns: s.Assoc}, nil

	case shapes.KindObject:
		oc, err := newObjectConverter(g, s)
		if err != nil {
			return nil, err
		}
		if g.reg.opts.PreserveReferences {
			return &referenceConverter{inner: oc, codes: g.reg.opts.Codes}, nil
		}
		return oc, nil

	case shapes.KindUnion:
		return newUnionConverter(g, s)

	case shapes.KindSurrogate:
		target, err := g.converterFor(s.Surrogate)
		if err != nil {
			return nil, err
		}
		return &surrogateConverter{
			target: target,
			to:     s.ToSurrogate,
			from:   s.FromSurrogate,
		}, nil

	default:
		return nil, newError(UnsupportedType, "shape %s: kind %s has no converter", s.ID, s.Kind)
	}
}
