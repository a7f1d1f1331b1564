package shapes

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Primitive shapes are shared singletons; their IDs double as the cache keys
// of every registry built over them.
var (
	boolShape      = &Shape{ID: "bool", Kind: KindBool, Type: reflect.TypeOf(false)}
	int8Shape      = &Shape{ID: "int8", Kind: KindInt8, Type: reflect.TypeOf(int8(0))}
	int16Shape     = &Shape{ID: "int16", Kind: KindInt16, Type: reflect.TypeOf(int16(0))}
	int32Shape     = &Shape{ID: "int32", Kind: KindInt32, Type: reflect.TypeOf(int32(0))}
	int64Shape     = &Shape{ID: "int64", Kind: KindInt64, Type: reflect.TypeOf(int64(0))}
	uint8Shape     = &Shape{ID: "uint8", Kind: KindUint8, Type: reflect.TypeOf(uint8(0))}
	uint16Shape    = &Shape{ID: "uint16", Kind: KindUint16, Type: reflect.TypeOf(uint16(0))}
	uint32Shape    = &Shape{ID: "uint32", Kind: KindUint32, Type: reflect.TypeOf(uint32(0))}
	uint64Shape    = &Shape{ID: "uint64", Kind: KindUint64, Type: reflect.TypeOf(uint64(0))}
	float32Shape   = &Shape{ID: "float32", Kind: KindFloat32, Type: reflect.TypeOf(float32(0))}
	float64Shape   = &Shape{ID: "float64", Kind: KindFloat64, Type: reflect.TypeOf(float64(0))}
	charShape      = &Shape{ID: "char", Kind: KindChar, Type: reflect.TypeOf(uint16(0))}
	stringShape    = &Shape{ID: "string", Kind: KindString, Type: reflect.TypeOf("")}
	binaryShape    = &Shape{ID: "binary", Kind: KindBinary, Type: reflect.TypeOf([]byte(nil))}
	timestampShape = &Shape{ID: "timestamp", Kind: KindTimestamp, Type: reflect.TypeOf(time.Time{})}
)

// Bool returns the boolean shape.
func Bool() *Shape { return boolShape }

// Int8 returns the int8 shape.
func Int8() *Shape { return int8Shape }

// Int16 returns the int16 shape.
func Int16() *Shape { return int16Shape }

// Int32 returns the int32 shape.
func Int32() *Shape { return int32Shape }

// Int64 returns the int64 shape.
func Int64() *Shape { return int64Shape }

// Uint8 returns the uint8 shape.
func Uint8() *Shape { return uint8Shape }

// Uint16 returns the uint16 shape.
func Uint16() *Shape { return uint16Shape }

// Uint32 returns the uint32 shape.
func Uint32() *Shape { return uint32Shape }

// Uint64 returns the uint64 shape.
func Uint64() *Shape { return uint64Shape }

// Float32 returns the float32 shape.
func Float32() *Shape { return float32Shape }

// Float64 returns the float64 shape.
func Float64() *Shape { return float64Shape }

// Char returns the UTF-16 code unit shape.
func Char() *Shape { return charShape }

// String returns the string shape.
func String() *Shape { return stringShape }

// Binary returns the byte-slice shape.
func Binary() *Shape { return binaryShape }

// Timestamp returns the time.Time shape.
func Timestamp() *Shape { return timestampShape }

// Optional wraps an element shape. Hand-built optionals represent "none" as
// a nil interface value.
func Optional(element *Shape) *Shape {
	return &Shape{
		ID:      "optional<" + element.ID + ">",
		Kind:    KindOptional,
		Element: element,
		Opt: &OptFuncs{
			IsNone: func(v any) bool { return v == nil },
			Unwrap: func(v any) any { return v },
			Wrap:   func(elem any) any { return elem },
			None:   func() any { return nil },
		},
	}
}

// Sequence describes a uniform sequence. Hand-built sequences are backed by
// []any.
func Sequence(element *Shape) *Shape {
	return &Shape{
		ID:      "seq<" + element.ID + ">",
		Kind:    KindSequence,
		Element: element,
		Seq:     anySeqFuncs(),
	}
}

func anySeqFuncs() *SeqFuncs {
	return &SeqFuncs{
		Len: func(seq any) int { return len(seq.([]any)) },
		Iterate: func(seq any, f func(any) error) error {
			for _, e := range seq.([]any) {
				if err := f(e); err != nil {
					return err
				}
			}
			return nil
		},
		New:    func(capacity int) any { return make([]any, 0, capacity) },
		Append: func(seq, elem any) any { return append(seq.([]any), elem) },
	}
}

// MultiArray describes a rank-dimensional rectangular array of elements,
// represented as nested sequences.
func MultiArray(element *Shape, rank int) *Shape {
	return &Shape{
		ID:      fmt.Sprintf("multi<%s,%d>", element.ID, rank),
		Kind:    KindMultiArray,
		Element: element,
		Rank:    rank,
		Seq:     anySeqFuncs(),
	}
}

// MapOf describes a keyed map. Hand-built maps are backed by map[any]any;
// iteration order is unspecified.
func MapOf(key, value *Shape) *Shape {
	return &Shape{
		ID:    "map<" + key.ID + "," + value.ID + ">",
		Kind:  KindMap,
		Key:   key,
		Value: value,
		Assoc: &MapFuncs{
			Len: func(m any) int { return len(m.(map[any]any)) },
			Iterate: func(m any, f func(k, v any) error) error {
				for k, v := range m.(map[any]any) {
					if err := f(k, v); err != nil {
						return err
					}
				}
				return nil
			},
			New: func(capacity int) any { return make(map[any]any, capacity) },
			Put: func(m, k, v any) any {
				m.(map[any]any)[k] = v
				return m
			},
		},
	}
}

// Enum describes an enumeration over an underlying integer. Hand-built enum
// values are int64 ordinals.
func Enum(id string, members ...EnumMember) *Shape {
	return &Shape{
		ID:      id,
		Kind:    KindEnum,
		Members: members,
		Enum: &EnumFuncs{
			ToOrdinal:   func(v any) int64 { return v.(int64) },
			FromOrdinal: func(ordinal int64) any { return ordinal },
		},
	}
}

// Extension describes an application extension whose values are raw
// pre-framed bodies ([]byte) carried through verbatim.
func Extension(id string, code int8) *Shape {
	return &Shape{ID: id, Kind: KindExtension, ExtType: code}
}

// Surrogate describes a type serialized by round-tripping through another
// shape via a bidirectional mapping.
func Surrogate(id string, surrogate *Shape, to func(any) (any, error), from func(any) (any, error)) *Shape {
	return &Shape{
		ID:            id,
		Kind:          KindSurrogate,
		Surrogate:     surrogate,
		ToSurrogate:   to,
		FromSurrogate: from,
	}
}

// PropertyOption customizes one property added to an ObjectBuilder.
type PropertyOption func(*Property)

// Key assigns an explicit key index.
func Key(index int) PropertyOption {
	return func(p *Property) { p.Index = index }
}

// Name assigns an explicit serialized name, exempt from naming policies.
func Name(wire string) PropertyOption {
	return func(p *Property) { p.WireName = wire }
}

// Required marks the property as required on deserialization.
func Required() PropertyOption {
	return func(p *Property) { p.Required = true }
}

// Ignore excludes the property from serialization entirely.
func Ignore() PropertyOption {
	return func(p *Property) { p.Ignore = true }
}

// Default sets the value that serialize-default-values policies treat as
// absent for this property.
func Default(v any) PropertyOption {
	return func(p *Property) { p.Default = v }
}

// WithConverter overrides the converter used for this property's value.
func WithConverter(converter any) PropertyOption {
	return func(p *Property) {
		s := *p.Shape
		s.ConverterOverride = converter
		s.ID = s.ID + "+override"
		p.Shape = &s
	}
}

// ObjectBuilder assembles an object shape.
type ObjectBuilder struct {
	shape  Shape
	params []string
}

// NewObject starts an object shape for instances produced by factory.
func NewObject(id string, factory func() any) *ObjectBuilder {
	return &ObjectBuilder{shape: Shape{ID: id, Kind: KindObject, New: factory}}
}

// NewObjectType is NewObject with the Go type recorded for union dispatch.
func NewObjectType(id string, t reflect.Type, factory func() any) *ObjectBuilder {
	b := NewObject(id, factory)
	b.shape.Type = t
	return b
}

// Constructor switches the object to constructor form: properties matching
// paramNames (case-insensitively, on declared names) accumulate into
// argument slots and construct is invoked once all are read.
func (b *ObjectBuilder) Constructor(construct func(args []any) (any, error), paramNames ...string) *ObjectBuilder {
	b.shape.New = nil
	b.shape.Construct = construct
	b.params = paramNames
	return b
}

// Property adds a property. get may not be nil; set may be nil for
// constructor parameters and for fill-in-place collection properties.
func (b *ObjectBuilder) Property(name string, shape *Shape, get func(any) any, set func(any, any), opts ...PropertyOption) *ObjectBuilder {
	p := Property{
		Name:      name,
		Index:     -1,
		CtorIndex: -1,
		Shape:     shape,
		Get:       get,
		Set:       set,
	}
	for _, opt := range opts {
		opt(&p)
	}
	b.shape.Properties = append(b.shape.Properties, p)
	return b
}

// Unused designates the unused-data retention property.
func (b *ObjectBuilder) Unused(get func(any) *UnusedData, set func(any, *UnusedData)) *ObjectBuilder {
	b.shape.Unused = &UnusedAccessor{Get: get, Set: set}
	return b
}

// Build finalizes the shape. It fails when a declared constructor parameter
// matches no property.
func (b *ObjectBuilder) Build() (*Shape, error) {
	for i, param := range b.params {
		matched := false
		for j := range b.shape.Properties {
			if strings.EqualFold(b.shape.Properties[j].Name, param) {
				b.shape.Properties[j].CtorIndex = i
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("shape %s: constructor parameter %q matches no property", b.shape.ID, param)
		}
	}
	s := b.shape
	return &s, nil
}

// MustBuild is Build for shapes assembled from literals.
func (b *ObjectBuilder) MustBuild() *Shape {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// UnionBuilder assembles a union shape.
type UnionBuilder struct {
	shape Shape
}

// NewUnion starts a union over the given base shape. The base shape is used
// when a runtime value is exactly the base type; its Go type anchors
// nearest-ancestor dispatch.
func NewUnion(id string, base *Shape) *UnionBuilder {
	return &UnionBuilder{shape: Shape{ID: id, Kind: KindUnion, Base: base, Type: base.Type}}
}

// Case registers a sub-type under an integer discriminator and an optional
// string alias. Cases are consulted in registration order.
func (b *UnionBuilder) Case(index int, alias string, s *Shape) *UnionBuilder {
	b.shape.Cases = append(b.shape.Cases, UnionCase{Index: index, Alias: alias, Shape: s})
	return b
}

// Build finalizes the union.
func (b *UnionBuilder) Build() *Shape {
	s := b.shape
	return &s
}
