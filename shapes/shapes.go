// Package shapes defines the type-shape model that drives serialization: a
// language-neutral description of a user type, rich enough for a serializer
// to read and write values of the type without reflection of its own.
//
// A Shape is built either programmatically through the builders in this
// package or derived from a Go struct by the reflection provider in
// reflect.go. The serializer core only consumes the resulting data
// structure; it is unaware of how it was produced.
package shapes

import "reflect"

// Kind discriminates the variants of a Shape.
type Kind int

// Enumerates the shape variants.
const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindChar
	KindString
	KindBinary
	KindTimestamp
	KindEnum
	KindOptional
	KindSequence
	KindMultiArray
	KindMap
	KindObject
	KindUnion
	KindSurrogate
	KindExtension
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return "int"
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return "uint"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindTimestamp:
		return "timestamp"
	case KindEnum:
		return "enum"
	case KindOptional:
		return "optional"
	case KindSequence:
		return "sequence"
	case KindMultiArray:
		return "multi-array"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	case KindUnion:
		return "union"
	case KindSurrogate:
		return "surrogate"
	case KindExtension:
		return "extension"
	default:
		return "invalid"
	}
}

// Shape describes one user type. Which fields are populated depends on Kind;
// the serializer dispatches on Kind and trusts the matching field group.
type Shape struct {
	// ID identifies the shape for caching. Two shapes with the same ID are
	// treated as the same type by converter registries.
	ID string

	Kind Kind

	// Type is the Go type the shape describes, when one is known. Union
	// dispatch and default-value checks consult it.
	Type reflect.Type

	// Element is the element shape of Optional, Sequence and MultiArray
	// variants.
	Element *Shape

	// Rank is the number of dimensions of a MultiArray.
	Rank int

	// Key and Value describe a Map variant.
	Key, Value *Shape

	// Members enumerate an Enum variant in declaration order.
	Members []EnumMember

	// Properties, New, Construct and Unused describe an Object variant.
	Properties []Property
	// New returns a fresh mutable instance; nil when the object is
	// constructor-shaped.
	New func() any
	// Construct builds an instance from accumulated constructor arguments,
	// indexed by Property.CtorIndex. Nil when New is set.
	Construct func(args []any) (any, error)
	// Unused designates the property that retains unrecognized map entries
	// across a deserialize/serialize round trip, if the type opts in.
	Unused *UnusedAccessor

	// Base and Cases describe a Union variant. Base is the shape of the
	// declared base type itself, used when a runtime value is exactly the
	// base; Cases are the registered sub-types in declaration order.
	Base  *Shape
	Cases []UnionCase

	// Surrogate round-trips values of this type through another shape.
	Surrogate     *Shape
	ToSurrogate   func(v any) (any, error)
	FromSurrogate func(s any) (any, error)

	// ExtType is the application extension code of an Extension variant,
	// whose values are raw pre-framed bodies ([]byte).
	ExtType int8

	// Accessor groups. The reflection provider fills these; hand-built
	// shapes supply them through the builders.
	Seq   *SeqFuncs
	Assoc *MapFuncs
	Opt   *OptFuncs
	Enum  *EnumFuncs

	// ConverterOverride and ComparerOverride carry caller-supplied
	// implementations, opaque to this package. The consuming registry
	// asserts them to its own converter or comparer contract.
	ConverterOverride any
	ComparerOverride  any
}

// EnumMember is one declared enum constant.
type EnumMember struct {
	Name  string
	Value int64
}

// Property describes one named member of an object shape.
type Property struct {
	// Name is the declared (in-language) name.
	Name string

	// WireName is the serialized name. Empty means Name, subject to the
	// serializer's naming policy; a non-empty WireName is explicit and
	// exempt from naming policies.
	WireName string

	// Index is the explicit key index, or -1. When every serializable
	// property of an object carries an index the object serializes in array
	// form or integer-keyed map form, whichever is shorter.
	Index int

	// CtorIndex is the constructor argument slot, or -1 for settable
	// properties.
	CtorIndex int

	Required bool
	Ignore   bool

	Shape *Shape

	// Get reads the property from an instance.
	Get func(instance any) any

	// Set writes the property on a mutable instance. Nil for
	// constructor-shaped objects and for get-only collection properties
	// that are filled in place.
	Set func(instance any, value any)

	// Default is the value treated as "absent" by serialize-default-values
	// policies. A nil Default means the zero value of the property's type.
	Default any
}

// EffectiveName returns the explicit wire name, or the declared name when no
// explicit one is set.
func (p *Property) EffectiveName() string {
	if p.WireName != "" {
		return p.WireName
	}
	return p.Name
}

// UnusedAccessor reads and writes the designated unused-data property.
type UnusedAccessor struct {
	Get func(instance any) *UnusedData
	Set func(instance any, d *UnusedData)
}

// UnusedData is the packet of unrecognized map entries retained across a
// round trip: raw framed key and value structures in arrival order.
type UnusedData struct {
	Entries []UnusedEntry
}

// UnusedEntry is one retained key/value pair, both fully framed.
type UnusedEntry struct {
	Key   []byte
	Value []byte
}

// UnionCase is one registered sub-type of a union.
type UnionCase struct {
	// Index is the integer discriminator.
	Index int

	// Alias is the string discriminator. Empty means the case is addressed
	// by Index only.
	Alias string

	Shape *Shape
}

// SeqFuncs are the accessors of a sequence-shaped value.
type SeqFuncs struct {
	Len     func(seq any) int
	Iterate func(seq any, f func(elem any) error) error
	New     func(capacity int) any
	Append  func(seq any, elem any) any
}

// MapFuncs are the accessors of a map-shaped value.
type MapFuncs struct {
	Len     func(m any) int
	Iterate func(m any, f func(k, v any) error) error
	New     func(capacity int) any
	Put     func(m any, k, v any) any
}

// OptFuncs are the accessors of an optional-shaped value.
type OptFuncs struct {
	IsNone func(v any) bool
	Unwrap func(v any) any
	Wrap   func(elem any) any
	None   func() any
}

// EnumFuncs convert between enum values and their underlying ordinal.
type EnumFuncs struct {
	ToOrdinal   func(v any) int64
	FromOrdinal func(ordinal int64) any
}
