package typepack

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/typepack/typepack-go/logging"
)

// DefaultsMask selects which default-valued properties the object converter
// suppresses during serialization. The zero mask suppresses nothing
// (serialize-default-values "Always"); SuppressAll is "Never".
type DefaultsMask uint8

// The closed set of suppression flags.
const (
	// SuppressReferenceDefaults omits optional properties that are absent.
	SuppressReferenceDefaults DefaultsMask = 1 << iota

	// SuppressValueTypeDefaults omits scalar properties equal to their
	// default value.
	SuppressValueTypeDefaults

	// SuppressEmptyCollections omits empty sequences and maps.
	SuppressEmptyCollections

	// SuppressEmptyStrings omits empty strings.
	SuppressEmptyStrings

	// SuppressNone serializes every property ("Always").
	SuppressNone DefaultsMask = 0

	// SuppressAll omits every default-valued property ("Never").
	SuppressAll = SuppressReferenceDefaults | SuppressValueTypeDefaults |
		SuppressEmptyCollections | SuppressEmptyStrings
)

// NamingPolicy transforms inferred property names for the wire. Explicit
// wire names are exempt. Name participates in the configuration fingerprint
// so that two serializers with different custom policies never share a
// converter cache entry.
type NamingPolicy struct {
	Name      string
	Transform func(string) string
}

// Built-in naming policies.
var (
	CamelCase  = NamingPolicy{Name: "camel", Transform: toCamel}
	PascalCase = NamingPolicy{Name: "pascal", Transform: toPascal}
	SnakeCase  = NamingPolicy{Name: "snake", Transform: func(s string) string { return toSeparated(s, '_') }}
	KebabCase  = NamingPolicy{Name: "kebab", Transform: func(s string) string { return toSeparated(s, '-') }}
)

func toCamel(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	i := 0
	for i < len(r) && unicode.IsUpper(r[i]) {
		r[i] = unicode.ToLower(r[i])
		i++
		// an all-upper prefix like "HTTPPort" lowers only up to the last
		// letter that starts the next word
		if i+1 < len(r) && unicode.IsUpper(r[i]) && !unicode.IsUpper(r[i+1]) {
			break
		}
	}
	return string(r)
}

func toPascal(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func toSeparated(s string, sep rune) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			boundary := i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && !unicode.IsUpper(runes[i+1])))
			if boundary {
				b.WriteRune(sep)
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MultiArrayFormat selects the wire form of multi-dimensional arrays.
type MultiArrayFormat int

const (
	// MultiArrayNested encodes each dimension as its own array. The
	// default.
	MultiArrayNested MultiArrayFormat = iota

	// MultiArrayFlat encodes a leading array of dimension lengths followed
	// by the elements flattened in row-major order.
	MultiArrayFlat
)

// ExtensionCodes are the extension type codes reserved by this library, all
// remappable to avoid collisions with application extensions.
type ExtensionCodes struct {
	// ReferenceDefinition frames the first occurrence of a shared
	// reference: its assigned identity followed by its payload.
	ReferenceDefinition int8

	// Reference frames a back-reference to an earlier identity.
	Reference int8
}

// DefaultExtensionCodes are the codes used when the caller does not remap
// them.
var DefaultExtensionCodes = ExtensionCodes{ReferenceDefinition: 120, Reference: 121}

// DefaultMaxDepth is the nesting cap applied when the caller does not
// configure one.
const DefaultMaxDepth = 64

// SerializerOptions configures a Serializer. The zero value is usable;
// NewSerializer applies defaults for unset fields.
type SerializerOptions struct {
	// MaxDepth caps structure nesting on both serialize and deserialize.
	MaxDepth int

	// Naming transforms inferred property names. The zero policy keeps
	// declared names.
	Naming NamingPolicy

	// SerializeDefaultValues selects which default-valued properties are
	// suppressed. SuppressNone writes everything.
	SerializeDefaultValues DefaultsMask

	// SerializeEnumsByName writes enums as their declared names instead of
	// ordinals.
	SerializeEnumsByName bool

	// PreserveReferences deduplicates shared object references through the
	// reserved extension codes.
	PreserveReferences bool

	// InternStrings routes decoded strings through the process-wide
	// interning cache.
	InternStrings bool

	// MaxAsyncBuffer is the prefetch threshold of the streaming paths.
	MaxAsyncBuffer int

	// Codes remaps the reserved extension type codes.
	Codes ExtensionCodes

	// MultiArray selects the multi-dimensional array wire format.
	MultiArray MultiArrayFormat

	// StartingState seeds the user-state map of every call's Context.
	StartingState map[any]any

	// Logger is the diagnostic channel. Nil means no diagnostics.
	Logger logging.Logger
}

func (o *SerializerOptions) applyDefaults() {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxAsyncBuffer <= 0 {
		o.MaxAsyncBuffer = 1 << 16
	}
	if o.Codes == (ExtensionCodes{}) {
		o.Codes = DefaultExtensionCodes
	}
}

// fingerprint distinguishes converter caches of incompatible
// configurations. Two serializers with equal fingerprints may share cached
// converters; options that do not alter converter construction (depth,
// buffering, starting state) are excluded.
func (o *SerializerOptions) fingerprint() string {
	return fmt.Sprintf("n=%s;d=%d;e=%t;r=%t;i=%t;x=%d,%d;m=%d",
		o.Naming.Name, o.SerializeDefaultValues, o.SerializeEnumsByName,
		o.PreserveReferences, o.InternStrings,
		o.Codes.ReferenceDefinition, o.Codes.Reference, o.MultiArray)
}
