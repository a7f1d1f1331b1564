package shapes

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Provider derives shapes from Go types. Derived shapes are cached per
// provider; the zero value is ready to use.
//
// Struct fields are annotated with the `msgpack` tag:
//
//	Field int `msgpack:"wire_name,key=3,required"`
//	Skip  int `msgpack:"-"`
//
// The first tag element is the explicit serialized name (empty to keep the
// declared name). Recognized flags: key=N (explicit key index), required,
// omit (exclude like an ignore annotation).
//
// A field of type UnusedData designates the unused-data retention property
// and is excluded from normal serialization.
type Provider struct {
	mu    sync.Mutex
	cache map[reflect.Type]*Shape

	enums      map[reflect.Type][]EnumMember
	unions     map[reflect.Type][]unionCaseReg
	surrogates map[reflect.Type]surrogateReg
	overrides  map[reflect.Type]any
}

type unionCaseReg struct {
	index int
	alias string
	typ   reflect.Type
}

type surrogateReg struct {
	typ  reflect.Type
	to   func(any) (any, error)
	from func(any) (any, error)
}

// DefaultProvider is the provider behind the package-level registration and
// derivation functions.
var DefaultProvider = &Provider{}

// For derives the shape of T from the default provider.
func For[T any]() (*Shape, error) {
	var zero T
	t := reflect.TypeOf(&zero).Elem()
	return DefaultProvider.ShapeOf(t)
}

// RegisterEnum declares the named members of an integer-underlaid type on
// the default provider.
func RegisterEnum[T any](members ...EnumMember) {
	var zero T
	DefaultProvider.RegisterEnum(reflect.TypeOf(zero), members...)
}

// RegisterSubtype registers Case under the union rooted at interface type
// Base on the default provider, with the given discriminators.
func RegisterSubtype[Base any, Case any](index int, alias string) {
	var c Case
	DefaultProvider.RegisterSubtype(reflect.TypeOf((*Base)(nil)).Elem(), index, alias, reflect.TypeOf(c))
}

// RegisterSurrogate serializes T by round-tripping through S on the default
// provider.
func RegisterSurrogate[T any, S any](to func(T) (S, error), from func(S) (T, error)) {
	var t T
	var s S
	DefaultProvider.RegisterSurrogate(
		reflect.TypeOf(t), reflect.TypeOf(s),
		func(v any) (any, error) { return to(unpoint[T](v)) },
		func(v any) (any, error) { return from(unpoint[S](v)) },
	)
}

// unpoint tolerates the boxed (pointer) representation struct values travel
// in.
func unpoint[T any](v any) T {
	if p, ok := v.(*T); ok {
		return *p
	}
	return v.(T)
}

// RegisterEnum declares the named members of an integer-underlaid type.
func (p *Provider) RegisterEnum(t reflect.Type, members ...EnumMember) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enums == nil {
		p.enums = map[reflect.Type][]EnumMember{}
	}
	p.enums[t] = members
}

// RegisterSubtype registers a union case under an interface base type.
func (p *Provider) RegisterSubtype(base reflect.Type, index int, alias string, caseType reflect.Type) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unions == nil {
		p.unions = map[reflect.Type][]unionCaseReg{}
	}
	p.unions[base] = append(p.unions[base], unionCaseReg{index: index, alias: alias, typ: caseType})
}

// RegisterSurrogate maps t through surrogate type s.
func (p *Provider) RegisterSurrogate(t, s reflect.Type, to, from func(any) (any, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.surrogates == nil {
		p.surrogates = map[reflect.Type]surrogateReg{}
	}
	p.surrogates[t] = surrogateReg{typ: s, to: to, from: from}
}

// RegisterConverter attaches a converter override to every shape derived for
// t. The override is opaque to this package.
func (p *Provider) RegisterConverter(t reflect.Type, converter any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.overrides == nil {
		p.overrides = map[reflect.Type]any{}
	}
	p.overrides[t] = converter
}

// ShapeOf derives the shape of t.
func (p *Provider) ShapeOf(t reflect.Type) (*Shape, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shapeOf(t)
}

var (
	timeType   = reflect.TypeOf(time.Time{})
	unusedType = reflect.TypeOf(UnusedData{})
	bytesType  = reflect.TypeOf([]byte(nil))
)

// shapeOf resolves t under the provider lock. Recursive types resolve
// through the cache: the shape is published before its children are built,
// so a self-referential type observes its own (still filling) shape.
func (p *Provider) shapeOf(t reflect.Type) (*Shape, error) {
	if s, ok := p.cache[t]; ok {
		return s, nil
	}
	if p.cache == nil {
		p.cache = map[reflect.Type]*Shape{}
	}

	s := &Shape{ID: t.String(), Type: t}
	p.cache[t] = s
	if err := p.fill(s, t); err != nil {
		delete(p.cache, t)
		return nil, err
	}
	if ov, ok := p.overrides[t]; ok {
		s.ConverterOverride = ov
	}
	return s, nil
}

func (p *Provider) fill(s *Shape, t reflect.Type) error {
	if reg, ok := p.surrogates[t]; ok {
		target, err := p.shapeOf(reg.typ)
		if err != nil {
			return err
		}
		s.Kind = KindSurrogate
		s.Surrogate = target
		s.ToSurrogate = reg.to
		s.FromSurrogate = reg.from
		return nil
	}

	if members, ok := p.enums[t]; ok {
		return p.fillEnum(s, t, members)
	}

	switch t.Kind() {
	case reflect.Bool:
		s.Kind = KindBool
	case reflect.Int8:
		s.Kind = KindInt8
	case reflect.Int16:
		s.Kind = KindInt16
	case reflect.Int32:
		s.Kind = KindInt32
	case reflect.Int, reflect.Int64:
		s.Kind = KindInt64
	case reflect.Uint8:
		s.Kind = KindUint8
	case reflect.Uint16:
		s.Kind = KindUint16
	case reflect.Uint32:
		s.Kind = KindUint32
	case reflect.Uint, reflect.Uint64:
		s.Kind = KindUint64
	case reflect.Float32:
		s.Kind = KindFloat32
	case reflect.Float64:
		s.Kind = KindFloat64
	case reflect.String:
		s.Kind = KindString
	case reflect.Pointer:
		elem, err := p.shapeOf(t.Elem())
		if err != nil {
			return err
		}
		s.Kind = KindOptional
		s.Element = elem
		s.Opt = optFuncsFor(t)
	case reflect.Slice:
		if t == bytesType || t.Elem().Kind() == reflect.Uint8 {
			s.Kind = KindBinary
			return nil
		}
		elem, err := p.shapeOf(t.Elem())
		if err != nil {
			return err
		}
		s.Kind = KindSequence
		s.Element = elem
		s.Seq = seqFuncsFor(t)
	case reflect.Map:
		key, err := p.shapeOf(t.Key())
		if err != nil {
			return err
		}
		value, err := p.shapeOf(t.Elem())
		if err != nil {
			return err
		}
		s.Kind = KindMap
		s.Key = key
		s.Value = value
		s.Assoc = mapFuncsFor(t)
	case reflect.Struct:
		if t == timeType {
			s.Kind = KindTimestamp
			return nil
		}
		return p.fillObject(s, t)
	case reflect.Interface:
		cases, ok := p.unions[t]
		if !ok {
			return fmt.Errorf("type %s: interface with no registered sub-types has no shape", t)
		}
		return p.fillUnion(s, t, cases)
	default:
		return fmt.Errorf("type %s: kind %s has no shape", t, t.Kind())
	}
	return nil
}

func (p *Provider) fillEnum(s *Shape, t reflect.Type, members []EnumMember) error {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return fmt.Errorf("type %s: enum underlying kind %s is not an integer", t, t.Kind())
	}

	signed := isSignedKind(t.Kind())
	s.Kind = KindEnum
	s.Members = members
	s.Enum = &EnumFuncs{
		ToOrdinal: func(v any) int64 {
			rv := reflect.ValueOf(v)
			if signed {
				return rv.Int()
			}
			return int64(rv.Uint())
		},
		FromOrdinal: func(ordinal int64) any {
			rv := reflect.New(t).Elem()
			if signed {
				rv.SetInt(ordinal)
			} else {
				rv.SetUint(uint64(ordinal))
			}
			return rv.Interface()
		},
	}
	return nil
}

func isSignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

func (p *Provider) fillUnion(s *Shape, t reflect.Type, regs []unionCaseReg) error {
	s.Kind = KindUnion
	for _, reg := range regs {
		cs, err := p.shapeOf(reg.typ)
		if err != nil {
			return err
		}
		s.Cases = append(s.Cases, UnionCase{Index: reg.index, Alias: reg.alias, Shape: cs})
	}
	return nil
}

func (p *Provider) fillObject(s *Shape, t reflect.Type) error {
	s.Kind = KindObject
	s.New = func() any { return reflect.New(t).Interface() }

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if f.Type == unusedType {
			s.Unused = unusedAccessorFor(i)
			continue
		}

		wireName, key, required, skip := parseTag(f.Tag.Get("msgpack"))
		if skip {
			continue
		}

		fs, err := p.shapeOf(f.Type)
		if err != nil {
			return fmt.Errorf("field %s.%s: %w", t, f.Name, err)
		}

		s.Properties = append(s.Properties, Property{
			Name:      f.Name,
			WireName:  wireName,
			Index:     key,
			CtorIndex: -1,
			Required:  required,
			Shape:     fs,
			Get:       fieldGetter(i, f.Type),
			Set:       fieldSetter(i, f.Type),
		})
	}
	return nil
}

func parseTag(tag string) (wireName string, key int, required, skip bool) {
	key = -1
	if tag == "" {
		return
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", -1, false, true
	}
	wireName = parts[0]
	for _, part := range parts[1:] {
		switch {
		case part == "required":
			required = true
		case part == "omit":
			skip = true
		case strings.HasPrefix(part, "key="):
			n, err := strconv.Atoi(part[len("key="):])
			if err == nil {
				key = n
			}
		}
	}
	return
}

func unusedAccessorFor(field int) *UnusedAccessor {
	return &UnusedAccessor{
		Get: func(instance any) *UnusedData {
			f := reflect.ValueOf(instance).Elem().Field(field)
			return f.Addr().Interface().(*UnusedData)
		},
		Set: func(instance any, d *UnusedData) {
			f := reflect.ValueOf(instance).Elem().Field(field)
			f.Set(reflect.ValueOf(*d))
		},
	}
}

// Box converts a Go value to the representation converters operate on. It
// is the entry-point counterpart of the per-field boxing the derived
// accessors perform.
func Box(v any) any {
	if v == nil {
		return nil
	}
	return boxValue(reflect.ValueOf(v))
}

// Unbox converts a converter-produced value back to the Go type t.
func Unbox(t reflect.Type, v any) any {
	return unboxValue(t, v).Interface()
}

// boxValue converts a field value to the representation converters operate
// on: structs travel as pointers, named scalar types as their canonical
// underlying type, everything else as itself.
func boxValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface()
		}
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		return ptr.Interface()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int64:
		return v.Int()
	case reflect.Int8:
		return int8(v.Int())
	case reflect.Int16:
		return int16(v.Int())
	case reflect.Int32:
		return int32(v.Int())
	case reflect.Uint, reflect.Uint64:
		return v.Uint()
	case reflect.Uint8:
		return uint8(v.Uint())
	case reflect.Uint16:
		return uint16(v.Uint())
	case reflect.Uint32:
		return uint32(v.Uint())
	case reflect.Float32:
		return float32(v.Float())
	case reflect.Float64:
		return v.Float()
	case reflect.String:
		return v.String()
	default:
		return v.Interface()
	}
}

// unboxValue converts a converter-produced value back to type t.
func unboxValue(t reflect.Type, v any) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv
	}
	if rv.Kind() == reflect.Pointer && rv.Type().Elem() == t {
		return rv.Elem()
	}
	if rv.Type().ConvertibleTo(t) {
		return rv.Convert(t)
	}
	panic(fmt.Sprintf("cannot place %s into %s", rv.Type(), t))
}

func fieldGetter(field int, _ reflect.Type) func(any) any {
	return func(instance any) any {
		return boxValue(reflect.ValueOf(instance).Elem().Field(field))
	}
}

func fieldSetter(field int, t reflect.Type) func(any, any) {
	return func(instance, v any) {
		reflect.ValueOf(instance).Elem().Field(field).Set(unboxValue(t, v))
	}
}

func optFuncsFor(t reflect.Type) *OptFuncs {
	elem := t.Elem()
	return &OptFuncs{
		IsNone: func(v any) bool {
			if v == nil {
				return true
			}
			return reflect.ValueOf(v).IsNil()
		},
		Unwrap: func(v any) any {
			if elem.Kind() == reflect.Struct && elem != timeType {
				// struct values already travel as pointers
				return v
			}
			return boxValue(reflect.ValueOf(v).Elem())
		},
		Wrap: func(e any) any {
			if e != nil {
				rv := reflect.ValueOf(e)
				if rv.Type() == t {
					return e
				}
			}
			ptr := reflect.New(elem)
			ptr.Elem().Set(unboxValue(elem, e))
			return ptr.Interface()
		},
		None: func() any { return reflect.Zero(t).Interface() },
	}
}

func seqFuncsFor(t reflect.Type) *SeqFuncs {
	elem := t.Elem()
	return &SeqFuncs{
		Len: func(seq any) int { return reflect.ValueOf(seq).Len() },
		Iterate: func(seq any, f func(any) error) error {
			rv := reflect.ValueOf(seq)
			for i := 0; i < rv.Len(); i++ {
				if err := f(boxValue(rv.Index(i))); err != nil {
					return err
				}
			}
			return nil
		},
		New: func(capacity int) any {
			return reflect.MakeSlice(t, 0, capacity).Interface()
		},
		Append: func(seq, e any) any {
			return reflect.Append(reflect.ValueOf(seq), unboxValue(elem, e)).Interface()
		},
	}
}

func mapFuncsFor(t reflect.Type) *MapFuncs {
	keyT, valT := t.Key(), t.Elem()
	return &MapFuncs{
		Len: func(m any) int { return reflect.ValueOf(m).Len() },
		Iterate: func(m any, f func(k, v any) error) error {
			iter := reflect.ValueOf(m).MapRange()
			for iter.Next() {
				if err := f(boxValue(iter.Key()), boxValue(iter.Value())); err != nil {
					return err
				}
			}
			return nil
		},
		New: func(capacity int) any { return reflect.MakeMapWithSize(t, capacity).Interface() },
		Put: func(m, k, v any) any {
			reflect.ValueOf(m).SetMapIndex(unboxValue(keyT, k), unboxValue(valT, v))
			return m
		},
	}
}
