package typepack

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/typepack/typepack-go/shapes"
)

type keyedPair struct {
	V1 string `msgpack:",key=0"`
	V2 string `msgpack:",key=5"`
}

func TestObject_ArrayOrMapHeuristic(t *testing.T) {
	s := NewSerializer(func(o *SerializerOptions) {
		o.SerializeDefaultValues = SuppressAll
	})
	ctx := context.Background()

	// both properties set: the array would pad four nil gaps against two
	// one-byte integer keys, so the map form wins
	p, err := Marshal(ctx, s, keyedPair{V1: "v1", V2: "v2"})
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("82 00 a2 7631 05 a2 7632")), "got %x", p)

	back, err := Unmarshal[keyedPair](ctx, s, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, keyedPair{V1: "v1", V2: "v2"}, back)

	// only index 0 set: a one-element array beats a map
	p, err = Marshal(ctx, s, keyedPair{V1: "v1"})
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("91 a2 7631")), "got %x", p)

	back, err = Unmarshal[keyedPair](ctx, s, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, keyedPair{V1: "v1"}, back)
}

func TestObject_ArrayFormGapsAndGrowth(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	// array form with a nil gap at slot 1..4
	back, err := Unmarshal[keyedPair](ctx, s, mkex("96 a2 7631 c0 c0 c0 c0 a2 7632"))
	assert.NilError(t, err)
	assert.DeepEqual(t, keyedPair{V1: "v1", V2: "v2"}, back)

	// out-of-range slots are consumed and ignored so old readers accept
	// payloads from grown schemas
	back, err = Unmarshal[keyedPair](ctx, s, mkex("97 a2 7631 c0 c0 c0 c0 a2 7632 a5 6e65776572"))
	assert.NilError(t, err)
	assert.DeepEqual(t, keyedPair{V1: "v1", V2: "v2"}, back)

	// integer-keyed map form dispatches by index
	back, err = Unmarshal[keyedPair](ctx, s, mkex("82 05 a2 7632 00 a2 7631"))
	assert.NilError(t, err)
	assert.DeepEqual(t, keyedPair{V1: "v1", V2: "v2"}, back)
}

func TestObject_DoubleAssignment(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	// {"first_name":"a","first_name":"b"}
	in := mkex("82 aa 66697273745f6e616d65 a1 61 aa 66697273745f6e616d65 a1 62")
	_, err := Unmarshal[person](ctx, s, in)
	assert.Assert(t, errors.Is(err, ErrDoublePropertyAssignment), "got %v", err)

	// same guard for the integer-keyed form
	in = mkex("82 00 a2 7631 00 a2 7632")
	_, err = Unmarshal[keyedPair](ctx, s, in)
	assert.Assert(t, errors.Is(err, ErrDoublePropertyAssignment), "got %v", err)
}

func TestObject_RequiredProperty(t *testing.T) {
	type strict struct {
		ID   int64  `msgpack:"id,required"`
		Note string `msgpack:"note"`
	}

	s := NewSerializer()
	ctx := context.Background()

	_, err := Unmarshal[strict](ctx, s, mkex("81 a4 6e6f7465 a1 78"))
	assert.Assert(t, errors.Is(err, ErrMissingRequired), "got %v", err)

	back, err := Unmarshal[strict](ctx, s, mkex("81 a2 6964 07"))
	assert.NilError(t, err)
	assert.DeepEqual(t, strict{ID: 7}, back)
}

func TestObject_UnknownKeysSkipped(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	// unknown keys of every token kind are skipped structurally
	in := mkex("84" +
		"aa 66697273745f6e616d65 a1 61" +
		"a7 756e6b6e6f776e 92 01 02" + // "unknown" => [1,2]
		"a5 6f74686572 81 a1 6b c0" + // "other" => {"k":nil}
		"07 a3 696e74") // integer key 7 => "int"
	back, err := Unmarshal[person](ctx, s, in)
	assert.NilError(t, err)
	assert.Equal(t, "a", back.FirstName)
}

type auditedRecord struct {
	Name  string `msgpack:"name"`
	Extra shapes.UnusedData
}

func TestObject_UnusedDataRoundtrip(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	in := mkex("83" +
		"a4 6e616d65 a4 6465 6d6f" + // name: "demo"
		"a5 6669727374 92 01 02" + // first: [1,2]
		"a6 736563 6f6e64 81 a1 6b a1 76") // second: {"k":"v"}

	back, err := Unmarshal[auditedRecord](ctx, s, in)
	assert.NilError(t, err)
	assert.Equal(t, "demo", back.Name)
	assert.Equal(t, 2, len(back.Extra.Entries))

	out, err := Marshal(ctx, s, back)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(in, out), "unused pairs must survive byte-for-byte:\n in %x\nout %x", in, out)
}

func TestObject_ConstructorForm(t *testing.T) {
	type point struct {
		x, y int64
		tag  string
	}

	shape := shapes.NewObject("test.point", nil).
		Constructor(func(args []any) (any, error) {
			return &point{x: args[0].(int64), y: args[1].(int64)}, nil
		}, "X", "y"). // parameter matching is case-insensitive
		Property("X", shapes.Int64(),
			func(v any) any { return v.(*point).x }, nil).
		Property("Y", shapes.Int64(),
			func(v any) any { return v.(*point).y }, nil).
		Property("Tag", shapes.String(),
			func(v any) any { return v.(*point).tag },
			func(v, val any) { v.(*point).tag = val.(string) }).
		MustBuild()

	s := NewSerializer()
	ctx := context.Background()

	// {"X":3,"Y":4,"Tag":"origin"}: ctor args accumulate, settable
	// properties apply after construction
	in := mkex("83 a1 58 03 a1 59 04 a3 546167 a6 6f726967696e")
	v, err := s.Deserialize(ctx, shape, in)
	assert.NilError(t, err)
	got := v.(*point)
	assert.Equal(t, int64(3), got.x)
	assert.Equal(t, int64(4), got.y)
	assert.Equal(t, "origin", got.tag)

	// a missing constructor parameter with no default is an error
	_, err = s.Deserialize(ctx, shape, mkex("81 a1 58 03"))
	assert.Assert(t, errors.Is(err, ErrMissingRequired), "got %v", err)
}

func TestObject_FillInPlaceMap(t *testing.T) {
	type registryHolder struct {
		entries map[any]any
	}

	shape := shapes.NewObject("test.holder", func() any {
		// the instance arrives with a pre-constructed map the
		// deserializer must fill rather than replace
		return &registryHolder{entries: map[any]any{"seeded": "yes"}}
	}).
		Property("Entries", shapes.MapOf(shapes.String(), shapes.String()),
			func(v any) any { return v.(*registryHolder).entries }, nil).
		MustBuild()

	s := NewSerializer()
	v, err := s.Deserialize(context.Background(), shape, mkex("81 a7 456e7472696573 81 a1 61 a1 62"))
	assert.NilError(t, err)

	h := v.(*registryHolder)
	assert.Equal(t, "b", h.entries["a"])
	assert.Equal(t, "yes", h.entries["seeded"], "pre-constructed contents survive")
}

func TestObject_TargetedDeserialization(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	p, err := Marshal(ctx, s, person{FirstName: "Ada", LastName: "Lovelace"})
	assert.NilError(t, err)

	shape, err := shapes.For[person]()
	assert.NilError(t, err)

	v, found, err := s.DeserializeProperty(ctx, shape, p, "last_name")
	assert.NilError(t, err)
	assert.Assert(t, found)
	assert.Equal(t, "Lovelace", v.(string))

	_, found, err = s.DeserializeProperty(ctx, shape, p, "missing")
	assert.NilError(t, err)
	assert.Assert(t, !found)

	// and by index over the array form
	s2 := NewSerializer(func(o *SerializerOptions) {
		o.SerializeDefaultValues = SuppressAll
	})
	kp, err := Marshal(ctx, s2, keyedPair{V1: "v1"})
	assert.NilError(t, err)
	kshape, err := shapes.For[keyedPair]()
	assert.NilError(t, err)

	v, found, err = s2.DeserializeIndex(ctx, kshape, kp, 0)
	assert.NilError(t, err)
	assert.Assert(t, found)
	assert.Equal(t, "v1", v.(string))

	_, found, err = s2.DeserializeIndex(ctx, kshape, kp, 5)
	assert.NilError(t, err)
	assert.Assert(t, !found)
}
