package typepack

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/typepack/typepack-go/shapes"
	"github.com/typepack/typepack-go/structhash"
	typepacktesting "github.com/typepack/typepack-go/testing"
)

func mkex(ex string) []byte {
	ex = strings.ReplaceAll(ex, " ", "")
	p, err := hex.DecodeString(ex)
	if err != nil {
		panic(err)
	}
	return p
}

type person struct {
	FirstName string `msgpack:"first_name"`
	LastName  string `msgpack:"last_name"`
}

func TestSerializer_PersonRecord(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	p, err := Marshal(ctx, s, person{FirstName: "Andrew", LastName: "Arnott"})
	assert.NilError(t, err)

	// map-2 {str "first_name" => str "Andrew", str "last_name" => str "Arnott"}
	want := mkex("82" +
		"aa 66697273745f6e616d65" + "a6 416e64726577" +
		"a9 6c6173745f6e616d65" + "a6 41726e6f7474")
	typepacktesting.AssertMsgpackEqual(t, want, p)
	assert.Equal(t, len(want), len(p)) // same structure, same size

	back, err := Unmarshal[person](ctx, s, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, person{FirstName: "Andrew", LastName: "Arnott"}, back)
}

func TestSerializer_PathAssertions(t *testing.T) {
	s := NewSerializer()
	p, err := Marshal(context.Background(), s, person{FirstName: "Andrew", LastName: "Arnott"})
	assert.NilError(t, err)

	typepacktesting.AssertPath(t, p, "first_name", "Andrew")
	typepacktesting.AssertPath(t, p, "last_name", "Arnott")
}

func TestSerializer_NamingPolicy(t *testing.T) {
	type report struct {
		HTTPPort  int64
		FileCount int64
		Explicit  int64 `msgpack:"keep_me"`
	}

	s := NewSerializer(func(o *SerializerOptions) {
		o.Naming = SnakeCase
	})
	p, err := Marshal(context.Background(), s, report{HTTPPort: 8080, FileCount: 3, Explicit: 1})
	assert.NilError(t, err)

	tree, err := typepacktesting.DecodeTree(p)
	assert.NilError(t, err)
	m := tree.(map[string]any)

	_, hasPort := m["http_port"]
	assert.Assert(t, hasPort, "policy applies to inferred names: %v", m)
	_, hasExplicit := m["keep_me"]
	assert.Assert(t, hasExplicit, "explicit wire names are exempt: %v", m)
}

func TestSerializer_DefaultSuppression(t *testing.T) {
	type doc struct {
		Name  string   `msgpack:"name"`
		Count int64    `msgpack:"count"`
		Tags  []string `msgpack:"tags"`
		Note  *string  `msgpack:"note"`
	}

	for name, c := range map[string]struct {
		mask DefaultsMask
		keys int
	}{
		"always":            {SuppressNone, 4},
		"never":             {SuppressAll, 0},
		"only value types":  {SuppressValueTypeDefaults, 3},
		"only collections":  {SuppressEmptyCollections, 3},
		"only strings":      {SuppressEmptyStrings, 3},
		"only references":   {SuppressReferenceDefaults, 3},
		"strings and value": {SuppressEmptyStrings | SuppressValueTypeDefaults, 2},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSerializer(func(o *SerializerOptions) {
				o.SerializeDefaultValues = c.mask
			})
			p, err := Marshal(context.Background(), s, doc{})
			assert.NilError(t, err)

			tree, err := typepacktesting.DecodeTree(p)
			assert.NilError(t, err)
			assert.Equal(t, c.keys, len(tree.(map[string]any)))
		})
	}

	// a non-default value is never suppressed
	s := NewSerializer(func(o *SerializerOptions) {
		o.SerializeDefaultValues = SuppressAll
	})
	p, err := Marshal(context.Background(), s, doc{Count: 7})
	assert.NilError(t, err)
	typepacktesting.AssertPath(t, p, "count", int64(7))
}

// deepMapShape hand-builds a self-nesting map shape:
// map<string, optional<self>>.
func deepMapShape() *shapes.Shape {
	s := shapes.MapOf(shapes.String(), shapes.Optional(shapes.String()))
	s.ID = "deep-map"
	s.Value.ID = "optional<deep-map>"
	s.Value.Element = s
	return s
}

func TestSerializer_DepthExceeded(t *testing.T) {
	shape := deepMapShape()
	s := NewSerializer()

	// 600 nested maps against the default max depth of 64
	deep := mkex(strings.Repeat("81 a1 6b", 600) + "c0")
	_, err := s.Deserialize(context.Background(), shape, deep)
	assert.Assert(t, errors.Is(err, ErrDepthExceeded), "got %v", err)

	// and on serialize, where the nesting lives in the value
	var v any
	for i := 0; i < 600; i++ {
		v = map[any]any{"k": v}
	}
	_, err = s.Serialize(context.Background(), shape, v)
	assert.Assert(t, errors.Is(err, ErrDepthExceeded), "got %v", err)
}

func TestSerializer_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSerializer()
	_, err := Marshal(ctx, s, person{FirstName: "x"})
	assert.Assert(t, errors.Is(err, ErrCancelled), "got %v", err)
}

func TestSerializer_RoundtripKinds(t *testing.T) {
	type everything struct {
		B   bool              `msgpack:"b"`
		I8  int8              `msgpack:"i8"`
		I64 int64             `msgpack:"i64"`
		U16 uint16            `msgpack:"u16"`
		F32 float32           `msgpack:"f32"`
		F64 float64           `msgpack:"f64"`
		S   string            `msgpack:"s"`
		Bin []byte            `msgpack:"bin"`
		Seq []int64           `msgpack:"seq"`
		M   map[string]int64  `msgpack:"m"`
		Opt *int64            `msgpack:"opt"`
		Sub person            `msgpack:"sub"`
		Tag map[string]string `msgpack:"tag"`
	}

	n := int64(-17)
	v := everything{
		B:   true,
		I8:  -5,
		I64: 1 << 40,
		U16: 65535,
		F32: 1.5,
		F64: -2.25,
		S:   "héllo",
		Bin: []byte{0, 1, 2},
		Seq: []int64{3, -4, 5},
		M:   map[string]int64{"a": 1, "b": -2},
		Opt: &n,
		Sub: person{FirstName: "Grace", LastName: "Hopper"},
		Tag: map[string]string{},
	}

	s := NewSerializer()
	ctx := context.Background()
	p, err := Marshal(ctx, s, v)
	assert.NilError(t, err)

	back, err := Unmarshal[everything](ctx, s, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, back)
}

func TestSerializer_RoundtripStructuralEquality(t *testing.T) {
	type inner struct {
		Score float64 `msgpack:"score"`
	}
	type doc struct {
		Name  string           `msgpack:"name"`
		Subs  []inner          `msgpack:"subs"`
		Table map[string]int64 `msgpack:"table"`
	}

	v := doc{
		Name:  "root",
		Subs:  []inner{{Score: 1.5}, {Score: 0}},
		Table: map[string]int64{"a": 1, "b": 2},
	}

	s := NewSerializer()
	ctxb := context.Background()
	p, err := Marshal(ctxb, s, v)
	assert.NilError(t, err)

	back, err := Unmarshal[doc](ctxb, s, p)
	assert.NilError(t, err)

	// the roundtrip contract is judged by the structural comparer, and
	// hash equality follows from deep equality
	eq, err := structhash.EqualValues(v, back)
	assert.NilError(t, err)
	assert.Assert(t, eq)

	hv, err := structhash.HashValue(v)
	assert.NilError(t, err)
	hb, err := structhash.HashValue(back)
	assert.NilError(t, err)
	assert.Equal(t, hv, hb)
}

func TestSerializer_WrapsCodecFailures(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	for name, c := range map[string]struct {
		in   []byte
		kind error
	}{
		"truncated":  {mkex("82 aa 6669"), ErrEndOfStream},
		"wrong root": {mkex("c3"), ErrMalformed},
		"reserved":   {mkex("c1"), ErrMalformed},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal[person](ctx, s, c.in)
			assert.Assert(t, errors.Is(err, c.kind), "got %v", err)

			var e *Error
			assert.Assert(t, errors.As(err, &e))
			assert.Assert(t, e.Offset >= 0, "codec failures carry an offset")
		})
	}
}

func TestSerializer_SurrogateShape(t *testing.T) {
	type celsius struct {
		Degrees float64 `msgpack:"degrees"`
	}
	type room struct {
		Temp celsius `msgpack:"temp"`
	}

	// serialize celsius through its plain float surrogate
	shapes.RegisterSurrogate[celsius, float64](
		func(c celsius) (float64, error) { return c.Degrees, nil },
		func(f float64) (celsius, error) { return celsius{Degrees: f}, nil },
	)
	t.Cleanup(func() { shapes.DefaultProvider = &shapes.Provider{} })

	s := NewSerializer()
	ctx := context.Background()
	p, err := Marshal(ctx, s, room{Temp: celsius{Degrees: 21.5}})
	assert.NilError(t, err)

	typepacktesting.AssertPath(t, p, "temp", 21.5)

	back, err := Unmarshal[room](ctx, s, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, room{Temp: celsius{Degrees: 21.5}}, back)
}
