package shapes

import (
	"reflect"
	"testing"
	"time"
)

func TestParseTag(t *testing.T) {
	for name, c := range map[string]struct {
		tag      string
		wire     string
		key      int
		required bool
		skip     bool
	}{
		"empty":          {"", "", -1, false, false},
		"name only":      {"wire_name", "wire_name", -1, false, false},
		"skip":           {"-", "", -1, false, true},
		"key":            {",key=3", "", 3, false, false},
		"required":       {",required", "", -1, true, false},
		"omit":           {",omit", "", -1, false, true},
		"all":            {"n,key=0,required", "n", 0, true, false},
		"bad key number": {",key=x", "", -1, false, false},
	} {
		t.Run(name, func(t *testing.T) {
			wire, key, required, skip := parseTag(c.tag)
			if wire != c.wire || key != c.key || required != c.required || skip != c.skip {
				t.Errorf("parseTag(%q) = %q %d %v %v", c.tag, wire, key, required, skip)
			}
		})
	}
}

func TestProvider_ScalarKinds(t *testing.T) {
	p := &Provider{}
	for name, c := range map[string]struct {
		t    reflect.Type
		kind Kind
	}{
		"bool":    {reflect.TypeOf(false), KindBool},
		"int":     {reflect.TypeOf(int(0)), KindInt64},
		"int32":   {reflect.TypeOf(int32(0)), KindInt32},
		"uint8":   {reflect.TypeOf(uint8(0)), KindUint8},
		"float64": {reflect.TypeOf(float64(0)), KindFloat64},
		"string":  {reflect.TypeOf(""), KindString},
		"bytes":   {reflect.TypeOf([]byte(nil)), KindBinary},
		"time":    {reflect.TypeOf(time.Time{}), KindTimestamp},
	} {
		t.Run(name, func(t *testing.T) {
			s, err := p.ShapeOf(c.t)
			if err != nil {
				t.Fatal(err)
			}
			if s.Kind != c.kind {
				t.Errorf("%v != %v", c.kind, s.Kind)
			}
		})
	}
}

type treeNode struct {
	Label    string      `msgpack:"label"`
	Children []*treeNode `msgpack:"children"`
}

func TestProvider_RecursiveType(t *testing.T) {
	p := &Provider{}
	s, err := p.ShapeOf(reflect.TypeOf(treeNode{}))
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindObject {
		t.Fatalf("kind %v", s.Kind)
	}

	children := s.Properties[1].Shape
	if children.Kind != KindSequence {
		t.Fatalf("children kind %v", children.Kind)
	}
	if children.Element.Kind != KindOptional {
		t.Fatalf("element kind %v", children.Element.Kind)
	}
	if children.Element.Element != s {
		t.Error("recursive type must resolve to its own shape")
	}
}

func TestProvider_FieldAccessors(t *testing.T) {
	type sub struct {
		N int64 `msgpack:"n"`
	}
	type outer struct {
		Name string `msgpack:"name"`
		Sub  sub    `msgpack:"sub"`
	}

	p := &Provider{}
	s, err := p.ShapeOf(reflect.TypeOf(outer{}))
	if err != nil {
		t.Fatal(err)
	}

	inst := s.New()
	s.Properties[0].Set(inst, "hello")
	if got := s.Properties[0].Get(inst); got != "hello" {
		t.Errorf("string property: %v", got)
	}

	// struct-typed properties travel as pointers
	subShape := s.Properties[1].Shape
	subInst := subShape.New()
	subShape.Properties[0].Set(subInst, int64(7))
	s.Properties[1].Set(inst, subInst)

	back := s.Properties[1].Get(inst)
	if got := subShape.Properties[0].Get(back); got != int64(7) {
		t.Errorf("nested property: %v", got)
	}
}

func TestProvider_UnusedSink(t *testing.T) {
	type withSink struct {
		Name  string `msgpack:"name"`
		Spare UnusedData
	}

	p := &Provider{}
	s, err := p.ShapeOf(reflect.TypeOf(withSink{}))
	if err != nil {
		t.Fatal(err)
	}

	if len(s.Properties) != 1 {
		t.Fatalf("sink must not be an ordinary property, got %d", len(s.Properties))
	}
	if s.Unused == nil {
		t.Fatal("sink not detected")
	}

	inst := s.New()
	s.Unused.Set(inst, &UnusedData{Entries: []UnusedEntry{{Key: []byte{0xa1}, Value: []byte{0xc0}}}})
	if got := s.Unused.Get(inst); len(got.Entries) != 1 {
		t.Errorf("sink round trip: %v", got)
	}
}

func TestObjectBuilder_ConstructorMatching(t *testing.T) {
	_, err := NewObject("t.bad", nil).
		Constructor(func([]any) (any, error) { return nil, nil }, "nosuch").
		Property("Actual", String(), func(any) any { return "" }, nil).
		Build()
	if err == nil {
		t.Fatal("expect mismatch error")
	}

	s, err := NewObject("t.good", nil).
		Constructor(func([]any) (any, error) { return nil, nil }, "ACTUAL").
		Property("Actual", String(), func(any) any { return "" }, nil).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if s.Properties[0].CtorIndex != 0 {
		t.Errorf("case-insensitive match failed: %d", s.Properties[0].CtorIndex)
	}
}

func TestBoxUnbox(t *testing.T) {
	type pt struct{ X int64 }

	boxed := Box(pt{X: 4})
	if _, ok := boxed.(*pt); !ok {
		t.Fatalf("structs box as pointers, got %T", boxed)
	}

	back := Unbox(reflect.TypeOf(pt{}), boxed)
	if back.(pt).X != 4 {
		t.Errorf("unbox: %v", back)
	}

	type myInt int32
	if got := Box(myInt(6)); got != int32(6) {
		t.Errorf("named scalars canonicalize: %T %v", got, got)
	}
	if got := Unbox(reflect.TypeOf(myInt(0)), int32(6)); got != myInt(6) {
		t.Errorf("unbox converts back: %T %v", got, got)
	}
}
