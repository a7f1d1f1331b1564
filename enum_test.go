package typepack

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/typepack/typepack-go/shapes"
)

type priority int

const (
	low    priority = 0
	normal priority = 1
	urgent priority = 2
)

func registerPriority(t *testing.T) {
	t.Helper()
	shapes.DefaultProvider = &shapes.Provider{}
	shapes.RegisterEnum[priority](
		shapes.EnumMember{Name: "Low", Value: 0},
		shapes.EnumMember{Name: "Normal", Value: 1},
		shapes.EnumMember{Name: "Urgent", Value: 2},
	)
	t.Cleanup(func() { shapes.DefaultProvider = &shapes.Provider{} })
}

func TestEnum_ByOrdinal(t *testing.T) {
	registerPriority(t)
	s := NewSerializer()
	ctx := context.Background()

	p, err := Marshal(ctx, s, urgent)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("02")), "got %x", p)

	back, err := Unmarshal[priority](ctx, s, p)
	assert.NilError(t, err)
	assert.Equal(t, urgent, back)
}

func TestEnum_ByName(t *testing.T) {
	registerPriority(t)
	s := NewSerializer(func(o *SerializerOptions) {
		o.SerializeEnumsByName = true
	})
	ctx := context.Background()

	p, err := Marshal(ctx, s, normal)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("a6 4e6f726d616c")), "got %x", p)

	back, err := Unmarshal[priority](ctx, s, p)
	assert.NilError(t, err)
	assert.Equal(t, normal, back)

	// case-insensitive match on read
	back, err = Unmarshal[priority](ctx, s, mkex("a6 6e6f726d616c")) // "normal"
	assert.NilError(t, err)
	assert.Equal(t, normal, back)

	// numeric fallback tolerates data written by-ordinal
	back, err = Unmarshal[priority](ctx, s, mkex("02"))
	assert.NilError(t, err)
	assert.Equal(t, urgent, back)

	// unknown names fail
	_, err = Unmarshal[priority](ctx, s, mkex("a4 6e6f6e65")) // "none"
	assert.Assert(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestEnum_CaseInsensitiveCollision(t *testing.T) {
	// two members whose names collide case-insensitively: the reader
	// prefers the first declared
	shape := shapes.Enum("test.collide",
		shapes.EnumMember{Name: "Value", Value: 1},
		shapes.EnumMember{Name: "VALUE", Value: 2},
	)

	s := NewSerializer(func(o *SerializerOptions) {
		o.SerializeEnumsByName = true
	})
	ctx := context.Background()

	// exact matches hit their own member
	v, err := s.Deserialize(ctx, shape, mkex("a5 56414c5545")) // "VALUE"
	assert.NilError(t, err)
	assert.Equal(t, int64(2), v.(int64))

	// a non-exact casing resolves to the first declared
	v, err = s.Deserialize(ctx, shape, mkex("a5 76616c7565")) // "value"
	assert.NilError(t, err)
	assert.Equal(t, int64(1), v.(int64))
}

func TestEnum_UnnamedOrdinalWritesNumber(t *testing.T) {
	registerPriority(t)
	s := NewSerializer(func(o *SerializerOptions) {
		o.SerializeEnumsByName = true
	})

	p, err := Marshal(context.Background(), s, priority(9))
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("09")), "got %x", p)
}

