package typepack

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/typepack/typepack-go/shapes"
	typepacktesting "github.com/typepack/typepack-go/testing"
)

func TestSequence_ExtraElementsTolerated(t *testing.T) {
	s := NewSerializer()
	ctx := context.Background()

	// a [3]-style reader of int64s accepts however many the array carries
	back, err := Unmarshal[[]int64](ctx, s, mkex("93 01 02 03"))
	assert.NilError(t, err)
	assert.DeepEqual(t, []int64{1, 2, 3}, back)
}

func TestMultiArray_NestedFormat(t *testing.T) {
	shape := shapes.MultiArray(shapes.Int64(), 2)
	s := NewSerializer()
	ctx := context.Background()

	v := []any{
		[]any{int64(1), int64(2), int64(3)},
		[]any{int64(4), int64(5), int64(6)},
	}

	p, err := s.Serialize(ctx, shape, v)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("92 93 010203 93 040506")), "got %x", p)

	back, err := s.Deserialize(ctx, shape, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, back)
}

func TestMultiArray_FlatFormat(t *testing.T) {
	shape := shapes.MultiArray(shapes.Int64(), 2)
	s := NewSerializer(func(o *SerializerOptions) {
		o.MultiArray = MultiArrayFlat
	})
	ctx := context.Background()

	v := []any{
		[]any{int64(1), int64(2), int64(3)},
		[]any{int64(4), int64(5), int64(6)},
	}

	// [[2,3],[1,2,3,4,5,6]]
	p, err := s.Serialize(ctx, shape, v)
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("92 92 0203 96 010203040506")), "got %x", p)

	back, err := s.Deserialize(ctx, shape, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, back)
}

func TestMultiArray_RaggedFails(t *testing.T) {
	shape := shapes.MultiArray(shapes.Int64(), 2)
	s := NewSerializer(func(o *SerializerOptions) {
		o.MultiArray = MultiArrayFlat
	})

	v := []any{
		[]any{int64(1), int64(2)},
		[]any{int64(3)},
	}
	_, err := s.Serialize(context.Background(), shape, v)
	assert.Assert(t, errors.Is(err, ErrInvalidOperation), "got %v", err)
}

func TestExtensionShape_Passthrough(t *testing.T) {
	shape := shapes.Extension("test.appext", 9)
	s := NewSerializer()
	ctx := context.Background()

	p, err := s.Serialize(ctx, shape, []byte{0xde, 0xad})
	assert.NilError(t, err)
	assert.Assert(t, bytes.Equal(p, mkex("d5 09 dead")), "got %x", p)

	back, err := s.Deserialize(ctx, shape, p)
	assert.NilError(t, err)
	assert.DeepEqual(t, []byte{0xde, 0xad}, back.([]byte))

	// a mismatched code is rejected
	_, err = s.Deserialize(ctx, shape, mkex("d5 08 dead"))
	assert.Assert(t, errors.Is(err, ErrMalformed), "got %v", err)
}

func TestTimestampProperty_Roundtrip(t *testing.T) {
	type stamped struct {
		Name string    `msgpack:"name"`
		At   time.Time `msgpack:"at"`
	}

	s := NewSerializer()
	ctx := context.Background()
	v := stamped{Name: "x", At: time.Unix(1_600_000_000, 123_456_789).UTC()}

	p, err := Marshal(ctx, s, v)
	assert.NilError(t, err)
	typepacktesting.AssertPath(t, p, "name", "x")

	back, err := Unmarshal[stamped](ctx, s, p)
	assert.NilError(t, err)
	assert.Assert(t, v.At.Equal(back.At), "%v != %v", v.At, back.At)
}
