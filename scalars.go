package typepack

import (
	"reflect"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// Scalar converters are one token in, one token out. Reads delegate the
// range check to the codec so an oversized token surfaces as Overflow, never
// as a silent truncation.

type boolConverter struct{}

func (boolConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteBool(v.(bool))
	return nil
}

func (boolConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadBool()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type int8Converter struct{}

func (int8Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteInt(int64(v.(int8)))
	return nil
}

func (int8Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadInt8()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type int16Converter struct{}

func (int16Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteInt(int64(v.(int16)))
	return nil
}

func (int16Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadInt16()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type int32Converter struct{}

func (int32Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteInt(int64(v.(int32)))
	return nil
}

func (int32Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadInt32()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type int64Converter struct{}

func (int64Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteInt(asInt64(v))
	return nil
}

func (int64Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadInt64()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type uint8Converter struct{}

func (uint8Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteUint(uint64(v.(uint8)))
	return nil
}

func (uint8Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type uint16Converter struct{}

func (uint16Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteUint(uint64(v.(uint16)))
	return nil
}

func (uint16Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadUint16()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type uint32Converter struct{}

func (uint32Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteUint(uint64(v.(uint32)))
	return nil
}

func (uint32Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type uint64Converter struct{}

func (uint64Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteUint(asUint64(v))
	return nil
}

func (uint64Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type float32Converter struct{}

func (float32Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteFloat32(v.(float32))
	return nil
}

func (float32Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadFloat32()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type float64Converter struct{}

func (float64Converter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteFloat64(v.(float64))
	return nil
}

func (float64Converter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadFloat64()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

type charConverter struct{}

func (charConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteChar(v.(uint16))
	return nil
}

func (charConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	v, err := r.ReadUint16()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

// asInt64 widens any named or builtin signed integer handed through an
// int64 shape. Reflect-derived shapes box int and named int types as their
// own type, not as int64.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	default:
		return reflect.ValueOf(v).Int()
	}
}

func asUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case uint:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint8:
		return uint64(n)
	default:
		return reflect.ValueOf(v).Uint()
	}
}
