package typepack

import (
	"context"
	"errors"
	"io"
	"reflect"

	"github.com/typepack/typepack-go/encoding/msgpack"
	"github.com/typepack/typepack-go/shapes"
)

// Serializer is the entry point: it owns a configuration, the converter
// cache built for it, and the sync and streaming serialize/deserialize
// surfaces. A Serializer is safe for concurrent use; every call gets a
// fresh Context.
type Serializer struct {
	opts SerializerOptions
	reg  *registry
}

// NewSerializer builds a serializer from functional options:
//
//	s := typepack.NewSerializer(func(o *typepack.SerializerOptions) {
//		o.Naming = typepack.SnakeCase
//		o.SerializeDefaultValues = typepack.SuppressAll
//	})
func NewSerializer(opts ...func(*SerializerOptions)) *Serializer {
	var o SerializerOptions
	for _, fn := range opts {
		fn(&o)
	}
	o.applyDefaults()

	s := &Serializer{opts: o}
	s.reg = newRegistry(&s.opts)
	return s
}

func (s *Serializer) callContext(ctx context.Context) *Context {
	c := newCallContext(ctx, &s.opts)
	if s.opts.PreserveReferences {
		c = c.WithValue(refStateKey{}, newRefState())
	}
	return c
}

// Serialize encodes v, described by shape, to MessagePack bytes.
func (s *Serializer) Serialize(ctx context.Context, shape *shapes.Shape, v any) ([]byte, error) {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return nil, err
	}

	cc := s.callContext(ctx)
	if err := cc.Cancelled(); err != nil {
		return nil, err
	}

	w := msgpack.NewWriter()
	if err := conv.Write(cc, w, v); err != nil {
		return nil, s.wrapWrite(err)
	}

	out := make([]byte, w.Len())
	copy(out, w.Bytes())
	return out, nil
}

// Deserialize decodes one value, described by shape, from p. Bytes after
// the first structure are not consumed and not an error; the caller owns
// the framing of multi-structure payloads.
func (s *Serializer) Deserialize(ctx context.Context, shape *shapes.Shape, p []byte) (any, error) {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return nil, err
	}

	cc := s.callContext(ctx)
	if err := cc.Cancelled(); err != nil {
		return nil, err
	}

	r := msgpack.NewReader(p)
	v, err := conv.Read(cc, &r)
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

// SerializeStream encodes v to dst. When the converter graph under shape
// prefers the async path the payload is flushed in MaxAsyncBuffer-sized
// chunks with a cancellation probe between chunks; otherwise it is buffered
// whole and written in one shot.
func (s *Serializer) SerializeStream(ctx context.Context, shape *shapes.Shape, v any, dst io.Writer) error {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return err
	}

	cc := s.callContext(ctx)
	if err := cc.Cancelled(); err != nil {
		return err
	}

	w := msgpack.NewWriter()
	if err := conv.Write(cc, w, v); err != nil {
		return s.wrapWrite(err)
	}

	if !preferAsync(conv) {
		_, err := dst.Write(w.Bytes())
		return err
	}

	p := w.Bytes()
	for len(p) > 0 {
		if err := cc.Cancelled(); err != nil {
			return err
		}
		n := s.opts.MaxAsyncBuffer
		if n > len(p) {
			n = len(p)
		}
		if _, err := dst.Write(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// DeserializeStream decodes one value from a byte pipe. Bytes are
// prefetched up to MaxAsyncBuffer at a time; once the next structure is
// whole the synchronous converter runs over it unmodified.
func (s *Serializer) DeserializeStream(ctx context.Context, shape *shapes.Shape, src io.Reader) (any, error) {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return nil, err
	}

	cc := s.callContext(ctx)
	ar := msgpack.NewAsyncReader(src, s.opts.MaxAsyncBuffer)
	r, err := ar.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Kind: EndOfStream, Offset: 0, Err: err}
		}
		return nil, wrapCodec(err, 0)
	}

	v, err := conv.Read(cc, &r)
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return v, nil
}

// DeserializeProperty decodes a single named property out of a buffered
// object payload without materializing the rest. The boolean reports
// whether the property was present.
func (s *Serializer) DeserializeProperty(ctx context.Context, shape *shapes.Shape, p []byte, name string) (any, bool, error) {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return nil, false, err
	}
	pr, ok := conv.(PropertyReader)
	if !ok {
		return nil, false, newError(InvalidOperation, "shape %s does not support targeted deserialization", shape.ID)
	}

	cc := s.callContext(ctx)
	r := msgpack.NewReader(p)
	v, found, err := pr.ReadProperty(cc, &r, name)
	if err != nil {
		return nil, false, wrapCodec(err, r.Pos())
	}
	return v, found, nil
}

// DeserializeIndex is DeserializeProperty for an explicit key index.
func (s *Serializer) DeserializeIndex(ctx context.Context, shape *shapes.Shape, p []byte, index int) (any, bool, error) {
	conv, err := s.reg.converterFor(shape)
	if err != nil {
		return nil, false, err
	}
	pr, ok := conv.(PropertyReader)
	if !ok {
		return nil, false, newError(InvalidOperation, "shape %s does not support targeted deserialization", shape.ID)
	}

	cc := s.callContext(ctx)
	r := msgpack.NewReader(p)
	v, found, err := pr.ReadIndex(cc, &r, index)
	if err != nil {
		return nil, false, wrapCodec(err, r.Pos())
	}
	return v, found, nil
}

// wrapWrite normalizes write-side failures: converter and accessor errors
// that carry no kind surface as InvalidOperation.
func (s *Serializer) wrapWrite(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: InvalidOperation, Offset: -1, Err: err}
}

// Marshal encodes v with a shape derived from T by the default reflection
// provider.
func Marshal[T any](ctx context.Context, s *Serializer, v T) ([]byte, error) {
	shape, err := shapes.For[T]()
	if err != nil {
		return nil, newError(UnsupportedType, "%v", err)
	}
	return s.Serialize(ctx, shape, shapes.Box(v))
}

// Unmarshal decodes a value of T with a shape derived by the default
// reflection provider.
func Unmarshal[T any](ctx context.Context, s *Serializer, p []byte) (T, error) {
	var out T
	shape, err := shapes.For[T]()
	if err != nil {
		return out, newError(UnsupportedType, "%v", err)
	}
	v, err := s.Deserialize(ctx, shape, p)
	if err != nil {
		return out, err
	}
	if v == nil {
		return out, nil
	}
	rt := reflect.TypeOf(&out).Elem()
	if rt.Kind() == reflect.Interface {
		out = v.(T)
		return out, nil
	}
	out = shapes.Unbox(rt, v).(T)
	return out, nil
}
