package typepack

import (
	"github.com/typepack/typepack-go/encoding/msgpack"
)

// Converter reads and writes values of one shape. Each Write emits exactly
// one MessagePack structure and each Read consumes exactly one; a converter
// that violates this desynchronizes every container above it.
//
// Converters are stateless: per-call scratch state lives in the Context. A
// converter built by a registry is shared by every call on its serializer
// and must be safe for concurrent use.
type Converter interface {
	Write(ctx *Context, w *msgpack.Writer, v any) error
	Read(ctx *Context, r *msgpack.Reader) (any, error)
}

// AsyncPreferrer is implemented by converters whose payloads are better
// written incrementally than buffered whole. Container converters report
// true when any child does; the facade consults the root to pick the async
// write path.
type AsyncPreferrer interface {
	PreferAsync() bool
}

// PropertyReader is the targeted-deserialization fast path implemented by
// object converters: decode a single property out of a buffered object
// without materializing the rest.
type PropertyReader interface {
	// ReadProperty skips to the named property and decodes it. The boolean
	// is false when the object does not contain the property.
	ReadProperty(ctx *Context, r *msgpack.Reader, name string) (any, bool, error)

	// ReadIndex skips to the property with the given key index and decodes
	// it.
	ReadIndex(ctx *Context, r *msgpack.Reader, index int) (any, bool, error)
}

func preferAsync(c Converter) bool {
	p, ok := c.(AsyncPreferrer)
	return ok && p.PreferAsync()
}

// delayedConverter breaks build-time recursion. When the graph builder
// re-enters a shape still under construction it hands out a delayed
// converter instead; the one-shot cell is settled when the outer build
// returns, after which every forwarded call is direct.
type delayedConverter struct {
	inner Converter
}

func (d *delayedConverter) settle(c Converter) {
	if d.inner != nil {
		panic("typepack: delayed converter settled twice")
	}
	d.inner = c
}

func (d *delayedConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	return d.inner.Write(ctx, w, v)
}

func (d *delayedConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	return d.inner.Read(ctx, r)
}
