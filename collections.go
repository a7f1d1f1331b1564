package typepack

import (
	"fmt"

	"github.com/typepack/typepack-go/encoding/msgpack"
	"github.com/typepack/typepack-go/shapes"
)

type optionalConverter struct {
	elem Converter
	fns  *shapes.OptFuncs
}

func (c *optionalConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if c.fns.IsNone(v) {
		w.WriteNil()
		return nil
	}
	return c.elem.Write(ctx, w, c.fns.Unwrap(v))
}

func (c *optionalConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if r.TryReadNil() {
		return c.fns.None(), nil
	}
	elem, err := c.elem.Read(ctx, r)
	if err != nil {
		return nil, err
	}
	return c.fns.Wrap(elem), nil
}

func (c *optionalConverter) PreferAsync() bool { return preferAsync(c.elem) }

type sequenceConverter struct {
	elem Converter
	fns  *shapes.SeqFuncs
}

func (c *sequenceConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	w.WriteArrayHeader(c.fns.Len(v))
	i := 0
	return c.fns.Iterate(v, func(elem any) error {
		if err := c.elem.Write(ctx, w, elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		i++
		return nil
	})
}

func (c *sequenceConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}

	seq := c.fns.New(allocHint(n))
	for i := 0; i < n; i++ {
		elem, err := c.elem.Read(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		seq = c.fns.Append(seq, elem)
	}
	return seq, nil
}

func (c *sequenceConverter) PreferAsync() bool { return preferAsync(c.elem) }

type mapConverter struct {
	key, value Converter
	fns        *shapes.MapFuncs
}

func (c *mapConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	w.WriteMapHeader(c.fns.Len(v))
	return c.fns.Iterate(v, func(k, val any) error {
		if err := c.key.Write(ctx, w, k); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		if err := c.value.Write(ctx, w, val); err != nil {
			return fmt.Errorf("value: %w", err)
		}
		return nil
	})
}

func (c *mapConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return c.fill(ctx, r, c.fns.New(allocHint(n)), n)
}

// readInto deserializes map pairs into an existing instance: the path taken
// when an object exposes a pre-constructed map through a get-only property,
// e.g. to retain a caller-provided comparator or capacity.
func (c *mapConverter) readInto(ctx *Context, r *msgpack.Reader, m any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	n, err := r.ReadMapHeader()
	if err != nil {
		return wrapCodec(err, r.Pos())
	}
	_, err = c.fill(ctx, r, m, n)
	return err
}

func (c *mapConverter) fill(ctx *Context, r *msgpack.Reader, m any, n int) (any, error) {
	for i := 0; i < n; i++ {
		k, err := c.key.Read(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		v, err := c.value.Read(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		m = c.fns.Put(m, k, v)
	}
	return m, nil
}

func (c *mapConverter) PreferAsync() bool {
	return preferAsync(c.key) || preferAsync(c.value)
}

// allocHint caps pre-allocation from wire-supplied lengths so a hostile
// header cannot reserve unbounded memory before any element bytes exist.
func allocHint(n int) int {
	const max = 1024
	if n > max {
		return max
	}
	return n
}

// multiArrayConverter encodes rank-dimensional rectangular arrays
// represented as nested sequences, in either the nested or the flattened
// wire format.
type multiArrayConverter struct {
	elem   Converter
	fns    *shapes.SeqFuncs
	rank   int
	format MultiArrayFormat
}

func (c *multiArrayConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	if c.format == MultiArrayFlat {
		return c.writeFlat(ctx, w, v)
	}
	return c.writeNested(ctx, w, v, c.rank)
}

func (c *multiArrayConverter) writeNested(ctx *Context, w *msgpack.Writer, v any, rank int) error {
	if rank == 0 {
		return c.elem.Write(ctx, w, v)
	}
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	w.WriteArrayHeader(c.fns.Len(v))
	return c.fns.Iterate(v, func(sub any) error {
		return c.writeNested(ctx, w, sub, rank-1)
	})
}

// writeFlat emits [dims, elements]: a leading array of per-dimension
// lengths, then every element in row-major order. Ragged input fails with
// InvalidOperation.
func (c *multiArrayConverter) writeFlat(ctx *Context, w *msgpack.Writer, v any) error {
	if err := ctx.Enter(); err != nil {
		return err
	}
	defer ctx.Leave()

	dims := make([]int, c.rank)
	cursor := v
	for d := 0; d < c.rank; d++ {
		dims[d] = c.fns.Len(cursor)
		if dims[d] == 0 {
			break
		}
		if d < c.rank-1 {
			var first any
			_ = c.fns.Iterate(cursor, func(sub any) error {
				first = sub
				return errStopIteration
			})
			cursor = first
		}
	}

	w.WriteArrayHeader(2)
	w.WriteArrayHeader(c.rank)
	total := 1
	for _, d := range dims {
		w.WriteInt(int64(d))
		total *= d
	}

	w.WriteArrayHeader(total)
	written := 0
	err := c.flatten(ctx, w, v, dims, 0, &written)
	if err != nil {
		return err
	}
	if written != total {
		return newError(InvalidOperation, "ragged multi-dimensional array: %d elements where the dimensions promise %d", written, total)
	}
	return nil
}

func (c *multiArrayConverter) flatten(ctx *Context, w *msgpack.Writer, v any, dims []int, depth int, written *int) error {
	if depth == c.rank {
		*written++
		return c.elem.Write(ctx, w, v)
	}
	if c.fns.Len(v) != dims[depth] {
		return newError(InvalidOperation, "ragged multi-dimensional array: dimension %d has length %d where %d expected", depth, c.fns.Len(v), dims[depth])
	}
	return c.fns.Iterate(v, func(sub any) error {
		return c.flatten(ctx, w, sub, dims, depth+1, written)
	})
}

func (c *multiArrayConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	if c.format == MultiArrayFlat {
		return c.readFlat(ctx, r)
	}
	return c.readNested(ctx, r, c.rank)
}

func (c *multiArrayConverter) readNested(ctx *Context, r *msgpack.Reader, rank int) (any, error) {
	if rank == 0 {
		return c.elem.Read(ctx, r)
	}
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	seq := c.fns.New(allocHint(n))
	for i := 0; i < n; i++ {
		sub, err := c.readNested(ctx, r, rank-1)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		seq = c.fns.Append(seq, sub)
	}
	return seq, nil
}

func (c *multiArrayConverter) readFlat(ctx *Context, r *msgpack.Reader) (any, error) {
	if err := ctx.Enter(); err != nil {
		return nil, err
	}
	defer ctx.Leave()

	start := r.Pos()
	n, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if n != 2 {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("flattened array envelope of %d elements where 2 expected", n)}
	}

	nd, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if nd != c.rank {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("%d dimensions where %d expected", nd, c.rank)}
	}
	dims := make([]int, nd)
	total := 1
	for i := range dims {
		d, err := r.ReadInt()
		if err != nil {
			return nil, wrapCodec(err, r.Pos())
		}
		dims[i] = int(d)
		total *= dims[i]
	}

	ne, err := r.ReadArrayHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if ne != total {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("%d elements where the dimensions promise %d", ne, total)}
	}

	return c.unflatten(ctx, r, dims)
}

func (c *multiArrayConverter) unflatten(ctx *Context, r *msgpack.Reader, dims []int) (any, error) {
	if len(dims) == 0 {
		return c.elem.Read(ctx, r)
	}
	seq := c.fns.New(allocHint(dims[0]))
	for i := 0; i < dims[0]; i++ {
		sub, err := c.unflatten(ctx, r, dims[1:])
		if err != nil {
			return nil, err
		}
		seq = c.fns.Append(seq, sub)
	}
	return seq, nil
}

// errStopIteration is a sentinel for iteration that only needs the first
// element.
var errStopIteration = fmt.Errorf("stop iteration")
