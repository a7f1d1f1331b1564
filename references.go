package typepack

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// refStateKey keys the per-call reference table in the Context user state.
type refStateKey struct{}

// refState is the mutable reference table of one top-level call. Identities
// are dense integers assigned in first-encounter order on write and
// resolved positionally on read.
type refState struct {
	ids  map[any]uint32
	open map[any]bool
	next uint32

	decoded []any
}

func newRefState() *refState {
	return &refState{ids: map[any]uint32{}, open: map[any]bool{}}
}

// referenceConverter wraps an object converter when reference preservation
// is enabled. The first occurrence of a reference is framed in the
// definition extension (identity then payload); repeats become a
// back-reference extension carrying only the identity.
//
// Cycles are not preserved: re-entering a reference whose definition is
// still being written fails with CyclicGraph.
type referenceConverter struct {
	inner Converter
	codes ExtensionCodes
}

func (c *referenceConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	st, _ := ctx.Value(refStateKey{}).(*refState)
	if st == nil || !isReferenceValue(v) {
		return c.inner.Write(ctx, w, v)
	}

	if id, ok := st.ids[v]; ok {
		if st.open[v] {
			return newError(CyclicGraph, "reference %d re-entered while its definition is still being written", id)
		}
		var body [4]byte
		binary.BigEndian.PutUint32(body[:], id)
		w.WriteExtension(c.codes.Reference, body[:])
		return nil
	}

	id := st.next
	st.next++
	st.ids[v] = id
	st.open[v] = true

	payload := msgpack.NewWriter()
	err := c.inner.Write(ctx, payload, v)
	st.open[v] = false
	if err != nil {
		return err
	}

	body := make([]byte, 4+payload.Len())
	binary.BigEndian.PutUint32(body, id)
	copy(body[4:], payload.Bytes())
	w.WriteExtension(c.codes.ReferenceDefinition, body)
	return nil
}

func (c *referenceConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	st, _ := ctx.Value(refStateKey{}).(*refState)
	t, err := r.Peek()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if st == nil || t != msgpack.ExtType {
		return c.inner.Read(ctx, r)
	}

	// only this library's codes are claimed; any other extension falls
	// through to the inner converter's own error reporting
	fork := r.Fork()
	typ, _, err := fork.ReadExtensionHeader()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if typ != c.codes.Reference && typ != c.codes.ReferenceDefinition {
		return c.inner.Read(ctx, r)
	}

	start := r.Pos()
	_, body, err := r.ReadExtension()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if len(body) < 4 {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("reference extension body of %d bytes", len(body))}
	}
	id := binary.BigEndian.Uint32(body)

	if typ == c.codes.Reference {
		if int(id) >= len(st.decoded) {
			return nil, &Error{Kind: CyclicGraph, Offset: start,
				Msg: fmt.Sprintf("back-reference %d precedes its definition", id)}
		}
		if st.decoded[id] == nil {
			// the definition for this identity is still being read
			return nil, &Error{Kind: CyclicGraph, Offset: start,
				Msg: fmt.Sprintf("back-reference %d points into its own definition", id)}
		}
		return st.decoded[id], nil
	}

	if int(id) != len(st.decoded) {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: fmt.Sprintf("reference definition %d out of order (expected %d)", id, len(st.decoded))}
	}

	// reserve the identity before descending so nested definitions land on
	// their own slots
	st.decoded = append(st.decoded, nil)
	payload := msgpack.NewReader(body[4:])
	v, err := c.inner.Read(ctx, &payload)
	if err != nil {
		return nil, err
	}
	st.decoded[id] = v
	return v, nil
}

func (c *referenceConverter) PreferAsync() bool { return preferAsync(c.inner) }

// ReadProperty forwards the targeted fast path through the wrapper.
func (c *referenceConverter) ReadProperty(ctx *Context, r *msgpack.Reader, name string) (any, bool, error) {
	pr, ok := c.inner.(PropertyReader)
	if !ok {
		return nil, false, nil
	}
	return pr.ReadProperty(ctx, r, name)
}

// ReadIndex forwards the targeted fast path through the wrapper.
func (c *referenceConverter) ReadIndex(ctx *Context, r *msgpack.Reader, index int) (any, bool, error) {
	pr, ok := c.inner.(PropertyReader)
	if !ok {
		return nil, false, nil
	}
	return pr.ReadIndex(ctx, r, index)
}

// isReferenceValue reports whether v has pointer identity worth
// deduplicating. Only non-nil references participate.
func isReferenceValue(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return !rv.IsNil()
	default:
		return false
	}
}
