package typepack

import (
	"time"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

type stringConverter struct {
	intern bool
}

func (c stringConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteString(v.(string))
	return nil
}

func (c stringConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	p, err := r.ReadStringBytes()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if c.intern {
		return internString(p), nil
	}
	return string(p), nil
}

type binaryConverter struct{}

func (binaryConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteBinary(v.([]byte))
	return nil
}

func (binaryConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	p, err := r.ReadBinary()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	// detach from the payload buffer; the caller owns the result
	out := make([]byte, len(p))
	copy(out, p)
	return out, nil
}

// Large blobs are the payloads worth flushing in MaxAsyncBuffer-sized chunks
// on the stream write path rather than in one write.
func (binaryConverter) PreferAsync() bool { return true }

type timestampConverter struct{}

func (timestampConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteTimestamp(v.(time.Time))
	return nil
}

func (timestampConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	t, err := r.ReadTimestamp()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	return t, nil
}

// extensionConverter passes raw application extension bodies through
// verbatim.
type extensionConverter struct {
	code int8
}

func (c extensionConverter) Write(_ *Context, w *msgpack.Writer, v any) error {
	w.WriteExtension(c.code, v.([]byte))
	return nil
}

func (c extensionConverter) Read(_ *Context, r *msgpack.Reader) (any, error) {
	start := r.Pos()
	typ, body, err := r.ReadExtension()
	if err != nil {
		return nil, wrapCodec(err, r.Pos())
	}
	if typ != c.code {
		return nil, &Error{Kind: Malformed, Offset: start,
			Msg: "extension type mismatch"}
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
