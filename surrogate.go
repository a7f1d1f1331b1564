package typepack

import (
	"fmt"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// surrogateConverter round-trips a type through its surrogate: marshal to
// the surrogate value, delegate the wire work to the surrogate's converter,
// unmarshal back on read.
type surrogateConverter struct {
	target Converter
	to     func(any) (any, error)
	from   func(any) (any, error)
}

func (c *surrogateConverter) Write(ctx *Context, w *msgpack.Writer, v any) error {
	s, err := c.to(v)
	if err != nil {
		return fmt.Errorf("map to surrogate: %w", err)
	}
	return c.target.Write(ctx, w, s)
}

func (c *surrogateConverter) Read(ctx *Context, r *msgpack.Reader) (any, error) {
	s, err := c.target.Read(ctx, r)
	if err != nil {
		return nil, err
	}
	v, err := c.from(s)
	if err != nil {
		return nil, fmt.Errorf("map from surrogate: %w", err)
	}
	return v, nil
}

func (c *surrogateConverter) PreferAsync() bool { return preferAsync(c.target) }
