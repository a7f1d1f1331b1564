package typepack

import (
	"context"

	"github.com/typepack/typepack-go/logging"
)

// Context carries the per-call scratch state threaded through every
// converter invocation: the nesting depth budget, the caller's cancellation
// signal, the diagnostic logger and a keyed user-state map.
//
// Converters hold no mutable state of their own; everything call-scoped
// lives here. The user-state map has copy-on-write semantics: WithValue
// returns a derived context and never mutates the parent, so mutations
// propagate only to callees.
type Context struct {
	ctx      context.Context
	depth    int
	maxDepth int
	log      logging.Logger
	state    map[any]any
}

func newCallContext(ctx context.Context, opts *SerializerOptions) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Noop{}
	}
	return &Context{
		ctx:      ctx,
		maxDepth: opts.MaxDepth,
		log:      log,
		state:    opts.StartingState,
	}
}

// Enter records entry into one nested structure. It fails with
// ErrDepthExceeded when the depth budget is exhausted and with ErrCancelled
// when the caller's signal has fired; every nesting level therefore doubles
// as a cancellation probe.
func (c *Context) Enter() error {
	if err := c.ctx.Err(); err != nil {
		return &Error{Kind: Cancelled, Offset: -1, Err: err}
	}
	c.depth++
	if c.depth > c.maxDepth {
		c.depth--
		return newError(DepthExceeded, "nesting depth %d exceeds the configured maximum", c.maxDepth)
	}
	return nil
}

// Leave exits one nested structure.
func (c *Context) Leave() { c.depth-- }

// Depth returns the current nesting depth.
func (c *Context) Depth() int { return c.depth }

// Cancelled reports the caller's cancellation signal, if it has fired.
func (c *Context) Cancelled() error {
	if err := c.ctx.Err(); err != nil {
		return &Error{Kind: Cancelled, Offset: -1, Err: err}
	}
	return nil
}

// Logger returns the diagnostic channel. Conditions that are surfaced but
// do not fail (an unknown property skipped, a union case served by an
// ancestor) are reported here.
func (c *Context) Logger() logging.Logger { return c.log }

// Value reads a key from the user-state map.
func (c *Context) Value(key any) any { return c.state[key] }

// WithValue returns a derived context whose user-state map has key set. The
// receiver is not modified.
func (c *Context) WithValue(key, value any) *Context {
	derived := *c
	derived.state = make(map[any]any, len(c.state)+1)
	for k, v := range c.state {
		derived.state[k] = v
	}
	derived.state[key] = value
	return &derived
}
