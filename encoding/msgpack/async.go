package msgpack

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxAsyncBuffer is the prefetch target used when the caller does not
// configure one.
const DefaultMaxAsyncBuffer = 1 << 16

// AsyncReader adapts a byte pipe to the synchronous Reader. It prefetches
// into a reusable scratch buffer in chunks bounded by the configured maximum
// and, once a whole structure is buffered, hands out a Reader over it so
// synchronous consumers work unmodified. When the prefetched bytes fall
// short it falls back to incremental measurement through the StreamingReader
// replay protocol.
type AsyncReader struct {
	src io.Reader
	max int

	buf []byte
	off int // bytes handed out and committed
}

// NewAsyncReader returns an AsyncReader over src. maxBuffer bounds the
// prefetch chunk size; zero or negative selects DefaultMaxAsyncBuffer.
func NewAsyncReader(src io.Reader, maxBuffer int) *AsyncReader {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxAsyncBuffer
	}
	return &AsyncReader{src: src, max: maxBuffer}
}

// Buffered returns the number of prefetched, uncommitted bytes.
func (a *AsyncReader) Buffered() int { return len(a.buf) - a.off }

// fetch pulls one more chunk from the pipe. Cancellation is probed before
// touching the pipe so a cancelled read never blocks.
func (a *AsyncReader) fetch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// discard the committed prefix before growing
	if a.off > 0 && a.off == len(a.buf) {
		a.buf = a.buf[:0]
		a.off = 0
	}

	chunk := a.max
	scratch := make([]byte, chunk)
	n, err := a.src.Read(scratch)
	if n > 0 {
		a.buf = append(a.buf, scratch[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("fetch: %w", err)
	}
	if n == 0 {
		// the pipe is drained; whatever is buffered is all there is
		return io.EOF
	}
	return nil
}

// Next buffers the next complete structure and returns a Reader over exactly
// its bytes. The structure is committed: a subsequent Next returns the
// structure after it regardless of how much of the handed-out Reader was
// consumed.
//
// Returns ErrEndOfStream when the pipe ends mid-structure and io.EOF when it
// ends cleanly between structures.
func (a *AsyncReader) Next(ctx context.Context) (Reader, error) {
	for {
		sr := NewStreamingReader(a.buf[a.off:])
		n, err := sr.NextStructure()
		if err == nil {
			r := NewReader(a.buf[a.off : a.off+n : a.off+n])
			a.off += n
			return r, nil
		}

		var insufficient *InsufficientBufferError
		if !errors.As(err, &insufficient) {
			return Reader{}, err
		}

		if ferr := a.fetch(ctx); ferr != nil {
			if errors.Is(ferr, io.EOF) {
				if a.Buffered() == 0 {
					return Reader{}, io.EOF
				}
				return Reader{}, endOfStream(a.off + insufficient.Position)
			}
			return Reader{}, ferr
		}
	}
}
