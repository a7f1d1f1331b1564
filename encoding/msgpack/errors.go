package msgpack

import (
	"errors"
	"fmt"
)

// Sentinel decode failures. Callers match these with errors.Is; the
// serializer facade rewraps them with call-path context before surfacing.
var (
	// ErrEndOfStream reports a payload that ends before the structure it
	// promises is complete.
	ErrEndOfStream = errors.New("unexpected end of payload")

	// ErrMalformed reports a byte that does not match the wire grammar at
	// its position.
	ErrMalformed = errors.New("malformed payload")

	// ErrOverflow reports a well-formed token whose value is out of range
	// for the requested target type.
	ErrOverflow = errors.New("value out of target range")
)

// InsufficientBufferError is returned by StreamingReader primitives when the
// buffered bytes end before the structure does. Position is the offset of the
// structure being read; the caller fetches more bytes, rebuilds the reader
// and replays the operation from there.
type InsufficientBufferError struct {
	Position int
}

func (e *InsufficientBufferError) Error() string {
	return fmt.Sprintf("insufficient buffer at offset %d", e.Position)
}

func endOfStream(pos int) error {
	return fmt.Errorf("offset %d: %w", pos, ErrEndOfStream)
}

func malformed(pos int, prefix byte, want string) error {
	return fmt.Errorf("offset %d: prefix 0x%02x where %s expected: %w", pos, prefix, want, ErrMalformed)
}

func overflow(pos int, v any, target string) error {
	return fmt.Errorf("offset %d: %v does not fit %s: %w", pos, v, target, ErrOverflow)
}
