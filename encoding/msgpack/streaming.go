package msgpack

import (
	"errors"
	"time"
)

// StreamingReader is an incremental reader over a growing buffer. Every
// primitive either succeeds and advances the cursor, fails with
// *InsufficientBufferError and leaves the cursor where it was, or fails with
// a grammar error.
//
// On an insufficient buffer the caller obtains more bytes, extends the
// reader with them and replays the same operation; no partial state survives
// the failed attempt, so a replay is always safe.
type StreamingReader struct {
	r Reader
}

// NewStreamingReader returns a StreamingReader positioned at the start of p.
func NewStreamingReader(p []byte) StreamingReader {
	return StreamingReader{r: NewReader(p)}
}

// Pos returns the committed byte offset.
func (s *StreamingReader) Pos() int { return s.r.pos }

// Extend replaces the backing buffer with p, which must contain the bytes of
// the previous buffer as a prefix. The committed cursor is retained.
func (s *StreamingReader) Extend(p []byte) {
	s.r.buf = p
}

// Inner exposes the committed reader state, for handing off to synchronous
// code once enough bytes are known to be buffered.
func (s *StreamingReader) Inner() *Reader { return &s.r }

// coerce rewrites end-of-stream failures as insufficient-buffer outcomes:
// whether the payload is truncated or merely not yet arrived is for the
// caller's fetch to decide.
func (s *StreamingReader) coerce(err error) error {
	if errors.Is(err, ErrEndOfStream) {
		return &InsufficientBufferError{Position: s.r.pos}
	}
	return err
}

func commit1[T any](s *StreamingReader, read func(*Reader) (T, error)) (T, error) {
	fork := s.r.Fork()
	v, err := read(&fork)
	if err != nil {
		var zero T
		return zero, s.coerce(err)
	}
	s.r.Commit(fork)
	return v, nil
}

// Peek classifies the next structure without advancing.
func (s *StreamingReader) Peek() (Type, error) {
	return commit1(s, func(r *Reader) (Type, error) { return r.Peek() })
}

// TryReadNil consumes a nil token if one is buffered next. The three-way
// outcome distinguishes "next token is not nil" from "not enough bytes to
// tell".
func (s *StreamingReader) TryReadNil() (bool, error) {
	if s.r.pos >= len(s.r.buf) {
		return false, &InsufficientBufferError{Position: s.r.pos}
	}
	return s.r.TryReadNil(), nil
}

// ReadBool consumes a boolean token.
func (s *StreamingReader) ReadBool() (bool, error) {
	return commit1(s, (*Reader).ReadBool)
}

// ReadInt consumes an integer token of either signedness as an int64.
func (s *StreamingReader) ReadInt() (int64, error) {
	return commit1(s, (*Reader).ReadInt)
}

// ReadUint consumes an integer token as a uint64.
func (s *StreamingReader) ReadUint() (uint64, error) {
	return commit1(s, (*Reader).ReadUint)
}

// ReadFloat64 consumes a float token, widening a float32 encoding.
func (s *StreamingReader) ReadFloat64() (float64, error) {
	return commit1(s, (*Reader).ReadFloat64)
}

// ReadFloat32 consumes a float32 token.
func (s *StreamingReader) ReadFloat32() (float32, error) {
	return commit1(s, (*Reader).ReadFloat32)
}

// ReadStringBytes consumes a str token and returns its UTF-8 body. The bytes
// alias the backing buffer and are stable across Extend.
func (s *StreamingReader) ReadStringBytes() ([]byte, error) {
	return commit1(s, (*Reader).ReadStringBytes)
}

// ReadBinary consumes a bin token.
func (s *StreamingReader) ReadBinary() ([]byte, error) {
	return commit1(s, (*Reader).ReadBinary)
}

// ReadArrayHeader consumes an array header.
func (s *StreamingReader) ReadArrayHeader() (int, error) {
	return commit1(s, (*Reader).ReadArrayHeader)
}

// ReadMapHeader consumes a map header.
func (s *StreamingReader) ReadMapHeader() (int, error) {
	return commit1(s, (*Reader).ReadMapHeader)
}

// ReadExtension consumes a whole extension.
func (s *StreamingReader) ReadExtension() (int8, []byte, error) {
	fork := s.r.Fork()
	typ, body, err := fork.ReadExtension()
	if err != nil {
		return 0, nil, s.coerce(err)
	}
	s.r.Commit(fork)
	return typ, body, nil
}

// ReadTimestamp consumes a timestamp extension.
func (s *StreamingReader) ReadTimestamp() (time.Time, error) {
	return commit1(s, (*Reader).ReadTimestamp)
}

// Skip consumes exactly one structure. Progress is committed only when the
// whole structure is buffered; an insufficient-buffer outcome leaves the
// cursor at the structure's first byte so the skip replays cleanly.
func (s *StreamingReader) Skip() error {
	fork := s.r.Fork()
	if err := fork.Skip(); err != nil {
		return s.coerce(err)
	}
	s.r.Commit(fork)
	return nil
}

// NextStructure measures the next structure without consuming it and returns
// its framed byte length.
func (s *StreamingReader) NextStructure() (int, error) {
	fork := s.r.Fork()
	if err := fork.Skip(); err != nil {
		return 0, s.coerce(err)
	}
	return fork.pos - s.r.pos, nil
}
