// Package typepack is a schema-driven MessagePack serializer. Values are
// described by type shapes (package shapes); the serializer synthesizes a
// cached graph of converters over a shape and reads or writes the
// MessagePack wire format (package encoding/msgpack) through it.
//
// The entry point is Serializer; see its Serialize and Deserialize method
// families. Deep structural equality and collision-resistant hashing over
// the same shapes live in package structhash.
package typepack

import (
	"context"
	"errors"
	"fmt"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// ErrorKind classifies every failure surfaced by the serializer.
type ErrorKind int

// Enumerates the failure kinds.
const (
	// EndOfStream reports truncated input.
	EndOfStream ErrorKind = iota + 1

	// Malformed reports a byte that does not match the wire grammar at its
	// position.
	Malformed

	// Overflow reports a valid token out of range for the target type.
	Overflow

	// DepthExceeded reports nesting beyond the configured maximum.
	DepthExceeded

	// Cancelled reports that the caller's cancellation signalled.
	Cancelled

	// UnknownSubType reports an unrecognized union discriminator.
	UnknownSubType

	// DoublePropertyAssignment reports the same property assigned twice in
	// one object.
	DoublePropertyAssignment

	// MissingRequired reports an absent required property or constructor
	// parameter.
	MissingRequired

	// CyclicGraph reports an object graph cycle the serializer cannot
	// encode.
	CyclicGraph

	// UnsupportedType reports a type shape with no applicable converter.
	UnsupportedType

	// InvalidOperation reports misuse of the API.
	InvalidOperation
)

func (k ErrorKind) String() string {
	switch k {
	case EndOfStream:
		return "end of stream"
	case Malformed:
		return "malformed"
	case Overflow:
		return "overflow"
	case DepthExceeded:
		return "depth exceeded"
	case Cancelled:
		return "cancelled"
	case UnknownSubType:
		return "unknown sub-type"
	case DoublePropertyAssignment:
		return "double property assignment"
	case MissingRequired:
		return "missing required"
	case CyclicGraph:
		return "cyclic graph"
	case UnsupportedType:
		return "unsupported type"
	case InvalidOperation:
		return "invalid operation"
	default:
		return "unknown"
	}
}

// Error is the failure type surfaced by every serializer operation.
type Error struct {
	Kind ErrorKind
	Msg  string

	// Offset is the byte offset of the failure in the payload, or -1 when
	// the failure is not positional.
	Offset int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d: %s", e.Kind, e.Offset, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality, so errors.Is(err, &Error{Kind: k}) and the
// package sentinels match any failure of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is matching by kind.
var (
	ErrEndOfStream              = &Error{Kind: EndOfStream, Offset: -1}
	ErrMalformed                = &Error{Kind: Malformed, Offset: -1}
	ErrOverflow                 = &Error{Kind: Overflow, Offset: -1}
	ErrDepthExceeded            = &Error{Kind: DepthExceeded, Offset: -1}
	ErrCancelled                = &Error{Kind: Cancelled, Offset: -1}
	ErrUnknownSubType           = &Error{Kind: UnknownSubType, Offset: -1}
	ErrDoublePropertyAssignment = &Error{Kind: DoublePropertyAssignment, Offset: -1}
	ErrMissingRequired          = &Error{Kind: MissingRequired, Offset: -1}
	ErrCyclicGraph              = &Error{Kind: CyclicGraph, Offset: -1}
	ErrUnsupportedType          = &Error{Kind: UnsupportedType, Offset: -1}
	ErrInvalidOperation         = &Error{Kind: InvalidOperation, Offset: -1}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Offset: -1}
}

// wrapCodec rewraps a low-level codec failure with its taxonomy kind and the
// reader's byte offset. Failures that already carry a kind pass through.
func wrapCodec(err error, offset int) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := Malformed
	switch {
	case errors.Is(err, msgpack.ErrEndOfStream):
		kind = EndOfStream
	case errors.Is(err, msgpack.ErrOverflow):
		kind = Overflow
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = Cancelled
	}
	return &Error{Kind: kind, Offset: offset, Err: err}
}
