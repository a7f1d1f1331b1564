// Package testing provides test utilities for asserting on MessagePack
// payloads: decoding into a comparable value tree, deep-diff assertions and
// JMESPath lookups into encoded structures.
package testing

import (
	"fmt"

	"github.com/typepack/typepack-go/encoding/msgpack"
)

// DecodeTree decodes one structure of p into a comparable value tree:
// map[string]any or map[any]any for maps, []any for arrays, and int64 /
// uint64 / float64 / bool / string / []byte / nil leaves. Extensions decode
// to Extension values.
func DecodeTree(p []byte) (any, error) {
	r := msgpack.NewReader(p)
	v, err := decodeValue(&r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d bytes after first structure", r.Remaining())
	}
	return v, nil
}

// Extension is the tree form of a MessagePack extension.
type Extension struct {
	Type int8
	Body []byte
}

func decodeValue(r *msgpack.Reader) (any, error) {
	t, err := r.Peek()
	if err != nil {
		return nil, err
	}

	switch t {
	case msgpack.NilType:
		return nil, r.ReadNil()
	case msgpack.BoolType:
		return r.ReadBool()
	case msgpack.IntType:
		return r.ReadInt()
	case msgpack.UintType:
		u, err := r.ReadUint()
		if err != nil {
			return nil, err
		}
		// unsigned tokens that fit int64 share the leaf type of signed ones,
		// so every integer encoding of one value decodes alike
		if int64(u) >= 0 {
			return int64(u), nil
		}
		return u, nil
	case msgpack.Float32Type:
		return r.ReadFloat32()
	case msgpack.Float64Type:
		return r.ReadFloat64()
	case msgpack.StrType:
		return r.ReadString()
	case msgpack.BinType:
		p, err := r.ReadBinary()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(p))
		copy(out, p)
		return out, nil
	case msgpack.ExtType:
		typ, body, err := r.ReadExtension()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(body))
		copy(out, body)
		return Extension{Type: typ, Body: out}, nil
	case msgpack.ArrayType:
		n, err := r.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := decodeValue(r)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			arr = append(arr, v)
		}
		return arr, nil
	case msgpack.MapType:
		n, err := r.ReadMapHeader()
		if err != nil {
			return nil, err
		}
		// string-keyed maps decode to map[string]any so JMESPath and
		// go-cmp treat them like ordinary documents
		strKeyed := map[string]any{}
		anyKeyed := map[any]any{}
		allStrings := true
		for i := 0; i < n; i++ {
			k, err := decodeValue(r)
			if err != nil {
				return nil, fmt.Errorf("key %d: %w", i, err)
			}
			v, err := decodeValue(r)
			if err != nil {
				return nil, fmt.Errorf("value %d: %w", i, err)
			}
			if ks, ok := k.(string); ok && allStrings {
				strKeyed[ks] = v
			} else {
				allStrings = false
			}
			anyKeyed[normalizeKey(k)] = v
		}
		if allStrings {
			return strKeyed, nil
		}
		return anyKeyed, nil
	default:
		return nil, fmt.Errorf("unexpected token %s", t)
	}
}

// normalizeKey makes non-hashable keys usable as Go map keys.
func normalizeKey(k any) any {
	if p, ok := k.([]byte); ok {
		return string(p)
	}
	return k
}
