package testing

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/jmespath/go-jmespath"
)

// T provides the testing interface for capturing failures with testing
// assert utilities.
type T interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Helper()
}

// MsgpackEqual compares two MessagePack payloads structurally and returns
// an error describing the first difference. Map ordering does not matter;
// integer encodings of the same value compare equal.
func MsgpackEqual(expectBytes, actualBytes []byte) error {
	expect, err := DecodeTree(expectBytes)
	if err != nil {
		return fmt.Errorf("failed to decode expected bytes, %v", err)
	}

	actual, err := DecodeTree(actualBytes)
	if err != nil {
		return fmt.Errorf("failed to decode actual bytes, %v", err)
	}

	if diff := cmp.Diff(expect, actual); len(diff) != 0 {
		return fmt.Errorf("MessagePack mismatch (-expect +actual):\n%s", diff)
	}

	return nil
}

// AssertMsgpackEqual compares two MessagePack payloads structurally. Emits
// a testing error, and returns false if the payloads are not equal.
func AssertMsgpackEqual(t T, expect, actual []byte) bool {
	t.Helper()

	if err := MsgpackEqual(expect, actual); err != nil {
		t.Errorf("expect MessagePack equal, %v", err)
		return false
	}

	return true
}

// Path evaluates a JMESPath expression against the decoded tree of a
// MessagePack payload.
func Path(payload []byte, expr string) (any, error) {
	tree, err := DecodeTree(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload, %v", err)
	}
	return jmespath.Search(expr, tree)
}

// AssertPath evaluates a JMESPath expression against an encoded payload and
// compares the result to want. Emits a testing error and returns false on
// mismatch.
func AssertPath(t T, payload []byte, expr string, want any) bool {
	t.Helper()

	got, err := Path(payload, expr)
	if err != nil {
		t.Errorf("path %s: %v", expr, err)
		return false
	}
	if diff := cmp.Diff(want, got); len(diff) != 0 {
		t.Errorf("path %s mismatch (-want +got):\n%s", expr, diff)
		return false
	}
	return true
}
