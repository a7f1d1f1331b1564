package typepack

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/typepack/typepack-go/internal/siphash"
)

// internCapacity bounds the process-wide interning cache.
const internCapacity = 4096

// The interning cache is process-wide so that repeats across serializer
// instances still collapse to one string instance. golang-lru takes its own
// lock; reads and insertions are already safe without another one here.
var interned, _ = lru.New[uint64, string](internCapacity)

// internString returns the canonical string for the UTF-8 bytes p. The
// cache is keyed by the collision-resistant hash of p; a hash hit whose
// stored string does not match the bytes (a hash collision) falls through
// to a fresh allocation without disturbing the cached entry.
func internString(p []byte) string {
	key := siphash.Sum(p)
	if s, ok := interned.Get(key); ok {
		if len(s) == len(p) && s == string(p) {
			return s
		}
		return string(p)
	}
	s := string(p)
	interned.Add(key, s)
	return s
}
