// Package siphash implements SipHash-2-4, a keyed pseudo-random function
// over byte spans of any length (https://131002.net/siphash/siphash.pdf).
//
// The package key is initialized once at startup from the platform RNG, so
// hash values are stable within a process but unpredictable across
// processes. Hashing allocates nothing; 8-byte blocks are consumed directly
// from the input span.
package siphash

import (
	crand "crypto/rand"
	"encoding/binary"
)

var key0, key1 uint64

func init() {
	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("siphash: platform RNG unavailable: " + err.Error())
	}
	key0 = binary.LittleEndian.Uint64(seed[:8])
	key1 = binary.LittleEndian.Uint64(seed[8:])
}

// Sum returns the SipHash-2-4 digest of p under the process key.
func Sum(p []byte) uint64 {
	return Keyed(key0, key1, p)
}

// Sum64 returns the digest of a single 64-bit value under the process key.
func Sum64(v uint64) uint64 {
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], v)
	return Keyed(key0, key1, p[:])
}

func rotl(v uint64, n uint) uint64 {
	return v<<n | v>>(64-n)
}

func round(v0, v1, v2, v3 uint64) (uint64, uint64, uint64, uint64) {
	v0 += v1
	v1 = rotl(v1, 13)
	v1 ^= v0
	v0 = rotl(v0, 32)
	v2 += v3
	v3 = rotl(v3, 16)
	v3 ^= v2
	v0 += v3
	v3 = rotl(v3, 21)
	v3 ^= v0
	v2 += v1
	v1 = rotl(v1, 17)
	v1 ^= v2
	v2 = rotl(v2, 32)
	return v0, v1, v2, v3
}

// Keyed returns the SipHash-2-4 digest of p under the given 128-bit key.
func Keyed(k0, k1 uint64, p []byte) uint64 {
	v0 := k0 ^ 0x736f6d6570736575
	v1 := k1 ^ 0x646f72616e646f6d
	v2 := k0 ^ 0x6c7967656e657261
	v3 := k1 ^ 0x7465646279746573

	n := len(p)
	for len(p) >= 8 {
		m := binary.LittleEndian.Uint64(p)
		v3 ^= m
		v0, v1, v2, v3 = round(v0, v1, v2, v3)
		v0, v1, v2, v3 = round(v0, v1, v2, v3)
		v0 ^= m
		p = p[8:]
	}

	// the final block carries the input length in its top byte
	var m uint64
	for i := len(p) - 1; i >= 0; i-- {
		m = m<<8 | uint64(p[i])
	}
	m |= uint64(n) << 56

	v3 ^= m
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0 ^= m

	v2 ^= 0xff
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)
	v0, v1, v2, v3 = round(v0, v1, v2, v3)

	return v0 ^ v1 ^ v2 ^ v3
}
