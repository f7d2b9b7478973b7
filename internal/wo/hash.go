package wo

import "github.com/dgryski/go-farm"

// legacySeed is the multiplier-hash seed used by tables written with
// major_version < 2.
const legacySeed uint64 = 0x2257d6803a6f1b2

// legacyHash is the Java-style polynomial hash used by major_version < 2
// tables: h = sum(byte_i * 31^(n-1-i)), seeded with legacySeed.
func legacyHash(key []byte) uint64 {
	h := legacySeed
	for _, b := range key {
		h = h*31 + uint64(b)
	}
	return h
}

// Hash returns the 64-bit key hash used for index lookups, selecting the
// algorithm by major_version: the legacy polynomial hash below version 2,
// and a stable, non-cryptographic mixing hash (farm hash) from version 2
// onward. Both the writer and every reader must agree on this mapping.
func Hash(majorVersion uint8, key []byte) uint64 {
	if majorVersion < 2 {
		return legacyHash(key)
	}
	return farm.Hash64WithSeed(key, 0)
}
