// Package hash implements the Hasher component: three pure functions
// that content-address a feature's geometry, its non-geometric
// attributes, and the two combined. The digest is 128 bits and fixed
// across all producers and consumers in a deployment; it is not
// required to be cryptographic, only collision-resistant at the scale
// of 10^6-10^8 features.
package hash

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Digest is a 128-bit content address.
type Digest [16]byte

// salt widens xxhash/v2's 64-bit Sum64 to 128 bits by taking a second,
// independent sum over the salted input. xxhash/v2 exposes no native
// 128-bit variant.
var salt = [8]byte{0x73, 0x70, 0x61, 0x74, 0x69, 0x61, 0x6c, 0x77} // "spatialw"

func sum128(b []byte) Digest {
	var d Digest
	h1 := xxhash.Sum64(b)

	salted := make([]byte, 0, len(salt)+len(b))
	salted = append(salted, salt[:]...)
	salted = append(salted, b...)
	h2 := xxhash.Sum64(salted)

	putUint64(d[0:8], h1)
	putUint64(d[8:16], h2)
	return d
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// String renders the digest as lowercase hex, for logging and as the
// persisted column representation.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest (never a valid hash of
// any input, since even the empty string hashes to a non-zero sum with
// overwhelming probability; used by callers to detect "not computed").
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Geometry returns the digest of a geometry's canonical well-known
// binary encoding.
func Geometry(wkb []byte) Digest {
	return sum128(wkb)
}

// Attributes returns the digest of the sorted "k1:v1|k2:v2|..." encoding
// of a feature's non-geometric attributes. An empty mapping yields the
// digest of the empty string, not a sentinel zero value.
func Attributes(attrs map[string]string) Digest {
	if len(attrs) == 0 {
		return sum128(nil)
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(attrs[k])
	}
	return sum128([]byte(b.String()))
}

// Composite returns the digest of "geom:<g>|attrs:<a>", deterministically
// derived from the geometry and attribute digests.
func Composite(geom, attrs Digest) Digest {
	var b strings.Builder
	b.WriteString("geom:")
	b.WriteString(geom.String())
	b.WriteString("|attrs:")
	b.WriteString(attrs.String())
	return sum128([]byte(b.String()))
}
