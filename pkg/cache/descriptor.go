package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// keyLength is the number of hex characters kept from the digest.
const keyLength = 24

// Descriptor identifies a cached request: a primary identifier plus named
// variant parameters. Parameter order never affects the key.
type Descriptor struct {
	URL    string
	Params map[string]string
}

// For returns a descriptor for url with the given name/value pairs.
// A trailing unpaired name is ignored.
func For(url string, kv ...string) Descriptor {
	d := Descriptor{URL: url}
	if len(kv) >= 2 {
		d.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			d.Params[kv[i]] = kv[i+1]
		}
	}
	return d
}

// Key returns the stable cache key: the first 24 hex characters of
// SHA-256("url|k1=v1|k2=v2...") with parameters sorted by name.
func (d Descriptor) Key() string {
	names := make([]string, 0, len(d.Params))
	for k := range d.Params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(d.URL)
	for _, k := range names {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(d.Params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:keyLength]
}
