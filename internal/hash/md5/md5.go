// Package md5 derives path keys for the pageview tables.
package md5

import (
	"crypto/md5" //nolint:gosec // content addressing, not a security boundary
	"encoding/hex"

	"github.com/JakeFAU/pageview-counter/internal/counter"
)

// Keyer implements counter.PathKeyer with the hex MD5 of the path bytes, the
// key format used by existing pageview_by_path rows.
type Keyer struct{}

// New returns an MD5 path keyer.
func New() *Keyer {
	return &Keyer{}
}

// Key returns the 32 character hex digest of path.
func (Keyer) Key(path string) counter.PathKey {
	sum := md5.Sum([]byte(path)) //nolint:gosec // see import comment
	return counter.PathKey(hex.EncodeToString(sum[:]))
}

// Keys maps every path to its key, preserving order.
func (k Keyer) Keys(paths []string) []counter.PathKey {
	keys := make([]counter.PathKey, len(paths))
	for i, p := range paths {
		keys[i] = k.Key(p)
	}
	return keys
}
