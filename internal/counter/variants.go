package counter

import (
	"strconv"
	"strings"
)

// CanonicalPath returns the internal path of a resource, e.g. /node/42.
func CanonicalPath(resourceType string, resourceID int64) string {
	return "/" + strings.Trim(resourceType, "/") + "/" + strconv.FormatInt(resourceID, 10)
}

// NormalizePath makes a user supplied path absolute and strips surrounding
// blanks and slashes, so "node/5/ " becomes "/node/5".
func NormalizePath(path string) string {
	return "/" + strings.Trim(path, " /")
}

// Variants lists every path string that refers to the same resource as
// canonical: the canonical path, each locale's alias, the prefixed forms of
// both for locales with a prefix, and a trailing-slash copy of all of them.
// The result holds no duplicates and keeps first-seen order. A nil resolver
// treats every alias as the canonical path.
func Variants(canonical string, locales []Locale, resolver AliasResolver) []string {
	base := make([]string, 0, 1+3*len(locales))
	base = append(base, canonical)
	for _, locale := range locales {
		alias := canonical
		if resolver != nil {
			if resolved := resolver.AliasByPath(canonical, locale.ID); resolved != "" {
				alias = resolved
			}
		}
		base = append(base, alias)
		if locale.Prefix != "" {
			base = append(base, "/"+locale.Prefix+canonical, "/"+locale.Prefix+alias)
		}
	}

	all := make([]string, 0, 2*len(base))
	all = append(all, base...)
	for _, p := range base {
		all = append(all, p+"/")
	}
	return dedupe(all)
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
