// Package alias resolves localized path aliases from configuration.
package alias

// Static maps canonical path → locale id → alias.
type Static struct {
	aliases map[string]map[string]string
}

// NewStatic copies aliases into a resolver.
func NewStatic(aliases map[string]map[string]string) *Static {
	out := make(map[string]map[string]string, len(aliases))
	for path, byLocale := range aliases {
		inner := make(map[string]string, len(byLocale))
		for locale, a := range byLocale {
			inner[locale] = a
		}
		out[path] = inner
	}
	return &Static{aliases: out}
}

// AliasByPath returns the alias for path in localeID, or path when none is set.
func (s *Static) AliasByPath(path, localeID string) string {
	if a, ok := s.aliases[path][localeID]; ok && a != "" {
		return a
	}
	return path
}
