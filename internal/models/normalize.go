package models

import "strings"

// seriesSuffixes are exchange series markers that drift in and out of the
// source sheet's symbol column. Stripped so the same instrument matches
// across snapshots.
var seriesSuffixes = []string{
	"-EQ", "-BE", "-SM", "-ST",
	".EQ", ".BE", ".SM", ".ST",
}

// NormalizeSymbol canonicalizes an instrument identifier: trim, uppercase,
// strip known series suffixes, drop characters outside [A-Z0-9&_-], and
// collapse internal whitespace. Returns "" for inputs with no usable content.
func NormalizeSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))

	for _, suffix := range seriesSuffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
			break
		}
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '&', r == '_', r == '-':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t':
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
