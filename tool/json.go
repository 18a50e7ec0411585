package tool

import "strings"

// FormatJSON repairs raw model emitted argument text so it can be decoded:
// newlines outside string literals are dropped, newlines and tabs inside
// string literals are escaped. A quote toggles the in-string state unless
// it is preceded by a backslash. Dropped newlines do not count as the
// preceding character.
func FormatJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	var prev rune

	for _, r := range s {
		switch {
		case r == '\n' && !inString:
			continue
		case r == '\n' && inString:
			b.WriteString(`\n`)
		case r == '\t' && inString:
			b.WriteString(`\t`)
		default:
			if r == '"' && prev != '\\' {
				inString = !inString
			}
			b.WriteRune(r)
		}
		prev = r
	}

	return b.String()
}
