package mapping

import "strings"

// EncodeClass converts an internal class name (a/b/C) to the dotted form used
// in mappings.zip.
func EncodeClass(name string) string {
	return strings.ReplaceAll(name, "/", ".")
}

// DecodeClass converts a dotted class name back to internal form.
func DecodeClass(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// EncodeJavadoc escapes backslashes and line breaks so documentation fits on a
// single CSV line.
func EncodeJavadoc(s string) string {
	if !strings.ContainsAny(s, "\\\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DecodeJavadoc reverses EncodeJavadoc. Unknown escapes are kept verbatim.
func DecodeJavadoc(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}
