package mapping

import (
	"io"
	"strings"
)

var primitiveDescriptors = map[string]string{
	"void":    "V",
	"boolean": "Z",
	"byte":    "B",
	"char":    "C",
	"short":   "S",
	"int":     "I",
	"long":    "J",
	"float":   "F",
	"double":  "D",
}

// javaTypeDescriptor converts a source level type such as
// java.lang.String[] into the JVM descriptor [Ljava/lang/String;.
func javaTypeDescriptor(t string) string {
	dims := 0
	for strings.HasSuffix(t, "[]") {
		dims++
		t = strings.TrimSuffix(t, "[]")
	}
	desc, ok := primitiveDescriptors[t]
	if !ok {
		desc = "L" + DecodeClass(t) + ";"
	}
	return strings.Repeat("[", dims) + desc
}

// parseProGuard reads the mapping format published alongside official
// Minecraft jars. It maps named classes (left) to obfuscated ones (right).
func parseProGuard(r io.Reader) (*File, error) {
	f := NewFile()
	lr := newLineReader(r)
	var cls *Class
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
			left, right, found := strings.Cut(line, " -> ")
			if !found || !strings.HasSuffix(right, ":") {
				return nil, lr.errorf("malformed class line %q", line)
			}
			cls = f.AddClass(DecodeClass(strings.TrimSpace(left)), DecodeClass(strings.TrimSuffix(right, ":")))
			continue
		}
		if cls == nil {
			return nil, lr.errorf("member without class")
		}

		left, obf, found := strings.Cut(strings.TrimSpace(line), " -> ")
		if !found {
			return nil, lr.errorf("malformed member line %q", line)
		}
		obf = strings.TrimSpace(obf)

		// Strip the leading line number range of methods.
		for i := 0; i < 2; i++ {
			if j := strings.IndexByte(left, ':'); j >= 0 && isDigits(left[:j]) {
				left = left[j+1:]
			}
		}

		typ, rest, found := strings.Cut(left, " ")
		if !found {
			return nil, lr.errorf("member without type %q", line)
		}
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			cls.AddField(rest, obf, javaTypeDescriptor(typ))
			continue
		}

		closeIdx := strings.IndexByte(rest, ')')
		if closeIdx < open {
			return nil, lr.errorf("unbalanced parameter list %q", line)
		}
		name := rest[:open]
		var desc strings.Builder
		desc.WriteByte('(')
		if args := rest[open+1 : closeIdx]; args != "" {
			for _, a := range strings.Split(args, ",") {
				desc.WriteString(javaTypeDescriptor(strings.TrimSpace(a)))
			}
		}
		desc.WriteByte(')')
		desc.WriteString(javaTypeDescriptor(typ))
		cls.AddMethod(name, obf, desc.String())
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
