package mapping

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Format identifies a mapping file syntax.
type Format string

const (
	FormatSRG      Format = "srg"
	FormatCSRG     Format = "csrg"
	FormatTSRG     Format = "tsrg"
	FormatTSRG2    Format = "tsrg2"
	FormatProGuard Format = "proguard"
)

// ParseFile reads a mapping file and detects its format from the content.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data), DetectFormat(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

var srgTags = map[string]bool{"PK": true, "CL": true, "FD": true, "MD": true}

// DetectFormat guesses the syntax of a mapping file from its first lines.
func DetectFormat(data []byte) Format {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	first := ""
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if first == "" {
			first = line
			if strings.HasPrefix(line, "tsrg2 ") {
				return FormatTSRG2
			}
			if len(line) > 3 && line[2] == ':' && srgTags[line[:2]] {
				return FormatSRG
			}
			if strings.Contains(line, " -> ") && strings.HasSuffix(line, ":") {
				return FormatProGuard
			}
			continue
		}
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, "    ") {
			return FormatTSRG
		}
	}
	return FormatCSRG
}

// Parse reads mapping data in the given format.
func Parse(r io.Reader, format Format) (*File, error) {
	switch format {
	case FormatSRG:
		return parseSRG(r)
	case FormatCSRG:
		return parseCSRG(r)
	case FormatTSRG, FormatTSRG2:
		return parseTSRG(r)
	case FormatProGuard:
		return parseProGuard(r)
	}
	return nil, fmt.Errorf("unsupported mapping format %q", format)
}

type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &lineReader{sc: sc}
}

// next returns the next line that is not blank or a comment.
func (lr *lineReader) next() (string, bool) {
	for lr.sc.Scan() {
		lr.line++
		line := strings.TrimRight(lr.sc.Text(), "\r")
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimRight(line[:i], " \t")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		return line, true
	}
	return "", false
}

func (lr *lineReader) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", lr.line, fmt.Sprintf(format, args...))
}

func splitOwner(full string) (owner, name string) {
	i := strings.LastIndexByte(full, '/')
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}

func parseSRG(r io.Reader) (*File, error) {
	f := NewFile()
	lr := newLineReader(r)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		tag, rest, _ := strings.Cut(line, ":")
		parts := strings.Fields(rest)
		switch tag {
		case "PK":
			if len(parts) != 2 {
				return nil, lr.errorf("PK expects 2 names, got %d", len(parts))
			}
			f.Packages[parts[0]] = parts[1]
		case "CL":
			if len(parts) != 2 {
				return nil, lr.errorf("CL expects 2 names, got %d", len(parts))
			}
			f.AddClass(parts[0], parts[1])
		case "FD":
			var orig, mapped, desc string
			switch len(parts) {
			case 2:
				orig, mapped = parts[0], parts[1]
			case 4:
				orig, desc, mapped = parts[0], parts[1], parts[2]
			default:
				return nil, lr.errorf("FD expects 2 or 4 tokens, got %d", len(parts))
			}
			owner, name := splitOwner(orig)
			_, mappedName := splitOwner(mapped)
			f.AddClass(owner, "").AddField(name, mappedName, desc)
		case "MD":
			if len(parts) != 4 {
				return nil, lr.errorf("MD expects 4 tokens, got %d", len(parts))
			}
			owner, name := splitOwner(parts[0])
			_, mappedName := splitOwner(parts[2])
			f.AddClass(owner, "").AddMethod(name, mappedName, parts[1])
		default:
			return nil, lr.errorf("unknown SRG tag %q", tag)
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseCSRG(r io.Reader) (*File, error) {
	f := NewFile()
	lr := newLineReader(r)
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		parts := strings.Fields(line)
		switch len(parts) {
		case 2:
			if strings.HasSuffix(parts[0], "/") {
				f.Packages[strings.TrimSuffix(parts[0], "/")] = strings.TrimSuffix(parts[1], "/")
			} else {
				f.AddClass(parts[0], parts[1])
			}
		case 3:
			f.AddClass(parts[0], "").AddField(parts[1], parts[2], "")
		case 4:
			f.AddClass(parts[0], "").AddMethod(parts[1], parts[3], parts[2])
		default:
			return nil, lr.errorf("unexpected CSRG line with %d tokens", len(parts))
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func indentOf(line string) int {
	n := 0
	for n < len(line) && line[n] == '\t' {
		n++
	}
	if n == 0 {
		// Some writers indent with four spaces.
		spaces := len(line) - len(strings.TrimLeft(line, " "))
		n = spaces / 4
	}
	return n
}

// parseTSRG handles TSRG and TSRG2 files. Only the first two namespaces of
// a TSRG2 file are read; further ones (such as numeric ids) are skipped.
func parseTSRG(r io.Reader) (*File, error) {
	f := NewFile()
	lr := newLineReader(r)
	var cls *Class
	var mtd *Method
	first := true
	namespaces := 2
	for {
		line, ok := lr.next()
		if !ok {
			break
		}
		if first {
			first = false
			if strings.HasPrefix(line, "tsrg2 ") {
				namespaces = len(strings.Fields(line)) - 1
				if namespaces < 2 {
					return nil, lr.errorf("tsrg2 header needs at least 2 namespaces")
				}
				continue
			}
		}
		depth := indentOf(line)
		parts := strings.Fields(line)
		switch depth {
		case 0:
			mtd = nil
			if len(parts) < 2 {
				return nil, lr.errorf("class line needs 2 names")
			}
			if strings.HasSuffix(parts[0], "/") {
				f.Packages[strings.TrimSuffix(parts[0], "/")] = strings.TrimSuffix(parts[1], "/")
				cls = nil
				continue
			}
			cls = f.AddClass(parts[0], parts[1])
		case 1:
			if cls == nil {
				return nil, lr.errorf("member without class")
			}
			mtd = nil
			switch {
			case len(parts) >= 3 && strings.HasPrefix(parts[1], "("):
				mtd = cls.AddMethod(parts[0], parts[2], parts[1])
			case len(parts) > namespaces:
				cls.AddField(parts[0], parts[2], parts[1])
			case len(parts) >= 2:
				cls.AddField(parts[0], parts[1], "")
			default:
				return nil, lr.errorf("member line needs at least 2 names")
			}
		case 2:
			if mtd == nil {
				return nil, lr.errorf("method detail without method")
			}
			if len(parts) == 1 && parts[0] == "static" {
				mtd.Static = true
				continue
			}
			if len(parts) < 3 {
				return nil, lr.errorf("parameter line needs index and 2 names")
			}
			idx, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, lr.errorf("parameter index %q: %v", parts[0], err)
			}
			mtd.AddParam(idx, parts[1], parts[2])
		default:
			return nil, lr.errorf("unexpected indentation depth %d", depth)
		}
	}
	if err := lr.sc.Err(); err != nil {
		return nil, err
	}
	return f, nil
}
