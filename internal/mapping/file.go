package mapping

import (
	"strings"
)

// File is an authoritative name mapping between two namespaces, as read from
// an SRG, TSRG, CSRG or ProGuard file. Descriptors are always expressed in
// the original (left hand) namespace.
type File struct {
	Packages map[string]string
	Classes  []*Class

	index map[string]*Class
}

// Class is a mapped class and its members.
type Class struct {
	Original string
	Mapped   string
	Fields   []*Field
	Methods  []*Method
}

// Field is a mapped field. Desc may be empty when the format omits it.
type Field struct {
	Original string
	Mapped   string
	Desc     string
}

// Method is a mapped method with its parameters.
type Method struct {
	Original string
	Mapped   string
	Desc     string
	Static   bool
	Params   []*Param
}

// Param is a mapped method parameter, identified by its index.
type Param struct {
	Index    int
	Original string
	Mapped   string
}

// NewFile returns an empty mapping file.
func NewFile() *File {
	return &File{
		Packages: make(map[string]string),
		index:    make(map[string]*Class),
	}
}

// Class returns the class with the given original name, or nil.
func (f *File) Class(original string) *Class {
	return f.index[original]
}

// AddClass returns the class for original, creating it when needed. A later
// call with a different mapped name updates the mapping.
func (f *File) AddClass(original, mapped string) *Class {
	if c, ok := f.index[original]; ok {
		if mapped != "" {
			c.Mapped = mapped
		}
		return c
	}
	if mapped == "" {
		mapped = original
	}
	c := &Class{Original: original, Mapped: mapped}
	f.Classes = append(f.Classes, c)
	f.index[original] = c
	return c
}

// RemapClass maps an original class name, returning it unchanged when the
// file does not know it. Inner classes fall back to their outer mapping.
func (f *File) RemapClass(name string) string {
	if c, ok := f.index[name]; ok {
		return c.Mapped
	}
	if i := strings.LastIndexByte(name, '$'); i > 0 {
		outer := f.RemapClass(name[:i])
		if outer != name[:i] {
			return outer + name[i:]
		}
	}
	return name
}

// RemapDescriptor maps every class reference in a field or method descriptor.
func (f *File) RemapDescriptor(desc string) string {
	if !strings.Contains(desc, "L") {
		return desc
	}
	var b strings.Builder
	b.Grow(len(desc))
	for i := 0; i < len(desc); i++ {
		if desc[i] != 'L' {
			b.WriteByte(desc[i])
			continue
		}
		end := strings.IndexByte(desc[i:], ';')
		if end < 0 {
			b.WriteString(desc[i:])
			break
		}
		b.WriteByte('L')
		b.WriteString(f.RemapClass(desc[i+1 : i+end]))
		b.WriteByte(';')
		i += end
	}
	return b.String()
}

func (c *Class) AddField(original, mapped, desc string) *Field {
	if mapped == "" {
		mapped = original
	}
	fd := &Field{Original: original, Mapped: mapped, Desc: desc}
	c.Fields = append(c.Fields, fd)
	return fd
}

func (c *Class) AddMethod(original, mapped, desc string) *Method {
	if mapped == "" {
		mapped = original
	}
	m := &Method{Original: original, Mapped: mapped, Desc: desc}
	c.Methods = append(c.Methods, m)
	return m
}

// Field finds a field by original name.
func (c *Class) Field(original string) *Field {
	for _, fd := range c.Fields {
		if fd.Original == original {
			return fd
		}
	}
	return nil
}

// Method finds a method by original name and descriptor.
func (c *Class) Method(original, desc string) *Method {
	for _, m := range c.Methods {
		if m.Original == original && m.Desc == desc {
			return m
		}
	}
	return nil
}

func (m *Method) AddParam(index int, original, mapped string) *Param {
	if mapped == "" {
		mapped = original
	}
	p := &Param{Index: index, Original: original, Mapped: mapped}
	m.Params = append(m.Params, p)
	return p
}

// Param finds a parameter by index.
func (m *Method) Param(index int) *Param {
	for _, p := range m.Params {
		if p.Index == index {
			return p
		}
	}
	return nil
}

// Reverse swaps both namespaces. Descriptors are remapped so that they stay
// in the new original namespace.
func (f *File) Reverse() *File {
	out := NewFile()
	for orig, mapped := range f.Packages {
		out.Packages[mapped] = orig
	}
	for _, c := range f.Classes {
		rc := out.AddClass(c.Mapped, c.Original)
		for _, fd := range c.Fields {
			rc.AddField(fd.Mapped, fd.Original, f.RemapDescriptor(fd.Desc))
		}
		for _, m := range c.Methods {
			rm := rc.AddMethod(m.Mapped, m.Original, f.RemapDescriptor(m.Desc))
			rm.Static = m.Static
			for _, p := range m.Params {
				rm.AddParam(p.Index, p.Mapped, p.Original)
			}
		}
	}
	return out
}

// Chain composes f (a -> b) with next (b -> c) into a -> c. Entries next does
// not know keep their b name.
func (f *File) Chain(next *File) *File {
	out := NewFile()
	for orig, mapped := range f.Packages {
		if m, ok := next.Packages[mapped]; ok {
			mapped = m
		}
		out.Packages[orig] = mapped
	}
	for _, c := range f.Classes {
		nc := next.Class(c.Mapped)
		mappedName := next.RemapClass(c.Mapped)
		oc := out.AddClass(c.Original, mappedName)
		for _, fd := range c.Fields {
			target := fd.Mapped
			if nc != nil {
				if nf := nc.Field(fd.Mapped); nf != nil {
					target = nf.Mapped
				}
			}
			oc.AddField(fd.Original, target, fd.Desc)
		}
		for _, m := range c.Methods {
			var nm *Method
			if nc != nil {
				nm = nc.Method(m.Mapped, f.RemapDescriptor(m.Desc))
			}
			target := m.Mapped
			if nm != nil {
				target = nm.Mapped
			}
			om := oc.AddMethod(m.Original, target, m.Desc)
			om.Static = m.Static
			for _, p := range m.Params {
				ptarget := p.Mapped
				if nm != nil {
					if np := nm.Param(p.Index); np != nil {
						ptarget = np.Mapped
					}
				}
				om.AddParam(p.Index, p.Original, ptarget)
			}
		}
	}
	return out
}
