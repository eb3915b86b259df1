package mapping

import (
	"sort"
	"strings"
)

// Kind names one of the four mapping tables.
type Kind int

const (
	Classes Kind = iota
	Fields
	Methods
	Params
)

// Kinds lists the tables in their serialization order.
var Kinds = []Kind{Classes, Fields, Methods, Params}

func (k Kind) String() string {
	switch k {
	case Classes:
		return "classes"
	case Fields:
		return "fields"
	case Methods:
		return "methods"
	default:
		return "params"
	}
}

// Detail holds the four mapping tables keyed by original name.
type Detail struct {
	Classes map[string]*Node
	Fields  map[string]*Node
	Methods map[string]*Node
	Params  map[string]*Node
}

// NewDetail returns a detail with empty tables.
func NewDetail() *Detail {
	return &Detail{
		Classes: make(map[string]*Node),
		Fields:  make(map[string]*Node),
		Methods: make(map[string]*Node),
		Params:  make(map[string]*Node),
	}
}

// Table returns the map backing kind.
func (d *Detail) Table(k Kind) map[string]*Node {
	switch k {
	case Classes:
		return d.Classes
	case Fields:
		return d.Fields
	case Methods:
		return d.Methods
	default:
		return d.Params
	}
}

// Put stores n under its original name, replacing any earlier entry.
func (d *Detail) Put(k Kind, n *Node) {
	d.Table(k)[n.Original()] = n
}

// Sorted returns the nodes of a table ordered by original name.
func (d *Detail) Sorted(k Kind) []*Node {
	table := d.Table(k)
	out := make([]*Node, 0, len(table))
	for _, n := range table {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Original() < out[j].Original() })
	return out
}

// Len returns the total number of entries across all tables.
func (d *Detail) Len() int {
	return len(d.Classes) + len(d.Fields) + len(d.Methods) + len(d.Params)
}

// Emitted reports whether a node of kind is written to mappings.zip. Rows
// are kept when they look like SRG names or carry documentation.
func Emitted(k Kind, n *Node) bool {
	if n.HasJavadoc() {
		return true
	}
	name := n.Original()
	switch k {
	case Classes:
		return strings.HasPrefix(name, "net/minecraft/src/C_")
	case Fields:
		return strings.HasPrefix(name, "field_") || strings.HasPrefix(name, "f_")
	case Methods:
		return strings.HasPrefix(name, "func_") || strings.HasPrefix(name, "m_")
	default:
		return strings.HasPrefix(name, "p_")
	}
}

// Filtered returns the subset of d that Generate writes out.
func (d *Detail) Filtered() *Detail {
	out := NewDetail()
	for _, k := range Kinds {
		for key, n := range d.Table(k) {
			if Emitted(k, n) {
				out.Table(k)[key] = n
			}
		}
	}
	return out
}

// Equal compares two details table by table.
func (d *Detail) Equal(o *Detail) bool {
	for _, k := range Kinds {
		a, b := d.Table(k), o.Table(k)
		if len(a) != len(b) {
			return false
		}
		for key, n := range a {
			if !n.Equal(b[key]) {
				return false
			}
		}
	}
	return true
}
