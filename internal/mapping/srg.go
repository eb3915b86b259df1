package mapping

import "fmt"

// FromSrg builds a detail from a mapping file whose left side holds the
// table keys. Member keys are bare names, so duplicates across classes
// collapse with the last one winning. Every entry is marked Both.
func FromSrg(f *File) *Detail {
	return fromSrgSide(f, Both)
}

func fromSrgSide(f *File, side Side) *Detail {
	d := NewDetail()
	for _, c := range f.Classes {
		d.Put(Classes, NewNode(c.Original, c.Mapped, side, ""))
		for _, fd := range c.Fields {
			d.Put(Fields, NewNode(fd.Original, fd.Mapped, side, ""))
		}
		for _, m := range c.Methods {
			d.Put(Methods, NewNode(m.Original, m.Mapped, side, ""))
			for _, p := range m.Params {
				d.Put(Params, NewNode(p.Original, p.Mapped, side, ""))
			}
		}
	}
	return d
}

// FromSrgSided merges a client and a server mapping. Names present in both
// are Both, names present in only one file take that file's side. The client
// mapping wins when both sides map a name differently.
func FromSrgSided(client, server *File) *Detail {
	c := fromSrgSide(client, Client)
	s := fromSrgSide(server, Server)
	out := NewDetail()
	for _, k := range Kinds {
		ct, st, ot := c.Table(k), s.Table(k), out.Table(k)
		for key, n := range ct {
			if _, ok := st[key]; ok {
				n = n.WithSide(Both)
			}
			ot[key] = n
		}
		for key, n := range st {
			if _, ok := ct[key]; !ok {
				ot[key] = n
			}
		}
	}
	return out
}

// FromSrgPath parses path and builds a detail from it.
func FromSrgPath(path string) (*Detail, error) {
	f, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return FromSrg(f), nil
}

// FromSrgPaths parses a client and a server mapping file and merges them.
func FromSrgPaths(clientPath, serverPath string) (*Detail, error) {
	client, err := ParseFile(clientPath)
	if err != nil {
		return nil, fmt.Errorf("client mappings: %w", err)
	}
	server, err := ParseFile(serverPath)
	if err != nil {
		return nil, fmt.Errorf("server mappings: %w", err)
	}
	return FromSrgSided(client, server), nil
}
