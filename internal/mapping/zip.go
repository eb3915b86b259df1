package mapping

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/lucasnoah/mcpforge/internal/fsutil"
)

// zipEpoch is stamped on every entry so identical input yields identical bytes.
var zipEpoch = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

var csvNames = map[Kind]string{
	Classes: "classes.csv",
	Fields:  "fields.csv",
	Methods: "methods.csv",
	Params:  "params.csv",
}

func keyColumn(k Kind) string {
	if k == Params {
		return "param"
	}
	return "searge"
}

// Generate writes the emitted subset of d to output as a mappings.zip.
func Generate(output string, d *Detail) error {
	var buf bytes.Buffer
	if err := WriteZip(&buf, d); err != nil {
		return err
	}
	if err := fsutil.WriteAtomic(output, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	return nil
}

// WriteZip streams the four CSV tables into a zip. Entry order, timestamps
// and row order are fixed.
func WriteZip(w io.Writer, d *Detail) error {
	zw := zip.NewWriter(w)
	for _, k := range Kinds {
		hdr := &zip.FileHeader{
			Name:     csvNames[k],
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("create %s: %w", hdr.Name, err)
		}
		if err := writeTable(entry, k, d); err != nil {
			return fmt.Errorf("write %s: %w", hdr.Name, err)
		}
	}
	return zw.Close()
}

func writeTable(w io.Writer, k Kind, d *Detail) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{keyColumn(k), "name", "side", "desc"}); err != nil {
		return err
	}
	for _, n := range d.Sorted(k) {
		if !Emitted(k, n) {
			continue
		}
		key, name := n.Original(), n.Mapped()
		if k == Classes {
			key, name = EncodeClass(key), EncodeClass(name)
		}
		if err := cw.Write([]string{key, name, n.Side().Code(), EncodeJavadoc(n.Javadoc())}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FromZip reads a mappings.zip from disk.
func FromZip(path string) (*Detail, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open mappings zip: %w", err)
	}
	defer zr.Close()
	d, err := ReadZip(&zr.Reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return d, nil
}

// ReadZip reads the CSV tables of a mappings zip. Missing tables are empty.
func ReadZip(zr *zip.Reader) (*Detail, error) {
	d := NewDetail()
	for _, k := range Kinds {
		f, err := zr.Open(csvNames[k])
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		err = readTable(f, k, d)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", csvNames[k], err)
		}
	}
	return d, nil
}

func readTable(r io.Reader, k Kind, d *Detail) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[h] = i
	}
	keyIdx, ok := cols[keyColumn(k)]
	if !ok && k == Params {
		keyIdx, ok = cols["searge"]
	}
	if !ok {
		return fmt.Errorf("missing %q column", keyColumn(k))
	}
	get := func(row []string, col string) (string, bool) {
		i, ok := cols[col]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if keyIdx >= len(row) || row[keyIdx] == "" {
			continue
		}
		key := row[keyIdx]
		name, ok := get(row, "name")
		if !ok || name == "" {
			name = key
		}
		side := Both
		if v, ok := get(row, "side"); ok {
			if side, err = ParseSide(v); err != nil {
				line, _ := cr.FieldPos(keyIdx)
				return fmt.Errorf("line %d: %w", line, err)
			}
		}
		desc, _ := get(row, "desc")
		if k == Classes {
			key, name = DecodeClass(key), DecodeClass(name)
		}
		d.Put(k, NewNode(key, name, side, DecodeJavadoc(desc)))
	}
}
