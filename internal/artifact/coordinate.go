package artifact

import (
	"fmt"
	"path"
	"strings"
)

// Coordinate is a maven artifact reference of the form
// group:artifact:version[:classifier][@ext].
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	Ext        string
}

// ParseCoordinate parses a maven coordinate. The extension defaults to jar.
func ParseCoordinate(s string) (Coordinate, error) {
	var c Coordinate
	body, ext, hasExt := strings.Cut(s, "@")
	if hasExt && ext == "" {
		return c, fmt.Errorf("invalid coordinate %q: empty extension", s)
	}
	parts := strings.Split(body, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return c, fmt.Errorf("invalid coordinate %q: want group:artifact:version[:classifier][@ext]", s)
	}
	for _, p := range parts {
		if p == "" {
			return c, fmt.Errorf("invalid coordinate %q: empty segment", s)
		}
	}
	c.Group, c.Artifact, c.Version = parts[0], parts[1], parts[2]
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	c.Ext = "jar"
	if hasExt {
		c.Ext = ext
	}
	return c, nil
}

// FileName returns artifact-version[-classifier].ext.
func (c Coordinate) FileName() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return name + "." + c.Ext
}

// Path returns the slash separated maven repository layout path.
func (c Coordinate) Path() string {
	return path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Artifact, c.Version, c.FileName())
}

func (c Coordinate) String() string {
	s := c.Group + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Ext != "" && c.Ext != "jar" {
		s += "@" + c.Ext
	}
	return s
}
