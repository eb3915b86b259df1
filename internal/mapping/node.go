package mapping

import (
	"fmt"
	"strings"
)

// Side says which distribution a class or member exists in.
type Side int

const (
	Client Side = iota
	Server
	Both
)

// Code returns the MCP CSV encoding of the side: 0 client, 1 server, 2 both.
func (s Side) Code() string {
	switch s {
	case Client:
		return "0"
	case Server:
		return "1"
	default:
		return "2"
	}
}

func (s Side) String() string {
	switch s {
	case Client:
		return "CLIENT"
	case Server:
		return "SERVER"
	default:
		return "BOTH"
	}
}

// ParseSide accepts the CSV codes and the side names. Empty input is Both.
func ParseSide(v string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "2", "BOTH":
		return Both, nil
	case "0", "CLIENT":
		return Client, nil
	case "1", "SERVER":
		return Server, nil
	}
	return Both, fmt.Errorf("unknown side %q", v)
}

// Node is one immutable mapping entry. The original name is its identity;
// the With* methods return the receiver itself when nothing changes and a
// fresh copy otherwise.
type Node struct {
	original string
	mapped   string
	side     Side
	javadoc  string
}

// NewNode creates a node. An empty mapped name defaults to the original.
func NewNode(original, mapped string, side Side, javadoc string) *Node {
	if mapped == "" {
		mapped = original
	}
	return &Node{original: original, mapped: mapped, side: side, javadoc: javadoc}
}

func (n *Node) Original() string { return n.original }
func (n *Node) Mapped() string   { return n.mapped }
func (n *Node) Side() Side       { return n.side }
func (n *Node) Javadoc() string  { return n.javadoc }

// HasJavadoc reports whether the node carries non-empty documentation.
func (n *Node) HasJavadoc() bool { return n.javadoc != "" }

func (n *Node) WithMapping(mapped string) *Node {
	if mapped == n.mapped {
		return n
	}
	c := *n
	c.mapped = mapped
	return &c
}

func (n *Node) WithSide(side Side) *Node {
	if side == n.side {
		return n
	}
	c := *n
	c.side = side
	return &c
}

func (n *Node) WithJavadoc(javadoc string) *Node {
	if javadoc == n.javadoc {
		return n
	}
	c := *n
	c.javadoc = javadoc
	return &c
}

// Equal compares all four fields.
func (n *Node) Equal(o *Node) bool {
	if n == nil || o == nil {
		return n == o
	}
	return *n == *o
}

func (n *Node) String() string {
	return fmt.Sprintf("%s -> %s [%s]", n.original, n.mapped, n.side)
}
