// Package document defines the generic block/inline tree the compiler
// consumes at its input boundary. A Markdown (or other) front end produces
// this tree; the core never parses raw text itself. Given a conformant
// tree, INITIALIZE deterministically produces the same IR population on
// repeated runs.
package document

// NodeKind identifies the structural role of a node in the tree.
type NodeKind string

// Node kind constants.
const (
	KindDocument   NodeKind = "document"
	KindHeading    NodeKind = "heading"
	KindParagraph  NodeKind = "paragraph"
	KindFence      NodeKind = "fence"
	KindBlockQuote NodeKind = "block_quote"
	KindList       NodeKind = "list"
	KindListItem   NodeKind = "list_item"
	KindLink       NodeKind = "link"
	KindText       NodeKind = "text"
)

// validNodeKinds is the set of node kinds the core accepts.
var validNodeKinds = map[NodeKind]bool{
	KindDocument:   true,
	KindHeading:    true,
	KindParagraph:  true,
	KindFence:      true,
	KindBlockQuote: true,
	KindList:       true,
	KindListItem:   true,
	KindLink:       true,
	KindText:       true,
}

// IsValid returns true if the node kind is one the core accepts.
func (k NodeKind) IsValid() bool {
	return validNodeKinds[k]
}

// Position is a source location. Line and Column are 1-indexed; a zero
// Position means "unknown".
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Node is one element of the document tree.
type Node struct {
	// Kind is the structural role of this node.
	Kind NodeKind `json:"kind"`

	// Pos is the source position of the node's first byte.
	Pos Position `json:"pos"`

	// Level is the heading depth (1-6); meaningful only for headings.
	Level int `json:"level,omitempty"`

	// Info is the fence info string (e.g. "plantuml:fig:arch Caption");
	// meaningful only for fences.
	Info string `json:"info,omitempty"`

	// Target is the link destination; meaningful only for links.
	Target string `json:"target,omitempty"`

	// Text is the literal content for text nodes, the raw body for
	// fences, and the link text for links.
	Text string `json:"text,omitempty"`

	// Attrs carries heading attributes authored in the source
	// (e.g. {pid=REQ-001 type=requirement}).
	Attrs map[string]string `json:"attrs,omitempty"`

	// Children are the nested nodes in document order.
	Children []*Node `json:"children,omitempty"`
}

// Document is a parsed source file plus its provenance.
type Document struct {
	// Path is the source file path, used for IR identity and caching.
	Path string `json:"path"`

	// Root is the top of the block tree; Root.Kind must be KindDocument.
	Root *Node `json:"root"`

	// Includes lists paths of files transcluded into this document, in
	// the order they were pulled in. The build cache tracks them.
	Includes []string `json:"includes,omitempty"`
}

// Walk visits n and all descendants in document order. If fn returns
// false the subtree below the current node is skipped.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Headings returns all heading nodes in document order.
func (d *Document) Headings() []*Node {
	var out []*Node
	Walk(d.Root, func(n *Node) bool {
		if n.Kind == KindHeading {
			out = append(out, n)
		}
		return true
	})
	return out
}

// PlainText flattens the text content of a node and its descendants.
func PlainText(n *Node) string {
	var out []byte
	Walk(n, func(c *Node) bool {
		if c.Kind == KindText || c.Kind == KindLink {
			out = append(out, c.Text...)
		}
		return true
	})
	return string(out)
}
