// Package assemble reconstructs an output document tree from IR state for
// handoff to external renderers. The core never depends on a renderer's
// internal behavior, only on it accepting the documented tree shape. The
// package also writes the interchange artifacts: plain or xz-compressed
// JSON, and ReqIF XML for requirements interchange.
package assemble

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// Tree is the assembled output for one specification.
type Tree struct {
	// PID is the specification's public identifier.
	PID string `json:"pid"`

	// Title is the specification title.
	Title string `json:"title"`

	// TypeRef is the specification type.
	TypeRef string `json:"type_ref"`

	// TypeName is the display name of the specification type.
	TypeName string `json:"type_name,omitempty"`

	// Attributes are the specification-level attribute decorations.
	Attributes []Attribute `json:"attributes,omitempty"`

	// Nodes are the top-level objects in document order.
	Nodes []*Node `json:"nodes,omitempty"`
}

// Node is one assembled object with its decorations.
type Node struct {
	PID      string `json:"pid"`
	Title    string `json:"title"`
	TypeRef  string `json:"type_ref"`
	TypeName string `json:"type_name,omitempty"`
	Label    string `json:"label,omitempty"`
	Level    int    `json:"level"`
	Body     string `json:"body,omitempty"`

	Attributes []Attribute `json:"attributes,omitempty"`
	Floats     []*FloatOut `json:"floats,omitempty"`
	Views      []*ViewOut  `json:"views,omitempty"`
	Relations  []*Link     `json:"relations,omitempty"`
	Children   []*Node     `json:"children,omitempty"`
}

// Attribute is a display-ready attribute value.
type Attribute struct {
	Name string `json:"name"`
	// Raw is the authored value.
	Raw string `json:"raw"`
	// Display is the typed value rendered for display; equals Raw for
	// strings, empty when the cast failed.
	Display string `json:"display,omitempty"`
	// CastOK mirrors the EAV row's cast state for renderer styling.
	CastOK bool `json:"cast_ok"`
}

// FloatOut is a numbered float with resolved content.
type FloatOut struct {
	TypeRef  string `json:"type_ref"`
	TypeName string `json:"type_name,omitempty"`
	Label    string `json:"label,omitempty"`
	Number   int    `json:"number"`
	Caption  string `json:"caption,omitempty"`
	// Content is the resolved content when rendering succeeded, else
	// the raw content.
	Content string `json:"content"`
	// Rendered reports whether Content is externally rendered output.
	Rendered bool `json:"rendered"`
}

// ViewOut is a materialized view.
type ViewOut struct {
	TypeRef string `json:"type_ref"`
	Content string `json:"content,omitempty"`
}

// Link is an assembled relation decoration.
type Link struct {
	TypeRef   string `json:"type_ref,omitempty"`
	Selector  string `json:"selector"`
	Target    string `json:"target"`
	Resolved  bool   `json:"resolved"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
}

// Assemble builds the output tree for one specification snapshot.
func Assemble(snap *ir.Snapshot, reg *model.Registry, modelName string) *Tree {
	spec := snap.Spec
	t := &Tree{
		PID:     spec.PID,
		Title:   spec.Title,
		TypeRef: spec.TypeRef,
	}
	if td := reg.Resolve(modelName, model.CategorySpecification, spec.TypeRef); td != nil {
		t.TypeName = td.LongName
	}
	t.Attributes = assembleAttrs(snap.AttributesOf(ir.OwnerSpecification, spec.PID))

	for _, o := range spec.Objects {
		t.Nodes = append(t.Nodes, assembleNode(o, snap, reg, modelName))
	}
	return t
}

// assembleNode builds one object node and its subtree.
func assembleNode(o *ir.Object, snap *ir.Snapshot, reg *model.Registry, modelName string) *Node {
	n := &Node{
		PID:     o.PID,
		Title:   o.Title,
		TypeRef: o.TypeRef,
		Label:   o.Label,
		Level:   o.Level,
		Body:    o.Body,
	}
	if td := reg.Resolve(modelName, model.CategoryObject, o.TypeRef); td != nil {
		n.TypeName = td.LongName
	}
	n.Attributes = assembleAttrs(snap.AttributesOf(ir.OwnerObject, o.Key))

	for _, f := range o.Floats {
		fo := &FloatOut{
			TypeRef: f.TypeRef,
			Label:   f.Label,
			Number:  f.Number,
			Caption: f.Caption,
		}
		if td := reg.Resolve(modelName, model.CategoryFloat, f.TypeRef); td != nil {
			fo.TypeName = td.LongName
		}
		if f.ResolvedContent != nil {
			fo.Content = *f.ResolvedContent
			fo.Rendered = true
		} else {
			fo.Content = f.RawContent
		}
		n.Floats = append(n.Floats, fo)
	}

	for _, v := range o.Views {
		vo := &ViewOut{TypeRef: v.ViewTypeRef}
		if v.ResolvedContent != nil {
			vo.Content = *v.ResolvedContent
		}
		n.Views = append(n.Views, vo)
	}

	for _, r := range o.Relations {
		link := &Link{
			Selector:  r.Selector,
			Target:    r.TargetText,
			Resolved:  r.Resolved(),
			Ambiguous: r.IsAmbiguous,
		}
		if r.TypeRef != nil {
			link.TypeRef = *r.TypeRef
		}
		n.Relations = append(n.Relations, link)
	}

	for _, c := range o.Children {
		n.Children = append(n.Children, assembleNode(c, snap, reg, modelName))
	}
	return n
}

// assembleAttrs converts EAV rows to display decorations.
func assembleAttrs(rows []*ir.AttributeValue) []Attribute {
	var out []Attribute
	for _, a := range rows {
		attr := Attribute{Name: a.Name, Raw: a.RawValue, CastOK: a.CastOK()}
		if attr.CastOK {
			attr.Display = strings.TrimSpace(a.RawValue)
		}
		out = append(out, attr)
	}
	return out
}

// WriteJSON serializes the tree to path as indented JSON. Paths ending in
// ".xz" are xz-compressed.
func WriteJSON(t *Tree, path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal tree")
	}

	if strings.HasSuffix(path, ".xz") {
		f, err := os.Create(path)
		if err != nil {
			return errors.NewIO("create", path, err)
		}
		w, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			return errors.Wrap(err, "xz writer")
		}
		if _, err := w.Write(data); err != nil {
			w.Close()
			f.Close()
			return errors.NewIO("write", path, err)
		}
		if err := w.Close(); err != nil {
			f.Close()
			return errors.Wrap(err, "close xz stream")
		}
		return errors.Wrap(f.Close(), "close artifact")
	}

	return errors.Wrap(os.WriteFile(path, data, 0644), "write artifact")
}

// ReadJSON loads a tree artifact, transparently decompressing ".xz"
// paths. Used by tests and downstream tooling.
func ReadJSON(path string) (*Tree, error) {
	var data []byte
	if strings.HasSuffix(path, ".xz") {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.NewIO("open", path, err)
		}
		defer f.Close()
		r, err := xz.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "xz reader")
		}
		data, err = io.ReadAll(r)
		if err != nil {
			return nil, errors.NewIO("read", path, err)
		}
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.NewIO("read", path, err)
		}
	}

	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.NewParse("JSON", path, err.Error())
	}
	return &t, nil
}
