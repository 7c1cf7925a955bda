package compile

import (
	"sort"
	"strings"

	"github.com/specweave/specweave/core/buildcache"
	"github.com/specweave/specweave/core/document"
	"github.com/specweave/specweave/core/fence"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
	"github.com/specweave/specweave/core/pipeline"
	"github.com/specweave/specweave/internal/logging"
)

// initHandler lowers each document tree into IR rows and persists them.
// The first heading of the document becomes the Specification; every
// later heading becomes a SpecObject parented on the nearest shallower
// heading. Fenced blocks become floats or views, links and
// selector-prefixed attribute values become relations, and heading
// attributes become cast EAV rows.
type initHandler struct {
	c *Compiler
}

func (h *initHandler) Name() string            { return "lower" }
func (h *initHandler) Prerequisites() []string { return []string{} }

func (h *initHandler) Initialize(ctxs []*pipeline.Context) error {
	for _, pc := range ctxs {
		if err := h.initOne(pc); err != nil {
			return err
		}
	}
	return nil
}

// initOne populates, persists, and snapshots one document's IR. The IR is
// rebuilt even for clean documents so cross-document resolution sees the
// full batch; dirtiness only gates output regeneration at EMIT.
func (h *initHandler) initOne(pc *pipeline.Context) error {
	hashes, err := h.hashDocument(pc)
	if err == nil {
		dirty, derr := h.c.cache.IsDirtyWithIncludes(pc.Doc.Path, hashes.root, hashes.includes)
		if derr != nil {
			return derr
		}
		pc.Dirty = dirty
		h.c.hashes[pc.Doc.Path] = hashes
	} else {
		// Unhashable input (e.g. a synthetic tree) is always dirty and
		// never cached.
		pc.Dirty = true
	}

	spec := h.lower(pc.Doc, pc.Model)
	if err := h.c.store.SaveSpecification(spec); err != nil {
		return err
	}

	snap, err := h.c.store.LoadSnapshot(spec.ID)
	if err != nil {
		return err
	}
	pc.Spec = snap.Spec
	pc.Snapshot = snap
	logging.Debug("document_lowered", "path", pc.Doc.Path,
		"objects", len(snap.Objects), "relations", len(snap.Relations), "dirty", pc.Dirty)
	return nil
}

// hashDocument computes the root and include content hashes for the
// build cache.
func (h *initHandler) hashDocument(pc *pipeline.Context) (docHashes, error) {
	root, err := buildcache.HashFile(pc.Doc.Path)
	if err != nil {
		return docHashes{}, err
	}
	includes := make(map[string]string, len(pc.Doc.Includes))
	for _, inc := range pc.Doc.Includes {
		ih, err := buildcache.HashFile(inc)
		if err != nil {
			return docHashes{}, err
		}
		includes[inc] = ih
	}
	return docHashes{root: root, includes: includes}, nil
}

// lower walks the document's top-level blocks in order, building the
// specification and its object tree.
func (h *initHandler) lower(doc *document.Document, modelName string) *ir.Specification {
	spec := &ir.Specification{
		TypeRef: DefaultSpecificationType,
		Title:   doc.Path,
		Path:    doc.Path,
	}

	// stack holds the open heading chain, shallowest first.
	var stack []*ir.Object
	specSeen := false

	current := func() *ir.Object {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for _, n := range doc.Root.Children {
		switch n.Kind {
		case document.KindHeading:
			title := strings.TrimSpace(document.PlainText(n))
			if !specSeen {
				specSeen = true
				h.initSpec(spec, n, title, modelName)
				continue
			}

			obj := h.newObject(spec, n, title, modelName)

			// Pop to the nearest shallower heading; the remaining top
			// of the stack is the parent.
			for len(stack) > 0 && stack[len(stack)-1].Level >= obj.Level {
				stack = stack[:len(stack)-1]
			}
			if p := current(); p != nil {
				obj.ParentKey = p.Key
				p.Children = append(p.Children, obj)
			} else {
				spec.Objects = append(spec.Objects, obj)
			}
			stack = append(stack, obj)

		case document.KindFence:
			if o := current(); o != nil {
				h.lowerFence(spec, o, n)
			}

		default:
			o := current()
			if o == nil {
				continue
			}
			if text := strings.TrimSpace(document.PlainText(n)); text != "" {
				if o.Body != "" {
					o.Body += "\n"
				}
				o.Body += text
			}
			h.extractLinks(o, n)
		}
	}
	return spec
}

// initSpec fills the specification from its title heading.
func (h *initHandler) initSpec(spec *ir.Specification, n *document.Node, title, modelName string) {
	spec.Title = title
	if t, ok := n.Attrs[attrType]; ok && t != "" {
		spec.TypeRef = t
	}
	if pid, ok := n.Attrs[attrPID]; ok && pid != "" {
		spec.PID = pid
	} else {
		spec.PID = h.nextPID(spec.TypeRef)
	}
	spec.Attributes = h.lowerAttrs(n, modelName, model.CategorySpecification, spec.TypeRef,
		ir.OwnerSpecification, spec.PID, nil)
}

// newObject builds one object from a sub-heading.
func (h *initHandler) newObject(spec *ir.Specification, n *document.Node, title, modelName string) *ir.Object {
	obj := &ir.Object{
		Key:     ir.ObjectKey(spec.Path, n.Pos.Line, title),
		TypeRef: DefaultObjectType,
		Title:   title,
		Level:   n.Level,
		Line:    n.Pos.Line,
		Label:   n.Attrs[attrLabel],
	}
	if t, ok := n.Attrs[attrType]; ok && t != "" {
		obj.TypeRef = t
	}
	if pid, ok := n.Attrs[attrPID]; ok && pid != "" {
		obj.PID = pid
	} else {
		obj.PID = h.nextPID(obj.TypeRef)
	}
	obj.Attributes = h.lowerAttrs(n, modelName, model.CategoryObject, obj.TypeRef,
		ir.OwnerObject, obj.Key, obj)
	return obj
}

// nextPID generates the next auto-assigned PID for a type. Sequences are
// per type and batch-wide, so generated PIDs never collide within a run.
func (h *initHandler) nextPID(typeRef string) string {
	h.c.pidSeq[typeRef]++
	return ir.GeneratePID(typeRef, h.c.pidSeq[typeRef])
}

// lowerAttrs converts heading attributes to cast EAV rows, skipping the
// reserved keys. Selector-prefixed attribute values additionally yield
// relations on the owning object.
func (h *initHandler) lowerAttrs(n *document.Node, modelName string, cat model.Category,
	typeRef string, kind ir.OwnerKind, ownerKey string, owner *ir.Object) []*ir.AttributeValue {

	defs := h.c.registry.ResolveAttributes(modelName, cat, typeRef)
	defByName := make(map[string]*model.AttributeDefinition, len(defs))
	for _, d := range defs {
		defByName[d.Name] = d
	}

	var out []*ir.AttributeValue
	for name, raw := range n.Attrs {
		if name == attrPID || name == attrType || name == attrLabel {
			continue
		}
		av := &ir.AttributeValue{
			OwnerKind: kind,
			OwnerKey:  ownerKey,
			Name:      name,
			RawValue:  raw,
			Datatype:  ir.DatatypeString,
			Line:      n.Pos.Line,
		}
		var enumValues []string
		if d, ok := defByName[name]; ok {
			av.Datatype = d.Datatype
			enumValues = d.EnumValues
		}
		ir.Cast(av, enumValues)
		out = append(out, av)

		if owner != nil {
			if rel := h.relationFromText(owner, name, raw, n.Pos.Line); rel != nil {
				owner.Relations = append(owner.Relations, rel)
			}
		}
	}

	// Map iteration order is random; persist rows deterministically.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// lowerFence turns one fenced block into a float or a view. A fence whose
// info string does not parse is a plain code block and joins the body.
func (h *initHandler) lowerFence(spec *ir.Specification, o *ir.Object, n *document.Node) {
	info, err := fence.Parse(n.Info)
	if err != nil {
		if o.Body != "" {
			o.Body += "\n"
		}
		o.Body += n.Text
		return
	}

	if info.IsView() {
		o.Views = append(o.Views, &ir.View{
			ParentObjectKey: o.Key,
			ViewTypeRef:     info.ViewName(),
			RawParam:        info.Param,
			Line:            n.Pos.Line,
		})
		return
	}

	o.Floats = append(o.Floats, &ir.Float{
		Key:             ir.FloatKey(spec.Path, n.Pos.Line, info.Label),
		ParentObjectKey: o.Key,
		TypeRef:         info.Type,
		Label:           info.Label,
		Caption:         info.Caption,
		RawContent:      n.Text,
		Line:            n.Pos.Line,
	})
}

// extractLinks walks a content block for links whose target begins with a
// registered selector, appending a relation per match.
func (h *initHandler) extractLinks(o *ir.Object, n *document.Node) {
	selectors := h.c.resolver.Selectors()
	document.Walk(n, func(c *document.Node) bool {
		if c.Kind != document.KindLink {
			return true
		}
		sel := selectorOf(selectors, c.Target)
		if sel == "" {
			return true
		}
		ref := c.Target[len(sel):]
		if ref == "" {
			// A bare-selector target carries the reference in the link
			// text, e.g. [fig:diagram](#).
			ref = strings.TrimSpace(c.Text)
		}
		if ref == "" {
			return true
		}
		o.Relations = append(o.Relations, &ir.Relation{
			SourceObjectKey: o.Key,
			TargetText:      ref,
			Selector:        sel,
			SourceAttribute: ir.RelationSourceBody,
			Line:            c.Pos.Line,
		})
		return true
	})
}

// relationFromText builds a relation when text begins with a registered
// selector. Selectors are tried longest first so multi-character
// selectors win over their prefixes.
func (h *initHandler) relationFromText(o *ir.Object, sourceAttr, text string, line int) *ir.Relation {
	sel := selectorOf(h.c.resolver.Selectors(), text)
	if sel == "" {
		return nil
	}
	rest := strings.TrimPrefix(text, sel)
	if rest == "" {
		return nil
	}
	return &ir.Relation{
		SourceObjectKey: o.Key,
		TargetText:      rest,
		Selector:        sel,
		SourceAttribute: sourceAttr,
		Line:            line,
	}
}

// selectorOf returns the first (longest) registered selector prefixing
// text, or empty.
func selectorOf(selectors []string, text string) string {
	for _, sel := range selectors {
		if strings.HasPrefix(text, sel) {
			return sel
		}
	}
	return ""
}
