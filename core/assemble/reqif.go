package assemble

import (
	"encoding/xml"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
	"github.com/specweave/specweave/core/model"
)

// reqif.go - ReqIF 1.2 export. One specification snapshot maps to one
// REQ-IF document: object types become SPEC-OBJECT-TYPEs with string
// attribute definitions, objects become SPEC-OBJECTs keyed by PID,
// resolved typed relations become SPEC-RELATIONs, and the heading tree
// becomes the SPECIFICATION hierarchy. Identifiers are derived from PIDs
// and type IDs so repeated exports of the same IR are byte-stable apart
// from the header timestamp.

const reqifNamespace = "http://www.omg.org/spec/ReqIF/20110401/reqif.xsd"

// reqIF is the document root.
type reqIF struct {
	XMLName xml.Name     `xml:"REQ-IF"`
	XMLNS   string       `xml:"xmlns,attr"`
	Header  reqIFHeader  `xml:"THE-HEADER>REQ-IF-HEADER"`
	Content reqIFContent `xml:"CORE-CONTENT>REQ-IF-CONTENT"`
}

type reqIFHeader struct {
	Identifier   string `xml:"IDENTIFIER,attr"`
	CreationTime string `xml:"CREATION-TIME"`
	ReqIFVersion string `xml:"REQ-IF-VERSION"`
	SourceTool   string `xml:"SOURCE-TOOL-ID"`
	Title        string `xml:"TITLE"`
}

type reqIFContent struct {
	Datatypes      []datatypeDefinition `xml:"DATATYPES>DATATYPE-DEFINITION-STRING"`
	SpecTypes      specTypes            `xml:"SPEC-TYPES"`
	SpecObjects    []specObject         `xml:"SPEC-OBJECTS>SPEC-OBJECT"`
	SpecRelations  []specRelation       `xml:"SPEC-RELATIONS>SPEC-RELATION"`
	Specifications []specification      `xml:"SPECIFICATIONS>SPECIFICATION"`
}

type datatypeDefinition struct {
	Identifier string `xml:"IDENTIFIER,attr"`
	LongName   string `xml:"LONG-NAME,attr"`
	MaxLength  int    `xml:"MAX-LENGTH,attr"`
}

type specTypes struct {
	ObjectTypes   []specObjectType   `xml:"SPEC-OBJECT-TYPE"`
	RelationTypes []specRelationType `xml:"SPEC-RELATION-TYPE"`
}

type specObjectType struct {
	Identifier string          `xml:"IDENTIFIER,attr"`
	LongName   string          `xml:"LONG-NAME,attr"`
	Attributes []attributeDefn `xml:"SPEC-ATTRIBUTES>ATTRIBUTE-DEFINITION-STRING"`
}

type specRelationType struct {
	Identifier string `xml:"IDENTIFIER,attr"`
	LongName   string `xml:"LONG-NAME,attr"`
}

type attributeDefn struct {
	Identifier string `xml:"IDENTIFIER,attr"`
	LongName   string `xml:"LONG-NAME,attr"`
	TypeRef    string `xml:"TYPE>DATATYPE-DEFINITION-STRING-REF"`
}

type specObject struct {
	Identifier string           `xml:"IDENTIFIER,attr"`
	LongName   string           `xml:"LONG-NAME,attr"`
	TypeRef    string           `xml:"TYPE>SPEC-OBJECT-TYPE-REF"`
	Values     []attributeValue `xml:"VALUES>ATTRIBUTE-VALUE-STRING"`
}

type attributeValue struct {
	Value   string `xml:"THE-VALUE,attr"`
	DefnRef string `xml:"DEFINITION>ATTRIBUTE-DEFINITION-STRING-REF"`
}

type specRelation struct {
	Identifier string `xml:"IDENTIFIER,attr"`
	TypeRef    string `xml:"TYPE>SPEC-RELATION-TYPE-REF"`
	Source     string `xml:"SOURCE>SPEC-OBJECT-REF"`
	Target     string `xml:"TARGET>SPEC-OBJECT-REF"`
}

type specification struct {
	Identifier string          `xml:"IDENTIFIER,attr"`
	LongName   string          `xml:"LONG-NAME,attr"`
	Children   []specHierarchy `xml:"CHILDREN>SPEC-HIERARCHY"`
}

type specHierarchy struct {
	Identifier string          `xml:"IDENTIFIER,attr"`
	ObjectRef  string          `xml:"OBJECT>SPEC-OBJECT-REF"`
	Children   []specHierarchy `xml:"CHILDREN>SPEC-HIERARCHY,omitempty"`
}

// ExportReqIF writes a ReqIF 1.2 document for one specification snapshot.
// Only resolved, typed, object-to-object relations are exported; float
// targets and unresolved links have no ReqIF representation.
func ExportReqIF(snap *ir.Snapshot, reg *model.Registry, modelName, path string) error {
	doc := buildReqIF(snap, reg, modelName, time.Now().UTC())

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal ReqIF")
	}
	data = append([]byte(xml.Header), data...)
	return errors.Wrap(os.WriteFile(path, data, 0644), "write ReqIF")
}

// buildReqIF assembles the document model. Split out so tests can inspect
// the structure without touching the filesystem.
func buildReqIF(snap *ir.Snapshot, reg *model.Registry, modelName string, now time.Time) *reqIF {
	spec := snap.Spec
	doc := &reqIF{
		XMLNS: reqifNamespace,
		Header: reqIFHeader{
			Identifier:   "hdr-" + spec.PID,
			CreationTime: now.Format(time.RFC3339),
			ReqIFVersion: "1.2",
			SourceTool:   "specweave",
			Title:        spec.Title,
		},
	}
	doc.Content.Datatypes = []datatypeDefinition{
		{Identifier: "dt-string", LongName: "String", MaxLength: 32000},
	}

	// Types and attribute definitions for every object type the
	// snapshot actually uses, in sorted order.
	usedTypes := map[string]bool{}
	for _, o := range snap.Objects {
		usedTypes[o.TypeRef] = true
	}
	typeIDs := make([]string, 0, len(usedTypes))
	for id := range usedTypes {
		typeIDs = append(typeIDs, id)
	}
	sort.Strings(typeIDs)

	attrDefnIDs := map[string]map[string]string{}
	for _, typeID := range typeIDs {
		ot := specObjectType{Identifier: "sot-" + typeID, LongName: typeID}
		if td := reg.Resolve(modelName, model.CategoryObject, typeID); td != nil && td.LongName != "" {
			ot.LongName = td.LongName
		}
		byName := map[string]string{}
		for _, ad := range reg.ResolveAttributes(modelName, model.CategoryObject, typeID) {
			if _, seen := byName[ad.Name]; seen {
				continue
			}
			id := "ad-" + typeID + "-" + ad.Name
			byName[ad.Name] = id
			ot.Attributes = append(ot.Attributes, attributeDefn{
				Identifier: id,
				LongName:   ad.Name,
				TypeRef:    "dt-string",
			})
		}
		attrDefnIDs[typeID] = byName
		doc.Content.SpecTypes.ObjectTypes = append(doc.Content.SpecTypes.ObjectTypes, ot)
	}

	// Objects in document order. All attribute values export as strings;
	// the raw authored text is the interchange form.
	for _, o := range snap.Objects {
		so := specObject{
			Identifier: "so-" + o.PID,
			LongName:   o.Title,
			TypeRef:    "sot-" + o.TypeRef,
		}
		for _, av := range snap.AttributesOf(ir.OwnerObject, o.Key) {
			defnID, ok := attrDefnIDs[o.TypeRef][av.Name]
			if !ok {
				continue
			}
			so.Values = append(so.Values, attributeValue{Value: av.RawValue, DefnRef: defnID})
		}
		doc.Content.SpecObjects = append(doc.Content.SpecObjects, so)
	}

	// Relations. Only object targets carry a PID to reference.
	relTypes := map[string]bool{}
	relSeq := 0
	for _, r := range snap.Relations {
		if !r.Resolved() || !r.Typed() || r.TargetIsFloat {
			continue
		}
		source := snap.ObjectByKey(r.SourceObjectKey)
		target := snap.ObjectByKey(*r.TargetRef)
		if source == nil || target == nil {
			continue
		}
		relSeq++
		typeID := *r.TypeRef
		relTypes[typeID] = true
		doc.Content.SpecRelations = append(doc.Content.SpecRelations, specRelation{
			Identifier: "sr-" + source.PID + "-" + strconv.Itoa(relSeq),
			TypeRef:    "srt-" + typeID,
			Source:     "so-" + source.PID,
			Target:     "so-" + target.PID,
		})
	}
	relTypeIDs := make([]string, 0, len(relTypes))
	for id := range relTypes {
		relTypeIDs = append(relTypeIDs, id)
	}
	sort.Strings(relTypeIDs)
	for _, typeID := range relTypeIDs {
		rt := specRelationType{Identifier: "srt-" + typeID, LongName: typeID}
		if td := reg.Resolve(modelName, model.CategoryRelation, typeID); td != nil && td.LongName != "" {
			rt.LongName = td.LongName
		}
		doc.Content.SpecTypes.RelationTypes = append(doc.Content.SpecTypes.RelationTypes, rt)
	}

	// Hierarchy mirrors the heading tree.
	root := specification{Identifier: "spec-" + spec.PID, LongName: spec.Title}
	for _, o := range spec.Objects {
		root.Children = append(root.Children, hierarchyOf(o))
	}
	doc.Content.Specifications = []specification{root}
	return doc
}

// hierarchyOf builds the SPEC-HIERARCHY node for one object subtree.
func hierarchyOf(o *ir.Object) specHierarchy {
	h := specHierarchy{
		Identifier: "sh-" + o.PID,
		ObjectRef:  "so-" + o.PID,
	}
	for _, c := range o.Children {
		h.Children = append(h.Children, hierarchyOf(c))
	}
	return h
}
