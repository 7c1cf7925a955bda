package ir

import (
	"strconv"
	"strings"
	"time"
)

// Datatype is the declared type of an attribute value.
type Datatype string

// Datatype constants.
const (
	DatatypeString  Datatype = "STRING"
	DatatypeInteger Datatype = "INTEGER"
	DatatypeReal    Datatype = "REAL"
	DatatypeBoolean Datatype = "BOOLEAN"
	DatatypeDate    Datatype = "DATE"
	DatatypeEnum    Datatype = "ENUM"
)

// validDatatypes is the set of valid attribute datatypes.
var validDatatypes = map[Datatype]bool{
	DatatypeString:  true,
	DatatypeInteger: true,
	DatatypeReal:    true,
	DatatypeBoolean: true,
	DatatypeDate:    true,
	DatatypeEnum:    true,
}

// IsValid returns true if the datatype is valid.
func (d Datatype) IsValid() bool {
	return validDatatypes[d]
}

// dateLayout is the accepted date format for DATE attributes.
const dateLayout = "2006-01-02"

// Cast attempts to type av.RawValue against av.Datatype, populating
// exactly one typed slot on success. On failure every typed slot is left
// nil; the raw value is always retained. Cast never returns an error:
// a failed cast is queryable IR state, surfaced by the invalid-cast
// proof view.
//
// enumValues is consulted only for DatatypeEnum and lists the permitted
// members from the attribute's definition.
func Cast(av *AttributeValue, enumValues []string) {
	av.StringVal = nil
	av.IntVal = nil
	av.RealVal = nil
	av.BoolVal = nil
	av.DateVal = nil
	av.EnumRef = nil

	raw := strings.TrimSpace(av.RawValue)

	switch av.Datatype {
	case DatatypeString:
		v := raw
		av.StringVal = &v
	case DatatypeInteger:
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			av.IntVal = &v
		}
	case DatatypeReal:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			av.RealVal = &v
		}
	case DatatypeBoolean:
		if v, err := strconv.ParseBool(strings.ToLower(raw)); err == nil {
			av.BoolVal = &v
		}
	case DatatypeDate:
		if _, err := time.Parse(dateLayout, raw); err == nil {
			v := raw
			av.DateVal = &v
		}
	case DatatypeEnum:
		for _, member := range enumValues {
			if member == raw {
				v := raw
				av.EnumRef = &v
				break
			}
		}
	}
}
