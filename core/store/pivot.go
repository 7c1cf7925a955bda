package store

import (
	"fmt"
	"strings"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/model"
)

// RebuildPivotViews regenerates the read-only projection views that pivot
// the EAV attribute model into one-row-per-object, one-column-per-attribute
// form for external consumption (reporting, ad-hoc queries). The views are
// derived from the current type definitions and rebuilt wholesale, never
// hand-maintained. The core's own logic never queries them: it always
// addresses the raw EAV rows, which carry the datatype, raw-value, and ast
// fields the pivot hides.
func (s *Store) RebuildPivotViews(reg *model.Registry, modelName string) error {
	for _, td := range reg.TypesIn(modelName, model.CategoryObject) {
		viewName := pivotViewName(td.ID)
		if _, err := s.db.Exec(`DROP VIEW IF EXISTS ` + viewName); err != nil {
			return errors.Wrapf(err, "drop pivot view %s", viewName)
		}

		defs := reg.ResolveAttributes(modelName, model.CategoryObject, td.ID)
		var cols []string
		for _, ad := range defs {
			cols = append(cols, fmt.Sprintf(
				"MAX(CASE WHEN a.name = %s THEN %s END) AS %s",
				sqlQuote(ad.Name), typedColumn(ad), sqlIdent(ad.Name)))
		}

		stmt := fmt.Sprintf(
			`CREATE VIEW %s AS
			 SELECT o.pid AS pid, o.title AS title, o.level AS level%s
			 FROM objects o
			 LEFT JOIN attributes a ON a.owner_kind = 'object' AND a.owner_key = o.key
			 WHERE o.type_ref = %s
			 GROUP BY o.id`,
			viewName, prefixEach(cols), sqlQuote(td.ID))
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "create pivot view %s", viewName)
		}
	}
	return nil
}

// typedColumn picks the EAV column matching the attribute's datatype.
func typedColumn(ad *model.AttributeDefinition) string {
	switch ad.Datatype {
	case "INTEGER":
		return "a.int_val"
	case "REAL":
		return "a.real_val"
	case "BOOLEAN":
		return "a.bool_val"
	case "DATE":
		return "a.date_val"
	case "ENUM":
		return "a.enum_ref"
	default:
		return "a.string_val"
	}
}

// pivotViewName derives the projection view name for an object type.
func pivotViewName(typeID string) string {
	return "pivot_" + sanitizeIdent(typeID)
}

// prefixEach joins columns with a leading comma, or returns "" for none.
func prefixEach(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return ", " + strings.Join(cols, ", ")
}

// sqlQuote renders a string literal.
func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sqlIdent renders a column identifier.
func sqlIdent(s string) string {
	return `"` + sanitizeIdent(s) + `"`
}

// sanitizeIdent keeps identifiers to a safe character set.
func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
