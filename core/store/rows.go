package store

import (
	"database/sql"

	"github.com/specweave/specweave/core/errors"
	"github.com/specweave/specweave/core/ir"
)

// SaveSpecification writes a fully populated specification and all owned
// rows in one transaction, replacing any prior rows for the same source
// path. Row identifiers are written back onto the IR structs as they are
// inserted.
func (s *Store) SaveSpecification(spec *ir.Specification) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if err := deleteSpecByPath(tx, spec.Path); err != nil {
			return err
		}

		res, err := tx.Exec(
			`INSERT INTO specifications (type_ref, title, pid, path) VALUES (?, ?, ?, ?)`,
			spec.TypeRef, spec.Title, spec.PID, spec.Path)
		if err != nil {
			return errors.Wrap(err, "insert specification")
		}
		spec.ID, err = res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "specification row id")
		}

		for _, a := range spec.Attributes {
			a.SpecID = spec.ID
			if err := insertAttribute(tx, a); err != nil {
				return err
			}
		}

		var insertObj func(o *ir.Object) error
		insertObj = func(o *ir.Object) error {
			o.SpecID = spec.ID
			res, err := tx.Exec(
				`INSERT INTO objects (spec_id, key, parent_key, type_ref, title, pid, label, level, line, body)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				o.SpecID, o.Key, o.ParentKey, o.TypeRef, o.Title, o.PID, o.Label, o.Level, o.Line, o.Body)
			if err != nil {
				return errors.Wrap(err, "insert object")
			}
			if o.ID, err = res.LastInsertId(); err != nil {
				return errors.Wrap(err, "object row id")
			}

			for _, a := range o.Attributes {
				a.SpecID = spec.ID
				if err := insertAttribute(tx, a); err != nil {
					return err
				}
			}
			for _, f := range o.Floats {
				f.SpecID = spec.ID
				res, err := tx.Exec(
					`INSERT INTO floats (spec_id, key, parent_object_key, type_ref, label, number, caption, raw_content, resolved_content, line)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					f.SpecID, f.Key, f.ParentObjectKey, f.TypeRef, f.Label, f.Number, f.Caption, f.RawContent, f.ResolvedContent, f.Line)
				if err != nil {
					return errors.Wrap(err, "insert float")
				}
				if f.ID, err = res.LastInsertId(); err != nil {
					return errors.Wrap(err, "float row id")
				}
			}
			for _, rel := range o.Relations {
				rel.SpecID = spec.ID
				res, err := tx.Exec(
					`INSERT INTO relations (spec_id, source_object_key, target_text, selector, source_attribute, target_ref, target_is_float, type_ref, is_ambiguous, line)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					rel.SpecID, rel.SourceObjectKey, rel.TargetText, rel.Selector, rel.SourceAttribute,
					rel.TargetRef, rel.TargetIsFloat, rel.TypeRef, rel.IsAmbiguous, rel.Line)
				if err != nil {
					return errors.Wrap(err, "insert relation")
				}
				if rel.ID, err = res.LastInsertId(); err != nil {
					return errors.Wrap(err, "relation row id")
				}
			}
			for _, v := range o.Views {
				v.SpecID = spec.ID
				res, err := tx.Exec(
					`INSERT INTO views (spec_id, parent_object_key, view_type_ref, raw_param, resolved_content, line)
					 VALUES (?, ?, ?, ?, ?, ?)`,
					v.SpecID, v.ParentObjectKey, v.ViewTypeRef, v.RawParam, v.ResolvedContent, v.Line)
				if err != nil {
					return errors.Wrap(err, "insert view")
				}
				if v.ID, err = res.LastInsertId(); err != nil {
					return errors.Wrap(err, "view row id")
				}
			}
			for _, c := range o.Children {
				if err := insertObj(c); err != nil {
					return err
				}
			}
			return nil
		}

		for _, o := range spec.Objects {
			if err := insertObj(o); err != nil {
				return err
			}
		}
		return nil
	})
}

// insertAttribute writes one EAV row and records its identifier.
func insertAttribute(tx *sql.Tx, a *ir.AttributeValue) error {
	res, err := tx.Exec(
		`INSERT INTO attributes (spec_id, owner_kind, owner_key, name, raw_value, datatype,
		                         string_val, int_val, real_val, bool_val, date_val, enum_ref, ast, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SpecID, string(a.OwnerKind), a.OwnerKey, a.Name, a.RawValue, string(a.Datatype),
		a.StringVal, a.IntVal, a.RealVal, a.BoolVal, a.DateVal, a.EnumRef, a.AST, a.Line)
	if err != nil {
		return errors.Wrap(err, "insert attribute")
	}
	if a.ID, err = res.LastInsertId(); err != nil {
		return errors.Wrap(err, "attribute row id")
	}
	return nil
}

// deleteSpecByPath removes a specification and all owned rows.
func deleteSpecByPath(tx *sql.Tx, path string) error {
	rows, err := tx.Query(`SELECT id FROM specifications WHERE path = ?`, path)
	if err != nil {
		return errors.Wrap(err, "find prior specification")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return errors.Wrap(err, "scan prior specification")
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return errors.Wrap(err, "close prior specification rows")
	}
	for _, id := range ids {
		for _, table := range []string{"attributes", "views", "relations", "floats", "objects", "specifications"} {
			col := "spec_id"
			if table == "specifications" {
				col = "id"
			}
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE `+col+` = ?`, id); err != nil {
				return errors.Wrapf(err, "delete prior %s", table)
			}
		}
	}
	return nil
}

// UpdateRelations writes the resolution and inference outcome of every
// relation back to the store in one transaction.
func (s *Store) UpdateRelations(rels []*ir.Relation) error {
	return s.WithTx(func(tx *sql.Tx) error {
		for _, r := range rels {
			_, err := tx.Exec(
				`UPDATE relations SET target_ref = ?, target_is_float = ?, type_ref = ?, is_ambiguous = ? WHERE id = ?`,
				r.TargetRef, r.TargetIsFloat, r.TypeRef, r.IsAmbiguous, r.ID)
			if err != nil {
				return errors.Wrap(err, "update relation")
			}
		}
		return nil
	})
}

// UpdateFloats writes assigned numbers and resolved content back to the
// store in one transaction.
func (s *Store) UpdateFloats(floats []*ir.Float) error {
	return s.WithTx(func(tx *sql.Tx) error {
		for _, f := range floats {
			_, err := tx.Exec(
				`UPDATE floats SET number = ?, resolved_content = ? WHERE id = ?`,
				f.Number, f.ResolvedContent, f.ID)
			if err != nil {
				return errors.Wrap(err, "update float")
			}
		}
		return nil
	})
}

// UpdateViews writes materialized view content back to the store in one
// transaction.
func (s *Store) UpdateViews(views []*ir.View) error {
	return s.WithTx(func(tx *sql.Tx) error {
		for _, v := range views {
			_, err := tx.Exec(
				`UPDATE views SET resolved_content = ? WHERE id = ?`,
				v.ResolvedContent, v.ID)
			if err != nil {
				return errors.Wrap(err, "update view")
			}
		}
		return nil
	})
}

// LoadSnapshot reads one specification's full IR back from the store in
// stable row order (rowid ascending throughout, which is insertion order
// and therefore document order).
func (s *Store) LoadSnapshot(specID int64) (*ir.Snapshot, error) {
	snap := &ir.Snapshot{}

	spec := &ir.Specification{ID: specID}
	err := s.db.QueryRow(
		`SELECT type_ref, title, pid, path FROM specifications WHERE id = ?`, specID).
		Scan(&spec.TypeRef, &spec.Title, &spec.PID, &spec.Path)
	if err != nil {
		return nil, errors.Wrap(err, "load specification")
	}
	snap.Spec = spec

	byKey := map[string]*ir.Object{}
	err = queryRows(s.db,
		`SELECT id, key, parent_key, type_ref, title, pid, label, level, line, body
		 FROM objects WHERE spec_id = ? ORDER BY id`, specID,
		func(rows *sql.Rows) error {
			o := &ir.Object{SpecID: specID}
			if err := rows.Scan(&o.ID, &o.Key, &o.ParentKey, &o.TypeRef, &o.Title, &o.PID,
				&o.Label, &o.Level, &o.Line, &o.Body); err != nil {
				return err
			}
			snap.Objects = append(snap.Objects, o)
			byKey[o.Key] = o
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load objects")
	}

	// Rebuild the object tree from parent keys.
	for _, o := range snap.Objects {
		if o.ParentKey == "" {
			spec.Objects = append(spec.Objects, o)
		} else if p, ok := byKey[o.ParentKey]; ok {
			p.Children = append(p.Children, o)
		} else {
			spec.Objects = append(spec.Objects, o)
		}
	}

	err = queryRows(s.db,
		`SELECT id, key, parent_object_key, type_ref, label, number, caption, raw_content, resolved_content, line
		 FROM floats WHERE spec_id = ? ORDER BY id`, specID,
		func(rows *sql.Rows) error {
			f := &ir.Float{SpecID: specID}
			if err := rows.Scan(&f.ID, &f.Key, &f.ParentObjectKey, &f.TypeRef, &f.Label,
				&f.Number, &f.Caption, &f.RawContent, &f.ResolvedContent, &f.Line); err != nil {
				return err
			}
			snap.Floats = append(snap.Floats, f)
			if p, ok := byKey[f.ParentObjectKey]; ok {
				p.Floats = append(p.Floats, f)
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load floats")
	}

	err = queryRows(s.db,
		`SELECT id, source_object_key, target_text, selector, source_attribute, target_ref, target_is_float, type_ref, is_ambiguous, line
		 FROM relations WHERE spec_id = ? ORDER BY id`, specID,
		func(rows *sql.Rows) error {
			r := &ir.Relation{SpecID: specID}
			if err := rows.Scan(&r.ID, &r.SourceObjectKey, &r.TargetText, &r.Selector, &r.SourceAttribute,
				&r.TargetRef, &r.TargetIsFloat, &r.TypeRef, &r.IsAmbiguous, &r.Line); err != nil {
				return err
			}
			snap.Relations = append(snap.Relations, r)
			if p, ok := byKey[r.SourceObjectKey]; ok {
				p.Relations = append(p.Relations, r)
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load relations")
	}

	err = queryRows(s.db,
		`SELECT id, parent_object_key, view_type_ref, raw_param, resolved_content, line
		 FROM views WHERE spec_id = ? ORDER BY id`, specID,
		func(rows *sql.Rows) error {
			v := &ir.View{SpecID: specID}
			if err := rows.Scan(&v.ID, &v.ParentObjectKey, &v.ViewTypeRef, &v.RawParam,
				&v.ResolvedContent, &v.Line); err != nil {
				return err
			}
			snap.Views = append(snap.Views, v)
			if p, ok := byKey[v.ParentObjectKey]; ok {
				p.Views = append(p.Views, v)
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load views")
	}

	err = queryRows(s.db,
		`SELECT id, owner_kind, owner_key, name, raw_value, datatype,
		        string_val, int_val, real_val, bool_val, date_val, enum_ref, ast, line
		 FROM attributes WHERE spec_id = ? ORDER BY id`, specID,
		func(rows *sql.Rows) error {
			a := &ir.AttributeValue{SpecID: specID}
			var kind, datatype string
			if err := rows.Scan(&a.ID, &kind, &a.OwnerKey, &a.Name, &a.RawValue, &datatype,
				&a.StringVal, &a.IntVal, &a.RealVal, &a.BoolVal, &a.DateVal, &a.EnumRef, &a.AST, &a.Line); err != nil {
				return err
			}
			a.OwnerKind = ir.OwnerKind(kind)
			a.Datatype = ir.Datatype(datatype)
			snap.Attributes = append(snap.Attributes, a)
			if a.OwnerKind == ir.OwnerObject {
				if p, ok := byKey[a.OwnerKey]; ok {
					p.Attributes = append(p.Attributes, a)
				}
			} else {
				spec.Attributes = append(spec.Attributes, a)
			}
			return nil
		})
	if err != nil {
		return nil, errors.Wrap(err, "load attributes")
	}

	return snap, nil
}

// SpecIDs returns the row identifiers of all stored specifications in
// insertion order.
func (s *Store) SpecIDs() ([]int64, error) {
	var ids []int64
	err := queryRows(s.db, `SELECT id FROM specifications ORDER BY id`, nil,
		func(rows *sql.Rows) error {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	return ids, err
}

// queryRows runs a query and invokes scan for each row. A nil arg issues
// the query without parameters.
func queryRows(db *sql.DB, query string, arg interface{}, scan func(*sql.Rows) error) error {
	var rows *sql.Rows
	var err error
	if arg == nil {
		rows, err = db.Query(query)
	} else {
		rows, err = db.Query(query, arg)
	}
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
