package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/pkg/types"
)

// parsedEntity is one entity after boundary parsing, before table emission.
type parsedEntity struct {
	name    string
	fields  []FieldDef
	indexes []indexDecl
}

// indexDecl is an explicit index declaration from an entity definition.
type indexDecl struct {
	name    string
	columns []string
	unique  bool
}

// EntitiesToModel builds the canonical model from loosely-typed entity
// definitions. It fails fast on the first structural problem: an unknown
// field type, a reference to an undefined entity, or a cycle of required
// references. The returned model is fully hashed and immutable.
func EntitiesToModel(entities map[string]any) (*types.Model, error) {
	names := make([]string, 0, len(entities))
	for name := range entities {
		names = append(names, name)
	}
	sort.Strings(names)

	parsed := make(map[string]*parsedEntity, len(entities))
	for _, name := range names {
		pe, err := parseEntity(name, entities[name])
		if err != nil {
			return nil, err
		}
		parsed[name] = pe
	}

	if err := resolveReferences(parsed); err != nil {
		return nil, err
	}
	if err := detectCycles(parsed); err != nil {
		return nil, err
	}

	m := &types.Model{Tables: make(map[string]types.Table, len(parsed))}
	for _, name := range names {
		table, err := buildTable(parsed[name], parsed)
		if err != nil {
			return nil, err
		}
		m.Tables[table.Name] = table
	}

	hash, err := types.Fingerprint(m)
	if err != nil {
		return nil, errors.NewInternalError("failed to fingerprint model", err)
	}
	m.Hash = hash
	return m, nil
}

// parseEntity decodes one entity definition. Two shapes are accepted: a
// long form with "fields" and optional "indexes" keys, and a compact form
// where every key is a field.
func parseEntity(name string, raw any) (*parsedEntity, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: definition must be a map, got %T", name, raw))
	}

	fieldsRaw := m
	var indexesRaw []any
	if f, ok := m["fields"]; ok {
		fm, ok := f.(map[string]any)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: fields must be a map, got %T", name, f))
		}
		fieldsRaw = fm
		if ix, ok := m["indexes"]; ok {
			list, ok := ix.([]any)
			if !ok {
				return nil, errors.NewValidationError(errors.CodeInvalidEntity,
					fmt.Sprintf("entity %s: indexes must be a list, got %T", name, ix))
			}
			indexesRaw = list
		}
		for key := range m {
			if key != "fields" && key != "indexes" {
				return nil, errors.NewValidationError(errors.CodeInvalidEntity,
					fmt.Sprintf("entity %s: unknown key %q", name, key))
			}
		}
	}

	fieldNames := make([]string, 0, len(fieldsRaw))
	for fn := range fieldsRaw {
		fieldNames = append(fieldNames, fn)
	}
	sort.Strings(fieldNames)

	pe := &parsedEntity{name: name}
	for _, fn := range fieldNames {
		def, err := parseField(name, fn, fieldsRaw[fn])
		if err != nil {
			return nil, err
		}
		pe.fields = append(pe.fields, def)
	}
	if len(pe.fields) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: no fields defined", name))
	}

	resolvePrimary(pe)

	for i, raw := range indexesRaw {
		decl, err := parseIndexDecl(name, i, raw)
		if err != nil {
			return nil, err
		}
		pe.indexes = append(pe.indexes, decl)
	}
	return pe, nil
}

// resolvePrimary applies primary-key resolution: explicit primary modifiers
// win; otherwise a field named "id" is the primary key. Primary columns are
// never nullable, regardless of source nullability metadata.
func resolvePrimary(pe *parsedEntity) {
	explicit := false
	for _, f := range pe.fields {
		if f.Primary {
			explicit = true
			break
		}
	}
	for i := range pe.fields {
		f := &pe.fields[i]
		if !explicit && f.Name == "id" && f.Kind == FieldPrimitive {
			f.Primary = true
		}
		if f.Primary {
			f.Nullable = false
		}
	}
}

func parseIndexDecl(entity string, pos int, raw any) (indexDecl, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return indexDecl{}, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: index %d: declaration must be a map, got %T", entity, pos, raw))
	}
	var decl indexDecl
	if v, ok := m["name"]; ok {
		s, ok := v.(string)
		if !ok {
			return indexDecl{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: index %d: name must be a string", entity, pos))
		}
		decl.name = s
	}
	if v, ok := m["unique"]; ok {
		b, ok := v.(bool)
		if !ok {
			return indexDecl{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: index %d: unique must be a bool", entity, pos))
		}
		decl.unique = b
	}
	cols, ok := m["columns"].([]any)
	if !ok || len(cols) == 0 {
		return indexDecl{}, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: index %d: columns must be a non-empty list", entity, pos))
	}
	for _, c := range cols {
		s, ok := c.(string)
		if !ok {
			return indexDecl{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: index %d: column names must be strings", entity, pos))
		}
		decl.columns = append(decl.columns, columnName(s))
	}
	return decl, nil
}

// resolveReferences verifies every reference and collection target exists.
func resolveReferences(parsed map[string]*parsedEntity) error {
	for _, pe := range sortedEntities(parsed) {
		for _, f := range pe.fields {
			if f.Kind == FieldPrimitive {
				continue
			}
			target, ok := parsed[f.Type]
			if !ok {
				return errors.NewValidationError(errors.CodeUnresolvedReference,
					fmt.Sprintf("entity %s: field %s references undefined entity %s", pe.name, f.Name, f.Type))
			}
			if f.Kind == FieldReference && primaryField(target) == nil {
				return errors.NewValidationError(errors.CodeUnresolvedReference,
					fmt.Sprintf("entity %s: field %s references entity %s which has no primary key", pe.name, f.Name, f.Type))
			}
		}
	}
	return nil
}

// detectCycles walks the required-reference graph with a visited set.
// A nullable self-reference or back-reference is fine; a cycle of required
// references can never be satisfied and is rejected.
func detectCycles(parsed map[string]*parsedEntity) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(parsed))

	var visit func(name string, trail []string) error
	visit = func(name string, trail []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errors.NewValidationError(errors.CodeCircularReference,
				fmt.Sprintf("circular required references: %s", strings.Join(append(trail, name), " -> ")))
		}
		state[name] = visiting
		pe := parsed[name]
		for _, f := range pe.fields {
			if f.Kind == FieldReference && !f.Nullable {
				if err := visit(f.Type, append(trail, name)); err != nil {
					return err
				}
			}
		}
		state[name] = done
		return nil
	}

	for _, pe := range sortedEntities(parsed) {
		if err := visit(pe.name, nil); err != nil {
			return err
		}
	}
	return nil
}

// buildTable emits the canonical table for one parsed entity: columns for
// primitives and references, derived indexes for unique/indexed annotations,
// explicit index declarations, and foreign keys for references.
func buildTable(pe *parsedEntity, parsed map[string]*parsedEntity) (types.Table, error) {
	tname := tableName(pe.name)
	table := types.Table{
		Name:    tname,
		Columns: make(map[string]types.Column),
	}
	seenIndexes := make(map[string]bool)

	addIndex := func(ix types.Index) {
		if seenIndexes[ix.Name] {
			return
		}
		seenIndexes[ix.Name] = true
		table.Indexes = append(table.Indexes, ix)
	}

	for _, f := range pe.fields {
		switch f.Kind {
		case FieldCollection:
			// Navigation only; the child side carries the foreign key.
			continue

		case FieldPrimitive:
			col := types.Column{
				Name:      columnName(f.Name),
				Type:      f.Type,
				Nullable:  f.Nullable,
				Primary:   f.Primary,
				Generated: f.Generated,
				Default:   f.Default,
			}
			table.Columns[col.Name] = col
			if f.Unique && !f.Primary {
				addIndex(types.Index{
					Name:    fmt.Sprintf("ux_%s_%s", tname, col.Name),
					Columns: []string{col.Name},
					Unique:  true,
				})
			} else if f.Indexed {
				addIndex(types.Index{
					Name:    fmt.Sprintf("ix_%s_%s", tname, col.Name),
					Columns: []string{col.Name},
				})
			}

		case FieldReference:
			target := parsed[f.Type]
			pk := primaryField(target)
			refTable := tableName(target.name)
			col := types.Column{
				Name:     columnName(f.Name) + "_id",
				Type:     pk.Type,
				Nullable: f.Nullable,
			}
			table.Columns[col.Name] = col
			table.ForeignKeys = append(table.ForeignKeys, types.ForeignKey{
				Name:       fmt.Sprintf("fk_%s_%s", tname, col.Name),
				Columns:    []string{col.Name},
				RefTable:   refTable,
				RefColumns: []string{columnName(pk.Name)},
			})
			if f.Unique {
				addIndex(types.Index{
					Name:    fmt.Sprintf("ux_%s_%s", tname, col.Name),
					Columns: []string{col.Name},
					Unique:  true,
				})
			} else {
				// References always get a supporting index.
				addIndex(types.Index{
					Name:    fmt.Sprintf("ix_%s_%s", tname, col.Name),
					Columns: []string{col.Name},
				})
			}
		}
	}

	for _, decl := range pe.indexes {
		for _, col := range decl.columns {
			if _, ok := table.Columns[col]; !ok {
				return types.Table{}, errors.NewValidationError(errors.CodeInvalidEntity,
					fmt.Sprintf("entity %s: index references unknown column %s", pe.name, col))
			}
		}
		name := decl.name
		if name == "" {
			prefix := "ix"
			if decl.unique {
				prefix = "ux"
			}
			name = fmt.Sprintf("%s_%s_%s", prefix, tname, strings.Join(decl.columns, "_"))
		}
		addIndex(types.Index{Name: name, Columns: decl.columns, Unique: decl.unique})
	}

	return table, nil
}

func primaryField(pe *parsedEntity) *FieldDef {
	for i := range pe.fields {
		if pe.fields[i].Primary {
			return &pe.fields[i]
		}
	}
	return nil
}

func sortedEntities(parsed map[string]*parsedEntity) []*parsedEntity {
	out := make([]*parsedEntity, 0, len(parsed))
	for _, pe := range parsed {
		out = append(out, pe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
