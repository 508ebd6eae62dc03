// Package model builds canonical schema models from entity definitions.
// Entity definitions arrive as loosely-typed maps (decoded YAML or JSON)
// and are parsed into a closed set of tagged field kinds at this boundary;
// anything unrecognized is rejected, never silently dropped.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/stratumdb/stratum/internal/errors"
)

// FieldKind tags the closed set of field variants.
type FieldKind int

const (
	// FieldPrimitive is a scalar column with a normalized SQL type.
	FieldPrimitive FieldKind = iota

	// FieldReference is a schema reference: it materializes as a
	// "<field>_id" column plus a foreign key to the target's primary key.
	FieldReference

	// FieldCollection is an array-of-schema navigation field. It holds no
	// column; the foreign key lives on the child side.
	FieldCollection
)

// FieldDef is the parsed, canonical form of one entity field.
type FieldDef struct {
	Name      string
	Kind      FieldKind
	Type      string // normalized SQL type, or target entity for refs/collections
	Nullable  bool
	Primary   bool
	Unique    bool
	Indexed   bool
	Generated bool
	Default   *string
}

// primitiveTypes maps shorthand type names to normalized SQL type strings.
// Introspectors normalize live-catalog types into the same set so a
// reverse-engineered model hashes identically to a built one.
var primitiveTypes = map[string]string{
	"uuid":      "uuid",
	"string":    "varchar",
	"varchar":   "varchar",
	"text":      "text",
	"int":       "integer",
	"integer":   "integer",
	"bigint":    "bigint",
	"float":     "double",
	"double":    "double",
	"bool":      "boolean",
	"boolean":   "boolean",
	"timestamp": "timestamp",
	"date":      "date",
	"json":      "jsonb",
	"jsonb":     "jsonb",
}

// typeAliases maps engine-specific catalog type names onto the normalized
// set. Used by introspectors; shorthand parsing only accepts primitiveTypes.
var typeAliases = map[string]string{
	"character varying":           "varchar",
	"character":                   "varchar",
	"int2":                        "integer",
	"int4":                        "integer",
	"smallint":                    "integer",
	"serial":                      "integer",
	"int8":                        "bigint",
	"bigserial":                   "bigint",
	"real":                        "double",
	"float4":                      "double",
	"float8":                      "double",
	"double precision":            "double",
	"numeric":                     "double",
	"bool":                        "boolean",
	"timestamptz":                 "timestamp",
	"timestamp with time zone":    "timestamp",
	"timestamp without time zone": "timestamp",
	"datetime":                    "timestamp",
	"json":                        "jsonb",
	"blob":                        "text",
}

// NormalizeType maps a raw type name (shorthand or engine catalog form)
// onto the normalized type set. Reports false for unknown types.
func NormalizeType(raw string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(raw))
	// Strip length/precision suffixes like varchar(255).
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	if norm, ok := primitiveTypes[t]; ok {
		return norm, true
	}
	if norm, ok := typeAliases[t]; ok {
		return norm, true
	}
	return "", false
}

// parseField parses a single field definition, which is either a shorthand
// string or an options map.
func parseField(entity, name string, value any) (FieldDef, error) {
	switch v := value.(type) {
	case string:
		return parseShorthand(entity, name, v)
	case map[string]any:
		return parseFieldMap(entity, name, v)
	default:
		return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: field %s: definition must be a string or a map, got %T", entity, name, value))
	}
}

// parseShorthand parses the compact field grammar:
//
//	<type>[!] [primary] [unique] [indexed] [generated] [default=<literal>]
//
// where <type> is a primitive name, "ref:<Entity>", or "<Entity>[]",
// and "!" marks the field non-nullable.
func parseShorthand(entity, name, spec string) (FieldDef, error) {
	tokens := strings.Fields(spec)
	if len(tokens) == 0 {
		return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: field %s: empty definition", entity, name))
	}

	def := FieldDef{Name: name, Nullable: true}

	typeTok := tokens[0]
	if strings.HasSuffix(typeTok, "!") {
		def.Nullable = false
		typeTok = strings.TrimSuffix(typeTok, "!")
	}

	switch {
	case strings.HasPrefix(typeTok, "ref:"):
		def.Kind = FieldReference
		def.Type = strings.TrimPrefix(typeTok, "ref:")
		if def.Type == "" {
			return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: field %s: reference is missing a target entity", entity, name))
		}
	case strings.HasSuffix(typeTok, "[]"):
		def.Kind = FieldCollection
		def.Type = strings.TrimSuffix(typeTok, "[]")
		if def.Type == "" {
			return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: field %s: collection is missing a target entity", entity, name))
		}
	default:
		norm, ok := primitiveTypes[strings.ToLower(typeTok)]
		if !ok {
			return FieldDef{}, errors.NewValidationError(errors.CodeUnknownFieldType,
				fmt.Sprintf("entity %s: field %s: unknown type %q", entity, name, typeTok))
		}
		def.Kind = FieldPrimitive
		def.Type = norm
	}

	for _, tok := range tokens[1:] {
		switch {
		case tok == "primary":
			def.Primary = true
		case tok == "unique":
			def.Unique = true
		case tok == "indexed":
			def.Indexed = true
		case tok == "generated":
			def.Generated = true
		case strings.HasPrefix(tok, "default="):
			v := strings.TrimPrefix(tok, "default=")
			def.Default = &v
		default:
			return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: field %s: unknown modifier %q", entity, name, tok))
		}
	}

	if def.Primary {
		def.Nullable = false
	}
	return def, nil
}

// parseFieldMap parses the long-form field definition map.
func parseFieldMap(entity, name string, m map[string]any) (FieldDef, error) {
	rawType, ok := m["type"].(string)
	if !ok || rawType == "" {
		return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("entity %s: field %s: missing type", entity, name))
	}

	// The type value reuses the shorthand grammar so "ref:User!" works in
	// both forms; the remaining keys override modifiers.
	def, err := parseShorthand(entity, name, rawType)
	if err != nil {
		return FieldDef{}, err
	}

	for key, raw := range m {
		switch key {
		case "type":
			// already handled
		case "nullable":
			b, ok := raw.(bool)
			if !ok {
				return FieldDef{}, badFieldOption(entity, name, key, raw)
			}
			def.Nullable = b
		case "primary":
			b, ok := raw.(bool)
			if !ok {
				return FieldDef{}, badFieldOption(entity, name, key, raw)
			}
			def.Primary = b
		case "unique":
			b, ok := raw.(bool)
			if !ok {
				return FieldDef{}, badFieldOption(entity, name, key, raw)
			}
			def.Unique = b
		case "indexed":
			b, ok := raw.(bool)
			if !ok {
				return FieldDef{}, badFieldOption(entity, name, key, raw)
			}
			def.Indexed = b
		case "generated":
			b, ok := raw.(bool)
			if !ok {
				return FieldDef{}, badFieldOption(entity, name, key, raw)
			}
			def.Generated = b
		case "default":
			v := formatDefault(raw)
			def.Default = &v
		default:
			return FieldDef{}, errors.NewValidationError(errors.CodeInvalidEntity,
				fmt.Sprintf("entity %s: field %s: unknown option %q", entity, name, key))
		}
	}

	if def.Primary {
		def.Nullable = false
	}
	return def, nil
}

// formatDefault renders a default literal type-stably. Snapshot entities
// round-trip through JSON, which decodes every number as float64, so a
// whole number must render identically whether it arrived as an int, a
// float64, or a json.Number; otherwise a reloaded snapshot would rebuild
// to a different hash.
func formatDefault(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func badFieldOption(entity, name, key string, raw any) error {
	return errors.NewValidationError(errors.CodeInvalidEntity,
		fmt.Sprintf("entity %s: field %s: option %s has invalid value %v", entity, name, key, raw))
}

// tableName derives the table name from an entity name: lowercase snake case.
func tableName(entity string) string {
	return snakeCase(entity)
}

// columnName derives a column name from a field name.
func columnName(field string) string {
	return snakeCase(field)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
