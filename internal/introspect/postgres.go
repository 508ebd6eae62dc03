package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stratumdb/stratum/pkg/types"
)

// PostgresIntrospector extracts schema models from PostgreSQL databases.
type PostgresIntrospector struct {
	conn       *pgx.Conn
	schemaName string
}

// NewPostgresIntrospector connects to the database and scopes extraction to
// the given schema ("public" when empty).
func NewPostgresIntrospector(ctx context.Context, connString, schemaName string) (*PostgresIntrospector, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if schemaName == "" {
		schemaName = "public"
	}
	return &PostgresIntrospector{conn: conn, schemaName: schemaName}, nil
}

// ExtractModel extracts the schema of the given tables, or of every base
// table in the schema when tables is empty.
func (e *PostgresIntrospector) ExtractModel(ctx context.Context, tables []string) (*types.Model, error) {
	tableNames, err := e.tableNames(ctx, tables)
	if err != nil {
		return nil, fmt.Errorf("failed to get table names: %w", err)
	}

	m := &types.Model{Tables: make(map[string]types.Table, len(tableNames))}
	for _, name := range tableNames {
		table, err := e.extractTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract table %s: %w", name, err)
		}
		m.Tables[name] = *table
	}
	return finalize(m)
}

// Close releases the database connection.
func (e *PostgresIntrospector) Close(ctx context.Context) error {
	return e.conn.Close(ctx)
}

func (e *PostgresIntrospector) tableNames(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}

	rows, err := e.conn.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, e.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (e *PostgresIntrospector) extractTable(ctx context.Context, tableName string) (*types.Table, error) {
	table := &types.Table{Name: tableName, Columns: make(map[string]types.Column)}

	if err := e.extractColumns(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if err := e.markPrimaryKey(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract primary key: %w", err)
	}
	if err := e.extractIndexes(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	if err := e.extractForeignKeys(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	return table, nil
}

func (e *PostgresIntrospector) extractColumns(ctx context.Context, table *types.Table) error {
	rows, err := e.conn.Query(ctx, `
		SELECT column_name, data_type, udt_name, is_nullable, column_default,
			is_generated
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, e.schemaName, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType, udtName, nullable, generated string
		var defaultVal *string

		if err := rows.Scan(&name, &dataType, &udtName, &nullable, &defaultVal, &generated); err != nil {
			return err
		}

		col := types.Column{
			Name:      name,
			Type:      normalizeColumnType(normalizePostgresType(dataType, udtName)),
			Nullable:  nullable == "YES",
			Generated: generated == "ALWAYS",
		}
		// Sequence-backed defaults are an implementation detail of the
		// engine, not part of the declared schema.
		if defaultVal != nil && !isSequenceDefault(*defaultVal) {
			col.Default = defaultVal
		}
		table.Columns[name] = col
	}
	return rows.Err()
}

func (e *PostgresIntrospector) markPrimaryKey(ctx context.Context, table *types.Table) error {
	rows, err := e.conn.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY kcu.ordinal_position`, e.schemaName, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if col, ok := table.Columns[name]; ok {
			col.Primary = true
			table.Columns[name] = col
		}
	}
	return rows.Err()
}

func (e *PostgresIntrospector) extractIndexes(ctx context.Context, table *types.Table) error {
	rows, err := e.conn.Query(ctx, `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname`, e.schemaName, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var idx types.Index
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Columns); err != nil {
			return err
		}
		table.Indexes = append(table.Indexes, idx)
	}
	return rows.Err()
}

func (e *PostgresIntrospector) extractForeignKeys(ctx context.Context, table *types.Table) error {
	rows, err := e.conn.Query(ctx, `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position`, e.schemaName, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	grouped := make(map[string]*types.ForeignKey)
	var order []string

	for rows.Next() {
		var constraintName, column, refTable, refColumn string
		if err := rows.Scan(&constraintName, &column, &refTable, &refColumn); err != nil {
			return err
		}

		fk, ok := grouped[constraintName]
		if !ok {
			fk = &types.ForeignKey{Name: constraintName, RefTable: refTable}
			grouped[constraintName] = fk
			order = append(order, constraintName)
		}
		fk.Columns = append(fk.Columns, column)
		fk.RefColumns = append(fk.RefColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, name := range order {
		table.ForeignKeys = append(table.ForeignKeys, *grouped[name])
	}
	return nil
}

// normalizePostgresType maps verbose catalog type names to their common
// short forms before the shared normalization pass.
func normalizePostgresType(dataType, udtName string) string {
	switch dataType {
	case "timestamp with time zone":
		return "timestamptz"
	case "timestamp without time zone":
		return "timestamp"
	case "time with time zone":
		return "timetz"
	case "time without time zone":
		return "time"
	case "character varying":
		return "varchar"
	case "character":
		return "char"
	case "USER-DEFINED":
		return udtName
	default:
		return dataType
	}
}

// isSequenceDefault reports whether a column default is a nextval() call.
func isSequenceDefault(def string) bool {
	return len(def) >= 8 && def[:8] == "nextval("
}
