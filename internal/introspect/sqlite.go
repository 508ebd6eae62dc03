package introspect

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stratumdb/stratum/pkg/types"
)

// SQLiteIntrospector extracts schema models from SQLite databases.
type SQLiteIntrospector struct {
	db *sql.DB
}

// NewSQLiteIntrospector opens the SQLite database at dbPath read-only.
func NewSQLiteIntrospector(dbPath string) (*SQLiteIntrospector, error) {
	db, err := sql.Open("sqlite3", dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteIntrospector{db: db}, nil
}

// ExtractModel extracts the schema of the given tables, or of every user
// table when tables is empty.
func (e *SQLiteIntrospector) ExtractModel(ctx context.Context, tables []string) (*types.Model, error) {
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
func (e *SQLiteIntrospector) Close(ctx context.Context) error {
	return e.db.Close()
}

func (e *SQLiteIntrospector) tableNames(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

func (e *SQLiteIntrospector) extractTable(ctx context.Context, tableName string) (*types.Table, error) {
	table := &types.Table{Name: tableName, Columns: make(map[string]types.Column)}

	if err := e.extractColumns(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract columns: %w", err)
	}
	if err := e.extractIndexes(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract indexes: %w", err)
	}
	if err := e.extractForeignKeys(ctx, table); err != nil {
		return nil, fmt.Errorf("failed to extract foreign keys: %w", err)
	}
	return table, nil
}

func (e *SQLiteIntrospector) extractColumns(ctx context.Context, table *types.Table) error {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var defaultValue sql.NullString

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}

		col := types.Column{
			Name:     name,
			Type:     normalizeColumnType(colType),
			Nullable: notNull == 0,
			Primary:  pk > 0,
		}
		if defaultValue.Valid {
			col.Default = &defaultValue.String
		}
		table.Columns[name] = col
	}
	return rows.Err()
}

func (e *SQLiteIntrospector) extractIndexes(ctx context.Context, table *types.Table) error {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", table.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	type indexRow struct {
		name   string
		unique bool
	}
	var indexRows []indexRow
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string

		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			return err
		}
		// "pk" indexes back the primary key and "u" indexes back inline
		// UNIQUE constraints; only explicitly created indexes count.
		if origin != "c" {
			continue
		}
		indexRows = append(indexRows, indexRow{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ir := range indexRows {
		columns, err := e.indexColumns(ctx, ir.name)
		if err != nil {
			return err
		}
		table.Indexes = append(table.Indexes, types.Index{
			Name:    ir.name,
			Columns: columns,
			Unique:  ir.unique,
		})
	}
	return nil
}

func (e *SQLiteIntrospector) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", indexName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var seqno, cid int
		var colName sql.NullString

		if err := rows.Scan(&seqno, &cid, &colName); err != nil {
			return nil, err
		}
		if colName.Valid {
			columns = append(columns, colName.String)
		}
	}
	return columns, rows.Err()
}

func (e *SQLiteIntrospector) extractForeignKeys(ctx context.Context, table *types.Table) error {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", table.Name))
	if err != nil {
		return err
	}
	defer rows.Close()

	// SQLite numbers constraints instead of naming them; rows of one
	// constraint share an id and seq orders the column pairs.
	type fkKey struct{ id int }
	grouped := make(map[fkKey]*types.ForeignKey)
	var order []fkKey

	for rows.Next() {
		var id, seq int
		var refTable, fromCol, toCol, onUpdate, onDelete, match string

		if err := rows.Scan(&id, &seq, &refTable, &fromCol, &toCol, &onUpdate, &onDelete, &match); err != nil {
			return err
		}

		key := fkKey{id: id}
		fk, ok := grouped[key]
		if !ok {
			fk = &types.ForeignKey{RefTable: refTable}
			grouped[key] = fk
			order = append(order, key)
		}
		fk.Columns = append(fk.Columns, fromCol)
		fk.RefColumns = append(fk.RefColumns, toCol)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, key := range order {
		fk := grouped[key]
		fk.Name = fmt.Sprintf("fk_%s_%s", table.Name, fk.Columns[0])
		table.ForeignKeys = append(table.ForeignKeys, *fk)
	}
	return nil
}
