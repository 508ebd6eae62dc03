// Package introspect builds schema models from live databases. The result
// is a regular fingerprinted model, so a database's actual schema can be
// diffed against any snapshot to detect drift.
package introspect

import (
	"context"
	"strings"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/internal/model"
	"github.com/stratumdb/stratum/pkg/types"
)

// Introspector extracts the schema of a live database as a model.
// If tables is empty, every user table is extracted.
type Introspector interface {
	ExtractModel(ctx context.Context, tables []string) (*types.Model, error)

	// Close releases the database connection.
	Close(ctx context.Context) error
}

// normalizeColumnType maps a catalog type onto the shared normalized set so
// an introspected model hashes identically to one built from definitions.
// Types outside the set (engine extensions, user-defined types) pass through
// lowercased with length suffixes stripped.
func normalizeColumnType(raw string) string {
	if norm, ok := model.NormalizeType(raw); ok {
		return norm
	}
	t := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = t[:i]
	}
	return t
}

// finalize normalizes invariants the engines cannot guarantee from catalog
// data alone and computes the model fingerprint.
func finalize(m *types.Model) (*types.Model, error) {
	for name, table := range m.Tables {
		for colName, col := range table.Columns {
			// Primary key columns are never nullable, whatever the
			// catalog claims.
			if col.Primary {
				col.Nullable = false
				table.Columns[colName] = col
			}
		}
		m.Tables[name] = table
	}

	hash, err := types.Fingerprint(m)
	if err != nil {
		return nil, errors.NewInternalError("failed to fingerprint introspected model", err)
	}
	m.Hash = hash
	return m, nil
}
