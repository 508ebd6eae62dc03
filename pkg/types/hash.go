package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// HashLength is the length of a full lowercase hex SHA-256 fingerprint.
const HashLength = 64

// canonicalTable is the deterministic serialization form of a Table:
// map-backed collections become name-sorted slices so that two structurally
// identical models marshal to identical bytes regardless of construction order.
type canonicalTable struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	Indexes     []Index      `json:"indexes"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

type canonicalModel struct {
	Tables []canonicalTable `json:"tables"`
}

// Fingerprint computes the lowercase hex SHA-256 fingerprint of the model's
// canonical form. Tables, columns, indexes, and foreign keys are sorted by
// name; column lists inside indexes and foreign keys keep their declared
// order, which is semantic.
func Fingerprint(m *Model) (string, error) {
	cm := canonicalModel{Tables: make([]canonicalTable, 0, len(m.Tables))}
	for _, name := range m.TableNames() {
		cm.Tables = append(cm.Tables, canonicalizeTable(m.Tables[name]))
	}

	data, err := json.Marshal(cm)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalizeTable(t Table) canonicalTable {
	ct := canonicalTable{
		Name:        t.Name,
		Columns:     make([]Column, 0, len(t.Columns)),
		Indexes:     make([]Index, len(t.Indexes)),
		ForeignKeys: make([]ForeignKey, len(t.ForeignKeys)),
	}
	for _, name := range t.ColumnNames() {
		ct.Columns = append(ct.Columns, t.Columns[name])
	}
	copy(ct.Indexes, t.Indexes)
	sort.Slice(ct.Indexes, func(i, j int) bool {
		return ct.Indexes[i].Name < ct.Indexes[j].Name
	})
	copy(ct.ForeignKeys, t.ForeignKeys)
	sort.Slice(ct.ForeignKeys, func(i, j int) bool {
		return ct.ForeignKeys[i].Name < ct.ForeignKeys[j].Name
	})
	return ct
}

// transitionContent is the canonical serialization form of a transition's
// identity: source, target, and the ordered step list.
type transitionContent struct {
	FromHash string          `json:"from_hash"`
	ToHash   string          `json:"to_hash"`
	Steps    []MigrationStep `json:"steps"`
}

// TransitionFingerprint computes the content hash of a transition from its
// source hash, target hash, and ordered steps. Metadata is excluded: two
// transitions with the same endpoints and steps are the same transition.
func TransitionFingerprint(fromHash, toHash string, steps []MigrationStep) (string, error) {
	data, err := json.Marshal(transitionContent{
		FromHash: fromHash,
		ToHash:   toHash,
		Steps:    steps,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ShortHash truncates a fingerprint to 8 characters for display.
// Never use the result for lookups.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}
