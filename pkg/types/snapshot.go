package types

import "time"

// Snapshot is a persisted model state: the fingerprint of the model the
// entity definitions produced, the definitions themselves (retained for
// auditing and regeneration), and authoring metadata. Immutable once saved.
type Snapshot struct {
	// Hash is the model fingerprint, the snapshot's identity.
	Hash string `json:"hash"`

	// Entities holds the source entity definitions that produced the model,
	// keyed by entity name, in their raw decoded form.
	Entities map[string]any `json:"entities"`

	// Metadata records who created the snapshot and why.
	Metadata SnapshotMetadata `json:"metadata"`
}

// Clone returns a deep copy of the snapshot, so holders of a shared record
// can hand out a copy that is safe to mutate.
func (s *Snapshot) Clone() *Snapshot {
	out := *s
	if s.Entities != nil {
		out.Entities = cloneValue(s.Entities).(map[string]any)
	}
	return &out
}

// cloneValue deep-copies the decoded JSON/YAML shapes entity definitions
// are made of. Scalars are immutable and pass through.
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, e := range x {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// SnapshotMetadata is the authoring metadata of a snapshot.
type SnapshotMetadata struct {
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
	Description string    `json:"description,omitempty"`

	// Parent links to the snapshot this one was derived from. The parent
	// chain is an authoring tree and need not match the transition graph.
	Parent string `json:"parent,omitempty"`
}

// Transition is a persisted, ordered set of migration steps connecting two
// snapshot hashes: a directed edge FromHash -> ToHash in the schema graph.
// Immutable once saved. An empty FromHash denotes "from nothing".
type Transition struct {
	// Hash is the content fingerprint over FromHash, ToHash, and Steps.
	Hash string `json:"hash"`

	// FromHash is the source snapshot, or "" for the first migration.
	FromHash string `json:"from_hash"`

	// ToHash is the target snapshot.
	ToHash string `json:"to_hash"`

	// Steps is the dependency-ordered step list.
	Steps []MigrationStep `json:"steps"`

	// Metadata records authoring information, excluded from the hash.
	Metadata TransitionMetadata `json:"metadata"`
}

// Clone returns a deep copy of the transition and its steps.
func (t *Transition) Clone() *Transition {
	out := *t
	if t.Steps != nil {
		out.Steps = make([]MigrationStep, len(t.Steps))
		for i, s := range t.Steps {
			out.Steps[i] = s.Clone()
		}
	}
	return &out
}

// TransitionMetadata is the authoring metadata of a transition.
type TransitionMetadata struct {
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewTransition assembles a transition and computes its content hash.
func NewTransition(fromHash, toHash string, steps []MigrationStep, meta TransitionMetadata) (*Transition, error) {
	hash, err := TransitionFingerprint(fromHash, toHash, steps)
	if err != nil {
		return nil, err
	}
	return &Transition{
		Hash:     hash,
		FromHash: fromHash,
		ToHash:   toHash,
		Steps:    steps,
		Metadata: meta,
	}, nil
}

// EnvironmentState tracks which snapshot an environment currently runs.
// It is the only mutable record in the system, updated last-writer-wins
// after a transition's SQL has been confirmed applied.
type EnvironmentState struct {
	// Environment is the environment name (e.g. "staging").
	Environment string `json:"environment"`

	// CurrentSnapshot is the hash of the applied snapshot, "" when the
	// environment has never been migrated.
	CurrentSnapshot string `json:"current_snapshot"`

	// UpdatedAt is the time of the last state update.
	UpdatedAt time.Time `json:"updated_at"`
}
