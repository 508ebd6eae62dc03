package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"

	"github.com/stratumdb/stratum/internal/errors"
)

// SnapshotRecord is the manifest row for a snapshot. Listings return these
// instead of full payloads so graph walks never touch object storage.
type SnapshotRecord struct {
	Hash        string
	Parent      string
	CreatedAt   int64
	CreatedBy   string
	Description string
	ObjectPath  string
	Checksum    string
}

// TransitionRecord is the manifest row for a transition.
type TransitionRecord struct {
	Hash        string
	FromHash    string
	ToHash      string
	StepCount   int
	CreatedAt   int64
	Description string
	ObjectPath  string
	Checksum    string
}

// encodeRecord serializes a record payload as snappy-compressed JSON and
// returns the bytes with their checksum.
func encodeRecord(v any) (data []byte, checksum string, err error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, "", errors.NewInternalError("failed to encode record", err)
	}
	compressed := snappy.Encode(nil, raw)
	sum := sha256.Sum256(compressed)
	return compressed, hex.EncodeToString(sum[:]), nil
}

// decodeRecord verifies the checksum recorded at write time and deserializes
// the payload. A mismatch means the object was altered or truncated after
// the manifest row was committed.
func decodeRecord(data []byte, checksum string, v any) error {
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != checksum {
		return errors.NewStoreError(errors.CodeCorruptionDetected,
			"record payload does not match manifest checksum", nil)
	}

	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return errors.NewStoreError(errors.CodeCorruptionDetected,
			"record payload failed decompression", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.NewStoreError(errors.CodeCorruptionDetected,
			"record payload failed decoding", err)
	}
	return nil
}

// snapshotObjectPath places snapshot payloads under a two-character hash
// prefix fanout so no single directory grows unbounded.
func snapshotObjectPath(hash string) string {
	return fmt.Sprintf("snapshots/%s/%s.json.sz", hash[:2], hash)
}

func transitionObjectPath(hash string) string {
	return fmt.Sprintf("transitions/%s/%s.json.sz", hash[:2], hash)
}
