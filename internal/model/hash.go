package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainChange   = "habitsync/change/v1"
	DomainSnapshot = "habitsync/snapshot/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ChangeID computes the content-addressed id of a sync change.
// Identical mutations enqueued at the same instant share an id unless a
// positive ordinal tells them apart; ordinal 0 leaves it out of the hash.
func ChangeID(kind ChangeKind, payload json.RawMessage, enqueuedAt time.Time, ordinal int) (string, error) {
	obj := map[string]any{
		"kind":       string(kind),
		"payload":    payload,
		"enqueuedAt": enqueuedAt.UTC().Format(time.RFC3339Nano),
	}
	if ordinal > 0 {
		obj["ordinal"] = ordinal
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ChangeID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainChange, canonical), nil
}

// SnapshotHash computes a digest of a snapshot. Two snapshots with equal
// hashes hold the same data.
func SnapshotHash(s Snapshot) (string, error) {
	canonical, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}
