package postgres

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint is the stable identity of one query on one instance,
// used as the recommendation upsert key. The input layout must never
// change across releases or stored recommendations would duplicate.
func Fingerprint(queryID string, instanceID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", instanceID, queryID)))
	return hex.EncodeToString(sum[:])
}

// ReadReplicaFingerprint reserves a single recommendation slot per
// instance for the read-replica suggestion.
func ReadReplicaFingerprint(instanceID int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:read_replica", instanceID)))
	return hex.EncodeToString(sum[:])
}
