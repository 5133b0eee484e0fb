package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// batchEnvelope is the canonical serialization the commit hash is computed
// over.  Field order is fixed by the struct; json.Marshal keeps it stable, so
// identical (diffs, message) inputs always produce the same digest.
type batchEnvelope struct {
	Diffs   []Diff `json:"diffs"`
	Message string `json:"message"`
}

// commitSha digests the canonical (diffs, message) serialization.  The hash
// is a traceability token, not a cryptographic commitment.
func commitSha(diffs []Diff, message string) (string, error) {
	data, err := json.Marshal(batchEnvelope{Diffs: diffs, Message: message})
	if err != nil {
		return "", fmt.Errorf("patch: serialize batch for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
