// Package fingerprint derives stable idempotency keys for publish targets.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"syndicate/internal/accounts"
)

// Compute returns the deterministic dedup key for one logical publish job.
// The digest covers the artifact identity plus the (platform, account, kind)
// destination, each written length-prefixed so field boundaries cannot
// collide. The result is stable across process restarts; enqueue computes it
// once and the store persists it verbatim.
func Compute(artifact string, platform accounts.Platform, accountID string, kind accounts.Kind) string {
	hasher := sha256.New()
	for _, field := range []string{
		strings.TrimSpace(artifact),
		string(platform),
		strings.TrimSpace(accountID),
		string(kind),
	} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		hasher.Write(size[:])
		hasher.Write([]byte(field))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
