package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	JobListPattern   = "jobs:list:*"
	JobDetailPattern = "jobs:detail:*"
	StatusKey        = "pipeline:status"

	signaturesPrefix  = "jobs:signatures:"
	lockPrefix        = "pipeline:lock:"
	signatureSentinel = "-"
)

func SignaturesKey(company string) string {
	return signaturesPrefix + strings.ToLower(strings.TrimSpace(company))
}

func LockKey(company, stageTag string) string {
	return lockPrefix + stageTag + ":" + strings.ToLower(strings.TrimSpace(company))
}

func JobDetailKey(signature string) string {
	return "jobs:detail:" + strings.TrimSpace(signature)
}

// JobListKey hashes the normalized query so arbitrary filter values never
// leak into key names.
func JobListKey(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, p := range parts {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(p)))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return "jobs:list:" + hex.EncodeToString(sum[:])
}
