package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeResultID computes a deterministic backtest result id using SHA256.
// Formula: SHA256(run_id|trigger|alert_id)
// Returns hex-encoded hash (64 characters).
func ComputeResultID(
	runID string,
	trigger string,
	alertID string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		runID,
		trigger,
		alertID,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
