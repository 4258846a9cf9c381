package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"pnf-signal-lab/internal/domain"
)

// ComputeAlertID computes a deterministic alert id using SHA256.
// Formula: SHA256(instrument_id|kind|level|trigger_column_index|trigger_time)
// Returns hex-encoded hash (64 characters).
func ComputeAlertID(
	key domain.AlertKey,
	triggerColumnIndex int,
	triggerTime int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		key.InstrumentID,
		string(key.Kind),
		key.Level,
		triggerColumnIndex,
		triggerTime,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
