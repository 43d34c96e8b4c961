package reconcile

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"estate_backoffice/internal/models"
)

const maxKeyLength = 128

// RequestHash fingerprints a request so a reused key can be told apart from a replay
func RequestHash(op models.WorkflowOperation, req interface{}) (string, []byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("encode request: %w", err)
	}
	sum := sha256.Sum256(append([]byte(string(op)+"|"), body...))
	return hex.EncodeToString(sum[:]), body, nil
}

// DeriveKey builds a key for callers that did not send one. Identical requests by the
// same operator on the same record within one window share a key.
func DeriveKey(actor models.Actor, op models.WorkflowOperation, subjectID uint, requestHash string, at time.Time, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	bucket := at.UnixNano() / int64(window)
	raw := fmt.Sprintf("%d|%d|%s|%d|%s|%d", actor.TenantID, actor.UserID, op, subjectID, requestHash, bucket)
	sum := sha256.Sum256([]byte(raw))
	return "auto-" + hex.EncodeToString(sum[:])
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) > maxKeyLength {
		return "", ErrInvalidIdempotencyKey
	}
	return key, nil
}
