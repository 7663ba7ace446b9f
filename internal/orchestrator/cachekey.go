package orchestrator

import (
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/blake2b"
)

// cacheKey canonicalizes (intent, params) into a bounded cache key.
// encoding/json sorts map keys when marshaling, so two calls with the same
// intent and semantically equal params — regardless of key order in the
// caller's map — produce byte-identical input to the hash and therefore
// the same key.
func cacheKey(intent string, params map[string]any) (string, error) {
	normalized, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(append([]byte(intent+"\x00"), normalized...))
	return "cache:" + hex.EncodeToString(sum[:]), nil
}
