package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrHashGeneration indicates the package content could not be canonicalized
// and hashed; the export is aborted rather than shipped with a wrong hash.
var ErrHashGeneration = errors.New("evidence: hash generation failed")

// canonicalJSON serializes a value with object keys sorted lexicographically
// at every nesting level, so logically identical structures always yield
// byte-identical output regardless of insertion order. The value is first
// marshalled and re-read into generic maps because encoding/json writes map
// keys in sorted order.
func canonicalJSON(value any) ([]byte, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashGeneration, err)
	}
	var tree any
	if err := json.Unmarshal(encoded, &tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashGeneration, err)
	}
	canonical, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashGeneration, err)
	}
	return canonical, nil
}

// contentHash hex-encodes the SHA-256 digest of the canonical serialization.
func contentHash(value any) (string, error) {
	canonical, err := canonicalJSON(value)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}
