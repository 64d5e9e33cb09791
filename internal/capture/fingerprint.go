package capture

import (
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
)

// HashedRow is the on-disk form of a hashing-mode row.
type HashedRow struct {
	ID   any    `json:"id"`
	Hash string `json:"hash"`
}

// Fingerprint returns a fixed-size digest of the row's content: FNV-1a 128
// over the row's JSON encoding. encoding/json writes map keys in sorted order,
// so column order never changes the result. Strings that are not valid UTF-8
// are hashed in their Text form.
func Fingerprint(row Row) (string, error) {
	data, err := json.Marshal(textRow(row))
	if err != nil {
		return "", err
	}
	h := fnv.New128a()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
