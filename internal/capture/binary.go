package capture

import (
	"encoding/hex"
	"unicode/utf8"
)

// BinaryPrefix marks a value that held bytes which are not valid UTF-8. The
// bytes follow hex encoded, the way PostgreSQL prints bytea.
const BinaryPrefix = `\x`

// Text returns b as a string when it is valid UTF-8, otherwise as
// BinaryPrefix followed by its hex encoding. encoding/json would replace
// every invalid byte with U+FFFD, so distinct blobs could compare equal.
func Text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return BinaryPrefix + hex.EncodeToString(b)
}

// textRow returns row with every invalid UTF-8 string passed through Text.
// The row itself is returned when nothing needs encoding.
func textRow(row Row) Row {
	var out Row
	for c, v := range row {
		s, ok := v.(string)
		if !ok || utf8.ValidString(s) {
			continue
		}
		if out == nil {
			out = make(Row, len(row))
			for k, kv := range row {
				out[k] = kv
			}
		}
		out[c] = Text([]byte(s))
	}
	if out == nil {
		return row
	}
	return out
}
