// Package capture defines row captures: the rows (or row fingerprints) of one
// table taken under one label, and the compressed on-disk store they live in.
package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hpungsan/tablesnap/internal/errors"
)

// Row maps column names to JSON-compatible values. Numbers decoded from a
// capture file are json.Number, so 1 and "1" stay distinct.
type Row map[string]any

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Mode selects between full-row and fingerprint captures.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeHashing Mode = "hashing"
)

// ParseMode validates a mode name. Empty means full.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeHashing, "hash":
		return ModeHashing, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid mode %q: must be full or hashing", s))
	}
}

// ModeFor returns the mode selected by a hashing toggle.
func ModeFor(useHashing bool) Mode {
	if useHashing {
		return ModeHashing
	}
	return ModeFull
}

// Capture is one table's rows under one label. In full mode Rows is populated,
// in hashing mode Fingerprints. Captures are read-only once loaded.
type Capture struct {
	Table        string
	Label        string
	Mode         Mode
	Rows         map[string]Row
	Fingerprints map[string]string

	// Dropped counts rows that had no usable key value.
	Dropped int
}

// NewCapture returns an empty capture for the given mode.
func NewCapture(table, label string, mode Mode) *Capture {
	c := &Capture{Table: table, Label: label, Mode: mode}
	if mode == ModeHashing {
		c.Fingerprints = make(map[string]string)
	} else {
		c.Rows = make(map[string]Row)
	}
	return c
}

// Len returns the number of keyed entries in the capture.
func (c *Capture) Len() int {
	if c == nil {
		return 0
	}
	if c.Mode == ModeHashing {
		return len(c.Fingerprints)
	}
	return len(c.Rows)
}

// Keys returns the capture's keys in sorted order.
func (c *Capture) Keys() []string {
	if c == nil {
		return nil
	}
	var keys []string
	if c.Mode == ModeHashing {
		keys = make([]string, 0, len(c.Fingerprints))
		for k := range c.Fingerprints {
			keys = append(keys, k)
		}
	} else {
		keys = make([]string, 0, len(c.Rows))
		for k := range c.Rows {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Key returns the canonical map key for an identifier value. Strings are used
// as is and numbers by their decimal literal; anything else has no key.
func Key(v any) (string, bool) {
	switch k := v.(type) {
	case string:
		return k, k != ""
	case json.Number:
		return k.String(), k != ""
	case int:
		return strconv.Itoa(k), true
	case int32:
		return strconv.FormatInt(int64(k), 10), true
	case int64:
		return strconv.FormatInt(k, 10), true
	case uint:
		return strconv.FormatUint(uint64(k), 10), true
	case uint32:
		return strconv.FormatUint(uint64(k), 10), true
	case uint64:
		return strconv.FormatUint(k, 10), true
	case float64:
		if math.IsNaN(k) || math.IsInf(k, 0) {
			return "", false
		}
		return strconv.FormatFloat(k, 'f', -1, 64), true
	case []byte:
		return string(k), len(k) > 0
	default:
		return "", false
	}
}
