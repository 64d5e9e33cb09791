// Package diff reconciles two captures of one table by key and classifies
// every key as inserted, deleted, updated or unchanged.
package diff

import (
	"reflect"
	"sort"

	"github.com/hpungsan/tablesnap/internal/capture"
)

// Entry is one side of a classified key. Row is set in full mode,
// Fingerprint in hashing mode.
type Entry struct {
	Row         capture.Row `json:"row,omitempty"`
	Fingerprint string      `json:"fingerprint,omitempty"`
}

// Update is a key present on both sides whose content differs.
type Update struct {
	Key    string `json:"key"`
	Before Entry  `json:"before"`
	After  Entry  `json:"after"`
}

// Delta is the classified difference of one table between two labels.
type Delta struct {
	Table     string           `json:"table"`
	Mode      capture.Mode     `json:"mode"`
	Inserted  map[string]Entry `json:"inserted"`
	Deleted   map[string]Entry `json:"deleted"`
	Updated   []Update         `json:"updated"`
	Unchanged int              `json:"unchanged"`
}

// Stats counts keys per classification.
type Stats struct {
	Inserted  int `json:"inserted"`
	Deleted   int `json:"deleted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.Inserted += other.Inserted
	s.Deleted += other.Deleted
	s.Updated += other.Updated
	s.Unchanged += other.Unchanged
}

// Changes returns the number of keys that differ.
func (s Stats) Changes() int {
	return s.Inserted + s.Deleted + s.Updated
}

// Stats returns the delta's per-class counts.
func (d *Delta) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Inserted:  len(d.Inserted),
		Deleted:   len(d.Deleted),
		Updated:   len(d.Updated),
		Unchanged: d.Unchanged,
	}
}

// Empty reports whether the delta has no inserted, deleted or updated keys.
func (d *Delta) Empty() bool {
	return d == nil || (len(d.Inserted) == 0 && len(d.Deleted) == 0 && len(d.Updated) == 0)
}

// InsertedKeys returns the inserted keys in sorted order.
func (d *Delta) InsertedKeys() []string {
	if d == nil {
		return nil
	}
	return sortedKeys(d.Inserted)
}

// DeletedKeys returns the deleted keys in sorted order.
func (d *Delta) DeletedKeys() []string {
	if d == nil {
		return nil
	}
	return sortedKeys(d.Deleted)
}

// UpdatedKeys returns the updated keys in order.
func (d *Delta) UpdatedKeys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, len(d.Updated))
	for i, u := range d.Updated {
		keys[i] = u.Key
	}
	return keys
}

// Table compares before and after in the given mode. Nil captures are empty.
// Inputs are not modified; the rows in the delta are shared with them.
func Table(before, after *capture.Capture, mode capture.Mode) *Delta {
	b := entries(before, mode)
	a := entries(after, mode)

	d := &Delta{
		Mode:     mode,
		Inserted: make(map[string]Entry),
		Deleted:  make(map[string]Entry),
		Updated:  []Update{},
	}
	switch {
	case after != nil:
		d.Table = after.Table
	case before != nil:
		d.Table = before.Table
	}

	for key, be := range b {
		ae, ok := a[key]
		if !ok {
			d.Deleted[key] = be
			continue
		}
		if same(be, ae, mode) {
			d.Unchanged++
			continue
		}
		d.Updated = append(d.Updated, Update{Key: key, Before: be, After: ae})
	}
	for key, ae := range a {
		if _, ok := b[key]; !ok {
			d.Inserted[key] = ae
		}
	}

	sort.Slice(d.Updated, func(i, j int) bool { return d.Updated[i].Key < d.Updated[j].Key })
	return d
}

// entries views a capture as key -> Entry for mode. A full capture compared in
// hashing mode is fingerprinted on the fly; a hashing capture compared in full
// mode has no rows and is compared by fingerprint.
func entries(c *capture.Capture, mode capture.Mode) map[string]Entry {
	if c == nil {
		return nil
	}
	out := make(map[string]Entry, c.Len())
	if c.Fingerprints != nil {
		for k, h := range c.Fingerprints {
			out[k] = Entry{Fingerprint: h}
		}
		return out
	}
	for k, row := range c.Rows {
		e := Entry{Row: row}
		if mode == capture.ModeHashing {
			e = Entry{Fingerprint: fingerprintOrEmpty(row)}
		}
		out[k] = e
	}
	return out
}

func fingerprintOrEmpty(row capture.Row) string {
	h, err := capture.Fingerprint(row)
	if err != nil {
		return ""
	}
	return h
}

// same compares two entries. Full mode requires every column to be equal in
// value and type; mismatched entry shapes are never equal.
func same(b, a Entry, mode capture.Mode) bool {
	if mode == capture.ModeHashing || (b.Row == nil && a.Row == nil) {
		return b.Fingerprint == a.Fingerprint && b.Row == nil && a.Row == nil
	}
	if b.Row == nil || a.Row == nil {
		return false
	}
	return reflect.DeepEqual(b.Row, a.Row)
}

func sortedKeys(m map[string]Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
