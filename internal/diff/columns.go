package diff

import (
	"reflect"
	"sort"

	"github.com/hpungsan/tablesnap/internal/capture"
)

// ColumnChange is one column whose value differs between two rows.
type ColumnChange struct {
	Column string `json:"column"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// ChangedColumns lists the columns that differ between before and after,
// sorted by name. Both rows' columns are considered; a column absent on one
// side compares as nil.
func ChangedColumns(before, after capture.Row) []ColumnChange {
	cols := make(map[string]struct{}, len(before)+len(after))
	for c := range before {
		cols[c] = struct{}{}
	}
	for c := range after {
		cols[c] = struct{}{}
	}

	var changes []ColumnChange
	for c := range cols {
		b, a := before[c], after[c]
		if reflect.DeepEqual(b, a) {
			continue
		}
		changes = append(changes, ColumnChange{Column: c, Before: b, After: a})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Column < changes[j].Column })
	return changes
}

// Columns returns the changed columns of an update. Hashing-mode updates
// carry no row content and have none.
func (u Update) Columns() []ColumnChange {
	if u.Before.Row == nil && u.After.Row == nil {
		return nil
	}
	return ChangedColumns(u.Before.Row, u.After.Row)
}

// OneSidedColumns returns the columns only before has and the columns only
// after has, each sorted. ChangedColumns reports nothing for a column that
// is missing on one side and nil on the other, yet the rows still differ.
func OneSidedColumns(before, after capture.Row) (onlyBefore, onlyAfter []string) {
	for c := range before {
		if _, ok := after[c]; !ok {
			onlyBefore = append(onlyBefore, c)
		}
	}
	for c := range after {
		if _, ok := before[c]; !ok {
			onlyAfter = append(onlyAfter, c)
		}
	}
	sort.Strings(onlyBefore)
	sort.Strings(onlyAfter)
	return onlyBefore, onlyAfter
}
