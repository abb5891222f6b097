/*
Package changes tracks what a caller modified on a row between loading it and
saving it.

A save path receives an Edit: the row as it was loaded, and the row as the
caller wants it to be. Compute walks the `db`-tagged fields of both and reports
the ones that differ, keyed by column name. Nothing is recorded on the model
itself, so the same struct can be loaded, copied and compared freely.
*/
package changes

import (
	"reflect"
	"sort"
)

// A loaded row plus the caller's modified copy. Original is nil for rows that
// have never been persisted.
type Edit[T any] struct {
	Original *T
	Current  T
}

// Track starts an edit of a row that was just loaded from the database. The
// snapshot is a shallow copy, so callers must replace slice fields rather
// than modify them in place.
func Track[T any](loaded *T) Edit[T] {
	snapshot := *loaded
	return Edit[T]{
		Original: &snapshot,
		Current:  *loaded,
	}
}

// New starts an edit of a row that doesn't exist yet.
func New[T any](v T) Edit[T] {
	return Edit[T]{Current: v}
}

// Rebase swaps the loaded snapshot for the row as it is stored right now,
// usually read FOR UPDATE inside the saving transaction. Current is kept, so
// the diff describes what this save overwrites, whatever other saves
// committed since the row was loaded.
func (e Edit[T]) Rebase(stored *T) Edit[T] {
	return Edit[T]{Original: stored, Current: e.Current}
}

func (e Edit[T]) IsNew() bool {
	return e.Original == nil
}

// Diff is empty for new rows.
func (e Edit[T]) Diff() Diff {
	if e.Original == nil {
		return Diff{}
	}
	return Compute(*e.Original, e.Current)
}

type Change struct {
	Old any
	New any
}

// Column name -> old and new value. Pointer fields are dereferenced, so a
// nullable column shows up as nil or as its plain value.
type Diff map[string]Change

func (d Diff) Has(fields ...string) bool {
	for _, f := range fields {
		if _, ok := d[f]; ok {
			return true
		}
	}
	return false
}

// Sorted column names.
func (d Diff) Fields() []string {
	fields := make([]string, 0, len(d))
	for f := range d {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Only keeps the given fields.
func (d Diff) Only(fields ...string) Diff {
	res := Diff{}
	for _, f := range fields {
		if c, ok := d[f]; ok {
			res[f] = c
		}
	}
	return res
}

// Old returns the value the field had when the row was loaded, and whether
// the field changed at all.
func (d Diff) Old(field string) (any, bool) {
	c, ok := d[field]
	return c.Old, ok
}

// Compute compares every `db`-tagged field of two values of the same struct
// type.
func Compute[T any](original, current T) Diff {
	ov := reflect.ValueOf(original)
	cv := reflect.ValueOf(current)
	if ov.Kind() != reflect.Struct {
		panic("changes.Compute only works on structs, got " + ov.Kind().String())
	}

	diff := Diff{}
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		column := t.Field(i).Tag.Get("db")
		if column == "" || column == "-" {
			continue
		}
		o := unwrap(ov.Field(i))
		c := unwrap(cv.Field(i))
		if !reflect.DeepEqual(o, c) {
			diff[column] = Change{Old: o, New: c}
		}
	}
	return diff
}

func unwrap(v reflect.Value) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
