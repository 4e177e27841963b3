package lookup

import (
	"cmp"
	"slices"
	"strings"
)

// Table is one immutable, fully built lookup table snapshot.
// A *Table is safe for concurrent use; nothing mutates it after Build.
type Table struct {
	kind    Kind
	members int
	nomatch string
	hasDef  bool
	vals    pool
	index   index

	// declaredType holds the "type" field when it was present but not
	// recognised, so callers can warn about the fallback to a string table.
	declaredType string
}

// index is the representation-specific part of a Table.
// Exactly one of stringIndex, arrayIndex or sparseIndex.
type index interface {
	keyType() KeyType
}

type stringEntry struct {
	key string
	val uint32
}

type uintEntry struct {
	key uint32
	val uint32
}

// stringIndex is sorted by key.
type stringIndex []stringEntry

// arrayIndex holds one value per key in [first, first+len(vals)).
type arrayIndex struct {
	first uint32
	vals  []uint32
}

// sparseIndex is sorted by key; gaps are allowed.
type sparseIndex []uintEntry

func (stringIndex) keyType() KeyType { return KeyString }
func (arrayIndex) keyType() KeyType  { return KeyUint }
func (sparseIndex) keyType() KeyType { return KeyUint }

func (ix stringIndex) find(key string) (uint32, bool) {
	i, ok := slices.BinarySearchFunc(ix, key, func(e stringEntry, k string) int {
		return strings.Compare(e.key, k)
	})
	if !ok {
		return 0, false
	}
	return ix[i].val, true
}

func (ix arrayIndex) find(key uint32) (uint32, bool) {
	if key < ix.first || uint64(key-ix.first) >= uint64(len(ix.vals)) {
		return 0, false
	}
	return ix.vals[key-ix.first], true
}

func (ix sparseIndex) find(key uint32) (uint32, bool) {
	i, ok := slices.BinarySearchFunc(ix, key, func(e uintEntry, k uint32) int {
		return cmp.Compare(e.key, k)
	})
	if !ok {
		return 0, false
	}
	return ix[i].val, true
}

// Lookup resolves k. A miss returns the table's nomatch value, or "" when
// the table has none. Lookup never fails.
func (t *Table) Lookup(k Key) string {
	var (
		ref uint32
		ok  bool
	)
	switch ix := t.index.(type) {
	case stringIndex:
		ref, ok = ix.find(k.Str)
	case arrayIndex:
		ref, ok = ix.find(k.Uint)
	case sparseIndex:
		ref, ok = ix.find(k.Uint)
	}
	if !ok {
		return t.nomatch
	}
	return t.vals.value(ref)
}

// Kind returns the table representation.
func (t *Table) Kind() Kind { return t.kind }

// KeyType returns the type of key the table is indexed by.
func (t *Table) KeyType() KeyType { return t.index.keyType() }

// Len returns the number of rows in the table.
func (t *Table) Len() int { return t.members }

// Distinct returns the number of interned values.
func (t *Table) Distinct() int { return len(t.vals) }

// Default returns the nomatch value and whether one was configured.
func (t *Table) Default() (string, bool) { return t.nomatch, t.hasDef }

// TypeFallback returns the unrecognised "type" the file declared, if the
// table was built as a string table because of it.
func (t *Table) TypeFallback() (string, bool) {
	return t.declaredType, t.declaredType != ""
}

// Each calls fn for every row in key order. Keys of uint tables are
// rendered in base 10. Iteration stops when fn returns false.
func (t *Table) Each(fn func(key, value string) bool) {
	switch ix := t.index.(type) {
	case stringIndex:
		for _, e := range ix {
			if !fn(e.key, t.vals.value(e.val)) {
				return
			}
		}
	case arrayIndex:
		for i, v := range ix.vals {
			if !fn(formatUint(ix.first+uint32(i)), t.vals.value(v)) { //nolint:gosec // len(vals) fits the key range by construction
				return
			}
		}
	case sparseIndex:
		for _, e := range ix {
			if !fn(formatUint(e.key), t.vals.value(e.val)) {
				return
			}
		}
	}
}
