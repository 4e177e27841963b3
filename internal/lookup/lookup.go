// Package lookup provides the lookup tables used to enrich log messages.
//
// A table is loaded from a JSON file of {index, value} rows and maps a key
// to a replacement string. Three representations exist: a sorted string
// table, a dense array indexed by a contiguous run of unsigned keys, and a
// sparse sorted array of unsigned keys. Tables are immutable snapshots;
// a Ref holds the current snapshot for a named table and swaps it wholesale
// on reload, so queries never observe a partially built table.
package lookup

import (
	"strconv"
	"strings"
)

// Kind identifies the in-memory representation of a table.
type Kind uint8

const (
	KindString Kind = iota
	KindArray
	KindSparseArray
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "array"
	case KindSparseArray:
		return "sparseArray"
	default:
		return "string"
	}
}

// KeyType is the type of key a table is indexed by.
type KeyType uint8

const (
	KeyString KeyType = iota
	KeyUint
)

func (t KeyType) String() string {
	if t == KeyUint {
		return "uint"
	}
	return "string"
}

// Key is a lookup key. The table's KeyType decides which form is used:
// string tables read Str, array and sparse array tables read Uint.
type Key struct {
	Str  string
	Uint uint32
}

// StringKey returns a key for string tables.
func StringKey(s string) Key { return Key{Str: s} }

// UintKey returns a key for array and sparse array tables.
func UintKey(u uint32) Key { return Key{Uint: u} }

// ParseKey converts text into a key of the given type. For KeyUint the text
// must be a base-10 unsigned 32-bit integer, surrounding spaces allowed.
func ParseKey(t KeyType, s string) (Key, bool) {
	if t == KeyString {
		return Key{Str: s}, true
	}
	u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return Key{}, false
	}
	return Key{Uint: uint32(u)}, true
}
