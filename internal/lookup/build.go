package lookup

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// row is a table row with its value already resolved to text.
type row struct {
	index json.RawMessage
	value string
}

// Build converts a parsed document into a table. name is only used in
// error messages. On failure no table is returned.
func Build(name string, doc *Document) (*Table, error) {
	rows, err := decodeRows(name, doc.Table)
	if err != nil {
		return nil, err
	}

	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = r.value
	}

	t := &Table{
		members: len(rows),
		vals:    newPool(values),
	}

	if len(bytes.TrimSpace(doc.Nomatch)) > 0 && !isNull(doc.Nomatch) {
		nm, _, ok := scalarText(doc.Nomatch)
		if !ok {
			return nil, fmt.Errorf("%w: lookup table %q: nomatch must be a string, number or boolean", ErrValidation, name)
		}
		t.nomatch, t.hasDef = nm, true
	}

	var declared string
	t.kind, declared = tableKind(doc.Type)

	switch t.kind {
	case KindArray:
		t.index, err = buildArray(name, rows, t.vals)
	case KindSparseArray:
		t.index, err = buildSparse(name, rows, t.vals)
	default:
		t.declaredType = declared
		t.index, err = buildString(name, rows, t.vals)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// tableKind maps the "type" field to a Kind. Anything that is not exactly
// "array" or "sparseArray" builds a string table; the second result is the
// unrecognised declaration, empty when the field was absent or "string".
func tableKind(raw json.RawMessage) (Kind, string) {
	if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
		return KindString, ""
	}
	text, isString, ok := scalarText(raw)
	if !ok {
		return KindString, string(bytes.TrimSpace(raw))
	}
	if isString {
		switch text {
		case "array":
			return KindArray, ""
		case "sparseArray":
			return KindSparseArray, ""
		case "string":
			return KindString, ""
		}
	}
	return KindString, text
}

func decodeRows(name string, raw json.RawMessage) ([]row, error) {
	if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
		return nil, fmt.Errorf("%w: lookup table %q: missing \"table\" array", ErrValidation, name)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: lookup table %q: \"table\" is not an array", ErrValidation, name)
	}

	rows := make([]row, len(elems))
	for i, e := range elems {
		var r Row
		if err := json.Unmarshal(e, &r); err != nil || isNull(e) {
			return nil, &RowError{Table: name, Row: i, Reason: "not an object"}
		}
		if len(bytes.TrimSpace(r.Index)) == 0 || isNull(r.Index) {
			return nil, &RowError{Table: name, Row: i, Reason: "missing index"}
		}
		v, _, ok := scalarText(r.Value)
		if !ok {
			return nil, &RowError{Table: name, Row: i, Reason: "missing or non-scalar value"}
		}
		rows[i] = row{index: r.Index, value: v}
	}
	return rows, nil
}

func buildString(name string, rows []row, p pool) (stringIndex, error) {
	ix := make(stringIndex, len(rows))
	for i, r := range rows {
		key, _, ok := scalarText(r.index)
		if !ok {
			return nil, &RowError{Table: name, Row: i, Reason: "index must be a string or number"}
		}
		ref, err := intern(name, p, r.value)
		if err != nil {
			return nil, err
		}
		ix[i] = stringEntry{key: key, val: ref}
	}
	slices.SortFunc(ix, func(a, b stringEntry) int { return strings.Compare(a.key, b.key) })
	for i := 1; i < len(ix); i++ {
		if ix[i].key == ix[i-1].key {
			return nil, &DuplicateKeyError{Table: name, Key: ix[i].key}
		}
	}
	return ix, nil
}

func buildArray(name string, rows []row, p pool) (arrayIndex, error) {
	entries, err := uintEntries(name, rows, p)
	if err != nil {
		return arrayIndex{}, err
	}
	ix := arrayIndex{vals: make([]uint32, len(entries))}
	for i, e := range entries {
		if i == 0 {
			ix.first = e.key
		} else if prev := entries[i-1].key; e.key != prev+1 {
			return arrayIndex{}, &NonContiguousError{Table: name, Prev: prev, Next: e.key}
		}
		ix.vals[i] = e.val
	}
	return ix, nil
}

func buildSparse(name string, rows []row, p pool) (sparseIndex, error) {
	entries, err := uintEntries(name, rows, p)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].key == entries[i-1].key {
			return nil, &DuplicateKeyError{Table: name, Key: formatUint(entries[i].key)}
		}
	}
	return sparseIndex(entries), nil
}

// uintEntries resolves rows with unsigned indices, sorted by index.
func uintEntries(name string, rows []row, p pool) ([]uintEntry, error) {
	entries := make([]uintEntry, len(rows))
	for i, r := range rows {
		key, err := parseIndex(r.index)
		if err != nil {
			return nil, &RowError{Table: name, Row: i, Reason: err.Error()}
		}
		ref, err := intern(name, p, r.value)
		if err != nil {
			return nil, err
		}
		entries[i] = uintEntry{key: key, val: ref}
	}
	slices.SortFunc(entries, func(a, b uintEntry) int { return cmp.Compare(a.key, b.key) })
	return entries, nil
}

func intern(name string, p pool, v string) (uint32, error) {
	ref, ok := p.ref(v)
	if !ok {
		return 0, fmt.Errorf("%w: lookup table %q: value %q missing from intern pool", ErrInternal, name, v)
	}
	return ref, nil
}

// parseIndex accepts a JSON integer or a decimal string.
func parseIndex(raw json.RawMessage) (uint32, error) {
	text, _, ok := scalarText(raw)
	if !ok {
		return 0, fmt.Errorf("index %s is not a number", bytes.TrimSpace(raw))
	}
	u, err := strconv.ParseUint(strings.TrimSpace(text), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("index %q is not an unsigned 32-bit integer", text)
	}
	return uint32(u), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func formatUint(u uint32) string {
	return strconv.FormatUint(uint64(u), 10)
}
