package lookup

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// mustBuild parses and builds src, failing the test on error.
func mustBuild(t *testing.T, src string) *Table {
	t.Helper()
	tab, err := buildSrc(t, src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tab
}

func buildSrc(t *testing.T, src string) (*Table, error) {
	t.Helper()
	doc, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return Build("test", doc)
}

func TestBuildStringTable(t *testing.T) {
	tab := mustBuild(t, `{
		"version": 1,
		"nomatch": "unknown",
		"type": "string",
		"table": [
			{"index": "10.0.0.1", "value": "web"},
			{"index": "10.0.0.2", "value": "db"},
			{"index": "10.0.0.3", "value": "web"}
		]
	}`)

	if tab.Kind() != KindString || tab.KeyType() != KeyString {
		t.Fatalf("kind/key = %v/%v, want string/string", tab.Kind(), tab.KeyType())
	}
	if tab.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tab.Len())
	}

	tests := []struct {
		key  string
		want string
	}{
		{"10.0.0.1", "web"},
		{"10.0.0.2", "db"},
		{"10.0.0.3", "web"},
		{"10.0.0.4", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := tab.Lookup(StringKey(tt.key)); got != tt.want {
			t.Errorf("Lookup(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestBuildDefaultsToEmptyString(t *testing.T) {
	tab := mustBuild(t, `{"table": [{"index": "a", "value": "x"}]}`)

	if _, ok := tab.Default(); ok {
		t.Error("Default() reported a nomatch value that was not configured")
	}
	if got := tab.Lookup(StringKey("b")); got != "" {
		t.Errorf("Lookup miss = %q, want empty string", got)
	}
}

func TestBuildInternsValues(t *testing.T) {
	tab := mustBuild(t, `{"table": [
		{"index": "a", "value": "red"},
		{"index": "b", "value": "green"},
		{"index": "c", "value": "red"},
		{"index": "d", "value": "red"},
		{"index": "e", "value": "Red"},
		{"index": "f", "value": "green"}
	]}`)

	if got := tab.Distinct(); got != 3 {
		t.Fatalf("Distinct() = %d, want 3", got)
	}
	ix := tab.index.(stringIndex)
	refs := map[string]uint32{}
	for _, e := range ix {
		v := tab.vals.value(e.val)
		if prev, ok := refs[v]; ok && prev != e.val {
			t.Errorf("value %q interned twice (refs %d and %d)", v, prev, e.val)
		}
		refs[v] = e.val
	}
	for i := 1; i < len(tab.vals); i++ {
		if tab.vals[i-1] >= tab.vals[i] {
			t.Errorf("pool not sorted and unique at %d: %q, %q", i, tab.vals[i-1], tab.vals[i])
		}
	}
}

func TestBuildArrayTable(t *testing.T) {
	// Rows deliberately out of order.
	tab := mustBuild(t, `{
		"type": "array",
		"nomatch": "none",
		"table": [
			{"index": 7, "value": "c"},
			{"index": 5, "value": "a"},
			{"index": 8, "value": "d"},
			{"index": 6, "value": "b"}
		]
	}`)

	if tab.Kind() != KindArray || tab.KeyType() != KeyUint {
		t.Fatalf("kind/key = %v/%v, want array/uint", tab.Kind(), tab.KeyType())
	}
	tests := []struct {
		key  uint32
		want string
	}{
		{0, "none"},
		{4, "none"},
		{5, "a"},
		{6, "b"},
		{7, "c"},
		{8, "d"},
		{9, "none"},
		{1<<32 - 1, "none"},
	}
	for _, tt := range tests {
		if got := tab.Lookup(UintKey(tt.key)); got != tt.want {
			t.Errorf("Lookup(%d) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestBuildArrayNonContiguous(t *testing.T) {
	_, err := buildSrc(t, `{"type": "array", "table": [
		{"index": 5, "value": "a"},
		{"index": 6, "value": "b"},
		{"index": 9, "value": "d"},
		{"index": 7, "value": "c"}
	]}`)

	var nc *NonContiguousError
	if !errors.As(err, &nc) {
		t.Fatalf("Build error = %v, want *NonContiguousError", err)
	}
	if nc.Prev != 7 || nc.Next != 9 {
		t.Errorf("gap = %d..%d, want 7..9", nc.Prev, nc.Next)
	}
	if nc.Table != "test" {
		t.Errorf("Table = %q, want %q", nc.Table, "test")
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("NonContiguousError should match ErrValidation")
	}
	if !strings.Contains(err.Error(), "7") || !strings.Contains(err.Error(), "9") {
		t.Errorf("message %q should name both indices", err.Error())
	}
}

func TestBuildArrayDuplicateIndexIsGap(t *testing.T) {
	_, err := buildSrc(t, `{"type": "array", "table": [
		{"index": 1, "value": "a"},
		{"index": 1, "value": "b"}
	]}`)
	var nc *NonContiguousError
	if !errors.As(err, &nc) {
		t.Fatalf("Build error = %v, want *NonContiguousError", err)
	}
}

func TestBuildArrayStringIndices(t *testing.T) {
	tab := mustBuild(t, `{"type": "array", "table": [
		{"index": "0", "value": "zero"},
		{"index": " 1", "value": "one"}
	]}`)
	if got := tab.Lookup(UintKey(1)); got != "one" {
		t.Errorf("Lookup(1) = %q, want %q", got, "one")
	}
}

func TestBuildSparseArrayTable(t *testing.T) {
	tab := mustBuild(t, `{
		"type": "sparseArray",
		"nomatch": "?",
		"table": [
			{"index": 1000, "value": "k"},
			{"index": 3, "value": "three"},
			{"index": 4294967295, "value": "max"},
			{"index": 42, "value": "answer"}
		]
	}`)

	if tab.Kind() != KindSparseArray || tab.KeyType() != KeyUint {
		t.Fatalf("kind/key = %v/%v, want sparseArray/uint", tab.Kind(), tab.KeyType())
	}
	tests := []struct {
		key  uint32
		want string
	}{
		{3, "three"},
		{42, "answer"},
		{1000, "k"},
		{4294967295, "max"},
		{4, "?"},
		{0, "?"},
	}
	for _, tt := range tests {
		if got := tab.Lookup(UintKey(tt.key)); got != tt.want {
			t.Errorf("Lookup(%d) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestBuildTypeFallback(t *testing.T) {
	tests := []struct {
		name     string
		typ      string
		fallback string
	}{
		{"absent", ``, ""},
		{"null", `"type": null,`, ""},
		{"string", `"type": "string",`, ""},
		{"unknown", `"type": "hash",`, "hash"},
		{"case", `"type": "Array",`, "Array"},
		{"number", `"type": 3,`, "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab := mustBuild(t, `{`+tt.typ+` "table": [{"index": "1", "value": "one"}]}`)
			if tab.Kind() != KindString {
				t.Errorf("Kind() = %v, want string", tab.Kind())
			}
			got, ok := tab.TypeFallback()
			if got != tt.fallback || ok != (tt.fallback != "") {
				t.Errorf("TypeFallback() = %q, %v; want %q", got, ok, tt.fallback)
			}
			if v := tab.Lookup(StringKey("1")); v != "one" {
				t.Errorf("Lookup(1) = %q, want %q", v, "one")
			}
		})
	}
}

func TestBuildStringTableNumericIndex(t *testing.T) {
	tab := mustBuild(t, `{"table": [{"index": 42, "value": 7}, {"index": true, "value": "yes"}]}`)
	if got := tab.Lookup(StringKey("42")); got != "7" {
		t.Errorf("Lookup(42) = %q, want %q", got, "7")
	}
	if got := tab.Lookup(StringKey("true")); got != "yes" {
		t.Errorf("Lookup(true) = %q, want %q", got, "yes")
	}
}

func TestBuildDuplicateKeys(t *testing.T) {
	tests := []struct {
		name string
		src  string
		key  string
	}{
		{"string", `{"table": [{"index": "a", "value": "1"}, {"index": "a", "value": "2"}]}`, "a"},
		{"sparse", `{"type": "sparseArray", "table": [{"index": 9, "value": "1"}, {"index": "9", "value": "2"}]}`, "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildSrc(t, tt.src)
			var dk *DuplicateKeyError
			if !errors.As(err, &dk) {
				t.Fatalf("Build error = %v, want *DuplicateKeyError", err)
			}
			if dk.Key != tt.key {
				t.Errorf("Key = %q, want %q", dk.Key, tt.key)
			}
		})
	}
}

func TestBuildValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing table", `{"nomatch": "x"}`},
		{"null table", `{"table": null}`},
		{"table not array", `{"table": {"index": "a", "value": "b"}}`},
		{"row not object", `{"table": ["a"]}`},
		{"null row", `{"table": [null]}`},
		{"missing index", `{"table": [{"value": "b"}]}`},
		{"missing value", `{"table": [{"index": "a"}]}`},
		{"null value", `{"table": [{"index": "a", "value": null}]}`},
		{"object value", `{"table": [{"index": "a", "value": {"x": 1}}]}`},
		{"object index", `{"table": [{"index": {}, "value": "b"}]}`},
		{"negative array index", `{"type": "array", "table": [{"index": -1, "value": "b"}]}`},
		{"fractional array index", `{"type": "array", "table": [{"index": 1.5, "value": "b"}]}`},
		{"oversized sparse index", `{"type": "sparseArray", "table": [{"index": 4294967296, "value": "b"}]}`},
		{"text array index", `{"type": "array", "table": [{"index": "one", "value": "b"}]}`},
		{"object nomatch", `{"nomatch": {}, "table": []}`},
		{"array nomatch", `{"nomatch": ["x"], "table": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, err := buildSrc(t, tt.src)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tab != nil {
				t.Error("a failed build must not return a table")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error %v should match ErrValidation", err)
			}
		})
	}
}

func TestBuildRowErrorNamesRow(t *testing.T) {
	_, err := buildSrc(t, `{"table": [{"index": "a", "value": "x"}, {"index": "b"}]}`)
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("Build error = %v, want *RowError", err)
	}
	if re.Row != 1 {
		t.Errorf("Row = %d, want 1", re.Row)
	}
}

func TestBuildEmptyTable(t *testing.T) {
	for _, typ := range []string{"string", "array", "sparseArray"} {
		t.Run(typ, func(t *testing.T) {
			tab := mustBuild(t, `{"type": "`+typ+`", "nomatch": "d", "table": []}`)
			if tab.Len() != 0 || tab.Distinct() != 0 {
				t.Errorf("Len/Distinct = %d/%d, want 0/0", tab.Len(), tab.Distinct())
			}
			if got := tab.Lookup(Key{Str: "0", Uint: 0}); got != "d" {
				t.Errorf("Lookup on empty table = %q, want %q", got, "d")
			}
		})
	}
}

func TestBuildNomatchScalar(t *testing.T) {
	tab := mustBuild(t, `{"nomatch": 0, "table": [{"index": "a", "value": "b"}]}`)
	if got := tab.Lookup(StringKey("z")); got != "0" {
		t.Errorf("Lookup miss = %q, want %q", got, "0")
	}
	tab = mustBuild(t, `{"nomatch": "", "table": [{"index": "a", "value": "b"}]}`)
	if _, ok := tab.Default(); !ok {
		t.Error("an empty nomatch string is still a configured default")
	}
}

func TestBuildRoundTrip(t *testing.T) {
	for _, typ := range []string{"string", "array", "sparseArray"} {
		t.Run(typ, func(t *testing.T) {
			var rows []string
			want := map[string]string{}
			for i := 200; i > 0; i-- {
				key := fmt.Sprint(i)
				if typ == "sparseArray" {
					key = fmt.Sprint(i * 17)
				}
				val := fmt.Sprintf("v%d", i%13)
				want[key] = val
				index := `"` + key + `"`
				if typ != "string" {
					index = key
				}
				rows = append(rows, fmt.Sprintf(`{"index": %s, "value": %q}`, index, val))
			}
			tab := mustBuild(t, `{"type": "`+typ+`", "table": [`+strings.Join(rows, ",")+`]}`)

			if tab.Distinct() != 13 {
				t.Errorf("Distinct() = %d, want 13", tab.Distinct())
			}
			for k, v := range want {
				key, ok := ParseKey(tab.KeyType(), k)
				if !ok {
					t.Fatalf("ParseKey(%q) failed", k)
				}
				if got := tab.Lookup(key); got != v {
					t.Errorf("Lookup(%s) = %q, want %q", k, got, v)
				}
			}

			seen := 0
			tab.Each(func(k, v string) bool {
				seen++
				if want[k] != v {
					t.Errorf("Each yielded %s=%q, want %q", k, v, want[k])
				}
				return true
			})
			if seen != len(want) {
				t.Errorf("Each yielded %d rows, want %d", seen, len(want))
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		typ  KeyType
		in   string
		want Key
		ok   bool
	}{
		{KeyString, " a ", Key{Str: " a "}, true},
		{KeyUint, "17", Key{Uint: 17}, true},
		{KeyUint, " 17\n", Key{Uint: 17}, true},
		{KeyUint, "-1", Key{}, false},
		{KeyUint, "4294967296", Key{}, false},
		{KeyUint, "x", Key{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseKey(tt.typ, tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseKey(%v, %q) = %+v, %v; want %+v, %v", tt.typ, tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
