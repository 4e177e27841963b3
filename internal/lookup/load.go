package lookup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Document is a parsed table file:
//
//	{"version": 1, "nomatch": "unk", "type": "string",
//	 "table": [{"index": "a", "value": "x"}, ...]}
//
// Fields are kept raw; Build interprets them.
type Document struct {
	Version json.RawMessage
	Nomatch json.RawMessage
	Type    json.RawMessage
	Table   json.RawMessage
}

// Row is one {index, value} element of the "table" array.
type Row struct {
	Index json.RawMessage `json:"index"`
	Value json.RawMessage `json:"value"`
}

// ReadFile reads a table file into memory in one piece and parses it.
// Files ending in .gz or .zst are decompressed first. The raw buffer is
// not retained once parsing succeeds.
func ReadFile(path string) (*Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: stat failed: %w", ErrFileNotFound, err)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: could not be opened: %w", ErrFileNotFound, err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, fi.Size())
	if n, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: read %d of %d bytes: %w", ErrRead, n, len(buf), err)
	}

	buf, err = decompress(path, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return Parse(buf)
}

func decompress(path string, buf []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer func() { _ = zr.Close() }()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("read gzip: %w", err)
		}
		return out, nil
	case ".zst":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(buf, nil)
		if err != nil {
			return nil, fmt.Errorf("read zstd: %w", err)
		}
		return out, nil
	default:
		return buf, nil
	}
}

// Parse parses data as a single JSON object. Anything else, including
// trailing data after the object, is an ErrParse.
func Parse(data []byte) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: top level is null", ErrParse)
	}
	return &Document{
		Version: top["version"],
		Nomatch: top["nomatch"],
		Type:    top["type"],
		Table:   top["table"],
	}, nil
}

// scalarText returns the text of a JSON string, number or boolean.
// Strings are unquoted; numbers and booleans keep their JSON spelling.
func scalarText(raw json.RawMessage) (text string, isString, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false, false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false, false
		}
		return s, true, true
	case '{', '[', 'n':
		return "", false, false
	default:
		return string(raw), false, true
	}
}
