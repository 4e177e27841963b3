package enrich

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds a single input line.
const maxLineSize = 4 << 20

// jsonFields adapts a decoded JSON object to Fields. String, number and
// boolean members are readable; others are treated as absent.
type jsonFields map[string]json.RawMessage

func (j jsonFields) Get(name string) (string, bool) {
	raw, ok := j[name]
	raw = bytes.TrimSpace(raw)
	if !ok || len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[', 'n':
		return "", false
	default:
		return string(raw), true
	}
}

func (j jsonFields) Set(name, value string) {
	j[name] = encodeJSON(value)
}

// encodeJSON marshals v without escaping <, > and &, so values written
// into a log line read the same as the table that supplied them.
func encodeJSON(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// trackedFields records whether any rule wrote to the line.
type trackedFields struct {
	jsonFields
	changed bool
}

func (t *trackedFields) Set(name, value string) {
	t.jsonFields.Set(name, value)
	t.changed = true
}

// line enriches one JSON object line. Lines that are not JSON objects, and
// objects no rule wrote to, are passed through byte for byte.
func (e *Enricher) line(in []byte) []byte {
	var f jsonFields
	if err := json.Unmarshal(in, &f); err != nil || f == nil {
		return in
	}
	t := &trackedFields{jsonFields: f}
	e.Digest(t)
	if !t.changed {
		return in
	}
	if out := encodeJSON(f); out != nil {
		return out
	}
	return in
}

type job struct {
	in   []byte
	done chan []byte
}

// Stream reads JSON lines from r, enriches them on workers goroutines and
// writes them to w in input order. It returns when r is exhausted, on the
// first read or write error, or when ctx is done.
func (e *Enricher) Stream(ctx context.Context, r io.Reader, w io.Writer, workers int) error {
	workers = max(workers, 1)
	g, ctx := errgroup.WithContext(ctx)

	jobs := make(chan *job, workers*4)
	order := make(chan *job, workers*4)

	g.Go(func() error {
		defer close(order)
		defer close(jobs)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64<<10), maxLineSize)
		for sc.Scan() {
			j := &job{in: bytes.Clone(sc.Bytes()), done: make(chan []byte, 1)}
			select {
			case order <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case jobs <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		return nil
	})

	for range workers {
		g.Go(func() error {
			for j := range jobs {
				if len(bytes.TrimSpace(j.in)) == 0 {
					j.done <- j.in
					continue
				}
				j.done <- e.line(j.in)
			}
			return nil
		})
	}

	g.Go(func() error {
		bw := bufio.NewWriter(w)
		for j := range order {
			var out []byte
			select {
			case out = <-j.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			if _, err := bw.Write(out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			// Flush once the pipeline is idle so interactive use sees output.
			if len(order) == 0 {
				if err := bw.Flush(); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	})

	return g.Wait()
}
