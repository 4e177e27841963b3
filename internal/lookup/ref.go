package lookup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ref is the long-lived handle for one named table. It owns the current
// snapshot and replaces it wholesale on reload. Safe for concurrent use.
//
// Queries hold the read lock only while resolving a key. Reload builds the
// replacement without any lock held and takes the write lock just to swap
// the pointer, so a query sees either the old or the new table, never a mix.
type Ref struct {
	name     string
	filename string
	logger   *slog.Logger

	mu       sync.RWMutex
	table    *Table
	snapshot uuid.UUID
	loadedAt time.Time
	gen      uint64

	// reloadMu orders reloads of this ref so an older build can never be
	// installed over a newer one. Queries never take it.
	reloadMu sync.Mutex
}

// Info describes a ref and its current snapshot.
type Info struct {
	Name       string
	File       string
	Loaded     bool
	Kind       Kind
	KeyType    KeyType
	Members    int
	Distinct   int
	HasDefault bool
	Generation uint64
	SnapshotID string
	LoadedAt   time.Time
}

func newRef(name, filename string, logger *slog.Logger) *Ref {
	return &Ref{
		name:     name,
		filename: filename,
		logger:   logger,
	}
}

// Name returns the table name.
func (r *Ref) Name() string { return r.name }

// Filename returns the path the table is loaded from.
func (r *Ref) Filename() string { return r.filename }

// Query resolves k against the current snapshot. Before the initial load
// and after Close it returns "".
func (r *Ref) Query(k Key) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.table == nil {
		return ""
	}
	return r.table.Lookup(k)
}

// LookupText parses s as a key of the current table's key type and
// resolves it. Text that is not a valid key is a miss.
func (r *Ref) LookupText(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.table
	if t == nil {
		return ""
	}
	k, ok := ParseKey(t.KeyType(), s)
	if !ok {
		return t.nomatch
	}
	return t.Lookup(k)
}

// KeyType returns the key type of the current snapshot.
func (r *Ref) KeyType() KeyType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.table == nil {
		return KeyString
	}
	return r.table.KeyType()
}

// Snapshot returns the current table. The table is immutable and stays
// valid after a later reload replaces it.
func (r *Ref) Snapshot() *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// Generation counts the snapshots installed so far; it is 1 after the
// initial load.
func (r *Ref) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}

// Info returns a description of the ref and its current snapshot.
func (r *Ref) Info() Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info := Info{
		Name:       r.name,
		File:       r.filename,
		Generation: r.gen,
	}
	if t := r.table; t != nil {
		info.Loaded = true
		info.Kind = t.Kind()
		info.KeyType = t.KeyType()
		info.Members = t.Len()
		info.Distinct = t.Distinct()
		_, info.HasDefault = t.Default()
		info.SnapshotID = r.snapshot.String()
		info.LoadedAt = r.loadedAt
	}
	return info
}

// load performs the initial build. Failures are returned, not logged:
// the caller decides whether startup aborts.
func (r *Ref) load() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	t, err := r.build()
	if err != nil {
		return &TableError{Op: "load", Name: r.name, File: r.filename, Err: err}
	}
	r.logger.Info("lookup table loaded", r.logAttrs(t, r.install(t))...)
	return nil
}

// Reload rebuilds the table from its file and swaps it in. If the build
// fails the current snapshot keeps serving queries and the error is logged
// and returned; a failed reload never leaves the ref without a table.
func (r *Ref) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return &TableError{Op: "reload", Name: r.name, File: r.filename, Err: err}
	}

	t, err := r.build()
	if err != nil {
		err = &TableError{Op: "reload", Name: r.name, File: r.filename, Err: err}
		r.logger.Error("lookup table could not be reloaded, keeping previous table",
			"table", r.name, "file", r.filename, "error", err)
		return err
	}
	r.logger.Info("lookup table reloaded", r.logAttrs(t, r.install(t))...)
	return nil
}

// build reads and builds a fresh table. It touches no ref state.
func (r *Ref) build() (*Table, error) {
	doc, err := ReadFile(r.filename)
	if err != nil {
		return nil, err
	}
	t, err := Build(r.name, doc)
	if err != nil {
		return nil, err
	}
	if declared, ok := t.TypeFallback(); ok {
		r.logger.Warn("lookup table has unknown type, treating as string table",
			"table", r.name, "file", r.filename, "type", declared)
	}
	return t, nil
}

// installed identifies one published snapshot.
type installed struct {
	id  uuid.UUID
	gen uint64
}

// install publishes t. The superseded table is left to the garbage
// collector; readers only ever copied strings out of it.
func (r *Ref) install(t *Table) installed {
	id := uuid.Must(uuid.NewV7())
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = t
	r.snapshot = id
	r.loadedAt = now
	r.gen++
	return installed{id: id, gen: r.gen}
}

// Close drops the current table. Later queries return "".
func (r *Ref) Close() {
	r.mu.Lock()
	r.table = nil
	r.mu.Unlock()
}

func (r *Ref) logAttrs(t *Table, in installed) []any {
	return []any{
		"table", r.name,
		"file", r.filename,
		"snapshot", in.id.String(),
		"generation", in.gen,
		"type", t.Kind().String(),
		"members", t.Len(),
		"values", t.Distinct(),
	}
}
