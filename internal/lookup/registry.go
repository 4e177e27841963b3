package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"lookupd/internal/logging"
)

// defaultReloadConcurrency bounds how many tables ReloadAll rebuilds at once.
const defaultReloadConcurrency = 4

// TableConfig declares one table: the name other components resolve it
// by and the JSON file it is loaded from. Both are required.
type TableConfig struct {
	Name string
	File string
}

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger

	// ReloadConcurrency bounds parallel reloads in ReloadAll.
	// Zero means defaultReloadConcurrency.
	ReloadConcurrency int
}

// Registry is the ordered set of tables of one configuration. It is owned
// by that configuration and closed with it; there is no process-wide
// registry.
//
// Tables are added while the configuration loads. Find is a linear scan
// and meant for resolving names at setup time, not per message.
type Registry struct {
	logger      *slog.Logger
	concurrency int

	mu   sync.RWMutex
	refs []*Ref
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	logger := logging.Default(cfg.Logger)
	concurrency := cfg.ReloadConcurrency
	if concurrency <= 0 {
		concurrency = defaultReloadConcurrency
	}
	return &Registry{
		logger:      logger.With("component", "lookup"),
		concurrency: concurrency,
	}
}

// Create registers a ref without loading it. Its table stays unset until
// a load or reload succeeds.
func (g *Registry) Create(name, filename string) (*Ref, error) {
	fail := func(format string, args ...any) (*Ref, error) {
		return nil, &TableError{
			Op:   "config",
			Name: name,
			File: filename,
			Err:  fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...),
		}
	}
	if name == "" {
		return fail("missing required parameter %q", "name")
	}
	if filename == "" {
		return fail("missing required parameter %q", "file")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.refs {
		if r.name == name {
			return fail("table %q already defined (file %q)", name, r.filename)
		}
	}
	r := newRef(name, filename, g.logger)
	g.refs = append(g.refs, r)
	return r, nil
}

// Open registers a table and performs its initial load. If the load fails
// the table is removed again and the error returned; a configuration must
// not start with a table it cannot serve.
func (g *Registry) Open(cfg TableConfig) (*Ref, error) {
	r, err := g.Create(cfg.Name, cfg.File)
	if err != nil {
		return nil, err
	}
	if err := r.load(); err != nil {
		g.remove(r)
		return nil, err
	}
	return r, nil
}

func (g *Registry) remove(r *Ref) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs = slices.DeleteFunc(g.refs, func(x *Ref) bool { return x == r })
}

// Find returns the table registered under name, or nil.
func (g *Registry) Find(name string) *Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, r := range g.refs {
		if r.name == name {
			return r
		}
	}
	return nil
}

// Refs returns the registered tables in registration order.
func (g *Registry) Refs() []*Ref {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.refs)
}

// Len returns the number of registered tables.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.refs)
}

// ReloadAll reloads every table from its file. Tables reload independently
// and in parallel; a failure leaves that table on its previous snapshot and
// does not stop the others. The returned error joins all failures.
func (g *Registry) ReloadAll(ctx context.Context) error {
	refs := g.Refs()
	errs := make([]error, len(refs))

	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, r := range refs {
		eg.Go(func() error {
			errs[i] = r.Reload(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	err := errors.Join(errs...)
	failed := 0
	for _, e := range errs {
		if e != nil {
			failed++
		}
	}
	g.logger.Info("lookup tables reloaded", "tables", len(refs), "failed", failed)
	return err
}

// Close drops every table and empties the registry.
func (g *Registry) Close() {
	g.mu.Lock()
	refs := g.refs
	g.refs = nil
	g.mu.Unlock()

	for _, r := range refs {
		r.Close()
	}
}
