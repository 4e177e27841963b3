// Package enrich applies lookup tables to log messages.
//
// An Enricher holds rules resolved against a lookup.Registry once, at
// construction; Digest then runs per message without any name lookups.
// Enrichment is best-effort: a missing field or a table miss without a
// nomatch value simply adds nothing.
package enrich

import (
	"fmt"
	"log/slog"

	"lookupd/internal/config"
	"lookupd/internal/logging"
	"lookupd/internal/lookup"
)

// Fields is the view of a message a rule reads from and writes to.
type Fields interface {
	Get(name string) (string, bool)
	Set(name, value string)
}

// Message is a log message with string attributes.
type Message struct {
	Attrs map[string]string
	Raw   []byte
}

// Get returns the attribute name.
func (m *Message) Get(name string) (string, bool) {
	v, ok := m.Attrs[name]
	return v, ok
}

// Set stores an attribute, allocating Attrs on first use.
func (m *Message) Set(name, value string) {
	if m.Attrs == nil {
		m.Attrs = make(map[string]string)
	}
	m.Attrs[name] = value
}

type rule struct {
	field  string
	target string
	ref    *lookup.Ref
}

// Enricher applies a fixed list of rules in order. Safe for concurrent use.
type Enricher struct {
	rules  []rule
	logger *slog.Logger
}

// New resolves rules against reg. A rule naming a table that is not
// registered is a configuration error.
func New(reg *lookup.Registry, rules []config.RuleConfig, logger *slog.Logger) (*Enricher, error) {
	logger = logging.Default(logger).With("component", "enrich")

	e := &Enricher{logger: logger, rules: make([]rule, 0, len(rules))}
	for i, rc := range rules {
		ref := reg.Find(rc.Table)
		if ref == nil {
			return nil, fmt.Errorf("%w: rule %d: unknown lookup table %q", lookup.ErrConfig, i, rc.Table)
		}
		if rc.Field == "" {
			return nil, fmt.Errorf("%w: rule %d: missing field", lookup.ErrConfig, i)
		}
		e.rules = append(e.rules, rule{field: rc.Field, target: rc.TargetField(), ref: ref})
	}
	logger.Info("enrichment rules ready", "rules", len(e.rules))
	return e, nil
}

// Len returns the number of rules.
func (e *Enricher) Len() int { return len(e.rules) }

// Digest applies every rule to f. A rule whose field is absent is skipped;
// a rule whose lookup yields "" leaves the target untouched. Rules see the
// targets written by earlier rules.
func (e *Enricher) Digest(f Fields) {
	for _, r := range e.rules {
		v, ok := f.Get(r.field)
		if !ok {
			continue
		}
		if out := r.ref.LookupText(v); out != "" {
			f.Set(r.target, out)
		}
	}
}
