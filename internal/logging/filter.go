package logging

import (
	"context"
	"log/slog"
	"sync"
)

// ComponentKey is the attribute that names the emitting component.
const ComponentKey = "component"

// ComponentFilterHandler filters records by a per-component minimum level.
// Components without an explicit level use the default level. The
// component is taken from attributes added with Logger.With or, failing
// that, from the record itself.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *levelTable
	component string
}

// levelTable is shared by a handler and every handler derived from it,
// so SetLevel affects loggers that were scoped earlier.
type levelTable struct {
	mu     sync.RWMutex
	def    slog.Level
	levels map[string]slog.Level
}

func (lt *levelTable) level(component string) slog.Level {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	if l, ok := lt.levels[component]; ok {
		return l
	}
	return lt.def
}

// lowest is the most verbose level any component may log at.
func (lt *levelTable) lowest() slog.Level {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	low := lt.def
	for _, l := range lt.levels {
		low = min(low, l)
	}
	return low
}

// NewComponentFilterHandler wraps next. next may be nil, in which case
// records are filtered and dropped.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &levelTable{
			def:    defaultLevel,
			levels: make(map[string]slog.Level),
		},
	}
}

// SetLevel sets the minimum level for component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	h.levels.levels[component] = level
	h.levels.mu.Unlock()
}

// ClearLevel reverts component to the default level.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	delete(h.levels.levels, component)
	h.levels.mu.Unlock()
}

// Level returns the effective level for component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.levels.level(component)
}

// DefaultLevel returns the level used by components without their own.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return h.levels.def
}

func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.component != "" {
		return level >= h.levels.level(h.component)
	}
	return level >= h.levels.lowest()
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == ComponentKey {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.levels.level(component) || h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	for _, a := range attrs {
		if a.Key == ComponentKey {
			c.component = a.Value.String()
		}
	}
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return &c
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	c := *h
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return &c
}
