package commands

import (
	"sync"
	"sync/atomic"

	"github.com/sipeed/slashroute/pkg/logger"
)

// Registry stores command definitions in registration order. Every mutation
// publishes a new immutable snapshot, so readers never observe a partial
// update and registration may run alongside traffic.
type Registry struct {
	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	order []string
	defs  map[string]Definition
}

func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{defs: map[string]Definition{}})
	for _, def := range defs {
		r.Register(def.Pattern, def.Handler, def.Description)
	}
	return r
}

// Register inserts or overwrites the definition at pattern. An overwrite
// keeps the pattern's original position.
func (r *Registry) Register(pattern string, handler Handler, description string) {
	if pattern != Wildcard {
		if _, err := compilePattern(pattern); err != nil {
			logger.WarnCF("commands", "Pattern does not compile and will never match", map[string]any{
				"pattern": pattern,
				"error":   err.Error(),
			})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := &snapshot{
		order: cur.order,
		defs:  make(map[string]Definition, len(cur.defs)+1),
	}
	for k, v := range cur.defs {
		next.defs[k] = v
	}
	if _, exists := cur.defs[pattern]; !exists {
		next.order = make([]string, len(cur.order), len(cur.order)+1)
		copy(next.order, cur.order)
		next.order = append(next.order, pattern)
	}
	next.defs[pattern] = Definition{Pattern: pattern, Description: description, Handler: handler}
	r.snap.Store(next)
}

func (r *Registry) Lookup(pattern string) (Definition, bool) {
	return r.snap.Load().lookup(pattern)
}

// OrderedPatterns returns every pattern except the wildcard, in match
// priority order.
func (r *Registry) OrderedPatterns() []string {
	return r.snap.Load().orderedPatterns()
}

func (r *Registry) Wildcard() (Definition, bool) {
	return r.snap.Load().lookup(Wildcard)
}

// Definitions returns every entry in registration order, wildcard included.
func (r *Registry) Definitions() []Definition {
	return r.snap.Load().definitions()
}

func (r *Registry) Len() int {
	return len(r.snap.Load().order)
}

// Help renders the current entries with FormatHelp.
func (r *Registry) Help() string {
	return FormatHelp(r.Definitions())
}

func (r *Registry) snapshot() *snapshot {
	return r.snap.Load()
}

func (s *snapshot) lookup(pattern string) (Definition, bool) {
	def, ok := s.defs[pattern]
	return def, ok
}

func (s *snapshot) orderedPatterns() []string {
	out := make([]string, 0, len(s.order))
	for _, p := range s.order {
		if p != Wildcard {
			out = append(out, p)
		}
	}
	return out
}

func (s *snapshot) definitions() []Definition {
	out := make([]Definition, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.defs[p])
	}
	return out
}
