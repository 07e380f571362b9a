package validation

import (
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"
)

const anyEntityType = "*"

// Registry holds rules by name with a side index by entity type. Rules are registered at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	rules  map[string]Rule
	seq    map[string]int
	byType map[string][]string
	next   int
	logger ectologger.Logger
}

func NewRegistry(logger ectologger.Logger) *Registry {
	return &Registry{
		rules:  make(map[string]Rule),
		seq:    make(map[string]int),
		byType: make(map[string][]string),
		logger: logger,
	}
}

// Register adds rule, replacing any rule already registered under the same name.
func (r *Registry) Register(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := rule.Name()
	if _, exists := r.rules[name]; exists {
		r.logger.WithField("rule", name).Warnf("Validation rule '%s' is already registered, replacing it", name)
		r.unindex(name)
	} else {
		r.seq[name] = r.next
		r.next++
	}

	r.rules[name] = rule
	types := rule.EntityTypes()
	if len(types) == 0 {
		types = []string{anyEntityType}
	}
	for _, t := range types {
		r.byType[t] = append(r.byType[t], name)
	}

	r.logger.WithFields(map[string]any{"rule": name, "entity_types": types}).Debug("Registered validation rule")
}

func (r *Registry) RegisterAll(rules ...Rule) {
	for _, rule := range rules {
		r.Register(rule)
	}
}

func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rules[name]; !ok {
		return false
	}
	r.unindex(name)
	delete(r.rules, name)
	delete(r.seq, name)
	return true
}

func (r *Registry) unindex(name string) {
	for t, names := range r.byType {
		kept := names[:0]
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		if len(kept) == 0 {
			delete(r.byType, t)
		} else {
			r.byType[t] = kept
		}
	}
}

func (r *Registry) Get(name string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[name]
	return rule, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// All returns every rule in registration order.
func (r *Registry) All() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	return r.ordered(names)
}

// ForEntityType returns the rules that apply to entityType in registration order.
func (r *Registry) ForEntityType(entityType string) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string{}, r.byType[entityType]...)
	if entityType != anyEntityType {
		names = append(names, r.byType[anyEntityType]...)
	}
	return r.ordered(names)
}

func (r *Registry) ordered(names []string) []Rule {
	sort.Slice(names, func(i, j int) bool { return r.seq[names[i]] < r.seq[names[j]] })
	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		rules = append(rules, r.rules[name])
	}
	return rules
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = make(map[string]Rule)
	r.seq = make(map[string]int)
	r.byType = make(map[string][]string)
}

// Applies reports whether rule runs for entityType.
func Applies(rule Rule, entityType string) bool {
	types := rule.EntityTypes()
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == entityType {
			return true
		}
	}
	return false
}
