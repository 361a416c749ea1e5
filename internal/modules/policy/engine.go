// Package policy answers dependency questions about the module catalogue and
// is the only place the enabled flag of a descriptor is changed.
//
// Two rules are enforced on every toggle:
//   - a module can be enabled only while all of its dependencies are enabled;
//   - a module can be disabled only while no enabled module depends on it.
//
// By default the second rule looks at direct dependents only. WithTransitiveDisable
// extends it to the full dependent closure.
package policy

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
)

// Engine evaluates and mutates module state. It is safe for concurrent use;
// each toggle validates and applies under one lock, so no caller can observe
// a state between the check and the write.
type Engine struct {
	mu         sync.RWMutex
	cat        *catalogue.Catalogue
	transitive bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTransitiveDisable makes CanDisable and Disable refuse while any module
// in the transitive dependent closure is enabled.
func WithTransitiveDisable() Option {
	return func(e *Engine) {
		e.transitive = true
	}
}

// New creates an engine over cat. The engine takes ownership of the
// catalogue's enabled flags.
func New(cat *catalogue.Catalogue, opts ...Option) *Engine {
	e := &Engine{cat: cat}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Transitive reports whether strict transitive disable checks are on.
func (e *Engine) Transitive() bool {
	return e.transitive
}

// Descriptor returns a snapshot of the descriptor for id.
func (e *Engine) Descriptor(id string) (*catalogue.Descriptor, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.cat.Get(id)
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// All returns snapshots of every descriptor in catalogue order.
func (e *Engine) All() []*catalogue.Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	all := e.cat.All()
	out := make([]*catalogue.Descriptor, 0, len(all))
	for _, d := range all {
		out = append(out, d.Clone())
	}
	return out
}

// EnabledModules returns snapshots of the enabled descriptors in catalogue order.
func (e *Engine) EnabledModules() []*catalogue.Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*catalogue.Descriptor
	for _, d := range e.cat.All() {
		if d.Enabled {
			out = append(out, d.Clone())
		}
	}
	return out
}

// IsEnabled reports whether id is enabled. Unknown ids are not enabled.
func (e *Engine) IsEnabled(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isEnabled(id)
}

// DependenciesOf returns the declared dependencies of id, or an empty slice
// if id is unknown.
func (e *Engine) DependenciesOf(id string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.cat.Get(id)
	if !ok {
		return []string{}
	}
	return append([]string{}, d.Dependencies...)
}

// DependenciesSatisfied reports whether every dependency of id is enabled.
func (e *Engine) DependenciesSatisfied(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.missingDependencies(id)) == 0
}

// MissingDependencies returns the dependencies of id that are not enabled,
// in declaration order.
func (e *Engine) MissingDependencies(id string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.missingDependencies(id)
}

// DependentsOf returns every module that lists id as a direct dependency.
func (e *Engine) DependentsOf(id string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dependentsOf(id)
}

// TransitiveDependentsOf returns every module that depends on id directly or
// through other modules, in catalogue order.
func (e *Engine) TransitiveDependentsOf(id string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transitiveDependentsOf(id)
}

// CanDisable reports whether id could be disabled without leaving an enabled
// module with a disabled dependency.
func (e *Engine) CanDisable(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.activeDependents(id)) == 0
}

// EnabledRoutePrefixes returns the union of route prefixes owned by enabled
// modules, without duplicates.
func (e *Engine) EnabledRoutePrefixes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, d := range e.cat.All() {
		if !d.Enabled {
			continue
		}
		for _, r := range d.Routes {
			if !seen[r] {
				seen[r] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// Enable turns id on if all of its dependencies are enabled.
func (e *Engine) Enable(id string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.cat.Get(id)
	if !ok {
		return failure(CodeNotFound, fmt.Sprintf("module %q not found", id))
	}
	if d.Enabled {
		return failure(CodeAlreadyEnabled, fmt.Sprintf("module %s is already enabled", d.Name))
	}
	if missing := e.missingDependencies(id); len(missing) > 0 {
		return failure(CodeUnmetDependencies,
			fmt.Sprintf("cannot enable %s: unmet dependencies: %s", d.Name, strings.Join(missing, ", ")),
			missing...)
	}

	d.Enabled = true
	return success(fmt.Sprintf("module %s enabled", d.Name))
}

// Disable turns id off if no enabled module depends on it.
func (e *Engine) Disable(id string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.cat.Get(id)
	if !ok {
		return failure(CodeNotFound, fmt.Sprintf("module %q not found", id))
	}
	if !d.Enabled {
		return failure(CodeAlreadyDisabled, fmt.Sprintf("module %s is already disabled", d.Name))
	}
	if active := e.activeDependents(id); len(active) > 0 {
		return failure(CodeHasActiveDependents,
			fmt.Sprintf("cannot disable %s: active dependents: %s", d.Name, strings.Join(active, ", ")),
			active...)
	}

	d.Enabled = false
	return success(fmt.Sprintf("module %s disabled", d.Name))
}

// Restore applies persisted enabled flags, ignoring unknown ids, and returns
// the enabled modules left with a disabled dependency. Those modules stay
// enabled; the registry skips them at boot.
func (e *Engine) Restore(states map[string]bool) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, enabled := range states {
		if d, ok := e.cat.Get(id); ok {
			d.Enabled = enabled
		}
	}

	var broken []string
	for _, d := range e.cat.All() {
		if d.Enabled && len(e.missingDependencies(d.ID)) > 0 {
			broken = append(broken, d.ID)
		}
	}
	return broken
}

func (e *Engine) isEnabled(id string) bool {
	d, ok := e.cat.Get(id)
	return ok && d.Enabled
}

func (e *Engine) missingDependencies(id string) []string {
	d, ok := e.cat.Get(id)
	if !ok {
		return nil
	}
	var missing []string
	for _, dep := range d.Dependencies {
		if !e.isEnabled(dep) {
			missing = append(missing, dep)
		}
	}
	return missing
}

func (e *Engine) dependentsOf(id string) []string {
	out := []string{}
	for _, d := range e.cat.All() {
		if slices.Contains(d.Dependencies, id) {
			out = append(out, d.ID)
		}
	}
	return out
}

func (e *Engine) transitiveDependentsOf(id string) []string {
	found := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range e.dependentsOf(current) {
			if dep != id && !found[dep] {
				found[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	out := []string{}
	for _, d := range e.cat.All() {
		if found[d.ID] {
			out = append(out, d.ID)
		}
	}
	return out
}

// activeDependents returns the enabled modules blocking a disable of id.
func (e *Engine) activeDependents(id string) []string {
	candidates := e.dependentsOf(id)
	if e.transitive {
		candidates = e.transitiveDependentsOf(id)
	}

	var active []string
	for _, dep := range candidates {
		if e.isEnabled(dep) {
			active = append(active, dep)
		}
	}
	return active
}
