// Package registry binds catalogue ids to concrete module implementations and
// drives module registration at boot.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/pedro17pedroo/SGST-sub001/internal/logger"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/policy"
)

// SkipReason says why a module was not registered during boot.
type SkipReason string

const (
	SkipNoImplementation  SkipReason = "no_implementation"
	SkipUnmetDependencies SkipReason = "unmet_dependencies"
	SkipRegisterFailed    SkipReason = "register_failed"
	SkipCanceled          SkipReason = "canceled"
)

// Skip records one module left out of a boot.
type Skip struct {
	ID     string     `json:"id"`
	Reason SkipReason `json:"reason"`
	Err    error      `json:"-"`
}

// Report summarizes a call to RegisterEnabledModules.
type Report struct {
	Enabled    int      `json:"enabled"`
	Registered []string `json:"registered"`
	Skipped    []Skip   `json:"skipped,omitempty"`
}

// Partial reports whether some enabled modules did not register.
func (r Report) Partial() bool {
	return len(r.Registered) < r.Enabled
}

// Registry maps module ids to implementations and tracks which are mounted.
type Registry struct {
	engine *policy.Engine
	logger *log.Logger

	// boot serializes registration and unregistration so the startup log
	// order is deterministic.
	boot sync.Mutex

	mu              sync.RWMutex
	implementations map[string]Implementation
	registered      map[string]bool
	order           []string
}

// New creates an empty registry backed by engine.
func New(engine *policy.Engine, l *log.Logger) *Registry {
	return &Registry{
		engine:          engine,
		logger:          logger.OrDiscard(l),
		implementations: make(map[string]Implementation),
		registered:      make(map[string]bool),
	}
}

// AddImplementation binds impl to a catalogue id. It does not mount anything.
func (r *Registry) AddImplementation(id string, impl Implementation) error {
	if impl == nil {
		return fmt.Errorf("module %s: nil implementation", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.implementations[id]; exists {
		return fmt.Errorf("implementation already added: %s", id)
	}
	r.implementations[id] = impl
	return nil
}

// Implementation returns the implementation bound to id.
func (r *Registry) Implementation(id string) (Implementation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	impl, ok := r.implementations[id]
	return impl, ok
}

// Validate cross-checks implementations against the catalogue and reports
// every mismatch at once: implementations for ids the catalogue does not
// know, and enabled modules with no implementation.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	ids := make([]string, 0, len(r.implementations))
	for id := range r.implementations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, ok := r.engine.Descriptor(id); !ok {
			errs = append(errs, fmt.Errorf("implementation %s: %w", id, ErrNotInCatalogue))
		}
	}

	for _, d := range r.engine.EnabledModules() {
		if _, ok := r.implementations[d.ID]; !ok {
			errs = append(errs, fmt.Errorf("module %s: %w", d.ID, ErrNoImplementation))
		}
	}

	return errors.Join(errs...)
}

// RegisterEnabledModules registers every enabled module in catalogue order,
// one at a time. Modules without an implementation, with unmet dependencies,
// or whose Register fails or panics are logged and skipped; the rest still
// register. Modules already registered are counted but not registered again.
func (r *Registry) RegisterEnabledModules(ctx context.Context, host *Host) Report {
	r.boot.Lock()
	defer r.boot.Unlock()

	enabled := r.engine.EnabledModules()
	report := Report{Enabled: len(enabled), Registered: []string{}}

	for _, d := range enabled {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Registration canceled", "module", d.ID, "error", err)
			report.Skipped = append(report.Skipped, Skip{ID: d.ID, Reason: SkipCanceled, Err: err})
			continue
		}

		if r.IsRegistered(d.ID) {
			report.Registered = append(report.Registered, d.ID)
			continue
		}

		impl, ok := r.Implementation(d.ID)
		if !ok {
			r.logger.Warn("No implementation for enabled module, skipping", "module", d.ID, "name", d.Name)
			report.Skipped = append(report.Skipped, Skip{ID: d.ID, Reason: SkipNoImplementation, Err: ErrNoImplementation})
			continue
		}

		if missing := r.engine.MissingDependencies(d.ID); len(missing) > 0 {
			r.logger.Warn("Dependencies not enabled, skipping", "module", d.ID, "name", d.Name, "missing", missing)
			report.Skipped = append(report.Skipped, Skip{
				ID:     d.ID,
				Reason: SkipUnmetDependencies,
				Err:    fmt.Errorf("%w: %v", policy.ErrUnmetDependencies, missing),
			})
			continue
		}

		if err := invokeRegister(ctx, impl, r.scoped(host)); err != nil {
			r.logger.Error("Module registration failed", "module", d.ID, "name", d.Name, "error", err)
			report.Skipped = append(report.Skipped, Skip{ID: d.ID, Reason: SkipRegisterFailed, Err: err})
			continue
		}

		r.markRegistered(d.ID)
		report.Registered = append(report.Registered, d.ID)
		r.logger.Debug("Module registered", "module", d.ID, "name", d.Name)
	}

	if report.Partial() {
		r.logger.Warn("Partial module boot", "registered", len(report.Registered), "enabled", report.Enabled)
	} else {
		r.logger.Info("Modules registered", "registered", len(report.Registered), "enabled", report.Enabled)
	}
	return report
}

// UnregisterModule calls the module's Unregister and drops it from the
// registered set. It returns false if the module is not registered, has no
// Unregister, or Unregister fails; in those cases the registered set is left
// as it was. It does not change the module's enabled flag.
func (r *Registry) UnregisterModule(ctx context.Context, host *Host, id string) bool {
	r.boot.Lock()
	defer r.boot.Unlock()

	if !r.IsRegistered(id) {
		return false
	}

	impl, _ := r.Implementation(id)
	u, ok := impl.(Unregisterer)
	if !ok {
		r.logger.Info("Module has no unregister; handlers stay mounted and the route gate blocks them", "module", id)
		return false
	}

	if err := u.Unregister(ctx, host); err != nil {
		r.logger.Error("Module unregister failed", "module", id, "error", err)
		return false
	}

	r.mu.Lock()
	delete(r.registered, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	r.mu.Unlock()

	r.logger.Info("Module unregistered", "module", id)
	return true
}

// IsRegistered reports whether id is currently registered.
func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.registered[id]
}

// ListRegistered returns registered ids in registration order.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// RegisteredRoutes maps the route prefixes of registered modules, whose
// handlers were mounted behind a per-module guard, to their module id.
func (r *Registry) RegisteredRoutes() map[string]string {
	out := make(map[string]string)
	for _, id := range r.ListRegistered() {
		if d, ok := r.engine.Descriptor(id); ok {
			for _, prefix := range d.Routes {
				out[prefix] = id
			}
		}
	}
	return out
}

func (r *Registry) markRegistered(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered[id] = true
	r.order = append(r.order, id)
}

// scoped returns the host handed to Register. Its guard also refuses
// requests while the module is not registered, so handlers mounted by a
// Register that then failed, panicked or was later unregistered never serve.
func (r *Registry) scoped(host *Host) *Host {
	return &Host{
		Router:      host.Router,
		Logger:      host.Logger,
		Unavailable: host.Unavailable,
		Guard: func(id string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler {
				mounted := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if !r.IsRegistered(id) {
						host.unavailable(id).ServeHTTP(w, req)
						return
					}
					next.ServeHTTP(w, req)
				})
				if host.Guard == nil {
					return mounted
				}
				return host.Guard(id)(mounted)
			}
		},
	}
}

// invokeRegister runs impl.Register, turning a panic into an error so one
// broken module cannot take down the boot.
func invokeRegister(ctx context.Context, impl Implementation, host *Host) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrRegisterPanicked, p)
		}
	}()
	return impl.Register(ctx, host)
}

var (
	ErrNotInCatalogue   = errors.New("id is not in the catalogue")
	ErrNoImplementation = errors.New("no implementation")
	ErrRegisterPanicked = errors.New("register panicked")
)
