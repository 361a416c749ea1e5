package registry

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// Host is what a module implementation mounts itself onto.
type Host struct {
	// Router is the API router modules add their handlers to.
	Router chi.Router
	// Guard returns the per-module route gate for a module id. Nil disables
	// gating, which is only useful in tests.
	Guard func(id string) func(http.Handler) http.Handler
	// Logger is shared with implementations that want to log.
	Logger *log.Logger
	// Unavailable answers requests reaching a module's handlers while the
	// module is not registered. Nil means http.NotFoundHandler.
	Unavailable func(id string) http.Handler
}

// Mount adds a route group for module id with the module's gate applied, so
// every handler fn registers answers 404 while the module is disabled.
// Implementations must mount through Mount rather than Router directly.
func (h *Host) Mount(id string, fn func(r chi.Router)) {
	h.Router.Group(func(r chi.Router) {
		if h.Guard != nil {
			r.Use(h.Guard(id))
		}
		fn(r)
	})
}

func (h *Host) unavailable(id string) http.Handler {
	if h.Unavailable != nil {
		return h.Unavailable(id)
	}
	return http.NotFoundHandler()
}

// Implementation is the contract a feature module satisfies to be
// orchestrated. Register mounts the module's handlers. The registry calls it
// at most once per boot; making it idempotent beyond that is up to the module.
type Implementation interface {
	Register(ctx context.Context, host *Host) error
}

// Unregisterer is implemented by modules that can tear down best-effort.
// Chi cannot remove a mounted handler; once the registry drops the module,
// handlers mounted through Host.Mount answer with Host.Unavailable.
type Unregisterer interface {
	Unregister(ctx context.Context, host *Host) error
}

// Func adapts a plain function to Implementation.
type Func func(ctx context.Context, host *Host) error

// Register calls f.
func (f Func) Register(ctx context.Context, host *Host) error {
	return f(ctx, host)
}
