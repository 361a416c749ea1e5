// Package gate holds the request-time middlewares that keep disabled modules
// unreachable even when their handlers were mounted at boot.
//
// Both guards read current module state on every request. Nothing is cached,
// so a disable takes effect on the next request.
package gate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	CodeModuleDisabled  = "MODULE_DISABLED"
	CodeRouteDisabled   = "ROUTE_DISABLED"
	CodeModuleUnmounted = "MODULE_UNMOUNTED"
)

// ErrorResponse is the body of a gated 404.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ModuleState reports whether a module is enabled.
type ModuleState interface {
	IsEnabled(id string) bool
}

// RouteState lists the route prefixes of enabled modules.
type RouteState interface {
	ModuleState
	EnabledRoutePrefixes() []string
}

// ModuleGuard rejects every request with 404 MODULE_DISABLED while module id
// is disabled.
func ModuleGuard(state ModuleState, id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !state.IsEnabled(id) {
				WriteError(w, fmt.Sprintf("module %s is disabled", id), CodeModuleDisabled)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guards returns a ModuleGuard factory bound to state, suitable for
// registry.Host.Guard.
func Guards(state ModuleState) func(id string) func(http.Handler) http.Handler {
	return func(id string) func(http.Handler) http.Handler {
		return ModuleGuard(state, id)
	}
}

// FallbackConfig configures the global guard.
type FallbackConfig struct {
	// APIPrefix is the namespace the guard polices, e.g. "/api".
	APIPrefix string
	// AlwaysAllow lists path prefixes that bypass the check: module
	// management, health checks, static assets.
	AlwaysAllow []string
	// Guarded maps route prefixes to the module whose guarded handlers serve
	// them. A request under one of them is decided by that module's state
	// alone, whatever its method, so the guard answer does not depend on chi
	// finding a matching route.
	Guarded func() map[string]string
}

// DefaultAlwaysAllow is used when FallbackConfig.AlwaysAllow is empty.
var DefaultAlwaysAllow = []string{"/api/modules", "/api/settings", "/health", "/static", "/assets"}

// Fallback rejects API requests whose path is not under a route prefix owned
// by an enabled module. It is coarser than ModuleGuard and exists for
// handlers the per-module guard does not wrap.
func Fallback(state RouteState, cfg FallbackConfig) func(http.Handler) http.Handler {
	apiPrefix := cfg.APIPrefix
	if apiPrefix == "" {
		apiPrefix = "/api"
	}
	allow := cfg.AlwaysAllow
	if len(allow) == 0 {
		allow = DefaultAlwaysAllow
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			for _, p := range allow {
				if HasPathPrefix(path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if !HasPathPrefix(path, apiPrefix) {
				next.ServeHTTP(w, r)
				return
			}

			if cfg.Guarded != nil {
				if owner, ok := ownerOf(path, cfg.Guarded()); ok {
					if !state.IsEnabled(owner) {
						WriteError(w, fmt.Sprintf("module %s is disabled", owner), CodeModuleDisabled)
						return
					}
					next.ServeHTTP(w, r)
					return
				}
			}

			for _, p := range state.EnabledRoutePrefixes() {
				if HasPathPrefix(path, p) {
					next.ServeHTTP(w, r)
					return
				}
			}

			WriteError(w, fmt.Sprintf("route %s is not available", path), CodeRouteDisabled)
		})
	}
}

// ownerOf returns the module owning the longest prefix that covers path.
func ownerOf(path string, owners map[string]string) (string, bool) {
	best, owner := -1, ""
	for prefix, id := range owners {
		if HasPathPrefix(path, prefix) && len(prefix) > best {
			best, owner = len(prefix), id
		}
	}
	return owner, best >= 0
}

// Unmounted answers 404 MODULE_UNMOUNTED for a module whose handlers are
// mounted but which is not registered.
func Unmounted(id string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, fmt.Sprintf("module %s is not mounted", id), CodeModuleUnmounted)
	})
}

// HasPathPrefix reports whether path is prefix or lies below it on a segment
// boundary, so "/api/users" matches "/api/users/7" but not "/api/usersettings".
func HasPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// WriteError writes a gated 404 with a JSON ErrorResponse body.
func WriteError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(ErrorResponse{Message: msg, Error: code})
}
