package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/pedro17pedroo/SGST-sub001/internal/logger"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/policy"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/registry"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/notify"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/store"
)

// ChangedByHeader names the caller recorded with a persisted toggle.
const ChangedByHeader = "X-Changed-By"

// Server holds the module administration handlers' dependencies.
type Server struct {
	engine   *policy.Engine
	registry *registry.Registry
	store    store.Store
	logger   *log.Logger
	emit     notify.EventEmitter
}

// New creates a new API server
func New(engine *policy.Engine, reg *registry.Registry, st store.Store, l *log.Logger) *Server {
	return &Server{engine: engine, registry: reg, store: st, logger: logger.OrDiscard(l)}
}

// SetEventEmitter sets the callback receiving an event for every persisted
// toggle.
func (s *Server) SetEventEmitter(emitter notify.EventEmitter) {
	s.emit = emitter
}

// Routes mounts the administration endpoints under apiPrefix and the health
// check at /health.
func (s *Server) Routes(r chi.Router, apiPrefix string) {
	r.Get("/health", s.HealthCheck)
	r.Route(apiPrefix+"/modules", func(r chi.Router) {
		r.Get("/", s.ListModules)
		r.Get("/{id}", s.GetModule)
		r.Get("/{id}/history", s.GetModuleHistory)
		r.Post("/{id}/enable", s.EnableModule)
		r.Post("/{id}/disable", s.DisableModule)
	})
}

// ModuleView is a descriptor as served by the API.
type ModuleView struct {
	*catalogue.Descriptor
	Registered bool `json:"registered"`
}

// ModuleDetail adds dependency status to ModuleView.
type ModuleDetail struct {
	ModuleView
	DependenciesSatisfied bool     `json:"dependencies_satisfied"`
	MissingDependencies   []string `json:"missing_dependencies"`
	Dependents            []string `json:"dependents"`
}

// ToggleResponse is the body of enable and disable.
type ToggleResponse struct {
	policy.Result
	// Mounted is false when a module was enabled after boot and its handlers
	// will only be mounted by the next restart.
	Mounted bool `json:"mounted"`
}

// ErrorResponse is the body of non-policy failures.
type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// ListModules handles GET /api/modules
func (s *Server) ListModules(w http.ResponseWriter, r *http.Request) {
	all := s.engine.All()
	views := make([]ModuleView, 0, len(all))
	for _, d := range all {
		views = append(views, ModuleView{Descriptor: d, Registered: s.registry.IsRegistered(d.ID)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"modules": views,
		"count":   len(views),
	})
}

// GetModule handles GET /api/modules/{id}
func (s *Server) GetModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, ok := s.engine.Descriptor(id)
	if !ok {
		notFound(w, id)
		return
	}

	missing := s.engine.MissingDependencies(id)
	if missing == nil {
		missing = []string{}
	}
	dependents := s.engine.DependentsOf(id)
	if dependents == nil {
		dependents = []string{}
	}

	writeJSON(w, http.StatusOK, ModuleDetail{
		ModuleView:            ModuleView{Descriptor: d, Registered: s.registry.IsRegistered(id)},
		DependenciesSatisfied: len(missing) == 0,
		MissingDependencies:   missing,
		Dependents:            dependents,
	})
}

// GetModuleHistory handles GET /api/modules/{id}/history
// Supports ?limit=N, newest first.
func (s *Server) GetModuleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.engine.Descriptor(id); !ok {
		notFound(w, id)
		return
	}

	limit := store.DefaultHistoryLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := s.store.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("Loading history failed", "module", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []store.Toggle{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"module_id": id,
		"toggles":   history,
		"count":     len(history),
	})
}

// EnableModule handles POST /api/modules/{id}/enable
func (s *Server) EnableModule(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, true)
}

// DisableModule handles POST /api/modules/{id}/disable
func (s *Server) DisableModule(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, false)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	id := chi.URLParam(r, "id")

	var res policy.Result
	if enable {
		res = s.engine.Enable(id)
	} else {
		res = s.engine.Disable(id)
	}

	resp := ToggleResponse{Result: res, Mounted: s.registry.IsRegistered(id)}
	if !res.OK {
		s.logger.Info("Toggle rejected", "module", id, "code", res.Code, "error", res.Err())
		writeJSON(w, statusFor(res.Code), resp)
		return
	}

	t := store.NewToggle(id, enable, r.Header.Get(ChangedByHeader))
	if err := s.store.SaveState(r.Context(), t); err != nil {
		s.logger.Error("Persisting toggle failed", "module", id, "enabled", enable, "error", err)
		http.Error(w, fmt.Sprintf("module %s changed but not persisted: %v", id, err), http.StatusInternalServerError)
		return
	}

	s.logger.Info("Module toggled", "module", id, "enabled", enable, "changed_by", t.ChangedBy, "toggle", t.ID)
	if s.emit != nil {
		s.emit(notify.ToggleEvent(t))
	}
	if enable && !resp.Mounted {
		s.logger.Warn("Module enabled after boot, handlers mount on restart", "module", id)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"modules":    len(s.engine.All()),
		"enabled":    len(s.engine.EnabledModules()),
		"registered": len(s.registry.ListRegistered()),
	})
}

func statusFor(code policy.Code) int {
	switch code {
	case policy.CodeOK:
		return http.StatusOK
	case policy.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func notFound(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{
		Message: fmt.Sprintf("module %q not found", id),
		Error:   string(policy.CodeNotFound),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
