// Package features provides the compiled-in implementation for every known
// module id. The business logic of each module lives behind its own package;
// what is mounted here is the module's route surface, answering with the
// module's identity so the gate and registry can be exercised end to end.
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/registry"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/gate"
)

// Module serves the route prefixes of one catalogue descriptor.
type Module struct {
	id     string
	name   string
	routes []string
	tables []string
	active atomic.Bool
}

// New creates the implementation for d.
func New(d *catalogue.Descriptor) *Module {
	return &Module{
		id:     d.ID,
		name:   d.Name,
		routes: append([]string{}, d.Routes...),
		tables: append([]string{}, d.Tables...),
	}
}

// Register mounts a handler at each of the module's route prefixes and
// everything below them.
func (m *Module) Register(ctx context.Context, host *registry.Host) error {
	if m.active.Load() {
		return nil
	}

	host.Mount(m.id, func(r chi.Router) {
		for _, prefix := range m.routes {
			r.Get(prefix, m.serveInfo)
			r.Get(prefix+"/*", m.serveInfo)
		}
	})
	m.active.Store(true)
	return nil
}

// Unregister stops the module's handlers from serving. Chi keeps the routes
// mounted; they answer 404 until the process restarts.
func (m *Module) Unregister(ctx context.Context, host *registry.Host) error {
	m.active.Store(false)
	return nil
}

type info struct {
	Module string   `json:"module"`
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Tables []string `json:"tables"`
}

func (m *Module) serveInfo(w http.ResponseWriter, r *http.Request) {
	if !m.active.Load() {
		gate.WriteError(w, fmt.Sprintf("module %s is not mounted", m.id), gate.CodeModuleUnmounted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info{
		Module: m.id,
		Name:   m.name,
		Path:   r.URL.Path,
		Tables: m.tables,
	})
}

// AddAll binds a Module to every descriptor.
func AddAll(reg *registry.Registry, descriptors []*catalogue.Descriptor) error {
	for _, d := range descriptors {
		if err := reg.AddImplementation(d.ID, New(d)); err != nil {
			return err
		}
	}
	return nil
}
