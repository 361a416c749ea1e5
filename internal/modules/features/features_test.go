package features

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/policy"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/registry"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/gate"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestModuleServesRoutes(t *testing.T) {
	cat, err := catalogue.New(catalogue.Default(), catalogue.WithKnownIDs(catalogue.KnownIDs()...))
	require.NoError(t, err)
	engine := policy.New(cat)

	router := chi.NewRouter()
	host := &registry.Host{Router: router, Guard: gate.Guards(engine)}

	d, _ := cat.Get(catalogue.Warehouses)
	m := New(d)
	require.NoError(t, m.Register(context.Background(), host))
	require.NoError(t, m.Register(context.Background(), host), "second register is a no-op")
	assert.True(t, m.active.Load())
	assert.Equal(t, catalogue.Warehouses, m.id)

	for _, path := range []string{"/api/warehouses", "/api/locations/12/bins"} {
		w := get(t, router, path)
		require.Equal(t, http.StatusOK, w.Code, path)

		var body info
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, catalogue.Warehouses, body.Module)
		assert.Equal(t, path, body.Path)
		assert.Equal(t, []string{"warehouses", "locations"}, body.Tables)
	}
}

func TestUnregisterStopsServing(t *testing.T) {
	router := chi.NewRouter()
	host := &registry.Host{Router: router}
	m := New(&catalogue.Descriptor{ID: "gps", Name: "GPS", Routes: []string{"/api/gps"}})

	require.NoError(t, m.Register(context.Background(), host))
	assert.Equal(t, http.StatusOK, get(t, router, "/api/gps").Code)

	require.NoError(t, m.Unregister(context.Background(), host))
	w := get(t, router, "/api/gps")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body gate.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, gate.CodeModuleUnmounted, body.Error)
}

func TestAddAll(t *testing.T) {
	cat, err := catalogue.New(catalogue.Default())
	require.NoError(t, err)
	engine := policy.New(cat)

	reg := registry.New(engine, nil)
	require.NoError(t, AddAll(reg, engine.All()))
	assert.NoError(t, reg.Validate())

	report := reg.RegisterEnabledModules(context.Background(), &registry.Host{Router: chi.NewRouter(), Guard: gate.Guards(engine)})
	assert.False(t, report.Partial())
	assert.Len(t, reg.ListRegistered(), len(engine.EnabledModules()))

	assert.Error(t, AddAll(reg, engine.All()), "ids are bound once")
}
