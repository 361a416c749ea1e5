package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/policy"
)

type fakeModule struct {
	calls        int
	registerErr  error
	panicMsg     string
	unregistered bool
}

func (m *fakeModule) Register(ctx context.Context, host *Host) error {
	m.calls++
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.registerErr
}

type teardownModule struct {
	fakeModule
	unregisterErr error
}

func (m *teardownModule) Unregister(ctx context.Context, host *Host) error {
	if m.unregisterErr != nil {
		return m.unregisterErr
	}
	m.unregistered = true
	return nil
}

func newEngine(t *testing.T, descriptors []catalogue.Descriptor) *policy.Engine {
	t.Helper()
	cat, err := catalogue.New(descriptors)
	require.NoError(t, err)
	return policy.New(cat)
}

func newHost() *Host {
	return &Host{Router: chi.NewRouter()}
}

func TestAddImplementation(t *testing.T) {
	r := New(newEngine(t, []catalogue.Descriptor{{ID: "users", Enabled: true}}), nil)

	require.NoError(t, r.AddImplementation("users", &fakeModule{}))
	assert.Error(t, r.AddImplementation("users", &fakeModule{}))
	assert.Error(t, r.AddImplementation("products", nil))

	_, ok := r.Implementation("users")
	assert.True(t, ok)
	assert.False(t, r.IsRegistered("users"), "adding an implementation does not mount it")
}

func TestRegisterEnabledModulesIsolatesFailures(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "products", Enabled: true, Dependencies: []string{"users"}},
		{ID: "suppliers", Enabled: false},
		{ID: "edi", Enabled: true, Dependencies: []string{"suppliers"}},
		{ID: "orders", Enabled: true},
		{ID: "reports", Enabled: true},
		{ID: "gps", Enabled: true},
		{ID: "fleet", Enabled: false},
	})

	users := &fakeModule{}
	edi := &fakeModule{}
	orders := &fakeModule{registerErr: errors.New("schema missing")}
	reports := &fakeModule{panicMsg: "nil map"}
	gps := &fakeModule{}
	fleet := &fakeModule{}

	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", users))
	require.NoError(t, r.AddImplementation("edi", edi))
	require.NoError(t, r.AddImplementation("orders", orders))
	require.NoError(t, r.AddImplementation("reports", reports))
	require.NoError(t, r.AddImplementation("gps", gps))
	require.NoError(t, r.AddImplementation("fleet", fleet))

	report := r.RegisterEnabledModules(context.Background(), newHost())

	assert.Equal(t, []string{"users", "gps"}, r.ListRegistered())
	assert.Equal(t, []string{"users", "gps"}, report.Registered)
	assert.Equal(t, 6, report.Enabled)
	assert.True(t, report.Partial())

	reasons := make(map[string]SkipReason)
	for _, s := range report.Skipped {
		reasons[s.ID] = s.Reason
	}
	assert.Equal(t, map[string]SkipReason{
		"products": SkipNoImplementation,
		"edi":      SkipUnmetDependencies,
		"orders":   SkipRegisterFailed,
		"reports":  SkipRegisterFailed,
	}, reasons)

	for _, s := range report.Skipped {
		if s.ID == "reports" {
			assert.ErrorIs(t, s.Err, ErrRegisterPanicked)
		}
		if s.ID == "edi" {
			assert.ErrorIs(t, s.Err, policy.ErrUnmetDependencies)
		}
	}

	assert.Equal(t, 0, edi.calls, "unmet dependencies must not call Register")
	assert.Equal(t, 0, fleet.calls, "disabled modules must not call Register")
	assert.False(t, r.IsRegistered("orders"))
	assert.False(t, r.IsRegistered("reports"))
}

func TestRegisterEnabledModulesOncePerModule(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{{ID: "users", Enabled: true}})
	users := &fakeModule{}

	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", users))

	r.RegisterEnabledModules(context.Background(), newHost())
	report := r.RegisterEnabledModules(context.Background(), newHost())

	assert.Equal(t, 1, users.calls)
	assert.Equal(t, []string{"users"}, report.Registered)
	assert.False(t, report.Partial())
}

func TestRegisterEnabledModulesCanceled(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{{ID: "users", Enabled: true}})
	users := &fakeModule{}
	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", users))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := r.RegisterEnabledModules(ctx, newHost())
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, SkipCanceled, report.Skipped[0].Reason)
	assert.Equal(t, 0, users.calls)
}

func TestUnregisterModule(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "products", Enabled: true},
		{ID: "orders", Enabled: true},
		{ID: "gps", Enabled: false},
	})

	products := &teardownModule{}
	orders := &teardownModule{unregisterErr: errors.New("busy")}
	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", &fakeModule{}))
	require.NoError(t, r.AddImplementation("products", products))
	require.NoError(t, r.AddImplementation("orders", orders))
	require.NoError(t, r.AddImplementation("gps", &teardownModule{}))

	host := newHost()
	r.RegisterEnabledModules(context.Background(), host)
	require.Equal(t, []string{"users", "products", "orders"}, r.ListRegistered())

	assert.True(t, r.UnregisterModule(context.Background(), host, "products"))
	assert.True(t, products.unregistered)
	assert.False(t, r.IsRegistered("products"))
	assert.True(t, engine.IsEnabled("products"), "unregister leaves the enabled flag alone")

	assert.False(t, r.UnregisterModule(context.Background(), host, "users"), "no Unregister method")
	assert.True(t, r.IsRegistered("users"))

	assert.False(t, r.UnregisterModule(context.Background(), host, "orders"), "failed Unregister")
	assert.True(t, r.IsRegistered("orders"))

	assert.False(t, r.UnregisterModule(context.Background(), host, "gps"), "never registered")
	assert.False(t, r.UnregisterModule(context.Background(), host, "ghost"))

	assert.Equal(t, []string{"users", "orders"}, r.ListRegistered())
}

func TestValidate(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "products", Enabled: true},
		{ID: "gps", Enabled: false},
	})

	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", &fakeModule{}))
	require.NoError(t, r.AddImplementation("userz", &fakeModule{}))

	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotInCatalogue)
	assert.ErrorIs(t, err, ErrNoImplementation)
	assert.ErrorContains(t, err, "userz")
	assert.ErrorContains(t, err, "products")
	assert.NotContains(t, err.Error(), "gps", "disabled modules may lack an implementation")

	ok := New(engine, nil)
	require.NoError(t, ok.AddImplementation("users", &fakeModule{}))
	require.NoError(t, ok.AddImplementation("products", &fakeModule{}))
	assert.NoError(t, ok.Validate())
}

func TestHostMountAppliesGuard(t *testing.T) {
	var guarded []string
	host := &Host{
		Router: chi.NewRouter(),
		Guard: func(id string) func(http.Handler) http.Handler {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					guarded = append(guarded, id)
					next.ServeHTTP(w, r)
				})
			}
		},
	}

	err := Func(func(ctx context.Context, h *Host) error {
		h.Mount("users", func(r chi.Router) {
			r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
		return nil
	}).Register(context.Background(), host)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	host.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"users"}, guarded)
}

func TestRegisteredRoutes(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true, Routes: []string{"/api/users"}},
		{ID: "fleet", Enabled: true, Routes: []string{"/api/vehicles", "/api/drivers"}},
		{ID: "gps", Enabled: false, Routes: []string{"/api/gps"}},
	})
	r := New(engine, nil)
	for _, id := range []string{"users", "fleet", "gps"} {
		require.NoError(t, r.AddImplementation(id, &fakeModule{}))
	}
	assert.Empty(t, r.RegisteredRoutes())

	r.RegisterEnabledModules(context.Background(), newHost())
	assert.Equal(t, map[string]string{
		"/api/users":    "users",
		"/api/vehicles": "fleet",
		"/api/drivers":  "fleet",
	}, r.RegisteredRoutes())
}

// mountThen mounts GET path for id and then fails the way fail says.
func mountThen(id, path string, fail func() error) Func {
	return func(ctx context.Context, h *Host) error {
		h.Mount(id, func(r chi.Router) {
			r.Get(path, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("live"))
			})
		})
		return fail()
	}
}

func TestFailedRegisterDoesNotServe(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "edi", Enabled: true},
		{ID: "gps", Enabled: true},
	})
	r := New(engine, nil)
	require.NoError(t, r.AddImplementation("users", mountThen("users", "/api/users", func() error { return nil })))
	require.NoError(t, r.AddImplementation("edi", mountThen("edi", "/api/edi", func() error { return errors.New("failed after mount") })))
	require.NoError(t, r.AddImplementation("gps", mountThen("gps", "/api/gps", func() error { panic("panicked after mount") })))

	host := newHost()
	host.Unavailable = func(id string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("unavailable " + id))
		})
	}

	report := r.RegisterEnabledModules(context.Background(), host)
	assert.Equal(t, []string{"users"}, report.Registered)
	require.Len(t, report.Skipped, 2)
	assert.Equal(t, SkipRegisterFailed, report.Skipped[0].Reason)
	assert.Equal(t, SkipRegisterFailed, report.Skipped[1].Reason)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/api/users", http.StatusOK, "live"},
		{"/api/edi", http.StatusNotFound, "unavailable edi"},
		{"/api/gps", http.StatusNotFound, "unavailable gps"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		host.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.wantCode, w.Code, tt.path)
		assert.Equal(t, tt.wantBody, w.Body.String(), tt.path)
	}
}

func TestUnregisteredModuleStopsServing(t *testing.T) {
	engine := newEngine(t, []catalogue.Descriptor{{ID: "users", Enabled: true}})
	r := New(engine, nil)

	impl := &teardownModule{}
	mount := mountThen("users", "/api/users", func() error { return nil })
	require.NoError(t, r.AddImplementation("users", struct {
		Func
		Unregisterer
	}{mount, impl}))

	host := newHost()
	r.RegisterEnabledModules(context.Background(), host)

	w := httptest.NewRecorder()
	host.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	require.True(t, r.UnregisterModule(context.Background(), host, "users"))
	assert.True(t, impl.unregistered)

	w = httptest.NewRecorder()
	host.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/users", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
