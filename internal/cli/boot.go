package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pedro17pedroo/SGST-sub001/internal/config"
	"github.com/pedro17pedroo/SGST-sub001/internal/logger"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/features"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/policy"
	"github.com/pedro17pedroo/SGST-sub001/internal/modules/registry"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/api"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/gate"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/notify"
	"github.com/pedro17pedroo/SGST-sub001/internal/server/store"
)

// App is a booted module system: catalogue, policy, persisted state and the
// implementations bound to every module id.
type App struct {
	Config   *config.Config
	Logger   *log.Logger
	Engine   *policy.Engine
	Registry *registry.Registry
	Store    store.Store
	Notifier *notify.Notifier

	// Broken lists modules left enabled by persisted state with a disabled
	// dependency. The registry skips them.
	Broken []string

	host *registry.Host
}

// Boot loads the catalogue, restores persisted flags and validates that
// every enabled module has an implementation. Any failure here is a
// configuration error and the process should not serve.
func Boot(ctx context.Context, cfg *config.Config, l *log.Logger) (*App, error) {
	l = logger.OrDiscard(l)

	cat, err := loadCatalogue(cfg.Catalogue.Path)
	if err != nil {
		return nil, err
	}

	var opts []policy.Option
	if cfg.Policy.TransitiveDisable {
		opts = append(opts, policy.WithTransitiveDisable())
	}
	engine := policy.New(cat, opts...)

	st, err := store.Open(ctx, cfg.Store.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	states, err := st.LoadStates(ctx)
	if err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("loading module states: %w", err)
	}
	broken := engine.Restore(states)
	for _, id := range broken {
		l.Warn("Persisted state leaves module with disabled dependencies", "module", id, "missing", engine.MissingDependencies(id))
	}

	reg := registry.New(engine, l.WithPrefix("registry"))
	if err := features.AddAll(reg, engine.All()); err != nil {
		st.Close(ctx)
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		st.Close(ctx)
		return nil, fmt.Errorf("validating registry: %w", err)
	}

	l.Info("Catalogue loaded",
		"modules", cat.Len(),
		"enabled", len(engine.EnabledModules()),
		"transitive_disable", engine.Transitive(),
		"store", cfg.Store.Backend,
	)

	return &App{
		Config:   cfg,
		Logger:   l,
		Engine:   engine,
		Registry: reg,
		Store:    st,
		Notifier: notify.New(cfg.Notify.NotifierOptions(), l.WithPrefix("notify")),
		Broken:   broken,
	}, nil
}

func loadCatalogue(path string) (*catalogue.Catalogue, error) {
	known := catalogue.WithKnownIDs(catalogue.KnownIDs()...)
	if path != "" {
		cat, err := catalogue.LoadFile(path, known)
		if err != nil {
			return nil, fmt.Errorf("loading catalogue %s: %w", path, err)
		}
		return cat, nil
	}

	cat, err := catalogue.New(catalogue.Default(), known)
	if err != nil {
		return nil, fmt.Errorf("loading built-in catalogue: %w", err)
	}
	return cat, nil
}

// Handler builds the HTTP pipeline, registers every enabled module on it and
// starts toggle notifications.
func (a *App) Handler(ctx context.Context) (http.Handler, registry.Report) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  a.Logger.WithPrefix("http").StandardLog(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(gate.Fallback(a.Engine, gate.FallbackConfig{
		APIPrefix:   a.Config.Server.APIPrefix,
		AlwaysAllow: a.Config.GateAllowList(),
		Guarded:     a.Registry.RegisteredRoutes,
	}))

	a.host = &registry.Host{
		Router:      r,
		Guard:       gate.Guards(a.Engine),
		Logger:      a.Logger,
		Unavailable: gate.Unmounted,
	}
	report := a.Registry.RegisterEnabledModules(ctx, a.host)

	srv := api.New(a.Engine, a.Registry, a.Store, a.Logger.WithPrefix("api"))
	srv.SetEventEmitter(a.Notifier.Emitter())
	srv.Routes(r, a.Config.Server.APIPrefix)

	a.Notifier.Start()
	return r, report
}

// Close unregisters modules in reverse registration order, flushes pending
// notifications and closes the store.
func (a *App) Close(ctx context.Context) error {
	if a.host != nil {
		ids := a.Registry.ListRegistered()
		slices.Reverse(ids)
		for _, id := range ids {
			a.Registry.UnregisterModule(ctx, a.host, id)
		}
	}

	var errs []error
	if err := a.Notifier.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.Store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	return errors.Join(errs...)
}
