package policy

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedro17pedroo/SGST-sub001/internal/modules/catalogue"
)

func newEngine(t *testing.T, descriptors []catalogue.Descriptor, opts ...Option) *Engine {
	t.Helper()
	cat, err := catalogue.New(descriptors)
	require.NoError(t, err)
	return New(cat, opts...)
}

// warehouseGraph is users <- products, warehouses <- inventory, all enabled.
func warehouseGraph() []catalogue.Descriptor {
	return []catalogue.Descriptor{
		{ID: "users", Name: "Users", Enabled: true, Routes: []string{"/api/users"}},
		{ID: "inventory", Name: "Inventory", Enabled: true, Dependencies: []string{"products", "warehouses"}, Routes: []string{"/api/inventory"}},
		{ID: "products", Name: "Products", Enabled: true, Dependencies: []string{"users"}, Routes: []string{"/api/products"}},
		{ID: "warehouses", Name: "Warehouses", Enabled: true, Dependencies: []string{"users"}, Routes: []string{"/api/warehouses", "/api/users"}},
	}
}

func TestReads(t *testing.T) {
	e := newEngine(t, warehouseGraph())

	assert.True(t, e.IsEnabled("users"))
	assert.False(t, e.IsEnabled("missing"))

	assert.Equal(t, []string{"products", "warehouses"}, e.DependenciesOf("inventory"))
	assert.Equal(t, []string{}, e.DependenciesOf("missing"))
	assert.Empty(t, e.DependenciesOf("users"))

	assert.True(t, e.DependenciesSatisfied("users"))
	assert.True(t, e.DependenciesSatisfied("inventory"))

	assert.Equal(t, []string{"products", "warehouses"}, e.DependentsOf("users"))
	assert.Equal(t, []string{}, e.DependentsOf("inventory"))
	assert.Equal(t, []string{"inventory", "products", "warehouses"}, e.TransitiveDependentsOf("users"))

	assert.Len(t, e.EnabledModules(), 4)
	assert.Equal(t, []string{"/api/users", "/api/inventory", "/api/products", "/api/warehouses"}, e.EnabledRoutePrefixes())
}

func TestSnapshotsAreDetached(t *testing.T) {
	e := newEngine(t, warehouseGraph())

	d, ok := e.Descriptor("users")
	require.True(t, ok)
	d.Enabled = false

	assert.True(t, e.IsEnabled("users"))
}

func TestDisableDirectDependentsOnly(t *testing.T) {
	e := newEngine(t, warehouseGraph())

	res := e.Disable("users")
	require.False(t, res.OK)
	assert.Equal(t, CodeHasActiveDependents, res.Code)
	// inventory depends on users only through products and warehouses, so the
	// default check does not list it.
	assert.Equal(t, []string{"products", "warehouses"}, res.IDs)
	assert.Contains(t, res.Message, "products, warehouses")
	assert.NotContains(t, res.Message, "inventory")
	assert.ErrorIs(t, res.Err(), ErrHasActiveDependents)

	assert.False(t, e.Disable("warehouses").OK, "inventory still depends on warehouses")
	require.True(t, e.Disable("inventory").OK)

	for _, id := range []string{"warehouses", "products", "users"} {
		res := e.Disable(id)
		assert.True(t, res.OK, "disable %s: %s", id, res.Message)
		assert.NoError(t, res.Err())
	}
	assert.Empty(t, e.EnabledModules())
}

func TestDisableOrderFromLeaves(t *testing.T) {
	descriptors := warehouseGraph()
	descriptors[1].Enabled = false // inventory off
	e := newEngine(t, descriptors)

	assert.True(t, e.Disable("warehouses").OK)
	assert.True(t, e.Disable("products").OK)
	assert.True(t, e.Disable("users").OK)
}

func TestTransitiveDisable(t *testing.T) {
	e := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "products", Enabled: false, Dependencies: []string{"users"}},
		{ID: "inventory", Enabled: true, Dependencies: []string{"products"}},
	}, WithTransitiveDisable())
	assert.True(t, e.Transitive())

	res := e.Disable("users")
	require.False(t, res.OK)
	assert.Equal(t, []string{"inventory"}, res.IDs)
	assert.False(t, e.CanDisable("users"))

	shallow := newEngine(t, []catalogue.Descriptor{
		{ID: "users", Enabled: true},
		{ID: "products", Enabled: false, Dependencies: []string{"users"}},
		{ID: "inventory", Enabled: true, Dependencies: []string{"products"}},
	})
	assert.True(t, shallow.CanDisable("users"))
}

func TestEnableReturns(t *testing.T) {
	descriptors := []catalogue.Descriptor{
		{ID: "orders", Name: "Orders", Enabled: true},
		{ID: "inventory", Name: "Inventory", Enabled: true},
		{ID: "returns", Name: "Returns", Enabled: false, Dependencies: []string{"orders", "inventory"}},
	}

	t.Run("dependencies enabled", func(t *testing.T) {
		e := newEngine(t, descriptors)
		res := e.Enable("returns")
		assert.True(t, res.OK, res.Message)
		assert.Equal(t, CodeOK, res.Code)
		assert.True(t, e.IsEnabled("returns"))
	})

	t.Run("orders disabled", func(t *testing.T) {
		e := newEngine(t, descriptors)
		require.True(t, e.Disable("orders").OK)

		res := e.Enable("returns")
		require.False(t, res.OK)
		assert.Equal(t, CodeUnmetDependencies, res.Code)
		assert.Equal(t, []string{"orders"}, res.IDs)
		assert.Contains(t, res.Message, "orders")
		assert.NotContains(t, res.Message, "inventory")
		assert.ErrorIs(t, res.Err(), ErrUnmetDependencies)
		assert.False(t, e.IsEnabled("returns"))
	})
}

func TestToggleFailures(t *testing.T) {
	e := newEngine(t, warehouseGraph())

	tests := []struct {
		name string
		run  func() Result
		code Code
		err  error
	}{
		{"enable unknown", func() Result { return e.Enable("ghost") }, CodeNotFound, ErrNotFound},
		{"disable unknown", func() Result { return e.Disable("ghost") }, CodeNotFound, ErrNotFound},
		{"enable enabled", func() Result { return e.Enable("users") }, CodeAlreadyEnabled, ErrAlreadyEnabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.run()
			assert.False(t, res.OK)
			assert.Equal(t, tt.code, res.Code)
			assert.ErrorIs(t, res.Err(), tt.err)
		})
	}

	require.True(t, e.Disable("inventory").OK)
	res := e.Disable("inventory")
	assert.Equal(t, CodeAlreadyDisabled, res.Code)
	assert.ErrorIs(t, res.Err(), ErrAlreadyDisabled)
}

func TestRestore(t *testing.T) {
	e := newEngine(t, warehouseGraph())

	broken := e.Restore(map[string]bool{"users": false, "ghost": true})
	assert.False(t, e.IsEnabled("users"))
	assert.Equal(t, []string{"products", "warehouses"}, broken)
	assert.False(t, e.DependenciesSatisfied("products"))
	assert.Equal(t, []string{"users"}, e.MissingDependencies("products"))
}

// Random toggle sequences never leave an enabled module with a disabled
// dependency, and a failed disable always names an enabled dependent.
func TestInvariantsHoldUnderRandomToggles(t *testing.T) {
	for _, transitive := range []bool{false, true} {
		var opts []Option
		if transitive {
			opts = append(opts, WithTransitiveDisable())
		}
		cat, err := catalogue.New(catalogue.Default())
		require.NoError(t, err)
		e := New(cat, opts...)
		ids := cat.IDs()
		rng := rand.New(rand.NewSource(42))

		for i := 0; i < 2000; i++ {
			id := ids[rng.Intn(len(ids))]
			if rng.Intn(2) == 0 {
				e.Enable(id)
			} else {
				res := e.Disable(id)
				if res.Code == CodeHasActiveDependents {
					for _, dep := range res.IDs {
						assert.True(t, e.IsEnabled(dep))
					}
				}
			}

			for _, d := range e.All() {
				if d.Enabled {
					require.True(t, e.DependenciesSatisfied(d.ID), "step %d: %s enabled with missing %v", i, d.ID, e.MissingDependencies(d.ID))
				}
			}
		}
	}
}

func TestConcurrentToggles(t *testing.T) {
	cat, err := catalogue.New(catalogue.Default())
	require.NoError(t, err)
	e := New(cat)
	ids := cat.IDs()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 500; i++ {
				id := ids[rng.Intn(len(ids))]
				switch rng.Intn(3) {
				case 0:
					e.Enable(id)
				case 1:
					e.Disable(id)
				default:
					e.EnabledRoutePrefixes()
				}
			}
		}(int64(w))
	}
	wg.Wait()

	for _, d := range e.All() {
		if d.Enabled {
			assert.True(t, e.DependenciesSatisfied(d.ID), "%s", d.ID)
		}
	}
}
