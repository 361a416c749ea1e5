package catalogue

// Known module ids. Implementations and catalogue files are checked against
// this set at boot so a typo fails fast instead of silently skipping a module.
const (
	Users            = "users"
	Products         = "products"
	Warehouses       = "warehouses"
	Suppliers        = "suppliers"
	Customers        = "customers"
	Inventory        = "inventory"
	Orders           = "orders"
	Putaway          = "putaway"
	Picking          = "picking"
	Shipping         = "shipping"
	Returns          = "returns"
	Fleet            = "fleet"
	GPS              = "gps"
	EDI              = "edi"
	AnomalyDetection = "anomaly_detection"
	Reports          = "reports"
)

// KnownIDs returns the closed set of module ids compiled into the binary.
func KnownIDs() []string {
	return []string{
		Users, Products, Warehouses, Suppliers, Customers, Inventory, Orders,
		Putaway, Picking, Shipping, Returns, Fleet, GPS, EDI, AnomalyDetection, Reports,
	}
}

// Default returns the compiled-in module table.
func Default() []Descriptor {
	return []Descriptor{
		{
			ID:          Users,
			Name:        "Users",
			Description: "User accounts and roles",
			Enabled:     true,
			Routes:      []string{"/api/users"},
			Tables:      []string{"users"},
			Permissions: []string{"users.read", "users.write"},
		},
		{
			ID:           Products,
			Name:         "Products",
			Description:  "Product master data",
			Enabled:      true,
			Dependencies: []string{Users},
			Routes:       []string{"/api/products", "/api/categories"},
			Tables:       []string{"products", "categories"},
			Permissions:  []string{"products.read", "products.write"},
		},
		{
			ID:           Warehouses,
			Name:         "Warehouses",
			Description:  "Warehouses, zones and bin locations",
			Enabled:      true,
			Dependencies: []string{Users},
			Routes:       []string{"/api/warehouses", "/api/locations"},
			Tables:       []string{"warehouses", "locations"},
			Permissions:  []string{"warehouses.read", "warehouses.write"},
		},
		{
			ID:           Suppliers,
			Name:         "Suppliers",
			Description:  "Supplier directory",
			Enabled:      true,
			Dependencies: []string{Users},
			Routes:       []string{"/api/suppliers"},
			Tables:       []string{"suppliers"},
			Permissions:  []string{"suppliers.read", "suppliers.write"},
		},
		{
			ID:           Customers,
			Name:         "Customers",
			Description:  "Customer directory",
			Enabled:      true,
			Dependencies: []string{Users},
			Routes:       []string{"/api/customers"},
			Tables:       []string{"customers"},
			Permissions:  []string{"customers.read", "customers.write"},
		},
		{
			ID:           Inventory,
			Name:         "Inventory",
			Description:  "Stock levels and movements",
			Enabled:      true,
			Dependencies: []string{Products, Warehouses},
			Routes:       []string{"/api/inventory", "/api/stock-movements"},
			Tables:       []string{"inventory", "stock_movements"},
			Permissions:  []string{"inventory.read", "inventory.write"},
		},
		{
			ID:           Orders,
			Name:         "Orders",
			Description:  "Sales and purchase orders",
			Enabled:      true,
			Dependencies: []string{Customers, Products, Inventory},
			Routes:       []string{"/api/orders"},
			Tables:       []string{"orders", "order_items"},
			Permissions:  []string{"orders.read", "orders.write"},
		},
		{
			ID:           Putaway,
			Name:         "Putaway",
			Description:  "Putaway rules and tasks for inbound stock",
			Enabled:      true,
			Dependencies: []string{Inventory, Warehouses},
			Routes:       []string{"/api/putaway"},
			Tables:       []string{"putaway_rules", "putaway_tasks"},
			Permissions:  []string{"putaway.read", "putaway.write"},
		},
		{
			ID:           Picking,
			Name:         "Picking",
			Description:  "Pick lists and waves",
			Enabled:      true,
			Dependencies: []string{Orders, Inventory},
			Routes:       []string{"/api/picking"},
			Tables:       []string{"pick_lists", "pick_waves"},
			Permissions:  []string{"picking.read", "picking.write"},
		},
		{
			ID:           Shipping,
			Name:         "Shipping",
			Description:  "Shipments and carriers",
			Enabled:      true,
			Dependencies: []string{Orders},
			Routes:       []string{"/api/shipments", "/api/carriers"},
			Tables:       []string{"shipments", "carriers"},
			Permissions:  []string{"shipping.read", "shipping.write"},
		},
		{
			ID:           Returns,
			Name:         "Returns",
			Description:  "Customer returns and RMA processing",
			Enabled:      false,
			Dependencies: []string{Orders, Inventory},
			Routes:       []string{"/api/returns"},
			Tables:       []string{"returns", "return_items"},
			Permissions:  []string{"returns.read", "returns.write"},
		},
		{
			ID:           Fleet,
			Name:         "Fleet",
			Description:  "Vehicles and drivers",
			Enabled:      true,
			Dependencies: []string{Warehouses},
			Routes:       []string{"/api/vehicles", "/api/drivers"},
			Tables:       []string{"vehicles", "drivers"},
			Permissions:  []string{"fleet.read", "fleet.write"},
		},
		{
			ID:           GPS,
			Name:         "GPS Tracking",
			Description:  "Vehicle position tracking",
			Enabled:      false,
			Dependencies: []string{Fleet},
			Routes:       []string{"/api/gps"},
			Tables:       []string{"gps_positions"},
			Permissions:  []string{"gps.read"},
		},
		{
			ID:           EDI,
			Name:         "EDI",
			Description:  "Electronic data interchange with trading partners",
			Enabled:      false,
			Dependencies: []string{Orders, Suppliers},
			Routes:       []string{"/api/edi"},
			Tables:       []string{"edi_partners", "edi_documents"},
			Permissions:  []string{"edi.read", "edi.write"},
		},
		{
			ID:           AnomalyDetection,
			Name:         "Anomaly Detection",
			Description:  "Stock and movement anomaly alerts",
			Enabled:      false,
			Dependencies: []string{Inventory},
			Routes:       []string{"/api/anomalies"},
			Tables:       []string{"anomaly_alerts"},
			Permissions:  []string{"anomalies.read"},
		},
		{
			ID:           Reports,
			Name:         "Reports",
			Description:  "Operational reports and dashboards",
			Enabled:      true,
			Dependencies: []string{Orders, Inventory},
			Routes:       []string{"/api/reports"},
			Tables:       []string{},
			Permissions:  []string{"reports.read"},
		},
	}
}
