package modules

// Entity is one table within a module, paired with a display label
type Entity struct {
	Table string `json:"table"`
	Label string `json:"label"`
}

// Module is a named group of tables gated by a single access-control check
type Module struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Entities []Entity `json:"entities"`
}

// Action is a capability checked against the role map
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// registry is the static module configuration. Loaded once, immutable at
// runtime; table membership here is the allow-list that gates everything
// the generic record engine will touch.
var registry = []Module{
	{
		Key:   "LIVESTOCK",
		Label: "Livestock",
		Entities: []Entity{
			{Table: "animals", Label: "Animals"},
			{Table: "animal_groups", Label: "Animal Groups"},
			{Table: "animal_health_records", Label: "Health Records"},
		},
	},
	{
		Key:   "CROPS",
		Label: "Crops",
		Entities: []Entity{
			{Table: "crops", Label: "Crops"},
			{Table: "plantings", Label: "Plantings"},
			{Table: "harvests", Label: "Harvests"},
		},
	},
	{
		Key:   "FIELDS",
		Label: "Fields",
		Entities: []Entity{
			{Table: "fields", Label: "Fields"},
			{Table: "soil_samples", Label: "Soil Samples"},
		},
	},
	{
		Key:   "TASKS",
		Label: "Tasks",
		Entities: []Entity{
			{Table: "tasks", Label: "Tasks"},
		},
	},
	{
		Key:   "INVENTORY",
		Label: "Inventory",
		Entities: []Entity{
			{Table: "inventory_items", Label: "Inventory Items"},
			{Table: "inventory_movements", Label: "Inventory Movements"},
		},
	},
	{
		Key:   "FINANCE",
		Label: "Finance",
		Entities: []Entity{
			{Table: "expenses", Label: "Expenses"},
			{Table: "sales", Label: "Sales"},
		},
	},
	{
		Key:   "USERS",
		Label: "Users",
		Entities: []Entity{
			{Table: "users", Label: "Users"},
		},
	},
}

// allowedTables is derived from the registry at init
var allowedTables = func() map[string]bool {
	m := make(map[string]bool)
	for _, mod := range registry {
		for _, e := range mod.Entities {
			m[e.Table] = true
		}
	}
	return m
}()

// AllModules returns the static module list
func AllModules() []Module {
	return registry
}

// GetModuleByKey returns the module with the given uppercase key, or nil
func GetModuleByKey(key string) *Module {
	for i := range registry {
		if registry[i].Key == key {
			return &registry[i]
		}
	}
	return nil
}

// GetEntityByTable returns the entity for a table within a module, or nil
func GetEntityByTable(moduleKey, table string) *Entity {
	mod := GetModuleByKey(moduleKey)
	if mod == nil {
		return nil
	}
	for i := range mod.Entities {
		if mod.Entities[i].Table == table {
			return &mod.Entities[i]
		}
	}
	return nil
}

// IsAllowedTable reports whether any module configures the given table
func IsAllowedTable(table string) bool {
	return allowedTables[table]
}

// rolePermissions maps role key -> module key -> allowed actions.
// The wildcard "*" grants the action on every module. Role-based
// authorization is checked at the HTTP boundary; the record engine
// itself only enforces tenancy scoping.
var rolePermissions = map[string]map[string][]Action{
	"admin": {
		"*": {ActionRead, ActionWrite, ActionDelete},
	},
	"manager": {
		"*": {ActionRead, ActionWrite},
	},
	"worker": {
		"LIVESTOCK": {ActionRead, ActionWrite},
		"CROPS":     {ActionRead, ActionWrite},
		"FIELDS":    {ActionRead},
		"TASKS":     {ActionRead, ActionWrite},
		"INVENTORY": {ActionRead},
	},
	"viewer": {
		"*": {ActionRead},
	},
}

// RoleCan reports whether a role may perform an action on a module
func RoleCan(role, moduleKey string, action Action) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, scope := range []string{moduleKey, "*"} {
		for _, a := range perms[scope] {
			if a == action {
				return true
			}
		}
	}
	return false
}
