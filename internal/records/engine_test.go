package records

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/schema"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// taskSchema mirrors what the introspector would derive for the tasks
// table. Tests seed it into the cache directly so the engine runs
// against SQLite without a MySQL catalog.
func taskSchema() *schema.TableSchema {
	return &schema.TableSchema{
		Table:      "tasks",
		PrimaryKey: "id",
		HasFarmID:  true,
		Columns: []schema.Column{
			{Name: "id", Type: schema.FieldNumber, DataType: "bigint", PrimaryKey: true, ReadOnly: true},
			{Name: "farm_id", Type: schema.FieldNumber, DataType: "bigint"},
			{Name: "title", Type: schema.FieldString, DataType: "varchar", ColumnType: "varchar(255)"},
			{Name: "status", Type: schema.FieldString, DataType: "enum", ColumnType: "enum('OPEN','DONE')", EnumValues: []string{"OPEN", "DONE"}, Nullable: true},
			{Name: "priority", Type: schema.FieldNumber, DataType: "int", Nullable: true},
			{Name: "created_by", Type: schema.FieldNumber, DataType: "bigint", Nullable: true},
			{Name: "created_at", Type: schema.FieldDateTime, DataType: "datetime", ReadOnly: true, Nullable: true},
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, *schema.Cache) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "records.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Exec(`CREATE TABLE tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		farm_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		status TEXT,
		priority INTEGER,
		created_by INTEGER,
		created_at DATETIME
	)`).Error; err != nil {
		t.Fatalf("failed to create tasks table: %v", err)
	}

	cache := schema.NewCache()
	cache.Set("tasks", taskSchema())

	return NewEngine(db, schema.NewIntrospector(db, cache)), db, cache
}

func seedTask(t *testing.T, db *gorm.DB, farmID int64, title, status string) {
	t.Helper()
	err := db.Exec(
		"INSERT INTO tasks (farm_id, title, status) VALUES (?, ?, ?)",
		farmID, title, status,
	).Error
	if err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}
}

func TestListTenancyIsolation(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Feed check", "OPEN")
	seedTask(t, db, 1, "Fence repair", "DONE")
	seedTask(t, db, 2, "Other farm task", "OPEN")

	res, err := e.List(context.Background(), "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, ListQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.TotalCount != 2 {
		t.Errorf("farm 1 should see 2 tasks, got %d", res.TotalCount)
	}
	for _, row := range res.Rows {
		if row["title"] == "Other farm task" {
			t.Error("farm 1 must never see farm 2 rows")
		}
	}
}

func TestListPaginationAndClamp(t *testing.T) {
	e, db, _ := newTestEngine(t)
	for i := 0; i < 25; i++ {
		seedTask(t, db, 1, "Task", "OPEN")
	}
	actor := Actor{UserID: 3, FarmID: 1}

	res, err := e.List(context.Background(), "TASKS", "tasks", actor, ListQuery{PageSize: 5000})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.PageSize != 1000 {
		t.Errorf("page size should clamp to 1000, got %d", res.PageSize)
	}

	res, err = e.List(context.Background(), "TASKS", "tasks", actor, ListQuery{PageSize: 0})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.PageSize != 20 {
		t.Errorf("zero page size should default to 20, got %d", res.PageSize)
	}
	if len(res.Rows) != 20 {
		t.Errorf("expected a 20-row page, got %d", len(res.Rows))
	}
	if res.TotalPages != 2 {
		t.Errorf("25 rows at size 20 is 2 pages, got %d", res.TotalPages)
	}

	res, err = e.List(context.Background(), "TASKS", "tasks", actor, ListQuery{Page: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(res.Rows) != 5 {
		t.Errorf("page 2 should hold the remaining 5 rows, got %d", len(res.Rows))
	}
}

func TestListFiltersSearchAndSort(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Feed the goats", "OPEN")
	seedTask(t, db, 1, "Repair fence", "DONE")
	seedTask(t, db, 1, "Order feed", "DONE")
	actor := Actor{UserID: 3, FarmID: 1}
	ctx := context.Background()

	res, err := e.List(ctx, "TASKS", "tasks", actor, ListQuery{Filters: map[string]interface{}{"status": "DONE"}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.TotalCount != 2 {
		t.Errorf("status filter should match 2, got %d", res.TotalCount)
	}

	// Unknown filter keys are silently ignored
	res, err = e.List(ctx, "TASKS", "tasks", actor, ListQuery{Filters: map[string]interface{}{"no_such_column": "x"}})
	if err != nil {
		t.Fatalf("unknown filter key should not error: %v", err)
	}
	if res.TotalCount != 3 {
		t.Errorf("ignored filter should match all 3, got %d", res.TotalCount)
	}

	res, err = e.List(ctx, "TASKS", "tasks", actor, ListQuery{Search: "feed"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if res.TotalCount != 2 {
		t.Errorf("search 'feed' should match 2, got %d", res.TotalCount)
	}

	// Nonexistent sort column falls back to the primary key
	res, err = e.List(ctx, "TASKS", "tasks", actor, ListQuery{SortBy: "evil", SortDir: "asc"})
	if err != nil {
		t.Fatalf("sort fallback failed: %v", err)
	}
	if res.PrimaryKey != "id" {
		t.Errorf("primary_key should be id, got %s", res.PrimaryKey)
	}
	first, last := res.Rows[0]["id"], res.Rows[len(res.Rows)-1]["id"]
	if first.(int64) > last.(int64) {
		t.Error("ascending sort should order ids upward")
	}
}

func TestCreateAppliesActorDefaults(t *testing.T) {
	e, _, _ := newTestEngine(t)
	actor := Actor{UserID: 3, FarmID: 7}

	res, err := e.Create(context.Background(), "TASKS", "tasks", actor, map[string]interface{}{
		"title":   "Feed check",
		"farm_id": 999, // spoof attempt
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if res.ID == 0 {
		t.Fatal("create should return the inserted id")
	}
	if res.Record == nil {
		t.Fatal("create should return the freshly-read row")
	}
	if got := res.Record["farm_id"].(int64); got != 7 {
		t.Errorf("farm_id must be the caller's farm, got %v", got)
	}
	if got := res.Record["created_by"].(int64); got != 3 {
		t.Errorf("created_by should default to the acting user, got %v", got)
	}
	if res.Record["title"] != "Feed check" {
		t.Errorf("title = %v", res.Record["title"])
	}
}

func TestCreateRejectsEmptyPayload(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.Create(context.Background(), "TASKS", "tasks", Actor{UserID: 3, FarmID: 7}, map[string]interface{}{
		"id":         10,         // read-only, filtered
		"created_at": "2026-01-01", // read-only, filtered
	})
	if err == nil {
		t.Fatal("expected error for empty writable set")
	}
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateScopedByTenant(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Mine", "OPEN")
	seedTask(t, db, 2, "Theirs", "OPEN")
	ctx := context.Background()

	// Farm 1 cannot touch farm 2's row even with a valid id
	_, err := e.Update(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "2", map[string]interface{}{"title": "Hijacked"})
	if err == nil {
		t.Fatal("cross-tenant update must fail")
	}
	if apperr.KindOf(err) != apperr.NotFound || err.Error() != "no matching record" {
		t.Errorf("cross-tenant update should collapse to 'no matching record', got %v", err)
	}

	// Primary key in the payload is ignored
	res, err := e.Update(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "1", map[string]interface{}{
		"id":    42,
		"title": "Renamed",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if got := res.Record["id"].(int64); got != 1 {
		t.Errorf("primary key must never be rewritten, got id=%v", got)
	}
	if res.Record["title"] != "Renamed" {
		t.Errorf("title = %v", res.Record["title"])
	}
}

// An update that writes the values already stored must still count as a
// match. Replayed queued writes re-apply payloads verbatim, so a
// nothing-changed update read as "no matching record" would wedge the
// outbox. The MySQL connection sets clientFoundRows for the same reason.
func TestUpdateWithIdenticalValuesSucceeds(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Feed cattle", "OPEN")
	ctx := context.Background()
	actor := Actor{UserID: 3, FarmID: 1}

	payload := map[string]interface{}{"title": "Feed cattle", "status": "OPEN"}
	for i := 0; i < 2; i++ {
		res, err := e.Update(ctx, "TASKS", "tasks", actor, "1", payload)
		if err != nil {
			t.Fatalf("identical-value update %d failed: %v", i+1, err)
		}
		if res.Record["title"] != "Feed cattle" {
			t.Errorf("title = %v", res.Record["title"])
		}
	}
}

func TestDeleteScopedByTenant(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Mine", "OPEN")
	seedTask(t, db, 2, "Theirs", "OPEN")
	ctx := context.Background()

	res, err := e.Delete(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "2")
	if err != nil {
		t.Fatalf("delete returned error: %v", err)
	}
	if res.Affected != 0 {
		t.Errorf("cross-tenant delete should affect 0 rows, got %d", res.Affected)
	}

	res, err = e.Delete(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if res.Affected != 1 {
		t.Errorf("expected 1 affected row, got %d", res.Affected)
	}
}

func TestGetByID(t *testing.T) {
	e, db, _ := newTestEngine(t)
	seedTask(t, db, 1, "Mine", "OPEN")
	ctx := context.Background()

	res, err := e.GetByID(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if res.Record == nil || res.Record["title"] != "Mine" {
		t.Errorf("expected the seeded row, got %+v", res.Record)
	}

	// Absent row is success with a nil record, not an error
	res, err = e.GetByID(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 1}, "99")
	if err != nil {
		t.Fatalf("missing row should not error: %v", err)
	}
	if res.Record != nil {
		t.Errorf("expected nil record, got %+v", res.Record)
	}

	// Wrong tenant reads nothing
	res, err = e.GetByID(ctx, "TASKS", "tasks", Actor{UserID: 3, FarmID: 2}, "1")
	if err != nil {
		t.Fatalf("cross-tenant get should not error: %v", err)
	}
	if res.Record != nil {
		t.Error("farm 2 must not read farm 1's row")
	}
}

func TestKeylessTableGetIsValidationError(t *testing.T) {
	e, db, cache := newTestEngine(t)
	if err := db.Exec(`CREATE TABLE soil_samples (field_id INTEGER, farm_id INTEGER, ph REAL)`).Error; err != nil {
		t.Fatal(err)
	}
	cache.Set("soil_samples", &schema.TableSchema{
		Table:     "soil_samples",
		HasFarmID: true,
		Columns: []schema.Column{
			{Name: "field_id", Type: schema.FieldNumber, DataType: "bigint"},
			{Name: "farm_id", Type: schema.FieldNumber, DataType: "bigint"},
			{Name: "ph", Type: schema.FieldDecimal, DataType: "decimal", Nullable: true},
		},
	})

	_, err := e.GetByID(context.Background(), "FIELDS", "soil_samples", Actor{FarmID: 1}, "5")
	if err == nil {
		t.Fatal("keyless table get must fail")
	}
	if apperr.KindOf(err) != apperr.Validation {
		t.Errorf("keyless get is a validation error, not a 404: %v", err)
	}
}

func TestSecretColumnsNeverLeak(t *testing.T) {
	e, db, cache := newTestEngine(t)
	if err := db.Exec(`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		farm_id INTEGER NOT NULL,
		email TEXT NOT NULL,
		password_hash TEXT NOT NULL
	)`).Error; err != nil {
		t.Fatal(err)
	}
	cache.Set("users", &schema.TableSchema{
		Table:      "users",
		PrimaryKey: "id",
		HasFarmID:  true,
		Columns: []schema.Column{
			{Name: "id", Type: schema.FieldNumber, DataType: "bigint", PrimaryKey: true, ReadOnly: true},
			{Name: "farm_id", Type: schema.FieldNumber, DataType: "bigint"},
			{Name: "email", Type: schema.FieldString, DataType: "varchar"},
			{Name: "password_hash", Type: schema.FieldString, DataType: "varchar", ReadOnly: true},
		},
	})
	if err := db.Exec("INSERT INTO users (farm_id, email, password_hash) VALUES (1, 'a@farm.test', 'bcrypt-blob')").Error; err != nil {
		t.Fatal(err)
	}
	actor := Actor{UserID: 3, FarmID: 1}
	ctx := context.Background()

	res, err := e.List(ctx, "USERS", "users", actor, ListQuery{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, row := range res.Rows {
		if _, ok := row["password_hash"]; ok {
			t.Fatal("password_hash must never be selected")
		}
	}

	// Equality probing against the hash is ignored, not honored
	res, err = e.List(ctx, "USERS", "users", actor, ListQuery{
		Filters: map[string]interface{}{"password_hash": "bcrypt-blob"},
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if res.TotalCount != 1 {
		t.Errorf("secret filter should be dropped, got count %d", res.TotalCount)
	}

	// Search must not LIKE-match against the hash either
	res, err = e.List(ctx, "USERS", "users", actor, ListQuery{Search: "bcrypt"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if res.TotalCount != 0 {
		t.Errorf("search must skip secret columns, got count %d", res.TotalCount)
	}

	// Ordering by the hash would leak its bytes one comparison at a time,
	// so a secret sort column falls back to the primary key.
	if err := db.Exec("INSERT INTO users (farm_id, email, password_hash) VALUES (1, 'b@farm.test', 'aaa-blob')").Error; err != nil {
		t.Fatal(err)
	}
	res, err = e.List(ctx, "USERS", "users", actor, ListQuery{SortBy: "password_hash", SortDir: "asc"})
	if err != nil {
		t.Fatalf("sort failed: %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if got := res.Rows[0]["id"].(int64); got != 1 {
		t.Errorf("secret sort should fall back to id order, got first id %d", got)
	}
}

func TestUnknownEntityResolvesToNil(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	// Table exists in no module
	res, err := e.List(ctx, "TASKS", "sqlite_master", Actor{FarmID: 1}, ListQuery{})
	if err != nil || res != nil {
		t.Errorf("unconfigured table should resolve to nil, nil; got %v, %v", res, err)
	}

	// Table exists but not under this module
	res, err = e.List(ctx, "CROPS", "tasks", Actor{FarmID: 1}, ListQuery{})
	if err != nil || res != nil {
		t.Errorf("wrong-module table should resolve to nil, nil; got %v, %v", res, err)
	}
}
