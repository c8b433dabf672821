package schema

import (
	"database/sql"
	"reflect"
	"testing"
)

func TestMapFieldType(t *testing.T) {
	tests := []struct {
		dataType string
		want     FieldType
	}{
		{"int", FieldNumber},
		{"bigint", FieldNumber},
		{"tinyint", FieldNumber},
		{"decimal", FieldDecimal},
		{"double", FieldDecimal},
		{"date", FieldDate},
		{"datetime", FieldDateTime},
		{"timestamp", FieldDateTime},
		{"text", FieldText},
		{"longtext", FieldText},
		{"json", FieldJSON},
		{"varchar", FieldString},
		{"enum", FieldString},
		{"geometry", FieldString}, // unknown types default to string
	}
	for _, tt := range tests {
		if got := mapFieldType(tt.dataType); got != tt.want {
			t.Errorf("mapFieldType(%q) = %v, want %v", tt.dataType, got, tt.want)
		}
	}
}

func TestParseEnumValues(t *testing.T) {
	got := parseEnumValues("enum('ACTIVE','SOLD','DECEASED')")
	want := []string{"ACTIVE", "SOLD", "DECEASED"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if parseEnumValues("varchar(100)") != nil {
		t.Error("non-enum type should yield no values")
	}
	if parseEnumValues("int(11)") != nil {
		t.Error("non-enum type should yield no values")
	}
}

func TestBuildSchema(t *testing.T) {
	cols := []catalogColumn{
		{ColumnName: "id", DataType: "bigint", ColumnType: "bigint(20) unsigned", IsNullable: "NO", ColumnKey: "PRI", Extra: "auto_increment"},
		{ColumnName: "farm_id", DataType: "bigint", ColumnType: "bigint(20)", IsNullable: "NO"},
		{ColumnName: "title", DataType: "varchar", ColumnType: "varchar(255)", IsNullable: "NO"},
		{ColumnName: "status", DataType: "enum", ColumnType: "enum('OPEN','DONE')", IsNullable: "YES"},
		{ColumnName: "notes", DataType: "text", ColumnType: "text", IsNullable: "YES"},
		{ColumnName: "password_hash", DataType: "varchar", ColumnType: "varchar(255)", IsNullable: "YES"},
		{ColumnName: "created_at", DataType: "datetime", ColumnType: "datetime", IsNullable: "YES", ColumnDefault: sql.NullString{String: "CURRENT_TIMESTAMP", Valid: true}},
	}

	s := buildSchema("tasks", cols)

	if s.PrimaryKey != "id" {
		t.Errorf("primary key = %q, want id", s.PrimaryKey)
	}
	if !s.HasFarmID {
		t.Error("schema should detect farm_id")
	}

	id := s.Column("id")
	if id == nil || !id.ReadOnly {
		t.Error("auto_increment column should be read-only")
	}
	if c := s.Column("created_at"); c == nil || !c.ReadOnly {
		t.Error("created_at should be read-only")
	}
	if c := s.Column("password_hash"); c == nil || !c.ReadOnly {
		t.Error("secret column should be read-only")
	}
	if c := s.Column("title"); c == nil || c.ReadOnly {
		t.Error("title should be writable")
	}

	status := s.Column("status")
	if status == nil || !reflect.DeepEqual(status.EnumValues, []string{"OPEN", "DONE"}) {
		t.Errorf("status enum values wrong: %+v", status)
	}

	readable := s.ReadableColumns()
	for _, name := range readable {
		if name == "password_hash" {
			t.Error("readable columns must exclude secrets")
		}
	}
	if len(readable) != 6 {
		t.Errorf("expected 6 readable columns, got %d: %v", len(readable), readable)
	}

	writable := s.WritableColumns()
	names := map[string]bool{}
	for _, c := range writable {
		names[c.Name] = true
	}
	if names["id"] || names["created_at"] || names["password_hash"] {
		t.Errorf("read-only columns leaked into writable set: %v", names)
	}
	if !names["farm_id"] || !names["title"] || !names["status"] || !names["notes"] {
		t.Errorf("writable set incomplete: %v", names)
	}
}

func TestBuildSchemaNoPrimaryKey(t *testing.T) {
	cols := []catalogColumn{
		{ColumnName: "animal_id", DataType: "bigint", ColumnType: "bigint(20)", IsNullable: "NO"},
		{ColumnName: "group_id", DataType: "bigint", ColumnType: "bigint(20)", IsNullable: "NO"},
	}
	s := buildSchema("animal_group_members", cols)
	if s.PrimaryKey != "" {
		t.Errorf("keyless table should have empty primary key, got %q", s.PrimaryKey)
	}
	if s.SortFallback() != "animal_id" {
		t.Errorf("sort fallback should be first column, got %q", s.SortFallback())
	}
}

func TestCache(t *testing.T) {
	c := NewCache()
	if c.Get("tasks") != nil {
		t.Error("empty cache should miss")
	}

	s := &TableSchema{Table: "tasks"}
	c.Set("tasks", s)
	if c.Get("tasks") != s {
		t.Error("cache should return the stored schema")
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}

	c.Clear()
	if c.Get("tasks") != nil || c.Len() != 0 {
		t.Error("clear should empty the cache")
	}
}
