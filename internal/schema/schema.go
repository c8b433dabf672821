package schema

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/agrivo/farmcore/internal/modules"
	"gorm.io/gorm"
)

// FieldType is the semantic type exposed for a column
type FieldType string

const (
	FieldNumber   FieldType = "number"
	FieldDecimal  FieldType = "decimal"
	FieldDate     FieldType = "date"
	FieldDateTime FieldType = "datetime"
	FieldText     FieldType = "text"
	FieldJSON     FieldType = "json"
	FieldString   FieldType = "string"
)

// Column is introspected metadata for one table column
type Column struct {
	Name       string
	Type       FieldType
	DataType   string // engine data type, e.g. "varchar"
	ColumnType string // full declaration, e.g. "enum('OPEN','DONE')"
	Nullable   bool
	PrimaryKey bool
	ReadOnly   bool
	EnumValues []string
}

// TableSchema is the cached metadata for one allow-listed table
type TableSchema struct {
	Table      string
	PrimaryKey string // empty if the table has no primary key
	Columns    []Column
	HasFarmID  bool
}

// Column returns the column with the given name, or nil
func (s *TableSchema) Column(name string) *Column {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// ReadableColumns returns all column names except secrets
func (s *TableSchema) ReadableColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		if IsSecretColumn(c.Name) {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// WritableColumns returns all columns that accept caller-supplied values
func (s *TableSchema) WritableColumns() []Column {
	out := make([]Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.ReadOnly {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortFallback returns the default sort column: the primary key, or the
// first column when the table has none.
func (s *TableSchema) SortFallback() string {
	if s.PrimaryKey != "" {
		return s.PrimaryKey
	}
	if len(s.Columns) > 0 {
		return s.Columns[0].Name
	}
	return ""
}

// FieldDescriptor is the network-safe shape of a column
type FieldDescriptor struct {
	Name       string    `json:"name"`
	Type       FieldType `json:"type"`
	DataType   string    `json:"data_type"`
	Nullable   bool      `json:"nullable"`
	PrimaryKey bool      `json:"primary_key"`
	ReadOnly   bool      `json:"read_only"`
	EnumValues []string  `json:"enum_values,omitempty"`
}

// FieldDescriptors returns the schema shape safe to expose over the API.
// Secret columns are never included.
func (s *TableSchema) FieldDescriptors() []FieldDescriptor {
	out := make([]FieldDescriptor, 0, len(s.Columns))
	for _, c := range s.Columns {
		if IsSecretColumn(c.Name) {
			continue
		}
		out = append(out, FieldDescriptor{
			Name:       c.Name,
			Type:       c.Type,
			DataType:   c.DataType,
			Nullable:   c.Nullable,
			PrimaryKey: c.PrimaryKey,
			ReadOnly:   c.ReadOnly,
			EnumValues: c.EnumValues,
		})
	}
	return out
}

// Introspector discovers table schemas from the MySQL catalog and caches
// them for process lifetime.
type Introspector struct {
	db    *gorm.DB
	cache *Cache
}

// NewIntrospector creates an introspector backed by the given store and cache
func NewIntrospector(db *gorm.DB, cache *Cache) *Introspector {
	return &Introspector{db: db, cache: cache}
}

// Cache returns the injectable schema cache (administrative reset lives there)
func (in *Introspector) Cache() *Cache {
	return in.cache
}

// catalogColumn mirrors one information_schema.COLUMNS row
type catalogColumn struct {
	ColumnName    string
	DataType      string
	ColumnType    string
	IsNullable    string
	ColumnKey     string
	ColumnDefault sql.NullString
	Extra         string
}

// GetSchema returns the schema for an allow-listed table, or nil when the
// table is not configured or has no columns. A nil schema is "entity not
// found", never an error; only catalog query failures propagate.
func (in *Introspector) GetSchema(table string) (*TableSchema, error) {
	if !modules.IsAllowedTable(table) {
		return nil, nil
	}

	if s := in.cache.Get(table); s != nil {
		return s, nil
	}

	cols, err := in.queryCatalog(table)
	if err != nil {
		return nil, fmt.Errorf("schema introspection for %s failed: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, nil
	}

	s := buildSchema(table, cols)
	in.cache.Set(table, s)
	return s, nil
}

// queryCatalog fetches column metadata in declaration order
func (in *Introspector) queryCatalog(table string) ([]catalogColumn, error) {
	rows, err := in.db.Raw(`
		SELECT COLUMN_NAME, DATA_TYPE, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT, EXTRA
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []catalogColumn
	for rows.Next() {
		var c catalogColumn
		if err := rows.Scan(
			&c.ColumnName,
			&c.DataType,
			&c.ColumnType,
			&c.IsNullable,
			&c.ColumnKey,
			&c.ColumnDefault,
			&c.Extra,
		); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// buildSchema derives the cached schema from raw catalog rows
func buildSchema(table string, cols []catalogColumn) *TableSchema {
	s := &TableSchema{Table: table}

	for _, c := range cols {
		col := Column{
			Name:       c.ColumnName,
			Type:       mapFieldType(c.DataType),
			DataType:   c.DataType,
			ColumnType: c.ColumnType,
			Nullable:   strings.EqualFold(c.IsNullable, "YES"),
			PrimaryKey: c.ColumnKey == "PRI",
			ReadOnly:   isReadOnlyColumn(c.ColumnName, c.Extra),
			EnumValues: parseEnumValues(c.ColumnType),
		}

		if col.PrimaryKey && s.PrimaryKey == "" {
			s.PrimaryKey = col.Name
		}
		if col.Name == "farm_id" {
			s.HasFarmID = true
		}
		s.Columns = append(s.Columns, col)
	}

	return s
}

// mapFieldType is the closed engine-type to field-type mapping.
// Unrecognized engine types default to string.
func mapFieldType(dataType string) FieldType {
	switch strings.ToLower(dataType) {
	case "int", "tinyint", "smallint", "mediumint", "bigint", "year", "bit":
		return FieldNumber
	case "decimal", "float", "double":
		return FieldDecimal
	case "date":
		return FieldDate
	case "datetime", "timestamp":
		return FieldDateTime
	case "text", "tinytext", "mediumtext", "longtext":
		return FieldText
	case "json":
		return FieldJSON
	default:
		return FieldString
	}
}

// timestampColumns are maintained by the engine, never by callers
var timestampColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
}

// isReadOnlyColumn marks auto-increment, timestamp and secret columns
func isReadOnlyColumn(name, extra string) bool {
	if strings.Contains(strings.ToLower(extra), "auto_increment") {
		return true
	}
	if timestampColumns[name] {
		return true
	}
	return IsSecretColumn(name)
}

// IsSecretColumn identifies password-style columns excluded from reads
// and writes alike
func IsSecretColumn(name string) bool {
	return name == "password" || name == "password_hash" || strings.HasSuffix(name, "_password")
}

// parseEnumValues extracts the allowed values from an enum('A','B','C')
// declaration. Any other column type yields nil.
func parseEnumValues(columnType string) []string {
	lower := strings.ToLower(columnType)
	if !strings.HasPrefix(lower, "enum(") || !strings.HasSuffix(columnType, ")") {
		return nil
	}

	inner := columnType[len("enum(") : len(columnType)-1]
	parts := strings.Split(inner, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, "'")
		// MySQL escapes single quotes inside enum members by doubling them
		p = strings.ReplaceAll(p, "''", "'")
		if p != "" {
			values = append(values, p)
		}
	}
	return values
}
