package records

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/modules"
	"github.com/agrivo/farmcore/internal/schema"
	"gorm.io/gorm"
)

const (
	defaultPageSize  = 20
	maxPageSize      = 1000
	maxSearchColumns = 8
)

// actorColumns default to the acting user id on create when the schema
// has them and the caller did not supply a value
var actorColumns = []string{"created_by", "updated_by", "assigned_by", "reported_by", "sender_user_id"}

// Actor identifies the authenticated caller for tenancy scoping and
// attribution defaults. Role checks happen before the engine is invoked.
type Actor struct {
	UserID int64
	FarmID int64
}

// ListQuery describes one List request
type ListQuery struct {
	Page     int
	PageSize int
	Search   string
	SortBy   string
	SortDir  string
	Filters  map[string]interface{}
}

// ListResult is a paged list response
type ListResult struct {
	PrimaryKey string                   `json:"primary_key"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
	TotalCount int64                    `json:"total_count"`
	TotalPages int                      `json:"total_pages"`
	Rows       []map[string]interface{} `json:"rows"`
}

// GetResult is a single-record response; a nil Record means not found,
// which is not an error
type GetResult struct {
	Record map[string]interface{} `json:"record,omitempty"`
}

// CreateResult reports the inserted id and the freshly-read row
type CreateResult struct {
	ID     int64                  `json:"id"`
	Record map[string]interface{} `json:"record,omitempty"`
}

// UpdateResult carries the re-read row after a successful update
type UpdateResult struct {
	Record map[string]interface{} `json:"record,omitempty"`
}

// DeleteResult reports affected rows; zero is not an error at this layer
type DeleteResult struct {
	Affected int64 `json:"affected"`
}

// Engine executes schema-driven CRUD against arbitrary allow-listed
// tables. All store errors propagate unclassified; deciding
// "unavailable vs rejected" is the orchestration layer's job.
type Engine struct {
	db           *gorm.DB
	introspector *schema.Introspector
}

// NewEngine creates a record engine over the primary store
func NewEngine(db *gorm.DB, introspector *schema.Introspector) *Engine {
	return &Engine{db: db, introspector: introspector}
}

// resolve maps (moduleKey, table) through the module allow-list and the
// introspector. A nil schema with nil error means "entity not found".
func (e *Engine) resolve(moduleKey, table string) (*schema.TableSchema, error) {
	if modules.GetEntityByTable(moduleKey, table) == nil {
		return nil, nil
	}
	return e.introspector.GetSchema(table)
}

// List returns a page of rows, always scoped by farm_id when the table
// has one. A nil result means the entity is not configured.
func (e *Engine) List(ctx context.Context, moduleKey, table string, actor Actor, q ListQuery) (*ListResult, error) {
	s, err := e.resolve(moduleKey, table)
	if err != nil || s == nil {
		return nil, err
	}

	quotedTable, err := SanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	var conds []string
	var args []interface{}

	if s.HasFarmID {
		conds = append(conds, "`farm_id` = ?")
		args = append(args, actor.FarmID)
	}

	// Equality filters on known columns only; unknown keys are ignored.
	// Secret columns accept no filters: probing them would leak.
	for name, raw := range q.Filters {
		col := s.Column(name)
		if col == nil || schema.IsSecretColumn(name) {
			continue
		}
		quoted, err := SanitizeIdentifier(name)
		if err != nil {
			continue
		}
		value, keep := CoerceValue(col, raw)
		if !keep {
			continue
		}
		conds = append(conds, quoted+" = ?")
		args = append(args, value)
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		var likes []string
		for _, col := range s.Columns {
			if len(likes) >= maxSearchColumns {
				break
			}
			if col.Type != schema.FieldString && col.Type != schema.FieldText {
				continue
			}
			if schema.IsSecretColumn(col.Name) {
				continue
			}
			quoted, err := SanitizeIdentifier(col.Name)
			if err != nil {
				continue
			}
			likes = append(likes, quoted+" LIKE ?")
			args = append(args, "%"+term+"%")
		}
		if len(likes) > 0 {
			conds = append(conds, "("+strings.Join(likes, " OR ")+")")
		}
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := e.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM "+quotedTable+where, args...).
		Scan(&total).Error; err != nil {
		return nil, err
	}

	sortCol := q.SortBy
	if sortCol == "" || s.Column(sortCol) == nil || schema.IsSecretColumn(sortCol) {
		sortCol = s.SortFallback()
	}
	quotedSort, err := SanitizeIdentifier(sortCol)
	if err != nil {
		return nil, err
	}
	dir := "DESC"
	if strings.EqualFold(q.SortDir, "asc") {
		dir = "ASC"
	}

	selectCols, err := quoteAll(s.ReadableColumns())
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s%s ORDER BY %s %s LIMIT ? OFFSET ?",
		strings.Join(selectCols, ", "), quotedTable, where, quotedSort, dir,
	)
	args = append(args, size, (page-1)*size)

	var rows []map[string]interface{}
	if err := e.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	return &ListResult{
		PrimaryKey: s.PrimaryKey,
		Page:       page,
		PageSize:   size,
		TotalCount: total,
		TotalPages: totalPages(total, size),
		Rows:       normalizeRows(rows),
	}, nil
}

// GetByID returns a single row by primary key, farm-scoped. An absent
// row is a successful response with a nil Record.
func (e *Engine) GetByID(ctx context.Context, moduleKey, table string, actor Actor, id string) (*GetResult, error) {
	s, err := e.resolve(moduleKey, table)
	if err != nil || s == nil {
		return nil, err
	}
	if s.PrimaryKey == "" {
		return nil, apperr.Newf(apperr.Validation, "table %s has no primary key", table)
	}

	record, err := e.fetchByID(ctx, s, actor, id)
	if err != nil {
		return nil, err
	}
	return &GetResult{Record: record}, nil
}

// Create inserts a sanitized payload. farm_id is force-set to the
// caller's farm; actor-attribution columns default to the acting user.
func (e *Engine) Create(ctx context.Context, moduleKey, table string, actor Actor, payload map[string]interface{}) (*CreateResult, error) {
	s, err := e.resolve(moduleKey, table)
	if err != nil || s == nil {
		return nil, err
	}

	values := sanitizePayload(s, payload)
	if len(values) == 0 {
		return nil, apperr.New(apperr.Validation, "no writable fields provided")
	}

	// Tenancy cannot be spoofed: the caller's farm always wins
	if s.HasFarmID {
		values["farm_id"] = actor.FarmID
	}
	for _, name := range actorColumns {
		if col := s.Column(name); col != nil && !col.ReadOnly {
			if _, supplied := values[name]; !supplied {
				values[name] = actor.UserID
			}
		}
	}

	quotedTable, err := SanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}

	var cols, placeholders []string
	var args []interface{}
	for _, col := range s.Columns {
		value, ok := values[col.Name]
		if !ok {
			continue
		}
		quoted, err := SanitizeIdentifier(col.Name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, quoted)
		placeholders = append(placeholders, "?")
		args = append(args, value)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	sqlDB, err := e.db.DB()
	if err != nil {
		return nil, err
	}
	res, err := sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	insertedID, _ := res.LastInsertId()
	result := &CreateResult{ID: insertedID}

	if s.PrimaryKey != "" && insertedID > 0 {
		record, err := e.fetchByID(ctx, s, actor, fmt.Sprintf("%d", insertedID))
		if err != nil {
			return nil, err
		}
		result.Record = record
	}

	return result, nil
}

// Update applies a sanitized payload to a single row. The primary key is
// always excluded from the write set; the WHERE clause is scoped by both
// primary key and farm so a valid id from another tenant matches nothing.
func (e *Engine) Update(ctx context.Context, moduleKey, table string, actor Actor, id string, payload map[string]interface{}) (*UpdateResult, error) {
	s, err := e.resolve(moduleKey, table)
	if err != nil || s == nil {
		return nil, err
	}
	if s.PrimaryKey == "" {
		return nil, apperr.Newf(apperr.Validation, "table %s has no primary key", table)
	}

	values := sanitizePayload(s, payload)
	delete(values, s.PrimaryKey)
	if _, supplied := values["farm_id"]; supplied && s.HasFarmID {
		values["farm_id"] = actor.FarmID
	}

	if len(values) == 0 {
		return nil, apperr.New(apperr.Validation, "no writable fields provided")
	}

	quotedTable, err := SanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}
	quotedPK, err := SanitizeIdentifier(s.PrimaryKey)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []interface{}
	for _, col := range s.Columns {
		value, ok := values[col.Name]
		if !ok {
			continue
		}
		quoted, err := SanitizeIdentifier(col.Name)
		if err != nil {
			return nil, err
		}
		sets = append(sets, quoted+" = ?")
		args = append(args, value)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quotedTable, strings.Join(sets, ", "), quotedPK)
	args = append(args, id)
	if s.HasFarmID {
		query += " AND `farm_id` = ?"
		args = append(args, actor.FarmID)
	}

	tx := e.db.WithContext(ctx).Exec(query, args...)
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		// Covers both "row does not exist" and "row belongs to another
		// tenant" so existence never leaks across farms
		return nil, apperr.New(apperr.NotFound, "no matching record")
	}

	record, err := e.fetchByID(ctx, s, actor, id)
	if err != nil {
		return nil, err
	}
	return &UpdateResult{Record: record}, nil
}

// Delete removes at most one row, scoped by primary key and farm.
// Zero affected rows is reported, not treated as an error.
func (e *Engine) Delete(ctx context.Context, moduleKey, table string, actor Actor, id string) (*DeleteResult, error) {
	s, err := e.resolve(moduleKey, table)
	if err != nil || s == nil {
		return nil, err
	}
	if s.PrimaryKey == "" {
		return nil, apperr.Newf(apperr.Validation, "table %s has no primary key", table)
	}

	quotedTable, err := SanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}
	quotedPK, err := SanitizeIdentifier(s.PrimaryKey)
	if err != nil {
		return nil, err
	}

	// Primary-key equality already bounds this to a single row
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quotedTable, quotedPK)
	args := []interface{}{id}
	if s.HasFarmID {
		query += " AND `farm_id` = ?"
		args = append(args, actor.FarmID)
	}

	tx := e.db.WithContext(ctx).Exec(query, args...)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &DeleteResult{Affected: tx.RowsAffected}, nil
}

// Schema exposes the network-safe schema for an allow-listed table, or
// nil when the entity is not configured
func (e *Engine) Schema(moduleKey, table string) (*schema.TableSchema, error) {
	return e.resolve(moduleKey, table)
}

// fetchByID reads one row by primary key with farm scoping applied
func (e *Engine) fetchByID(ctx context.Context, s *schema.TableSchema, actor Actor, id string) (map[string]interface{}, error) {
	quotedTable, err := SanitizeIdentifier(s.Table)
	if err != nil {
		return nil, err
	}
	quotedPK, err := SanitizeIdentifier(s.PrimaryKey)
	if err != nil {
		return nil, err
	}
	selectCols, err := quoteAll(s.ReadableColumns())
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ?",
		strings.Join(selectCols, ", "), quotedTable, quotedPK,
	)
	args := []interface{}{id}
	if s.HasFarmID {
		query += " AND `farm_id` = ?"
		args = append(args, actor.FarmID)
	}
	query += " LIMIT 1"

	var rows []map[string]interface{}
	if err := e.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return normalizeRow(rows[0]), nil
}

// sanitizePayload filters a write body down to coerced writable columns
func sanitizePayload(s *schema.TableSchema, payload map[string]interface{}) map[string]interface{} {
	values := make(map[string]interface{})
	for _, col := range s.WritableColumns() {
		raw, ok := payload[col.Name]
		if !ok {
			continue
		}
		value, keep := CoerceValue(&col, raw)
		if !keep {
			continue
		}
		values[col.Name] = value
	}
	return values
}

func quoteAll(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		quoted, err := SanitizeIdentifier(name)
		if err != nil {
			return nil, err
		}
		out = append(out, quoted)
	}
	return out, nil
}

func totalPages(total int64, size int) int {
	pages := int(math.Ceil(float64(total) / float64(size)))
	if pages < 1 {
		return 1
	}
	return pages
}

// normalizeRows converts driver byte slices to strings so rows marshal
// as text rather than base64
func normalizeRows(rows []map[string]interface{}) []map[string]interface{} {
	for i := range rows {
		rows[i] = normalizeRow(rows[i])
	}
	return rows
}

func normalizeRow(row map[string]interface{}) map[string]interface{} {
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row
}
