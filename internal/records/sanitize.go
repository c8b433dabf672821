package records

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agrivo/farmcore/internal/apperr"
	"github.com/agrivo/farmcore/internal/schema"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SanitizeIdentifier validates and backtick-quotes a dynamic table or
// column name. This runs before any identifier is concatenated into a
// query string and is the sole injection defense for dynamic names.
func SanitizeIdentifier(name string) (string, error) {
	if name == "" || !identifierPattern.MatchString(name) {
		return "", apperr.Newf(apperr.Validation, "invalid identifier %q", name)
	}
	return "`" + name + "`", nil
}

// CoerceValue validates and converts a raw JSON value against a column.
// The second return value reports whether the column should be kept in
// the operation; a dropped column is silently omitted rather than
// failing the whole write.
func CoerceValue(col *schema.Column, raw interface{}) (interface{}, bool) {
	if raw == nil {
		if col.Nullable {
			return nil, true
		}
		return passthroughNonNullable(col, raw), true
	}

	// Enumerated columns match case-insensitively against the allowed
	// set; a miss drops the column from the write.
	if len(col.EnumValues) > 0 {
		s := stringify(raw)
		for _, allowed := range col.EnumValues {
			if strings.EqualFold(s, allowed) {
				return allowed, true
			}
		}
		return nil, false
	}

	switch col.Type {
	case schema.FieldNumber:
		return coerceNumber(col, raw), true
	case schema.FieldDecimal:
		return coerceDecimal(raw), true
	case schema.FieldDate:
		if s, ok := raw.(string); ok && len(s) > 10 {
			return s[:10], true
		}
		return raw, true
	case schema.FieldJSON:
		if _, ok := raw.(string); ok {
			return raw, true
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return raw, true
		}
		return string(b), true
	default:
		return raw, true
	}
}

// passthroughNonNullable is the policy for a null arriving at a
// non-nullable column: the raw value passes through unchanged and the
// store decides. Kept as a single function so the policy can be
// tightened without touching call sites.
func passthroughNonNullable(_ *schema.Column, raw interface{}) interface{} {
	return raw
}

// isBooleanShaped reports whether a column is a tinyint(1) flag
func isBooleanShaped(col *schema.Column) bool {
	return strings.HasPrefix(strings.ToLower(col.ColumnType), "tinyint(1)")
}

func coerceNumber(col *schema.Column, raw interface{}) interface{} {
	if b, ok := raw.(bool); ok && isBooleanShaped(col) {
		if b {
			return 1
		}
		return 0
	}

	switch v := raw.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int64(f)
		}
	}
	return raw
}

func coerceDecimal(raw interface{}) interface{} {
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return raw
}

func stringify(raw interface{}) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", raw)
}
