// Package valueobject holds small value types shared by entities and storage.
package valueobject

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"maps"
)

// ErrScanUnsupported indicates the database value cannot be decoded into a JSONMap.
var ErrScanUnsupported = errors.New("valueobject: unsupported jsonmap scan value")

// JSONMap is a free-form JSON object stored in a jsonb column.
// @swaggertype object
type JSONMap map[string]any

// Value implements driver.Valuer. A nil map is stored as an empty object.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(j))
}

// Scan implements sql.Scanner.
func (j *JSONMap) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = JSONMap{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case map[string]any:
		*j = maps.Clone(JSONMap(v))
		return nil
	default:
		return ErrScanUnsupported
	}

	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*j = out
	return nil
}

// Set adds or replaces a key.
func (j JSONMap) Set(key string, value any) {
	j[key] = value
}

// GetString returns the value as a string, or "" when missing or of another type.
func (j JSONMap) GetString(key string) string {
	v, _ := j[key].(string)
	return v
}

// GetInt64 returns a numeric value. JSON numbers decode as float64, both forms are accepted.
func (j JSONMap) GetInt64(key string) int64 {
	switch v := j[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// Merge copies every key of other into j, overwriting existing ones.
func (j JSONMap) Merge(other map[string]any) JSONMap {
	if j == nil {
		j = make(JSONMap, len(other))
	}
	maps.Copy(j, other)
	return j
}
