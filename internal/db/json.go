package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Entity list columns are always read and written as explicit JSON text.
// Only the declared column type varies, and it is chosen by configuration
// (ENTITY_JSON_MODE), never inferred from the active database backend.
var entityJSONColumnType = "jsonb"

func SetEntityJSONMode(mode string) error {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	switch normalized {
	case "jsonb", "text":
		entityJSONColumnType = normalized
		return nil
	default:
		return fmt.Errorf("unsupported entity JSON mode %q", mode)
	}
}

// StringList stores a list of strings as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	encoded, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return string(encoded), nil
}

func (l *StringList) Scan(value any) error {
	if l == nil {
		return fmt.Errorf("scan into nil StringList")
	}
	if value == nil {
		*l = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported string list source type %T", value)
	}

	if len(raw) == 0 {
		*l = nil
		return nil
	}

	var decoded []string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = decoded
	return nil
}

func (StringList) GormDBDataType(*gorm.DB, *schema.Field) string {
	return entityJSONColumnType
}

// JSONText stores an arbitrary JSON document as a raw column.
type JSONText json.RawMessage

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	if !json.Valid(j) {
		return nil, fmt.Errorf("invalid JSON document")
	}
	return string(j), nil
}

func (j *JSONText) Scan(value any) error {
	if j == nil {
		return fmt.Errorf("scan into nil JSONText")
	}
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append(JSONText(nil), v...)
	case string:
		*j = JSONText(v)
	default:
		return fmt.Errorf("unsupported JSON source type %T", value)
	}
	return nil
}

func (JSONText) GormDBDataType(*gorm.DB, *schema.Field) string {
	return entityJSONColumnType
}
