package sqlutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

// Helpers for converting between Go values and nullable column types

// FromSqlString converts sql.NullString to Go string with default
func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// ToNullJSON marshals v into a JSONB parameter. A nil v is NULL.
func ToNullJSON(v interface{}) (pqtype.NullRawMessage, error) {
	if v == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal json column: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

// FromNullJSON unmarshals a JSONB column into v, leaving v untouched when NULL
func FromNullJSON(val pqtype.NullRawMessage, v interface{}) error {
	if !val.Valid || len(val.RawMessage) == 0 {
		return nil
	}
	if err := json.Unmarshal(val.RawMessage, v); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
