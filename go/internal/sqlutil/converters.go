package sqlutil

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// ToSqlTime maps the zero time to NULL
func ToSqlTime(val time.Time) sql.NullTime {
	if val.IsZero() {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: val, Valid: true}
}

// FromSqlTime returns nil for NULL
func FromSqlTime(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time
	return &t
}

func FromSqlString(val sql.NullString, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}

// ToRawMessage maps empty JSON to NULL so jsonb columns stay unset
func ToRawMessage(val json.RawMessage) pqtype.NullRawMessage {
	if len(val) == 0 {
		return pqtype.NullRawMessage{Valid: false}
	}
	return pqtype.NullRawMessage{RawMessage: val, Valid: true}
}

func FromRawMessage(val pqtype.NullRawMessage) json.RawMessage {
	if !val.Valid {
		return nil
	}
	return val.RawMessage
}
