// Package models holds column types and write helpers shared by the record packages.
package models

import (
	"database/sql/driver"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// JSON stores an arbitrary JSON document in a TEXT column.
type JSON []byte

// Scan implements sql.Scanner. SQLite hands TEXT back as string or []byte depending on driver.
func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into JSON", value)
	}

	if !json.Valid(raw) {
		return fmt.Errorf("models: stored value is not valid JSON")
	}
	*j = append((*j)[0:0], raw...)
	return nil
}

// Value implements driver.Valuer
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// MarshalJSON implements the json.Marshaler interface
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("models: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// GormDataType keeps AutoMigrate from picking a blob column.
func (JSON) GormDataType() string {
	return "text"
}

// PerformWrite executes a write transaction with retry logic for SQLite busy errors.
func PerformWrite(logger *slog.Logger, dbConn *gorm.DB, f func(tx *gorm.DB) error) error {
	return sqlite.PerformWrite(logger, dbConn, f)
}
