package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector is an embedding column. It uses the pgvector text form "[1,2,3]",
// stored as a native vector on postgres and as text elsewhere.
type Vector []float32

func (v Vector) Value() (driver.Value, error) {
	return pgvector.NewVector(v).Value()
}

func (v *Vector) Scan(src interface{}) error {
	var pv pgvector.Vector
	if err := pv.Scan(src); err != nil {
		return fmt.Errorf("scan vector failed: %w", err)
	}
	*v = pv.Slice()
	return nil
}

func (Vector) GormDataType() string {
	return "vector"
}

func (Vector) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		if field.Size > 0 {
			return fmt.Sprintf("vector(%d)", field.Size)
		}
		return "vector"
	case "mysql":
		return "longtext"
	default:
		return "text"
	}
}
