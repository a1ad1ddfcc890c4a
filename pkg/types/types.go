package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom type that can handle JSON serialization for both PostgreSQL and SQLite
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for GORM
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for GORM
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// MediaItem represents one photo or video ingested into the storage backend
type MediaItem struct {
	ID          uuid.UUID `json:"id" gorm:"primaryKey"`
	Filename    string    `json:"filename" gorm:"not null"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	BackendID   string    `json:"backend_id" gorm:"uniqueIndex;not null"`
	UploadID    string    `json:"upload_id" gorm:"index"`
	UploadedBy  string    `json:"uploaded_by"`
	Metadata    JSONMap   `json:"metadata" gorm:"serializer:json"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the media item ID
func (m *MediaItem) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// GuestMessage represents a guest-book entry left by a wedding guest
type GuestMessage struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey"`
	Author    string    `json:"author" gorm:"not null"`
	Message   string    `json:"message" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate generates a UUID for the message ID
func (g *GuestMessage) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
