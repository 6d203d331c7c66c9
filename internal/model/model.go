package model

import "time"

type (
	// A Model is a record persisted in the database.
	Model interface {
		GetID() string
		SetID(id string)
		GetCreatedAt() time.Time
		SetCreatedAt(t time.Time)
		SetUpdatedAt(t time.Time)
	}

	// Base holds the fields shared by all the records.
	Base struct {
		ID        string    `json:"id"         storm:"id"`
		CreatedAt time.Time `json:"created_at" storm:"index"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

// GetID returns the record's identifier.
func (m *Base) GetID() string {
	return m.ID
}

// SetID sets the record's identifier.
func (m *Base) SetID(id string) {
	m.ID = id
}

// GetCreatedAt returns the creation date.
func (m *Base) GetCreatedAt() time.Time {
	return m.CreatedAt
}

// SetCreatedAt sets the creation date.
func (m *Base) SetCreatedAt(t time.Time) {
	m.CreatedAt = t
}

// SetUpdatedAt sets the last modification date.
func (m *Base) SetUpdatedAt(t time.Time) {
	m.UpdatedAt = t
}
