package models

import "time"

// Record is the contract every synced document fulfils.
type Record interface {
	GetID() string
	SetID(id string)
	GetOwnerID() string
	SetOwnerID(ownerID string)
	GetCreatedAt() time.Time
	SetCreatedAt(t time.Time)
	Validate() error
}

// Defaulter is implemented by records that fill unset fields on creation.
type Defaulter interface {
	ApplyDefaults(now time.Time)
}

// Base holds the fields shared by all owner-scoped documents.
type Base struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	OwnerID   string    `bson:"ownerId" json:"ownerId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

func (b Base) GetID() string { return b.ID }
func (b *Base) SetID(id string) { b.ID = id }
func (b Base) GetOwnerID() string { return b.OwnerID }
func (b *Base) SetOwnerID(ownerID string) { b.OwnerID = ownerID }
func (b Base) GetCreatedAt() time.Time { return b.CreatedAt }
func (b *Base) SetCreatedAt(t time.Time) { b.CreatedAt = t }
