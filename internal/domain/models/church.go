package models

import (
	"strings"
	"time"

	"github.com/igreja/tesouraria/internal/apperror"
)

// ChurchProfile is the per-owner configuration document, keyed by the
// owner id itself.
type ChurchProfile struct {
	ID          string    `bson:"_id,omitempty" json:"-"`
	Name        string    `bson:"name" json:"name"`
	Address     string    `bson:"address" json:"address"`
	Phone       string    `bson:"phone" json:"phone"`
	Email       string    `bson:"email" json:"email"`
	PastorName  string    `bson:"pastorName" json:"pastorName"`
	TaxID       string    `bson:"taxId" json:"taxId"`
	Description string    `bson:"description" json:"description"`
	OwnerID     string    `bson:"ownerId" json:"ownerId"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (p *ChurchProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperror.ValidationFailed("name", "church name is required")
	}
	return nil
}
