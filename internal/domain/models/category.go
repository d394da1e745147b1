package models

import (
	"strings"

	"github.com/igreja/tesouraria/internal/apperror"
)

// Category is a user-defined label: expense categories, payment methods,
// offering types and member categories all share this shape.
type Category struct {
	Base `bson:",inline"`
	Name string `bson:"name" json:"name"`
}

func (c *Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return apperror.ValidationFailed("name", "name is required")
	}
	return nil
}
