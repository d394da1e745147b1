package models

import (
	"strings"
	"time"

	"github.com/igreja/tesouraria/internal/apperror"
)

// MemberStatus is the membership state of a person.
type MemberStatus string

const (
	MemberActive   MemberStatus = "ativo"
	MemberInactive MemberStatus = "inativo"
	MemberVisitor  MemberStatus = "visitante"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberInactive, MemberVisitor:
		return true
	}
	return false
}

// Member is a person registered in the church ("membro").
type Member struct {
	Base             `bson:",inline"`
	Name             string       `bson:"name" json:"name"`
	Email            string       `bson:"email,omitempty" json:"email,omitempty"`
	Phone            string       `bson:"phone,omitempty" json:"phone,omitempty"`
	Address          string       `bson:"address,omitempty" json:"address,omitempty"`
	BirthDate        *Date        `bson:"birthDate,omitempty" json:"birthDate,omitempty"`
	RegistrationDate Date         `bson:"registrationDate" json:"registrationDate"`
	Status           MemberStatus `bson:"status" json:"status"`
	Notes            string       `bson:"notes,omitempty" json:"notes,omitempty"`
	Category         string       `bson:"category,omitempty" json:"category,omitempty"`
}

func (m *Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return apperror.ValidationFailed("name", "name is required")
	}
	if !m.Status.Valid() {
		return apperror.ValidationFailed("status", "status must be one of ativo, inativo, visitante")
	}
	return nil
}

// ApplyDefaults sets the registration date to the creation day and the
// status to active when the caller left them empty.
func (m *Member) ApplyDefaults(now time.Time) {
	if m.RegistrationDate.IsZero() {
		m.RegistrationDate = DateOf(now)
	}
	if m.Status == "" {
		m.Status = MemberActive
	}
}
