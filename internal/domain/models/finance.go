package models

import (
	"strings"
	"time"

	"github.com/igreja/tesouraria/internal/apperror"
)

// ExpenseStatus tracks whether an expense was settled.
type ExpenseStatus string

const (
	ExpensePaid    ExpenseStatus = "pago"
	ExpensePending ExpenseStatus = "pendente"
	ExpenseOverdue ExpenseStatus = "vencido"
)

// Valid reports whether s is one of the known statuses.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case ExpensePaid, ExpensePending, ExpenseOverdue:
		return true
	}
	return false
}

// Income is a tithe, offering or donation ("receita").
type Income struct {
	Base            `bson:",inline"`
	Description     string `bson:"description" json:"description"`
	Category        string `bson:"category" json:"category"`
	Amount          Amount `bson:"amount" json:"amount"`
	Date            Date   `bson:"date" json:"date"`
	PaymentMethod   string `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Notes           string `bson:"notes,omitempty" json:"notes,omitempty"`
	ContributorName string `bson:"contributorName,omitempty" json:"contributorName,omitempty"`
}

func (r *Income) Validate() error {
	return validateFinancial(r.Description, r.Category, r.Amount, r.Date)
}

// Expense is an outgoing payment ("despesa").
type Expense struct {
	Base        `bson:",inline"`
	Description string        `bson:"description" json:"description"`
	Category    string        `bson:"category" json:"category"`
	Amount      Amount        `bson:"amount" json:"amount"`
	Date        Date          `bson:"date" json:"date"`
	Status      ExpenseStatus `bson:"status" json:"status"`
}

func (e *Expense) Validate() error {
	if err := validateFinancial(e.Description, e.Category, e.Amount, e.Date); err != nil {
		return err
	}
	if !e.Status.Valid() {
		return apperror.ValidationFailed("status", "status must be one of pago, pendente, vencido")
	}
	return nil
}

// ApplyDefaults marks new expenses as pending unless told otherwise.
func (e *Expense) ApplyDefaults(time.Time) {
	if e.Status == "" {
		e.Status = ExpensePending
	}
}

func validateFinancial(description, category string, amount Amount, date Date) error {
	switch {
	case strings.TrimSpace(description) == "":
		return apperror.ValidationFailed("description", "description is required")
	case strings.TrimSpace(category) == "":
		return apperror.ValidationFailed("category", "category is required")
	case amount.Negative():
		return apperror.ValidationFailed("amount", "amount must not be negative")
	case date.IsZero():
		return apperror.ValidationFailed("date", "date is required")
	}
	return nil
}
