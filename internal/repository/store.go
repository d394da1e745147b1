package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names used by the console.
const (
	CollectionExpenses         = "despesas"
	CollectionIncome           = "receitas"
	CollectionMembers          = "membros"
	CollectionMemberCategories = "memberCategories"
	CollectionChurchProfile    = "igrejaConfig"
	CollectionCongratulated    = "parabenizados"
	CollectionBirthdayNotices  = "notificacoes_aniversario"
)

// Field names shared by every owner-scoped document.
const (
	FieldID        = "_id"
	FieldOwnerID   = "ownerId"
	FieldCreatedAt = "createdAt"
)

// ErrNotFound is returned when a keyed document, or an owner-scoped
// document targeted by an update or delete, does not exist.
var ErrNotFound = errors.New("document not found")

// Filter is a conjunction of equality conditions.
type Filter map[string]any

// OwnedBy scopes a query to a single owner.
func OwnedBy(ownerID string) Filter {
	return Filter{FieldOwnerID: ownerID}
}

// Sort describes a server-side order on one field.
type Sort struct {
	Field      string
	Descending bool
}

// DocumentStore is the remote document database boundary.
type DocumentStore interface {
	// Find returns every document matching filter, ordered by sort when
	// it is non-nil. Stores may reject ordered queries (missing index).
	Find(ctx context.Context, collection string, filter Filter, sort *Sort) ([]bson.Raw, error)
	// Insert persists doc and returns the store-assigned id.
	Insert(ctx context.Context, collection string, doc any) (string, error)
	// UpdateFields sets the given fields on the document with id, provided
	// it also matches scope.
	UpdateFields(ctx context.Context, collection, id string, scope Filter, fields map[string]any) error
	// Delete removes the document with id, provided it also matches scope.
	Delete(ctx context.Context, collection, id string, scope Filter) error
	// Get loads a document stored under a caller-chosen key.
	Get(ctx context.Context, collection, key string) (bson.Raw, error)
	// Put creates or replaces the document stored under key.
	Put(ctx context.Context, collection, key string, doc any) error
}
