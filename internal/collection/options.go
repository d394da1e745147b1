package collection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/metrics"
	"github.com/igreja/tesouraria/internal/repository"
)

// DefaultReconcileDelay is how long after a create the collection waits
// before refetching from the store.
const DefaultReconcileDelay = time.Second

// RecordPtr constrains the pointer type of a synced record.
type RecordPtr[T any] interface {
	*T
	models.Record
}

// Options configures one synced collection.
type Options[T any] struct {
	// Name is the remote collection.
	Name string
	// Order is the server-side order of the primary query.
	Order repository.Sort
	// Less must order records the same way Order does. It is applied
	// client-side when the ordered query fails.
	Less func(a, b *T) bool
	// ReconcileDelay defaults to DefaultReconcileDelay.
	ReconcileDelay time.Duration
	// OnCreate runs after every successful create. It must not fail the
	// create, so it has no error to return.
	OnCreate func(ctx context.Context, record T)

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// ByTime builds a comparator over a timestamp field.
func ByTime[T any](key func(*T) time.Time, descending bool) func(a, b *T) bool {
	return func(a, b *T) bool {
		if descending {
			return key(a).After(key(b))
		}
		return key(a).Before(key(b))
	}
}

// ByDate builds a comparator over a calendar date field.
func ByDate[T any](key func(*T) models.Date, descending bool) func(a, b *T) bool {
	return func(a, b *T) bool {
		if descending {
			return key(a).After(key(b))
		}
		return key(a).Before(key(b))
	}
}
