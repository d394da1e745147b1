package collection

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/metrics"
	"github.com/igreja/tesouraria/internal/repository"
)

const (
	queryPrimary  = "primary"
	queryFallback = "fallback"

	refetchTimeout = 30 * time.Second
)

// Collection mirrors one owner-scoped remote collection in memory.
//
// Reads replace the local cache wholesale. Creates prepend optimistically
// and schedule a debounced refetch; updates and deletes are reflected only
// after the store confirms them. Operations on one Collection are
// serialized, but separate Collections never share a cache.
type Collection[T any, P RecordPtr[T]] struct {
	store   repository.DocumentStore
	auth    auth.Source
	opts    Options[T]
	logger  *zap.Logger
	metrics *metrics.Metrics
	fields  map[string]bool
	now     func() time.Time

	ops sync.Mutex

	mu      sync.RWMutex
	items   []T
	loading bool
	lastErr error

	reconciler  *reconciler
	unsubscribe func()
}

// New builds a collection and starts following the session: signing out
// empties the cache, signing in refreshes it.
func New[T any, P RecordPtr[T]](store repository.DocumentStore, source auth.Source, opts Options[T]) *Collection[T, P] {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReconcileDelay <= 0 {
		opts.ReconcileDelay = DefaultReconcileDelay
	}

	c := &Collection[T, P]{
		store:   store,
		auth:    source,
		opts:    opts,
		logger:  logger.With(zap.String("collection", opts.Name)),
		metrics: opts.Metrics,
		fields:  fieldNames(reflect.TypeOf((*T)(nil))),
		now:     time.Now,
	}
	c.reconciler = newReconciler(opts.ReconcileDelay, c.reconcile)
	c.unsubscribe = source.Subscribe(c.onAuthChanged)
	return c
}

// Name returns the remote collection name.
func (c *Collection[T, P]) Name() string {
	return c.opts.Name
}

// Items returns a snapshot of the local cache.
func (c *Collection[T, P]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Get looks a record up in the local cache.
func (c *Collection[T, P]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.items {
		if P(&c.items[i]).GetID() == id {
			return c.items[i], true
		}
	}
	var zero T
	return zero, false
}

// Loading reports whether a refresh is in flight.
func (c *Collection[T, P]) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Err returns the error of the last failed refresh, cleared by the next
// successful one.
func (c *Collection[T, P]) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Refresh reads the whole collection for the current owner and replaces
// the cache. If both the ordered and the unordered query fail the cache
// is left as it was.
func (c *Collection[T, P]) Refresh(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()
	return c.refresh(ctx)
}

func (c *Collection[T, P]) refresh(ctx context.Context) error {
	user := c.auth.CurrentUser()
	if user == nil {
		c.mu.Lock()
		c.items = nil
		c.loading = false
		c.lastErr = nil
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	items, err := c.query(ctx, user.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false
	if err != nil {
		c.lastErr = err
		return err
	}
	c.items = items
	c.lastErr = nil
	return nil
}

func (c *Collection[T, P]) query(ctx context.Context, ownerID string) ([]T, error) {
	filter := repository.OwnedBy(ownerID)

	docs, err := c.store.Find(ctx, c.opts.Name, filter, &c.opts.Order)
	c.metrics.ObserveQuery(c.opts.Name, queryPrimary, err)
	if err == nil {
		items, err := c.decode(docs, ownerID)
		if err != nil {
			return nil, apperror.Query(c.opts.Name, err)
		}
		return items, nil
	}

	c.logger.Warn("ordered query failed, retrying without order", zap.Error(err))

	docs, fallbackErr := c.store.Find(ctx, c.opts.Name, filter, nil)
	c.metrics.ObserveQuery(c.opts.Name, queryFallback, fallbackErr)
	if fallbackErr != nil {
		c.logger.Error("unordered query failed", zap.Error(fallbackErr))
		return nil, apperror.Query(c.opts.Name, errors.Join(err, fallbackErr))
	}

	items, decodeErr := c.decode(docs, ownerID)
	if decodeErr != nil {
		return nil, apperror.Query(c.opts.Name, decodeErr)
	}
	// Stable, so records the comparator considers equal keep the order
	// the store returned them in.
	sort.SliceStable(items, func(i, j int) bool {
		return c.opts.Less(&items[i], &items[j])
	})
	return items, nil
}

func (c *Collection[T, P]) decode(docs []bson.Raw, ownerID string) ([]T, error) {
	items := make([]T, 0, len(docs))
	seen := make(map[string]bool, len(docs))

	for _, doc := range docs {
		var item T
		if err := bson.Unmarshal(doc, &item); err != nil {
			return nil, err
		}
		p := P(&item)
		if p.GetOwnerID() != ownerID {
			c.logger.Error("store returned a foreign record", zap.String("id", p.GetID()))
			continue
		}
		if seen[p.GetID()] {
			continue
		}
		seen[p.GetID()] = true
		items = append(items, item)
	}
	return items, nil
}

// Create stamps the owner and creation time on input, persists it and
// prepends it to the cache.
func (c *Collection[T, P]) Create(ctx context.Context, input T) (T, error) {
	var zero T

	c.ops.Lock()
	user := c.auth.CurrentUser()
	if user == nil {
		c.ops.Unlock()
		err := apperror.Persistence("create", c.opts.Name, apperror.AuthRequired("create"))
		c.metrics.ObserveMutation(c.opts.Name, "create", err)
		return zero, err
	}

	record := input
	p := P(&record)
	now := c.now()
	p.SetID("")
	p.SetOwnerID(user.ID)
	p.SetCreatedAt(now)
	if d, ok := any(p).(models.Defaulter); ok {
		d.ApplyDefaults(now)
	}
	if err := p.Validate(); err != nil {
		c.ops.Unlock()
		return zero, err
	}

	id, err := c.store.Insert(ctx, c.opts.Name, p)
	c.metrics.ObserveMutation(c.opts.Name, "create", err)
	if err != nil {
		c.ops.Unlock()
		c.logger.Error("create failed", zap.Error(err))
		return zero, apperror.Persistence("create", c.opts.Name, err)
	}
	p.SetID(id)

	c.mu.Lock()
	items := make([]T, 0, len(c.items)+1)
	items = append(items, record)
	for _, item := range c.items {
		if P(&item).GetID() != id {
			items = append(items, item)
		}
	}
	c.items = items
	c.mu.Unlock()
	c.ops.Unlock()

	c.reconciler.request()

	if c.opts.OnCreate != nil {
		c.opts.OnCreate(ctx, record)
	}
	return record, nil
}

// Update writes patch to the store and, once confirmed, merges it into the
// cached record. The merged result must validate; records missing from the
// cache are loaded from the store first.
func (c *Collection[T, P]) Update(ctx context.Context, id string, patch Patch) error {
	fields, err := normalizePatch[T](patch, c.fields)
	if err != nil {
		return err
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	user := c.auth.CurrentUser()
	if user == nil {
		err := apperror.Persistence("update", c.opts.Name, apperror.AuthRequired("update"))
		c.metrics.ObserveMutation(c.opts.Name, "update", err)
		return err
	}

	current, cached := c.Get(id)
	if !cached {
		current, err = c.load(ctx, id, user.ID)
		if err != nil {
			c.metrics.ObserveMutation(c.opts.Name, "update", err)
			return err
		}
	}

	merged, err := mergeRecord(current, fields)
	if err != nil {
		return apperror.ValidationFailed("", err.Error())
	}
	if err := P(&merged).Validate(); err != nil {
		return err
	}

	err = c.store.UpdateFields(ctx, c.opts.Name, id, repository.OwnedBy(user.ID), fields)
	c.metrics.ObserveMutation(c.opts.Name, "update", err)
	if err != nil {
		c.logger.Error("update failed", zap.String("id", id), zap.Error(err))
		return apperror.Persistence("update", c.opts.Name, notFoundAware(c.opts.Name, id, err))
	}

	if cached {
		c.replace(id, merged)
	}
	return nil
}

// load reads one record straight from the store. Records of another owner
// are reported as missing.
func (c *Collection[T, P]) load(ctx context.Context, id, ownerID string) (T, error) {
	var record T

	raw, err := c.store.Get(ctx, c.opts.Name, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return record, apperror.Persistence("update", c.opts.Name, notFoundAware(c.opts.Name, id, err))
		}
		return record, apperror.Query(c.opts.Name, err)
	}
	if err := bson.Unmarshal(raw, &record); err != nil {
		return record, apperror.Query(c.opts.Name, err)
	}
	if P(&record).GetOwnerID() != ownerID {
		return record, apperror.Persistence("update", c.opts.Name, notFoundAware(c.opts.Name, id, repository.ErrNotFound))
	}
	return record, nil
}

// Delete removes the record from the store and then from the cache.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	user := c.auth.CurrentUser()
	if user == nil {
		err := apperror.Persistence("delete", c.opts.Name, apperror.AuthRequired("delete"))
		c.metrics.ObserveMutation(c.opts.Name, "delete", err)
		return err
	}

	err := c.store.Delete(ctx, c.opts.Name, id, repository.OwnedBy(user.ID))
	c.metrics.ObserveMutation(c.opts.Name, "delete", err)
	if err != nil {
		c.logger.Error("delete failed", zap.String("id", id), zap.Error(err))
		return apperror.Persistence("delete", c.opts.Name, notFoundAware(c.opts.Name, id, err))
	}

	c.mu.Lock()
	items := make([]T, 0, len(c.items))
	for _, item := range c.items {
		if P(&item).GetID() != id {
			items = append(items, item)
		}
	}
	c.items = items
	c.mu.Unlock()
	return nil
}

// Close cancels a pending reconciliation and stops following the session.
func (c *Collection[T, P]) Close() {
	c.reconciler.stop()
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

func (c *Collection[T, P]) replace(id string, record T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if P(&c.items[i]).GetID() == id {
			c.items[i] = record
		}
	}
}

func (c *Collection[T, P]) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	err := c.Refresh(ctx)
	c.metrics.ObserveReconciliation(c.opts.Name, err)
	if err != nil {
		c.logger.Warn("reconciliation refetch failed", zap.Error(err))
	}
}

func (c *Collection[T, P]) onAuthChanged(_ *auth.User) {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()

	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after auth change failed", zap.Error(err))
	}
}

func notFoundAware(collection, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errors.Join(apperror.NotFound(collection, id), err)
	}
	return err
}
