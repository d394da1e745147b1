package collection

import (
	"context"
	"errors"
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

// Profile syncs the single church profile document of the current owner,
// stored under the owner id.
type Profile struct {
	store   repository.DocumentStore
	auth    auth.Source
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	ops sync.Mutex

	mu      sync.RWMutex
	current *models.ChurchProfile
	loading bool

	unsubscribe func()
}

// NewProfile builds the profile sync and starts following the session.
func NewProfile(store repository.DocumentStore, source auth.Source, m *metrics.Metrics, logger *zap.Logger) *Profile {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Profile{
		store:   store,
		auth:    source,
		logger:  logger.With(zap.String("collection", repository.CollectionChurchProfile)),
		metrics: m,
		now:     time.Now,
	}
	p.unsubscribe = source.Subscribe(func(*auth.User) {
		ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
		defer cancel()
		if _, err := p.Load(ctx); err != nil {
			p.logger.Warn("profile load after auth change failed", zap.Error(err))
		}
	})
	return p
}

// Current returns a copy of the cached profile, or nil if none exists.
func (p *Profile) Current() *models.ChurchProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	out := *p.current
	return &out
}

// Loading reports whether a load is in flight.
func (p *Profile) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading
}

// Load reads the profile from the store. A missing document is not an
// error: the owner simply has not configured the church yet.
func (p *Profile) Load(ctx context.Context) (*models.ChurchProfile, error) {
	p.ops.Lock()
	defer p.ops.Unlock()

	user := p.auth.CurrentUser()
	if user == nil {
		p.set(nil)
		return nil, nil
	}

	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	profile, err := p.fetch(ctx, user.ID)
	p.metrics.ObserveQuery(repository.CollectionChurchProfile, queryPrimary, err)

	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()

	if err != nil {
		return nil, apperror.Query(repository.CollectionChurchProfile, err)
	}
	p.set(profile)
	return p.Current(), nil
}

// Save upserts the profile. The creation time of an existing profile is
// kept; the update time is always refreshed.
func (p *Profile) Save(ctx context.Context, input models.ChurchProfile) (*models.ChurchProfile, error) {
	user := p.auth.CurrentUser()
	if user == nil {
		return nil, apperror.Persistence("save", repository.CollectionChurchProfile, apperror.AuthRequired("save"))
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	p.ops.Lock()
	defer p.ops.Unlock()

	now := p.now()
	profile := input
	profile.ID = user.ID
	profile.OwnerID = user.ID
	profile.UpdatedAt = now
	profile.CreatedAt = now

	if existing := p.Current(); existing != nil && existing.OwnerID == user.ID {
		profile.CreatedAt = existing.CreatedAt
	} else if stored, err := p.fetch(ctx, user.ID); err == nil && stored != nil {
		profile.CreatedAt = stored.CreatedAt
	}

	err := p.store.Put(ctx, repository.CollectionChurchProfile, user.ID, &profile)
	p.metrics.ObserveMutation(repository.CollectionChurchProfile, "save", err)
	if err != nil {
		p.logger.Error("profile save failed", zap.Error(err))
		return nil, apperror.Persistence("save", repository.CollectionChurchProfile, err)
	}

	p.set(&profile)
	return p.Current(), nil
}

// Close stops following the session.
func (p *Profile) Close() {
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
}

func (p *Profile) fetch(ctx context.Context, ownerID string) (*models.ChurchProfile, error) {
	raw, err := p.store.Get(ctx, repository.CollectionChurchProfile, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profile models.ChurchProfile
	if err := bson.Unmarshal(raw, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (p *Profile) set(profile *models.ChurchProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = profile
}
