package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/collection"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/metrics"
	"github.com/igreja/tesouraria/internal/repository"
	"github.com/igreja/tesouraria/internal/service/notification"
)

type (
	Expenses   = collection.Collection[models.Expense, *models.Expense]
	Income     = collection.Collection[models.Income, *models.Income]
	Members    = collection.Collection[models.Member, *models.Member]
	Categories = collection.Collection[models.Category, *models.Category]
)

// CategoryKind names a family of custom categories. Each kind lives in
// its own remote collection.
type CategoryKind string

const (
	ExpenseCategories CategoryKind = "despesaCategories"
	IncomeCategories  CategoryKind = "receitaCategories"
	PaymentMethods    CategoryKind = "paymentMethods"
	OfferingTypes     CategoryKind = "ofertaTypes"
)

// CategoryKinds lists the kinds accepted by Categories.
var CategoryKinds = []CategoryKind{ExpenseCategories, IncomeCategories, PaymentMethods, OfferingTypes}

var (
	byCreatedDesc  = repository.Sort{Field: repository.FieldCreatedAt, Descending: true}
	byCreatedAsc   = repository.Sort{Field: repository.FieldCreatedAt}
	byRegistration = repository.Sort{Field: "registrationDate", Descending: true}
)

// Deps are the collaborators shared by every synced collection.
type Deps struct {
	Store          repository.DocumentStore
	Session        auth.Source
	Notifier       notification.Notifier
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	ReconcileDelay time.Duration
}

// Workspace owns the synced collections of one console process.
type Workspace struct {
	deps Deps

	Expenses         *Expenses
	Income           *Income
	Members          *Members
	MemberCategories *Categories
	Profile          *collection.Profile

	mu         sync.Mutex
	categories map[CategoryKind]*Categories
}

// New builds the collections. Named categories are created on first use.
func New(deps Deps) *Workspace {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	w := &Workspace{
		deps:       deps,
		categories: make(map[CategoryKind]*Categories),
	}

	w.Expenses = collection.New[models.Expense](deps.Store, deps.Session, collection.Options[models.Expense]{
		Name:           repository.CollectionExpenses,
		Order:          byCreatedDesc,
		Less:           collection.ByTime(func(e *models.Expense) time.Time { return e.CreatedAt }, true),
		ReconcileDelay: deps.ReconcileDelay,
		OnCreate: func(ctx context.Context, e models.Expense) {
			w.notify(ctx, "Nova despesa registrada", e.Amount, e.Category, "nova-despesa")
		},
		Logger:  deps.Logger.Named("sync.despesas"),
		Metrics: deps.Metrics,
	})

	w.Income = collection.New[models.Income](deps.Store, deps.Session, collection.Options[models.Income]{
		Name:           repository.CollectionIncome,
		Order:          byCreatedDesc,
		Less:           collection.ByTime(func(r *models.Income) time.Time { return r.CreatedAt }, true),
		ReconcileDelay: deps.ReconcileDelay,
		OnCreate: func(ctx context.Context, r models.Income) {
			w.notify(ctx, "Nova receita registrada", r.Amount, r.Category, "nova-receita")
		},
		Logger:  deps.Logger.Named("sync.receitas"),
		Metrics: deps.Metrics,
	})

	w.Members = collection.New[models.Member](deps.Store, deps.Session, collection.Options[models.Member]{
		Name:           repository.CollectionMembers,
		Order:          byRegistration,
		Less:           collection.ByDate(func(m *models.Member) models.Date { return m.RegistrationDate }, true),
		ReconcileDelay: deps.ReconcileDelay,
		Logger:         deps.Logger.Named("sync.membros"),
		Metrics:        deps.Metrics,
	})

	w.MemberCategories = w.newCategories(repository.CollectionMemberCategories)
	w.Profile = collection.NewProfile(deps.Store, deps.Session, deps.Metrics, deps.Logger.Named("sync.igrejaConfig"))
	return w
}

// Categories returns the collection for kind, creating it on first use.
func (w *Workspace) Categories(kind CategoryKind) (*Categories, error) {
	if !validKind(kind) {
		return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown category kind %q", kind))
	}

	w.mu.Lock()
	if c, ok := w.categories[kind]; ok {
		w.mu.Unlock()
		return c, nil
	}
	c := w.newCategories(string(kind))
	w.categories[kind] = c
	w.mu.Unlock()

	// Loaded outside w.mu so a slow kind does not hold up the others.
	if w.deps.Session.CurrentUser() != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Refresh(ctx); err != nil {
			w.deps.Logger.Warn("initial category load failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return c, nil
}

// Orders lists the server-side order of every collection, for index
// provisioning.
func Orders() map[string]repository.Sort {
	orders := map[string]repository.Sort{
		repository.CollectionExpenses:         byCreatedDesc,
		repository.CollectionIncome:           byCreatedDesc,
		repository.CollectionMembers:          byRegistration,
		repository.CollectionMemberCategories: byCreatedAsc,
	}
	for _, kind := range CategoryKinds {
		orders[string(kind)] = byCreatedAsc
	}
	return orders
}

// Close stops every collection from following the session and cancels
// pending reconciliations.
func (w *Workspace) Close() {
	w.Expenses.Close()
	w.Income.Close()
	w.Members.Close()
	w.MemberCategories.Close()
	w.Profile.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.categories {
		c.Close()
	}
}

func (w *Workspace) newCategories(name string) *Categories {
	return collection.New[models.Category](w.deps.Store, w.deps.Session, collection.Options[models.Category]{
		Name:           name,
		Order:          byCreatedAsc,
		Less:           collection.ByTime(func(c *models.Category) time.Time { return c.CreatedAt }, false),
		ReconcileDelay: w.deps.ReconcileDelay,
		Logger:         w.deps.Logger.Named("sync." + name),
		Metrics:        w.deps.Metrics,
	})
}

func (w *Workspace) notify(ctx context.Context, title string, amount models.Amount, category, tag string) {
	if w.deps.Notifier == nil {
		return
	}
	w.deps.Notifier.Send(ctx, notification.Notification{
		Title: title,
		Body:  fmt.Sprintf("%s em %s", amount.BRL(), category),
		Tag:   tag,
	})
}

func validKind(kind CategoryKind) bool {
	for _, k := range CategoryKinds {
		if k == kind {
			return true
		}
	}
	return false
}
