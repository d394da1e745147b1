package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/service/backup"
	"github.com/igreja/tesouraria/internal/service/birthdays"
	"github.com/igreja/tesouraria/internal/service/reporting"
	"github.com/igreja/tesouraria/internal/service/workspace"
	"github.com/igreja/tesouraria/pkg/clients/identity"
)

// Authenticator is the part of the session the HTTP layer drives.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.User, error)
	SignUp(ctx context.Context, email, password, displayName string) (*auth.User, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut()
	CurrentUser() *auth.User
}

// Deps groups the services exposed over HTTP.
type Deps struct {
	Auth      Authenticator
	Workspace *workspace.Workspace
	Birthdays *birthdays.Service
	Backups   *backup.Service
	Reports   *reporting.Service
	Logger    *zap.Logger
}

// Handler adapts the treasury services to gin.
type Handler struct {
	auth      Authenticator
	workspace *workspace.Workspace
	birthdays *birthdays.Service
	backups   *backup.Service
	reports   *reporting.Service
	logger    *zap.Logger
	now       func() time.Time
}

// NewHandler constructs the HTTP handler adapter.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:      deps.Auth,
		workspace: deps.Workspace,
		birthdays: deps.Birthdays,
		backups:   deps.Backups,
		reports:   deps.Reports,
		logger:    logger,
		now:       time.Now,
	}
}

// Register mounts the auth routes and the authenticated API.
func (h *Handler) Register(r gin.IRouter) {
	a := r.Group("/auth")
	a.POST("/signin", h.SignIn)
	a.POST("/signup", h.SignUp)
	a.POST("/signout", h.SignOut)
	a.POST("/password-reset", h.PasswordReset)
	a.GET("/me", h.Me)

	api := r.Group("/api", h.requireUser)

	register(api, "/expenses", resource[models.Expense, *models.Expense]{h: h, resolve: fixed(h.workspace.Expenses), decode: decodeExpense})
	register(api, "/income", resource[models.Income, *models.Income]{h: h, resolve: fixed(h.workspace.Income), decode: decodeIncome})
	register(api, "/members", resource[models.Member, *models.Member]{h: h, resolve: fixed(h.workspace.Members), decode: decodeMember})
	register(api, "/member-categories", resource[models.Category, *models.Category]{h: h, resolve: fixed(h.workspace.MemberCategories), decode: decodeCategory})
	register(api, "/categories/:kind", resource[models.Category, *models.Category]{h: h, resolve: h.categoriesOf, decode: decodeCategory})

	api.GET("/church", h.GetChurch)
	api.PUT("/church", h.SaveChurch)

	api.GET("/birthdays", h.ListBirthdays)
	api.POST("/birthdays/:memberId/congratulated", h.MarkCongratulated)
	api.DELETE("/birthdays/:memberId/congratulated", h.UnmarkCongratulated)

	api.POST("/backups", h.CreateBackup)
	api.GET("/backups", h.ListBackups)
	api.GET("/backups/download", h.DownloadBackup)
	api.POST("/backups/restore", h.RestoreBackup)

	api.GET("/reports/summary", h.Summary)
	api.GET("/reports/summary.pdf", h.SummaryPDF)
	api.POST("/reports/summary/sheets", h.ExportSummary)
}

func (h *Handler) requireUser(c *gin.Context) {
	if h.auth.CurrentUser() == nil {
		h.fail(c, apperror.AuthRequired(c.Request.Method+" "+c.FullPath()))
		return
	}
	c.Next()
}

// fail writes err as a JSON error body with the matching status.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", c.Request.URL.Path), zap.Int("status", status), zap.Error(err))
	}

	body := gin.H{"error": err.Error()}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Field != "" {
		body["field"] = appErr.Field
	}
	c.AbortWithStatusJSON(status, body)
}

// statusFor maps the error taxonomy onto HTTP. Validation wins over
// everything, and an unauthenticated write reports 401 even though it is
// also a persistence failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrAuthRequired), errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrQuery), errors.Is(err, apperror.ErrPersistence):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// bind decodes the JSON body into dst, reporting binding failures as
// validation errors.
func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperror.ValidationFailed("", "invalid request body: "+err.Error())
	}
	return nil
}
