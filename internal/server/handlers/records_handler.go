package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/collection"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/service/workspace"
)

type listResponse[T any] struct {
	Items   []T    `json:"items"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// resource serves the CRUD routes of one synced collection.
type resource[T any, P collection.RecordPtr[T]] struct {
	h       *Handler
	resolve func(c *gin.Context) (*collection.Collection[T, P], error)
	decode  func(c *gin.Context) (T, error)
}

func register[T any, P collection.RecordPtr[T]](g *gin.RouterGroup, path string, r resource[T, P]) {
	g.GET(path, r.list)
	g.POST(path, r.create)
	g.PATCH(path+"/:id", r.update)
	g.DELETE(path+"/:id", r.remove)
}

func fixed[T any, P collection.RecordPtr[T]](coll *collection.Collection[T, P]) func(*gin.Context) (*collection.Collection[T, P], error) {
	return func(*gin.Context) (*collection.Collection[T, P], error) {
		return coll, nil
	}
}

func (h *Handler) categoriesOf(c *gin.Context) (*workspace.Categories, error) {
	return h.workspace.Categories(workspace.CategoryKind(c.Param("kind")))
}

// list returns the cached records. A failed refresh is reported next to
// the last good snapshot instead of replacing it.
func (r resource[T, P]) list(c *gin.Context) {
	coll, err := r.resolve(c)
	if err != nil {
		r.h.fail(c, err)
		return
	}

	if c.Query("refresh") == "true" {
		if err := coll.Refresh(c.Request.Context()); err != nil {
			r.h.fail(c, err)
			return
		}
	}

	resp := listResponse[T]{Items: coll.Items(), Loading: coll.Loading()}
	if err := coll.Err(); err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (r resource[T, P]) create(c *gin.Context) {
	coll, err := r.resolve(c)
	if err != nil {
		r.h.fail(c, err)
		return
	}
	input, err := r.decode(c)
	if err != nil {
		r.h.fail(c, err)
		return
	}

	created, err := coll.Create(c.Request.Context(), input)
	if err != nil {
		r.h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (r resource[T, P]) update(c *gin.Context) {
	coll, err := r.resolve(c)
	if err != nil {
		r.h.fail(c, err)
		return
	}
	var patch collection.Patch
	if err := bind(c, &patch); err != nil {
		r.h.fail(c, err)
		return
	}

	id := c.Param("id")
	if err := coll.Update(c.Request.Context(), id, patch); err != nil {
		r.h.fail(c, err)
		return
	}
	if record, ok := coll.Get(id); ok {
		c.JSON(http.StatusOK, record)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (r resource[T, P]) remove(c *gin.Context) {
	coll, err := r.resolve(c)
	if err != nil {
		r.h.fail(c, err)
		return
	}
	if err := coll.Delete(c.Request.Context(), c.Param("id")); err != nil {
		r.h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type expenseRequest struct {
	Description string               `json:"description" binding:"required,max=200"`
	Category    string               `json:"category" binding:"required"`
	Amount      models.Amount        `json:"amount"`
	Date        models.Date          `json:"date"`
	Status      models.ExpenseStatus `json:"status" binding:"omitempty,oneof=pago pendente vencido"`
}

type incomeRequest struct {
	Description     string        `json:"description" binding:"required,max=200"`
	Category        string        `json:"category" binding:"required"`
	Amount          models.Amount `json:"amount"`
	Date            models.Date   `json:"date"`
	PaymentMethod   string        `json:"paymentMethod"`
	Notes           string        `json:"notes" binding:"max=1000"`
	ContributorName string        `json:"contributorName"`
}

type memberRequest struct {
	Name             string              `json:"name" binding:"required,max=200"`
	Email            string              `json:"email" binding:"omitempty,email"`
	Phone            string              `json:"phone"`
	Address          string              `json:"address"`
	BirthDate        *models.Date        `json:"birthDate"`
	RegistrationDate models.Date         `json:"registrationDate"`
	Status           models.MemberStatus `json:"status" binding:"omitempty,oneof=ativo inativo visitante"`
	Notes            string              `json:"notes" binding:"max=1000"`
	Category         string              `json:"category"`
}

type categoryRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

func decodeExpense(c *gin.Context) (models.Expense, error) {
	var req expenseRequest
	if err := bind(c, &req); err != nil {
		return models.Expense{}, err
	}
	if err := checkMoney(req.Amount, req.Date); err != nil {
		return models.Expense{}, err
	}
	return models.Expense{
		Description: req.Description,
		Category:    req.Category,
		Amount:      req.Amount,
		Date:        req.Date,
		Status:      req.Status,
	}, nil
}

func decodeIncome(c *gin.Context) (models.Income, error) {
	var req incomeRequest
	if err := bind(c, &req); err != nil {
		return models.Income{}, err
	}
	if err := checkMoney(req.Amount, req.Date); err != nil {
		return models.Income{}, err
	}
	return models.Income{
		Description:     req.Description,
		Category:        req.Category,
		Amount:          req.Amount,
		Date:            req.Date,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
		ContributorName: req.ContributorName,
	}, nil
}

func decodeMember(c *gin.Context) (models.Member, error) {
	var req memberRequest
	if err := bind(c, &req); err != nil {
		return models.Member{}, err
	}
	return models.Member{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Address:          req.Address,
		BirthDate:        req.BirthDate,
		RegistrationDate: req.RegistrationDate,
		Status:           req.Status,
		Notes:            req.Notes,
		Category:         req.Category,
	}, nil
}

func decodeCategory(c *gin.Context) (models.Category, error) {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return models.Category{}, err
	}
	return models.Category{Name: req.Name}, nil
}

// checkMoney enforces what a form requires of a financial entry before the
// record-level rules run.
func checkMoney(amount models.Amount, date models.Date) error {
	if !amount.IsPositive() {
		return apperror.ValidationFailed("amount", "amount must be greater than zero")
	}
	if date.IsZero() {
		return apperror.ValidationFailed("date", "date is required")
	}
	return nil
}
