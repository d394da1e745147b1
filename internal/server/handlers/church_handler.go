package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/repository"
)

type churchRequest struct {
	Name        string `json:"name" binding:"required,max=200"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
	Email       string `json:"email" binding:"omitempty,email"`
	PastorName  string `json:"pastorName"`
	TaxID       string `json:"taxId"`
	Description string `json:"description" binding:"max=2000"`
}

// GetChurch returns the church profile of the signed-in owner.
func (h *Handler) GetChurch(c *gin.Context) {
	profile := h.workspace.Profile.Current()
	if profile == nil {
		var err error
		profile, err = h.workspace.Profile.Load(c.Request.Context())
		if err != nil {
			h.fail(c, err)
			return
		}
	}
	if profile == nil {
		user := h.auth.CurrentUser()
		id := ""
		if user != nil {
			id = user.ID
		}
		h.fail(c, apperror.NotFound(repository.CollectionChurchProfile, id))
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SaveChurch creates or replaces the church profile.
func (h *Handler) SaveChurch(c *gin.Context) {
	var req churchRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	saved, err := h.workspace.Profile.Save(c.Request.Context(), models.ChurchProfile{
		Name:        req.Name,
		Address:     req.Address,
		Phone:       req.Phone,
		Email:       req.Email,
		PastorName:  req.PastorName,
		TaxID:       req.TaxID,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
