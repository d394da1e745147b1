package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
)

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type signUpRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"max=100"`
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// SignIn authenticates the console user.
func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn("sign in failed", zap.String("email", req.Email), zap.Error(err))
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// SignUp registers a new account and signs it in.
func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	user, err := h.auth.SignUp(c.Request.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) SignOut(c *gin.Context) {
	h.auth.SignOut()
	c.Status(http.StatusNoContent)
}

// PasswordReset asks the provider to e-mail a reset link.
func (h *Handler) PasswordReset(c *gin.Context) {
	var req passwordResetRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.auth.SendPasswordReset(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) Me(c *gin.Context) {
	user := h.auth.CurrentUser()
	if user == nil {
		h.fail(c, apperror.AuthRequired("me"))
		return
	}
	c.JSON(http.StatusOK, user)
}
