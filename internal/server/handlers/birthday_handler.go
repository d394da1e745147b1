package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListBirthdays returns today's, tomorrow's, upcoming and this month's
// birthdays of active members.
func (h *Handler) ListBirthdays(c *gin.Context) {
	view, err := h.birthdays.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) MarkCongratulated(c *gin.Context) {
	if err := h.birthdays.MarkCongratulated(c.Request.Context(), c.Param("memberId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UnmarkCongratulated(c *gin.Context) {
	if err := h.birthdays.UnmarkCongratulated(c.Request.Context(), c.Param("memberId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
