package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/service/backup"
)

// CreateBackup writes an auto-backup file now, outside the schedule.
func (h *Handler) CreateBackup(c *gin.Context) {
	name, err := h.backups.AutoBackup(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (h *Handler) ListBackups(c *gin.Context) {
	stored, err := h.backups.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if stored == nil {
		stored = []backup.Stored{}
	}
	c.JSON(http.StatusOK, gin.H{"items": stored})
}

// DownloadBackup streams a fresh snapshot as a JSON attachment.
func (h *Handler) DownloadBackup(c *gin.Context) {
	b, err := h.backups.Create(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := backup.Write(&buf, b); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("backup-igreja-%s.json", h.now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// RestoreBackup imports an uploaded backup under the signed-in owner and
// refreshes the affected collections.
func (h *Handler) RestoreBackup(c *gin.Context) {
	b, err := backup.Parse(c.Request.Body)
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.backups.Restore(c.Request.Context(), b)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.refreshAfterRestore(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (h *Handler) refreshAfterRestore(ctx context.Context) {
	refreshers := map[string]func(context.Context) error{
		"receitas": h.workspace.Income.Refresh,
		"despesas": h.workspace.Expenses.Refresh,
		"membros":  h.workspace.Members.Refresh,
	}
	for name, refresh := range refreshers {
		if err := refresh(ctx); err != nil {
			h.logger.Warn("refresh after restore failed", zap.String("collection", name), zap.Error(err))
		}
	}
}
