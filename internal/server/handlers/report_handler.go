package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/igreja/tesouraria/internal/service/reporting"
)

// period reads ?month=YYYY-MM, defaulting to the current month.
func (h *Handler) period(c *gin.Context) (reporting.Period, error) {
	month := c.Query("month")
	if month == "" {
		return h.reports.CurrentMonth(), nil
	}
	return reporting.MonthPeriod(month)
}

func (h *Handler) Summary(c *gin.Context) {
	p, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.reports.Summarize(p))
}

// SummaryPDF renders the period summary as a PDF attachment.
func (h *Handler) SummaryPDF(c *gin.Context) {
	p, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := reporting.WritePDF(&buf, h.reports.Summarize(p)); err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("relatorio-%s-%s.pdf", p.From, p.To)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// ExportSummary appends the period summary to the report spreadsheet.
func (h *Handler) ExportSummary(c *gin.Context) {
	p, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	rows, err := h.reports.ExportToSheets(c.Request.Context(), h.reports.Summarize(p))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": p.String(), "rows": rows})
}
