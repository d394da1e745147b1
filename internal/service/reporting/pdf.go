package reporting

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/igreja/tesouraria/internal/domain/models"
)

const (
	pdfFont    = "Helvetica"
	lineHeight = 7.0
)

var statusLabels = []struct {
	status models.ExpenseStatus
	label  string
}{
	{models.ExpensePaid, "Pago"},
	{models.ExpensePending, "Pendente"},
	{models.ExpenseOverdue, "Vencido"},
}

// WritePDF renders summary as an A4 report: a header with the church
// name, numbered pages and one table per section.
func WritePDF(w io.Writer, summary Summary) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	church := summary.Church
	if church == "" {
		church = "Tesouraria"
	}

	pdf.SetTitle(tr("Relatório financeiro - "+church), false)
	pdf.AliasNbPages("")
	pdf.SetHeaderFunc(func() {
		pdf.SetFont(pdfFont, "B", 14)
		pdf.CellFormat(0, 10, tr(church), "", 1, "C", false, 0, "")
		pdf.SetFont(pdfFont, "", 10)
		pdf.CellFormat(0, 6, tr("Relatório financeiro: "+summary.Period.String()), "B", 1, "C", false, 0, "")
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(pdfFont, "I", 8)
		pdf.CellFormat(0, 10, tr(fmt.Sprintf("Página %d/{nb}", pdf.PageNo())), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	section(pdf, tr, "Resumo")
	table(pdf, tr, []string{"", "Valor"}, [][]string{
		{"Total de receitas", summary.IncomeTotal.BRL()},
		{"Total de despesas", summary.ExpenseTotal.BRL()},
		{"Saldo", summary.Balance.BRL()},
	})

	section(pdf, tr, "Receitas por categoria")
	table(pdf, tr, []string{"Categoria", "Lançamentos", "Valor"}, categoryRows(summary.IncomeByCategory))

	section(pdf, tr, "Despesas por categoria")
	table(pdf, tr, []string{"Categoria", "Lançamentos", "Valor"}, categoryRows(summary.ExpenseByCategory))

	section(pdf, tr, "Situação das despesas")
	var statusRows [][]string
	for _, s := range statusLabels {
		statusRows = append(statusRows, []string{s.label, fmt.Sprint(summary.ExpenseStatus[s.status])})
	}
	table(pdf, tr, []string{"Situação", "Quantidade"}, statusRows)

	section(pdf, tr, "Membros")
	table(pdf, tr, []string{"", "Quantidade"}, [][]string{
		{"Ativos", fmt.Sprint(summary.Members.Active)},
		{"Inativos", fmt.Sprint(summary.Members.Inactive)},
		{"Visitantes", fmt.Sprint(summary.Members.Visitor)},
		{"Total", fmt.Sprint(summary.Members.Total)},
	})

	pdf.SetFont(pdfFont, "I", 8)
	pdf.CellFormat(0, lineHeight, tr("Gerado em "+summary.GeneratedAt.Format("02/01/2006 15:04")+" UTC"), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report pdf: %w", err)
	}
	return nil
}

func section(pdf *fpdf.Fpdf, tr func(string) string, title string) {
	pdf.Ln(3)
	pdf.SetFont(pdfFont, "B", 12)
	pdf.CellFormat(0, lineHeight+1, tr(title), "", 1, "L", false, 0, "")
}

func table(pdf *fpdf.Fpdf, tr func(string) string, header []string, rows [][]string) {
	width, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	col := (width - left - right) / float64(len(header))

	pdf.SetFont(pdfFont, "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range header {
		pdf.CellFormat(col, lineHeight, tr(h), "1", 0, align(i), true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(pdfFont, "", 10)
	if len(rows) == 0 {
		pdf.CellFormat(col*float64(len(header)), lineHeight, tr("Nenhum lançamento no período"), "1", 1, "C", false, 0, "")
		return
	}
	for _, row := range rows {
		for i, cell := range row {
			pdf.CellFormat(col, lineHeight, tr(cell), "1", 0, align(i), false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func align(column int) string {
	if column == 0 {
		return "L"
	}
	return "R"
}

func categoryRows(totals []CategoryTotal) [][]string {
	rows := make([][]string, 0, len(totals))
	for _, c := range totals {
		rows = append(rows, []string{c.Category, fmt.Sprint(c.Count), c.Amount.BRL()})
	}
	return rows
}
