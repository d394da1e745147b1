package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/domain/models"
	repo "github.com/igreja/tesouraria/internal/repository/sheets"
)

const (
	monthLayout   = "2006-01"
	summaryRange  = "Resumo!A:E"
	summaryHeader = "Resumo!A1:E1"
)

// Sources exposes the synced records a report is built from.
type Sources struct {
	Income   interface{ Items() []models.Income }
	Expenses interface{ Items() []models.Expense }
	Members  interface{ Items() []models.Member }
	Profile  interface {
		Current() *models.ChurchProfile
	}
}

// Period is an inclusive range of calendar days.
type Period struct {
	From models.Date `json:"from"`
	To   models.Date `json:"to"`
}

// MonthPeriod covers the calendar month of "YYYY-MM".
func MonthPeriod(month string) (Period, error) {
	start, err := time.Parse(monthLayout, month)
	if err != nil {
		return Period{}, apperror.ValidationFailed("month", fmt.Sprintf("month %q must look like 2024-03", month))
	}
	from := models.DateOf(start)
	return Period{From: from, To: models.DateOf(start.AddDate(0, 1, -1))}, nil
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d models.Date) bool {
	return !d.Before(p.From) && !d.After(p.To)
}

func (p Period) String() string {
	return fmt.Sprintf("%s a %s", p.From, p.To)
}

// CategoryTotal is the sum of one category within a period.
type CategoryTotal struct {
	Category string        `json:"category"`
	Amount   models.Amount `json:"amount"`
	Count    int           `json:"count"`
}

// MemberCounts breaks the member list down by status.
type MemberCounts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	Visitor  int `json:"visitor"`
}

// Summary is the financial picture of a period.
type Summary struct {
	Church            string                       `json:"church"`
	Period            Period                       `json:"period"`
	GeneratedAt       time.Time                    `json:"generatedAt"`
	IncomeTotal       models.Amount                `json:"incomeTotal"`
	ExpenseTotal      models.Amount                `json:"expenseTotal"`
	Balance           models.Amount                `json:"balance"`
	IncomeByCategory  []CategoryTotal              `json:"incomeByCategory"`
	ExpenseByCategory []CategoryTotal              `json:"expenseByCategory"`
	ExpenseStatus     map[models.ExpenseStatus]int `json:"expenseStatus"`
	Members           MemberCounts                 `json:"members"`
}

// Service builds period reports and exports them.
type Service struct {
	src      Sources
	sheets   repo.Repository
	location *time.Location
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires a reporting service. sheets may be nil, in which case
// spreadsheet export is unavailable. loc decides which calendar month "now"
// falls in and defaults to UTC.
func NewService(src Sources, sheets repo.Repository, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, sheets: sheets, location: loc, logger: logger, now: time.Now}
}

// CurrentMonth is the period of the month containing now in the configured
// zone.
func (s *Service) CurrentMonth() Period {
	p, _ := MonthPeriod(s.now().In(s.location).Format(monthLayout))
	return p
}

// Summarize aggregates the records dated within period.
func (s *Service) Summarize(period Period) Summary {
	summary := Summary{
		Period:        period,
		GeneratedAt:   s.now().UTC(),
		ExpenseStatus: map[models.ExpenseStatus]int{},
	}
	if profile := s.src.Profile.Current(); profile != nil {
		summary.Church = profile.Name
	}

	income := newTotals()
	for _, r := range s.src.Income.Items() {
		if period.Contains(r.Date) {
			income.add(r.Category, r.Amount)
		}
	}

	expenses := newTotals()
	for _, e := range s.src.Expenses.Items() {
		if period.Contains(e.Date) {
			expenses.add(e.Category, e.Amount)
			summary.ExpenseStatus[e.Status]++
		}
	}

	for _, m := range s.src.Members.Items() {
		summary.Members.Total++
		switch m.Status {
		case models.MemberActive:
			summary.Members.Active++
		case models.MemberInactive:
			summary.Members.Inactive++
		case models.MemberVisitor:
			summary.Members.Visitor++
		}
	}

	summary.IncomeTotal = models.NewAmount(income.total)
	summary.ExpenseTotal = models.NewAmount(expenses.total)
	summary.Balance = models.NewAmount(income.total.Sub(expenses.total))
	summary.IncomeByCategory = income.sorted()
	summary.ExpenseByCategory = expenses.sorted()
	return summary
}

// ExportToSheets appends the summary rows to the report spreadsheet,
// writing the header first on an empty sheet.
func (s *Service) ExportToSheets(ctx context.Context, summary Summary) (int, error) {
	if s.sheets == nil {
		return 0, apperror.ValidationFailed("sheets", "spreadsheet export is not configured")
	}

	header, err := s.sheets.ReadRange(ctx, summaryHeader)
	if err != nil {
		return 0, fmt.Errorf("read report header: %w", err)
	}

	var rows [][]interface{}
	if len(header) == 0 {
		rows = append(rows, []interface{}{"Período", "Tipo", "Categoria", "Lançamentos", "Valor"})
	}

	label := summary.Period.String()
	for _, c := range summary.IncomeByCategory {
		rows = append(rows, []interface{}{label, "Receita", c.Category, c.Count, c.Amount.StringFixed(2)})
	}
	for _, c := range summary.ExpenseByCategory {
		rows = append(rows, []interface{}{label, "Despesa", c.Category, c.Count, c.Amount.StringFixed(2)})
	}
	rows = append(rows, []interface{}{label, "Saldo", "", "", summary.Balance.StringFixed(2)})

	if err := s.sheets.AppendRows(ctx, summaryRange, rows); err != nil {
		return 0, fmt.Errorf("export report: %w", err)
	}
	s.logger.Info("report exported to sheets", zap.String("period", label), zap.Int("rows", len(rows)))
	return len(rows), nil
}

type totals struct {
	total      decimal.Decimal
	byCategory map[string]*CategoryTotal
}

func newTotals() *totals {
	return &totals{total: decimal.Zero, byCategory: map[string]*CategoryTotal{}}
}

func (t *totals) add(category string, amount models.Amount) {
	t.total = t.total.Add(amount.Decimal)
	entry, ok := t.byCategory[category]
	if !ok {
		entry = &CategoryTotal{Category: category, Amount: models.NewAmount(decimal.Zero)}
		t.byCategory[category] = entry
	}
	entry.Amount = models.NewAmount(entry.Amount.Add(amount.Decimal))
	entry.Count++
}

// sorted lists categories by amount, largest first, then by name.
func (t *totals) sorted() []CategoryTotal {
	out := make([]CategoryTotal, 0, len(t.byCategory))
	for _, entry := range t.byCategory {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount.Decimal); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}
