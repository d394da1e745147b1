package models

// Backup is the downloadable JSON snapshot of an owner's records.
type Backup struct {
	Receitas  []Income  `json:"receitas"`
	Despesas  []Expense `json:"despesas"`
	Membros   []Member  `json:"membros"`
	Timestamp string    `json:"timestamp"`
	UserID    string    `json:"userId"`
}
