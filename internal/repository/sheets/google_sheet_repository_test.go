package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc) *GoogleSheetRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	service, err := sheetsapi.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	return &GoogleSheetRepository{service: service, spreadsheetID: "planilha", logger: zaptest.NewLogger(t)}
}

func TestAppendRowsSendsAllRows(t *testing.T) {
	var got sheetsapi.ValueRange
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":append"), r.URL.Path)
		assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	err := repo.AppendRows(context.Background(), "Resumo!A:E", [][]interface{}{
		{"2024-03", "Receitas", "Dízimo", "1500.00"},
		{"2024-03", "Despesas", "Aluguel", "1200.00"},
	})
	require.NoError(t, err)
	require.Len(t, got.Values, 2)
	assert.Equal(t, "Aluguel", got.Values[1][2])
}

func TestAppendRowsSkipsEmptyBatch(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	assert.NoError(t, repo.AppendRows(context.Background(), "Resumo!A:E", nil))
	assert.Error(t, repo.AppendRows(context.Background(), "", [][]interface{}{{"x"}}))
}

func TestReadRange(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"range":"Resumo!A1:E1","values":[["Período","Tipo"]]}`))
	})

	rows, err := repo.ReadRange(context.Background(), "Resumo!A1:E1")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{{"Período", "Tipo"}}, rows)
}
