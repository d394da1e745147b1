package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/repository"
	"github.com/igreja/tesouraria/internal/repository/memory"
	"github.com/igreja/tesouraria/internal/service/backup"
	"github.com/igreja/tesouraria/internal/service/birthdays"
	"github.com/igreja/tesouraria/internal/service/reporting"
	"github.com/igreja/tesouraria/internal/service/workspace"
	"github.com/igreja/tesouraria/pkg/clients/identity"
)

type fakeIdentity struct{}

func (fakeIdentity) SignIn(_ context.Context, email, password string) (*identity.Credentials, error) {
	if password != "secret" {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.Credentials{UserID: "ana", Email: email}, nil
}

func (fakeIdentity) SignUp(_ context.Context, email, _, displayName string) (*identity.Credentials, error) {
	if email == "taken@igreja.org" {
		return nil, identity.ErrEmailExists
	}
	return &identity.Credentials{UserID: "novo", Email: email, DisplayName: displayName}, nil
}

func (fakeIdentity) SendPasswordReset(context.Context, string) error { return nil }

type testServer struct {
	engine  *gin.Engine
	store   *memory.Store
	session *auth.Session
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	session := auth.NewSession(fakeIdentity{}, logger)

	ws := workspace.New(workspace.Deps{
		Store:          store,
		Session:        session,
		Logger:         logger,
		ReconcileDelay: time.Hour,
	})
	t.Cleanup(ws.Close)

	h := NewHandler(Deps{
		Auth:      session,
		Workspace: ws,
		Birthdays: birthdays.NewService(ws.Members, store, session, nil, time.UTC, logger),
		Backups:   backup.NewService(store, session, t.TempDir(), 3, logger),
		Reports: reporting.NewService(reporting.Sources{
			Income:   ws.Income,
			Expenses: ws.Expenses,
			Members:  ws.Members,
			Profile:  ws.Profile,
		}, nil, time.UTC, logger),
		Logger: logger,
	})

	engine := gin.New()
	h.Register(engine)
	return &testServer{engine: engine, store: store, session: session}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signIn(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "ana@igreja.org", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func items(t *testing.T, rec *httptest.ResponseRecorder) []any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list, ok := decode(t, rec)["items"].([]any)
	require.True(t, ok, rec.Body.String())
	return list
}

var electricity = gin.H{
	"description": "Conta de luz",
	"category":    "Energia",
	"amount":      "180.35",
	"date":        "2024-03-20",
}

func TestAPIRequiresSignIn(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/expenses", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/income", electricity).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", nil).Code)
}

func TestExpiredSessionIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	s.session.Restore(&auth.User{ID: "ana", ExpiresAt: time.Now().Add(-time.Minute)})

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/expenses", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", nil).Code)
	assert.Nil(t, s.session.CurrentUser())
}

func TestSignInFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "ana@igreja.org", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/signin", gin.H{"email": "not-an-email", "password": "secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.signIn(t)
	rec = s.do(t, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", decode(t, rec)["id"])

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, "/auth/signout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/auth/me", nil).Code)
}

func TestSignUpAndPasswordReset(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/signup", gin.H{"email": "taken@igreja.org", "password": "123456"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/signup", gin.H{"email": "novo@igreja.org", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/signup", gin.H{"email": "novo@igreja.org", "password": "123456", "displayName": "Tesoureiro"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Tesoureiro", decode(t, rec)["displayName"])

	rec = s.do(t, http.MethodPost, "/auth/password-reset", gin.H{"email": "novo@igreja.org"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestExpenseLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	rec := s.do(t, http.MethodPost, "/api/expenses", electricity)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pendente", created["status"])
	assert.Equal(t, "ana", created["ownerId"])
	assert.Equal(t, "180.35", created["amount"])

	assert.Len(t, items(t, s.do(t, http.MethodGet, "/api/expenses", nil)), 1)

	rec = s.do(t, http.MethodPatch, "/api/expenses/"+id, gin.H{"status": "pago", "amount": 200})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "pago", updated["status"])
	assert.Equal(t, "200", updated["amount"])

	rec = s.do(t, http.MethodDelete, "/api/expenses/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, items(t, s.do(t, http.MethodGet, "/api/expenses?refresh=true", nil)))
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	cases := map[string]struct {
		body  gin.H
		field string
	}{
		"zero amount":    {gin.H{"description": "x", "category": "y", "amount": "0", "date": "2024-03-01"}, "amount"},
		"missing date":   {gin.H{"description": "x", "category": "y", "amount": "10"}, "date"},
		"no description": {gin.H{"category": "y", "amount": "10", "date": "2024-03-01"}, ""},
		"bad status":     {gin.H{"description": "x", "category": "y", "amount": "10", "date": "2024-03-01", "status": "paid"}, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/expenses", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			if tc.field != "" {
				assert.Equal(t, tc.field, decode(t, rec)["field"])
			}
		})
	}

	rec := s.do(t, http.MethodPost, "/api/expenses", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, s.store.Len(repository.CollectionExpenses))
}

func TestUpdateErrors(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	rec := s.do(t, http.MethodPost, "/api/expenses", electricity)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = s.do(t, http.MethodPatch, "/api/expenses/"+id, gin.H{"colour": "blue"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/expenses/"+id, gin.H{"ownerId": "bruno"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/expenses/missing", gin.H{"status": "pago"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/expenses/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)
	s.store.FailWrites(repository.CollectionIncome, errors.New("offline"))

	rec := s.do(t, http.MethodPost, "/api/income", gin.H{
		"description": "Oferta", "category": "Oferta", "amount": "50", "date": "2024-03-03",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, items(t, s.do(t, http.MethodGet, "/api/income", nil)))
}

func TestListReportsStaleSnapshot(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	rec := s.do(t, http.MethodPost, "/api/member-categories", gin.H{"name": "Diácono"})
	require.Equal(t, http.StatusCreated, rec.Code)

	boom := errors.New("offline")
	s.store.FailOrderedQueries(repository.CollectionMemberCategories, boom)
	s.store.FailQueries(repository.CollectionMemberCategories, boom)

	rec = s.do(t, http.MethodGet, "/api/member-categories?refresh=true", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/member-categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["items"], 1)
	assert.NotEmpty(t, body["error"])
}

func TestCategoriesByKind(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	rec := s.do(t, http.MethodPost, "/api/categories/paymentMethods", gin.H{"name": "PIX"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Len(t, items(t, s.do(t, http.MethodGet, "/api/categories/paymentMethods", nil)), 1)
	assert.Empty(t, items(t, s.do(t, http.MethodGet, "/api/categories/ofertaTypes", nil)))
	assert.Equal(t, 1, s.store.Len("paymentMethods"))

	rec = s.do(t, http.MethodGet, "/api/categories/unknown", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChurchProfile(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/church", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/church", gin.H{"phone": "123"}).Code)

	rec := s.do(t, http.MethodPut, "/api/church", gin.H{"name": "Igreja Batista Esperança", "pastorName": "Pr. João"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/church", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Igreja Batista Esperança", body["name"])
	assert.Equal(t, "ana", body["ownerId"])
}

func TestBirthdays(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	// Going back a multiple of four years keeps 29 February valid.
	now := time.Now().UTC()
	birth := fmt.Sprintf("%04d-%s", now.Year()-28, now.Format("01-02"))

	rec := s.do(t, http.MethodPost, "/api/members", gin.H{"name": "Maria", "birthDate": birth})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	memberID := decode(t, rec)["id"].(string)

	var view birthdays.View
	rec = s.do(t, http.MethodGet, "/api/birthdays", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Today, 1)
	assert.Equal(t, 28, view.Today[0].Age)
	assert.False(t, view.Today[0].Congratulated)

	path := "/api/birthdays/" + memberID + "/congratulated"
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodPost, path, nil).Code)

	rec = s.do(t, http.MethodGet, "/api/birthdays", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Today, 1)
	assert.True(t, view.Today[0].Congratulated)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
}

func TestBackupRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/expenses", electricity).Code)

	rec := s.do(t, http.MethodPost, "/api/backups", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, items(t, s.do(t, http.MethodGet, "/api/backups", nil)), 1)

	rec = s.do(t, http.MethodGet, "/api/backups/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "backup-igreja-")
	snapshot := rec.Body.Bytes()

	parsed, err := backup.Parse(bytes.NewReader(snapshot))
	require.NoError(t, err)
	assert.Len(t, parsed.Despesas, 1)

	rec = s.do(t, http.MethodPost, "/api/backups/restore", snapshot)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["despesas"])
	assert.Len(t, items(t, s.do(t, http.MethodGet, "/api/expenses", nil)), 2)

	rec = s.do(t, http.MethodPost, "/api/backups/restore", gin.H{"receitas": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReports(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	rec := s.do(t, http.MethodPost, "/api/income", gin.H{
		"description": "Dízimo", "category": "Dízimo", "amount": "100.50", "date": "2024-03-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/expenses", electricity).Code)

	rec = s.do(t, http.MethodGet, "/api/reports/summary?month=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary reporting.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "100.50", summary.IncomeTotal.StringFixed(2))
	assert.Equal(t, "-79.85", summary.Balance.StringFixed(2))

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/reports/summary?month=2024-13", nil).Code)

	rec = s.do(t, http.MethodGet, "/api/reports/summary.pdf?month=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	// No spreadsheet configured.
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/reports/summary/sheets", nil).Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperror.ValidationFailed("name", "required"), http.StatusBadRequest},
		{apperror.AuthRequired("create"), http.StatusUnauthorized},
		{apperror.Persistence("create", "despesas", apperror.AuthRequired("create")), http.StatusUnauthorized},
		{fmt.Errorf("sign in: %w", identity.ErrInvalidCredentials), http.StatusUnauthorized},
		{identity.ErrEmailExists, http.StatusConflict},
		{apperror.Persistence("update", "despesas", apperror.NotFound("despesas", "x")), http.StatusNotFound},
		{apperror.Query("despesas", errors.New("timeout")), http.StatusBadGateway},
		{apperror.Persistence("delete", "despesas", errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
