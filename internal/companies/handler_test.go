package companies

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

func newTestRouter(t *testing.T) (chi.Router, *mockRepository) {
	t.Helper()
	repo := newMockRepository()
	r := chi.NewRouter()
	NewHandler(nil, NewService(repo, nil), rbac.Middleware{}).MountRoutes(r)
	return r, repo
}

func asRole(req *http.Request, role rbac.Role) *http.Request {
	return req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{UserID: 1, Role: string(role)}))
}

func TestHandlerCreateAndShow(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"name":"Alfa","responsible":"Maria","payment_method":"pix","discount_percent":"5"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodPost, "/companies/", strings.NewReader(body)), rbac.RoleAdmin))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created Company
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Alfa", created.Name)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/companies/1", nil), rbac.RoleOperator))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerCreateForbiddenForOperator(t *testing.T) {
	router, repo := newTestRouter(t)

	body := `{"name":"Alfa","responsible":"Maria","payment_method":"pix"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodPost, "/companies/", strings.NewReader(body)), rbac.RoleOperator))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, repo.companies)
}

func TestHandlerValidationAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodPost, "/companies/", strings.NewReader(`{"name":"Alfa"}`)), rbac.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/companies/9", nil), rbac.RoleAdmin))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodGet, "/companies/abc", nil), rbac.RoleAdmin))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerDeleteWithHistory(t *testing.T) {
	router, repo := newTestRouter(t)
	_, err := NewService(repo, nil).Create(context.Background(), validInput())
	require.NoError(t, err)
	repo.history[1] = true

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asRole(httptest.NewRequest(http.MethodDelete, "/companies/1", nil), rbac.RoleAdmin))
	require.Equal(t, http.StatusOK, rr.Code)

	var res DeleteResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Deactivated)
	assert.False(t, res.Deleted)
}
