package documents

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/delivery"
	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

func newTestRouter(svc documentsService) chi.Router {
	h := NewHandler(nil, svc, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func serve(router http.Handler, method, path, body string, role rbac.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		sess := &shared.Session{UserID: 3, Role: string(role)}
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHandlerOverview(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc)

	rr := serve(router, http.MethodGet, "/documents", "", rbac.RoleOperator)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(router, http.MethodGet, "/documents?status=pending", "", rbac.RoleManager)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var ov struct {
		Month  int `json:"month"`
		Groups []struct {
			Aggregate Aggregate `json:"aggregate"`
			Report    *Send     `json:"report"`
		} `json:"groups"`
		Stats Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ov))
	assert.Equal(t, 3, ov.Month)
	require.Len(t, ov.Groups, 3)
	assert.Equal(t, AggregatePartial, ov.Groups[0].Aggregate)
	require.NotNil(t, ov.Groups[0].Report)
	assert.Equal(t, delivery.KindReport, ov.Groups[0].Report.Kind)
	assert.Equal(t, 3, ov.Stats.Partial)

	rr = serve(router, http.MethodGet, "/documents?status=enviado", "", rbac.RoleManager)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerResendAndNotes(t *testing.T) {
	svc, repo, sender := newTestService()
	repo.sends[1] = &Send{ID: 1, ClosureID: 10, Kind: delivery.KindReport, Status: SendPending}
	sender.err = delivery.ErrNoRecipient
	router := newTestRouter(svc)

	rr := serve(router, http.MethodPost, "/documents/1/resend", "", rbac.RoleManager)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got Send
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, SendError, got.Status)
	assert.Equal(t, 1, got.Retries)

	rr = serve(router, http.MethodPost, "/documents/1/mark-sent", "", rbac.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, SendSent, repo.sends[1].Status)

	rr = serve(router, http.MethodPut, "/documents/1/notes", `{"notes":"ok"}`, rbac.RoleManager)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", repo.sends[1].Notes)

	rr = serve(router, http.MethodPut, "/documents/1/notes", `{"note":"typo"}`, rbac.RoleManager)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodPost, "/documents/77/resend", "", rbac.RoleManager)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerEnsure(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc)

	rr := serve(router, http.MethodPost, "/documents/closures/10", "", rbac.RoleManager)
	require.Equal(t, http.StatusOK, rr.Code)
	var sends []Send
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sends))
	assert.Len(t, sends, 3)
}
