package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/rbac"
	"github.com/marmitas/backoffice/internal/shared"
)

type stubTimeline struct {
	filters TimelineFilters
}

func (s *stubTimeline) Timeline(_ context.Context, f TimelineFilters) (Result, error) {
	s.filters = f
	return NewService(&stubRepo{entries: entries(1)}).Timeline(context.Background(), f)
}

func serve(t *testing.T, svc timelineService, path string, role rbac.Role) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(nil, svc, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2024, 3, 20, 15, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), &shared.Session{UserID: 9, Role: string(role)}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRequiresAdmin(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, serve(t, &stubTimeline{}, "/audit", rbac.RoleManager).Code)
}

func TestHandlerDefaultRange(t *testing.T) {
	svc := &stubTimeline{}
	rr := serve(t, svc, "/audit", rbac.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), svc.filters.From)
	assert.Equal(t, time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC), svc.filters.To)

	var body Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "closure.override", body.Entries[0].Action)
}

func TestHandlerFilters(t *testing.T) {
	svc := &stubTimeline{}
	rr := serve(t, svc, "/audit?from=2024-03-01&to=2024-03-05&entity=closure&entity_id=7&actor_id=3&page=2&page_size=5", rbac.RoleAdmin)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), svc.filters.From)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), svc.filters.To)
	assert.Equal(t, "closure", svc.filters.Entity)
	assert.Equal(t, "7", svc.filters.EntityID)
	assert.Equal(t, int64(3), svc.filters.ActorID)
	assert.Equal(t, 2, svc.filters.Page)
	assert.Equal(t, 5, svc.filters.PageSize)
}

func TestHandlerRejectsBadFilters(t *testing.T) {
	for _, path := range []string{
		"/audit?from=yesterday",
		"/audit?to=2024-13-01",
		"/audit?from=2024-03-10&to=2024-03-01",
		"/audit?from=2023-01-01&to=2024-03-01",
		"/audit?page=0",
		"/audit?page_size=x",
		"/audit?actor_id=-1",
	} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, serve(t, &stubTimeline{}, path, rbac.RoleAdmin).Code)
		})
	}
}
