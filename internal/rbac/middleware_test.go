package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmitas/backoffice/internal/shared"
)

func TestRoleAllows(t *testing.T) {
	assert.True(t, RoleAdmin.Allows(RoleOperator))
	assert.True(t, RoleAdmin.Allows(RoleManager))
	assert.True(t, RoleManager.Allows(RoleManager))
	assert.False(t, RoleManager.Allows(RoleAdmin))
	assert.False(t, RoleOperator.Allows(RoleManager))
	assert.False(t, Role("guest").Allows(RoleOperator))
}

func TestParseRoleAcceptsLegacyNames(t *testing.T) {
	role, err := ParseRole("Gerente")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, role)

	role, err = ParseRole("operador")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, role)

	_, err = ParseRole("root")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware{}.RequireRole(RoleManager)(ok)

	cases := []struct {
		name   string
		sess   *shared.Session
		status int
	}{
		{name: "no session", sess: nil, status: http.StatusUnauthorized},
		{name: "operator", sess: &shared.Session{UserID: 1, Role: "operator"}, status: http.StatusForbidden},
		{name: "manager", sess: &shared.Session{UserID: 2, Role: "manager"}, status: http.StatusNoContent},
		{name: "admin", sess: &shared.Session{UserID: 3, Role: "admin"}, status: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/closures", nil)
			if tc.sess != nil {
				req = req.WithContext(shared.ContextWithSession(req.Context(), tc.sess))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}
