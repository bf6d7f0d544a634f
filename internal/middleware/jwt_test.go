package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (string, string, error) {
	if token != "good" {
		return "", "", errors.New("bad token")
	}
	return "m-1", "admin", nil
}

func TestAuthMiddleware(t *testing.T) {
	var gotID, gotRole string
	h := NewAuthMiddleware(stubValidator{}).Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, role, ok := Identity(r.Context())
		require.True(t, ok)
		gotID, gotRole = id, role
	}))

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{name: "bearer header", target: "/api/me", header: "Bearer good", want: http.StatusOK},
		{name: "query fallback", target: "/ws?token=good", want: http.StatusOK},
		{name: "missing", target: "/api/me", want: http.StatusUnauthorized},
		{name: "invalid", target: "/api/me", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/api/me", header: "Basic good", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotRole = "", ""
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				require.Equal(t, "m-1", gotID)
				require.Equal(t, "admin", gotRole)
			}
		})
	}
}
