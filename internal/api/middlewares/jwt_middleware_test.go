package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestJWTMiddleware(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFrom(r.Context())
		_, _ = w.Write([]byte(id))
	})
	valid := jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()}

	cases := []struct {
		name   string
		secret string
		header string
		code   int
		body   string
	}{
		{"valid token", "s3cret", "Bearer " + sign(t, "s3cret", valid), http.StatusOK, "u1"},
		{"missing header", "s3cret", "", http.StatusUnauthorized, ""},
		{"wrong secret", "s3cret", "Bearer " + sign(t, "other", valid), http.StatusUnauthorized, ""},
		{"expired", "s3cret", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"no user claim", "s3cret", "Bearer " + sign(t, "s3cret", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"unconfigured secret", "", "Bearer " + sign(t, "", valid), http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/bots/b1/training", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			JWTMiddleware(tc.secret)(echo).ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}
