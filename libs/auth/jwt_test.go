package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	v := NewVerifier("test-secret", "apptbook")

	token, err := v.Sign(Claims{Role: RoleProvider, ProviderID: "prov-1", OrganizationID: "org-1"}.withSubject("user-1"), time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, RoleProvider, claims.Role)
	assert.Equal(t, "prov-1", claims.ProviderID)
	assert.Equal(t, "org-1", claims.OrganizationID)
}

func TestParse_Rejects(t *testing.T) {
	v := NewVerifier("test-secret", "")

	other, err := NewVerifier("other-secret", "").Sign(Claims{Role: RoleAdmin}.withSubject("u"), time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(other)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired, err := v.Sign(Claims{Role: RoleAdmin}.withSubject("u"), -time.Minute)
	require.NoError(t, err)
	_, err = v.Parse(expired)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	noSubject, err := v.Sign(Claims{Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = v.Parse(noSubject)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("test-secret", "")
	token, err := v.Sign(Claims{Role: RoleCustomer}.withSubject("user-9"), time.Hour)
	require.NoError(t, err)

	var got *Claims
	h := v.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotNil(t, got)
	assert.Equal(t, "user-9", got.UserID())
}

func (c Claims) withSubject(sub string) Claims {
	c.Subject = sub
	return c
}
