package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientIdentity_Priority(t *testing.T) {
	t.Run("verified user wins over ip", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		r.RemoteAddr = "203.0.113.7:51234"
		r = r.WithContext(WithVerifiedUser(r.Context(), "alice"))

		id, err := ClientIdentity(r)
		require.NoError(t, err)
		assert.Equal(t, "user:alice", id)
	})

	t.Run("ip fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "203.0.113.7:51234"

		id, err := ClientIdentity(r)
		require.NoError(t, err)
		assert.Equal(t, "ip:203.0.113.7", id)
	})

	t.Run("framework resolved ip preferred", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:80"
		r = r.WithContext(WithClientIP(r.Context(), "198.51.100.4"))

		id, err := ClientIdentity(r)
		require.NoError(t, err)
		assert.Equal(t, "ip:198.51.100.4", id)
	})

	t.Run("empty verified user ignored", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "203.0.113.7:1"
		r = r.WithContext(WithVerifiedUser(r.Context(), ""))

		id, err := ClientIdentity(r)
		require.NoError(t, err)
		assert.Equal(t, "ip:203.0.113.7", id)
	})

	t.Run("unresolvable", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = ""

		_, err := ClientIdentity(r)
		assert.ErrorIs(t, err, ErrUnresolvableClient)
	})
}

// Credentials the client sends are not identities until something has verified them.
func TestClientIdentity_IgnoresUnverifiedCredentials(t *testing.T) {
	for i, headers := range []map[string]string{
		{"X-API-Key": "forged0001"},
		{"X-API-Key": "forged0002"},
		{"Authorization": "Bearer garbage-1"},
		{"Authorization": "Bearer garbage-2"},
		{"Authorization": "Basic dXNlcjpwYXNz"},
	} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "198.51.100.7:4000"
		for k, v := range headers {
			r.Header.Set(k, v)
		}

		id, err := ClientIdentity(r)
		require.NoError(t, err, "case %d", i)
		assert.Equal(t, "ip:198.51.100.7", id, "case %d", i)
	}
}
