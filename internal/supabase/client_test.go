package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProjectURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := ParseProjectURL("abc.supabase.co")
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "abc.supabase.co", u.Host)

	u, err = ParseProjectURL("http://localhost:54321/rest/v1?x=1#frag")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:54321", u.String())

	_, err = ParseProjectURL("   ")
	assert.Error(t, err)
}

func TestClient_SelectEncodesQueryAndHeaders(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotQuery map[string][]string
	var gotHeaders http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":12345678901234567,"page":"/dashboard"},{"id":"b2"}]`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "anon-key", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	rows, err := c.Select(ctx, "user_engagement", Query{
		Filters:    []Filter{{Column: "user_id", Value: "u1"}, {Column: "created_at", Op: "gte", Value: "2026-01-01"}},
		Order:      "created_at",
		Descending: true,
		Limit:      100,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	id, ok := rows[0].ID()
	assert.True(t, ok)
	assert.Equal(t, "12345678901234567", id)
	assert.Equal(t, "/dashboard", rows[0].String("page"))

	assert.Equal(t, "/rest/v1/user_engagement", gotPath)
	assert.Equal(t, []string{"*"}, gotQuery["select"])
	assert.Equal(t, []string{"eq.u1"}, gotQuery["user_id"])
	assert.Equal(t, []string{"gte.2026-01-01"}, gotQuery["created_at"])
	assert.Equal(t, []string{"created_at.desc"}, gotQuery["order"])
	assert.Equal(t, []string{"100"}, gotQuery["limit"])
	assert.Equal(t, "anon-key", gotHeaders.Get("apikey"))
	assert.Equal(t, "Bearer anon-key", gotHeaders.Get("Authorization"))
	assert.Equal(t, "public", gotHeaders.Get("Accept-Profile"))
	assert.Equal(t, defaultUserAgent, gotHeaders.Get("User-Agent"))
}

func TestClient_SelectReturnsAPIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": `relation "public.nope" does not exist`})
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "", "")
	require.NoError(t, err)

	_, err = c.Select(context.Background(), "nope", Query{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "err = %v, want *APIError", err)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "does not exist")
}

func TestClient_SelectRejectsBadInput(t *testing.T) {
	var c *Client
	_, err := c.Select(context.Background(), "t", Query{})
	assert.Error(t, err)

	c, err = NewClient("http://localhost:1", "", "")
	require.NoError(t, err)
	_, err = c.Select(context.Background(), "  ", Query{})
	assert.Error(t, err)
}

func TestClient_SelectDecodeError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, "", "")
	require.NoError(t, err)
	_, err = c.Select(context.Background(), "user_sessions", Query{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}
