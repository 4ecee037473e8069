package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/formharvest/internal/querygen"
)

type captured struct {
	auth string
	path string
	req  chatRequest
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, <-chan captured) {
	t.Helper()
	seen := make(chan captured, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c captured
		c.auth = r.Header.Get("Authorization")
		c.path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&c.req)
		seen <- c
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, seen
}

func TestComplete(t *testing.T) {
	t.Parallel()

	server, seen := newServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"- tax filetype:pdf\n- w2 filetype:pdf"}}]}`)
	client, err := New(Config{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "make queries")
	require.NoError(t, err)
	assert.Equal(t, "- tax filetype:pdf\n- w2 filetype:pdf", text)

	c := <-seen
	assert.Equal(t, "Bearer sk-test", c.auth)
	assert.Equal(t, "/chat/completions", c.path)
	assert.Equal(t, DefaultModel, c.req.Model)
	assert.Equal(t, DefaultMaxTokens, c.req.MaxTokens)
	require.Len(t, c.req.Messages, 1)
	assert.Equal(t, "user", c.req.Messages[0].Role)
	assert.Equal(t, "make queries", c.req.Messages[0].Content)
}

func TestCompleteErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "api error", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key"}}`, want: "bad key"},
		{name: "status", status: http.StatusBadGateway, body: `{}`, want: "status 502"},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, want: "no response choices"},
		{name: "garbage", status: http.StatusOK, body: `<html>`, want: "decode response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server, _ := newServer(t, tc.status, tc.body)
			client, err := New(Config{APIKey: "k", BaseURL: server.URL})
			require.NoError(t, err)
			_, err = client.Complete(context.Background(), "p")
			require.ErrorContains(t, err, tc.want)
		})
	}
}

func TestExpanderWithClient(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t, http.StatusOK,
		`{"choices":[{"message":{"content":"1. ignore me\n- passport renewal filetype:pdf"}}]}`)
	client, err := New(Config{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	got := querygen.NewExpander(client, nil, nil).Generate(context.Background(), []string{"passport"})
	assert.Equal(t, []string{"passport renewal filetype:pdf"}, got)
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.Error(t, err)
}
