package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("X-Served-By", "test")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	req := NewRequest("POST", server.URL).
		SetHeader("Content-Type", "application/json").
		SetBody(`{"name": "x"}`)

	resp, err := NewClient().Do(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "Created", resp.ReasonPhrase)
	assert.Equal(t, `{"ok": true}`, resp.BodyString())
	assert.Equal(t, "test", resp.Header("x-served-by"))
	assert.Equal(t, "test", resp.Header("X-Served-By"))
	assert.GreaterOrEqual(t, resp.Duration, time.Duration(0))
}

func TestClient_DefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "greq-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "override", r.Header.Get("X-Common"))
	}))
	defer server.Close()

	client := NewClient(WithDefaultHeaders(map[string]string{
		"User-Agent": "greq-test",
		"X-Common":   "default",
	}))
	// request headers win over client defaults
	req := NewRequest("GET", server.URL).SetHeader("X-Common", "override")

	_, err := client.Do(context.Background(), req)
	require.NoError(t, err)
}

func TestClient_RedirectsDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithFollowRedirects(false))
	resp, err := client.Do(context.Background(), NewRequest("GET", server.URL+"/start"))
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)

	resp, err = NewClient().Do(context.Background(), NewRequest("GET", server.URL+"/start"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_PerRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	req := NewRequest("GET", server.URL).SetTimeout(50 * time.Millisecond)
	_, err := NewClient().Do(context.Background(), req)
	assert.Error(t, err)
}

func TestClient_PerRequestTimeoutExtendsClientDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(150 * time.Millisecond)
		fmt.Fprint(w, "slow but fine")
	}))
	defer server.Close()

	// a request declaring a longer deadline is not cut off at the
	// client-wide default
	client := NewClient(WithTimeout(50 * time.Millisecond))
	req := NewRequest("GET", server.URL).SetTimeout(2 * time.Second)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// without its own timeout the client default still applies
	_, err = client.Do(context.Background(), NewRequest("GET", server.URL))
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient().Do(ctx, NewRequest("GET", server.URL))
	assert.Error(t, err)
}

func TestReasonPhrase(t *testing.T) {
	assert.Equal(t, "OK", reasonPhrase("200 OK"))
	assert.Equal(t, "Not Found", reasonPhrase("404 Not Found"))
	assert.Equal(t, "418", reasonPhrase("418"))
}
