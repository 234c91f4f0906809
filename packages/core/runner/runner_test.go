package runner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testHost strips the scheme off an httptest server URL so it can be used
// in a Host header.
func testHost(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestExecute_SingleFilePasses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"count": 3}`)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "users.greq", `is-http: true
====
GET /users HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200
headers.Content-Type starts-with: application/json
response-body.count equals: 3`)

	result := NewRunner(nil).Execute(context.Background(), path)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Empty(t, result.FailedConditions)
	assert.NotEmpty(t, result.ID)
	require.NotNil(t, result.Response)
	assert.Equal(t, 200, result.Response.StatusCode)
}

func TestExecute_HostHeaderPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	t.Setenv("GREQ_TEST_API_HOST", testHost(server))

	dir := t.TempDir()
	path := writeFile(t, dir, "status.greq", `is-http: true
====
GET /status HTTP/1.1
Host: $(environment.GREQ_TEST_API_HOST)
====
status-code equals: 200`)

	result := NewRunner(nil).Execute(context.Background(), path)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
}

func TestExecute_FailedConditionsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer server.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "users.greq", `is-http: true
====
GET /users HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200
not response-body contains: boom`)

	result := NewRunner(nil).Execute(context.Background(), path)
	require.NoError(t, result.Err)
	assert.False(t, result.Success)
	require.Len(t, result.FailedConditions, 2)
	assert.Equal(t, "status-code equals: 200", result.FailedConditions[0])
}

func TestExecute_ParseErrorSurfaces(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.greq", "GET / HTTP/1.1\n")

	result := NewRunner(nil).Execute(context.Background(), path)
	assert.Error(t, result.Err)
	assert.False(t, result.Success)
}

func TestExecute_DependencyChainSubstitution(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"token": "tok-42", "user": {"id": 7}}`)
		case "/profile/7":
			gotAuth.Store(r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"name": "Alice"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "login.greq", `is-http: true
====
POST /login HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	profile := writeFile(t, dir, "profile.greq", `is-http: true
depends-on: ./login.greq
====
GET /profile/$(dependency.response-body.user.id) HTTP/1.1
Host: `+testHost(server)+`
Authorization: Bearer $(dep.response-body.token)
====
status-code equals: 200
response-body.name equals: Alice`)

	result := NewRunner(nil).Execute(context.Background(), profile)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, "Bearer tok-42", gotAuth.Load())
}

func TestExecute_DependencyFailureAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		t.Errorf("dependent request should not be sent, got %s", r.URL.Path)
	}))
	defer server.Close()

	dir := t.TempDir()
	login := writeFile(t, dir, "login.greq", `is-http: true
====
POST /login HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	profile := writeFile(t, dir, "profile.greq", `is-http: true
depends-on: ./login.greq
====
GET /me HTTP/1.1
Host: `+testHost(server)+`
====
`)

	result := NewRunner(nil).Execute(context.Background(), profile)
	require.Error(t, result.Err)
	assert.False(t, result.Success)

	expected, err := filepath.EvalSymlinks(login)
	require.NoError(t, err)
	assert.Equal(t, expected, result.FailedDependency)
}

func TestExecute_AllowDependencyFailure(t *testing.T) {
	var gotPath atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotPath.Store(r.URL.Path)
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "login.greq", `is-http: true
====
POST /login HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	profile := writeFile(t, dir, "profile.greq", `is-http: true
depends-on: ./login.greq
allow-dependency-failure: true
show-warnings: false
====
GET /items/$(dependency.response-body.id) HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	var warnings []string
	r := NewRunner(nil)
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	result := r.Execute(context.Background(), profile)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	// the failed dependency substitutes to empty
	assert.Equal(t, "/items/", gotPath.Load())
	assert.Empty(t, warnings)
}

func TestExecute_AllowDependencyFailureWarnsByDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "login.greq", `is-http: true
====
POST /login HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	profile := writeFile(t, dir, "profile.greq", `is-http: true
depends-on: ./login.greq
allow-dependency-failure: true
====
GET /items/$(dep.status-code) HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	var warnings []string
	r := NewRunner(nil)
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	result := r.Execute(context.Background(), profile)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "failed")
}

func TestExecute_RetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// slam the connection shut so the client sees a transport error
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "flaky.greq", `is-http: true
number-of-retries: 2
====
GET /flaky HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	result := NewRunner(nil).Execute(context.Background(), path)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_StatusErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "unhealthy.greq", `is-http: true
number-of-retries: 3
====
GET /health HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	result := NewRunner(nil).Execute(context.Background(), path)
	require.NoError(t, result.Err)
	assert.False(t, result.Success)
	assert.Equal(t, int32(1), calls.Load())
}

func TestExecute_DependencyCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.greq", "depends-on: ./b.greq\n====\nGET / HTTP/1.1\nHost: x\n====\n")
	writeFile(t, dir, "b.greq", "depends-on: ./a.greq\n====\nGET / HTTP/1.1\nHost: x\n====\n")

	result := NewRunner(nil).Execute(context.Background(), filepath.Join(dir, "a.greq"))
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "circular")
}

func TestExecuteAll_KeepsInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	dir := t.TempDir()
	var paths []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("req%d.greq", i)
		paths = append(paths, writeFile(t, dir, name, `is-http: true
====
GET /`+name+` HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`))
	}

	results := NewRunner(&Config{Concurrency: 3}).ExecuteAll(context.Background(), paths)
	require.Len(t, results, len(paths))
	for i, result := range results {
		assert.Equal(t, paths[i], result.Path)
		assert.True(t, result.Success, paths[i])
	}
}

func TestExecute_ConditionValuesAreSubstituted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			fmt.Fprint(w, `{"version": "2.4.1"}`)
		default:
			fmt.Fprint(w, `{"deployed": "2.4.1"}`)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	writeFile(t, dir, "version.greq", `is-http: true
====
GET /version HTTP/1.1
Host: `+testHost(server)+`
====
status-code equals: 200`)

	deployed := writeFile(t, dir, "deployed.greq", `is-http: true
depends-on: ./version.greq
====
GET /deployed HTTP/1.1
Host: `+testHost(server)+`
====
response-body.deployed equals: $(dependency.response-body.version)`)

	result := NewRunner(nil).Execute(context.Background(), deployed)
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
}
