package placeholder

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	greqhttp "github.com/sgchris/greq-sub000/packages/http"
)

func depResponse() *greqhttp.Response {
	return &greqhttp.Response{
		StatusCode: 200,
		Headers: map[string]string{
			"content-type": "application/json",
			"x-token":      "tok-999",
		},
		Body:     []byte(`{"id": 42, "user": {"name": "Alice"}, "items": [{"id": 1}, {"id": 2}], "deleted": null}`),
		Duration: 85 * time.Millisecond,
	}
}

func TestSubstitute_Environment(t *testing.T) {
	t.Setenv("GREQ_TEST_TOKEN", "secret")

	e := New("api.greq")
	out, err := e.Substitute("uri", "/login?token=$(environment.GREQ_TEST_TOKEN)")
	require.NoError(t, err)
	assert.Equal(t, "/login?token=secret", out)
}

func TestSubstitute_EnvironmentUnset(t *testing.T) {
	e := New("api.greq")
	_, err := e.Substitute("uri", "$(environment.GREQ_TEST_DOES_NOT_EXIST)")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "environment.GREQ_TEST_DOES_NOT_EXIST", perr.Path)
	assert.Equal(t, "uri", perr.Field)
}

func TestSubstitute_DependencyProjections(t *testing.T) {
	e := New("api.greq", WithDependency(depResponse()))

	tests := []struct {
		text string
		want string
	}{
		{"$(dependency.status-code)", "200"},
		{"$(dep.status-code)", "200"},
		{"$(dependency.latency)", "85"},
		{"$(dependency.response-body.id)", "42"},
		{"$(dependency.response-body.user.name)", "Alice"},
		{"$(dependency.response-body.items[0].id)", "1"},
		{"$(dep.response-body.items[1].id)", "2"},
		{"$(dependency.response-body.deleted)", "null"},
		{"$(dependency.headers.X-Token)", "tok-999"},
		{"$(dependency.headers.x-missing)", ""},
		{"Bearer $(dep.headers.x-token)", "Bearer tok-999"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			out, err := e.Substitute("header", tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSubstitute_NestedObjectRendersRawJSON(t *testing.T) {
	e := New("api.greq", WithDependency(depResponse()))
	out, err := e.Substitute("body", "$(dependency.response-body.user)")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Alice"}`, out)
}

func TestSubstitute_WholeHeadersSortedByName(t *testing.T) {
	e := New("api.greq", WithDependency(depResponse()))
	out, err := e.Substitute("body", "$(dependency.headers)")
	require.NoError(t, err)
	assert.Equal(t, "content-type: application/json\nx-token: tok-999", out)
}

func TestSubstitute_MissingBodyPathErrors(t *testing.T) {
	e := New("api.greq", WithDependency(depResponse()))
	_, err := e.Substitute("uri", "$(dependency.response-body.nope)")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "response body")
}

func TestSubstitute_NonJSONBodyPathErrors(t *testing.T) {
	resp := &greqhttp.Response{StatusCode: 200, Body: []byte("plain")}
	e := New("api.greq", WithDependency(resp))
	_, err := e.Substitute("uri", "$(dependency.response-body.id)")
	var perr *Error
	require.ErrorAs(t, err, &perr)
}

func TestSubstitute_NoDependencyDeclared(t *testing.T) {
	e := New("api.greq")
	_, err := e.Substitute("uri", "$(dependency.status-code)")
	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "depends-on")
}

func TestSubstitute_UnknownRoot(t *testing.T) {
	e := New("api.greq")
	_, err := e.Substitute("uri", "$(config.timeout)")
	var perr *Error
	require.ErrorAs(t, err, &perr)
}

func TestSubstitute_FailedDependencySubstitutesEmpty(t *testing.T) {
	var warnings []string
	e := New("api.greq",
		WithFailedDependency(),
		WithWarnFunc(func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		}))

	out, err := e.Substitute("uri", "/users/$(dependency.response-body.id)?s=$(dep.status-code)")
	require.NoError(t, err)
	assert.Equal(t, "/users/?s=", out)

	// warned once per engine, not per reference
	out, err = e.Substitute("body", "$(dependency.response-body)")
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "api.greq")
}

func TestSubstitute_EscapedReferenceLeftLiteral(t *testing.T) {
	e := New("api.greq")
	out, err := e.Substitute("body", `literal \$(environment.SHELL) stays`)
	require.NoError(t, err)
	assert.Equal(t, "literal $(environment.SHELL) stays", out)
}

func TestSubstitute_BackslashParity(t *testing.T) {
	t.Setenv("GREQ_TEST_PARITY", "v")
	e := New("api.greq")

	// double backslash does not escape the reference
	out, err := e.Substitute("body", `a\\$(environment.GREQ_TEST_PARITY)b`)
	require.NoError(t, err)
	assert.Equal(t, `a\\vb`, out)

	// three backslashes: the last one escapes again
	out, err = e.Substitute("body", `a\\\$(environment.GREQ_TEST_PARITY)b`)
	require.NoError(t, err)
	assert.Equal(t, `a\\$(environment.GREQ_TEST_PARITY)b`, out)
}

func TestSubstitute_UnterminatedReferenceLeftAsIs(t *testing.T) {
	e := New("api.greq")
	out, err := e.Substitute("body", "broken $(environment.X")
	require.NoError(t, err)
	assert.Equal(t, "broken $(environment.X", out)
}

func TestSubstitute_NoReferencesPassthrough(t *testing.T) {
	e := New("api.greq")
	out, err := e.Substitute("body", "plain text, even with $ and (parens)")
	require.NoError(t, err)
	assert.Equal(t, "plain text, even with $ and (parens)", out)
}

func TestSubstitute_MultipleReferences(t *testing.T) {
	t.Setenv("GREQ_TEST_HOST", "api.internal")
	e := New("api.greq", WithDependency(depResponse()))

	out, err := e.Substitute("uri", "https://$(environment.GREQ_TEST_HOST)/users/$(dependency.response-body.id)")
	require.NoError(t, err)
	assert.Equal(t, "https://api.internal/users/42", out)
}
