package apierr

import (
	"net/http"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
		details []string
	}{
		{
			name:    "message only",
			body:    `{"message":"Invalid credentials"}`,
			message: "Invalid credentials",
		},
		{
			name:    "validation details",
			body:    `{"errors":[{"msg":"Email is required","param":"email"},{"msg":"Password too short"}]}`,
			details: []string{"Email is required", "Password too short"},
		},
		{
			name:    "unknown fields skipped",
			body:    `{"status":"fail","data":{"x":[1,2]},"message":"Out of stock"}`,
			message: "Out of stock",
		},
		{
			name: "not json",
			body: `<html>Bad Gateway</html>`,
		},
		{
			name: "empty",
			body: ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Parse(http.StatusBadRequest, []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, e.Status)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.details, e.Details)
		})
	}
}

func TestMessage(t *testing.T) {
	const fallback = "Failed to load orders"

	assert.Equal(t, "Forbidden", Message(&Error{Status: 403, Message: "Forbidden"}, fallback))
	assert.Equal(t, "a; b", Message(&Error{Status: 422, Details: []string{"a", "b"}}, fallback))
	assert.Equal(t, fallback, Message(&Error{Status: 500}, fallback))
	assert.Equal(t, fallback, Message(errors.New("dial tcp: connection refused"), fallback))

	wrapped := errors.Wrap(&Error{Status: 409, Message: "Conflict"}, "update status")
	assert.Equal(t, "Conflict", Message(wrapped, fallback))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(errors.Wrap(&Error{Status: http.StatusUnauthorized}, "me")))
	assert.False(t, IsUnauthorized(&Error{Status: http.StatusForbidden}))
	assert.False(t, IsUnauthorized(errors.New("timeout")))
	assert.True(t, IsNotFound(&Error{Status: http.StatusNotFound}))
}
