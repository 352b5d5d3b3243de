// Package apierr defines the structured error returned by the storefront API
// and the message extraction policy shared by every aggregate.
package apierr

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"
)

// Error is a non-2xx response from the API.
type Error struct {
	Status  int
	Message string
	// Details holds per-field validation messages ("errors[].msg").
	Details []string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Parse builds an Error from a response status and body. Bodies that are not
// JSON objects yield an Error with only the status set.
func Parse(status int, body []byte) *Error {
	e := &Error{Status: status}

	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return e
	}
	// Partial bodies still carry useful fields, so decode errors are dropped.
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if e.Message == "" {
				e.Message = s
			}
			return nil
		case "errors":
			if d.Next() != jx.Array {
				return d.Skip()
			}
			return d.Arr(func(d *jx.Decoder) error {
				if d.Next() != jx.Object {
					return d.Skip()
				}
				return d.Obj(func(d *jx.Decoder, key string) error {
					if key != "msg" || d.Next() != jx.String {
						return d.Skip()
					}
					s, err := d.Str()
					if err != nil {
						return err
					}
					e.Details = append(e.Details, s)
					return nil
				})
			})
		default:
			return d.Skip()
		}
	})
	return e
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}

// Message reduces err to a human-readable string: the server-supplied
// message, then joined validation details, then fallback.
func Message(err error, fallback string) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return fallback
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if len(apiErr.Details) > 0 {
		return strings.Join(apiErr.Details, "; ")
	}
	return fallback
}

// Log records err against the operation that produced it.
func Log(lg *zap.Logger, err error, op string) {
	lg.Warn("Operation failed",
		zap.String("op", op),
		zap.Int("status", StatusOf(err)),
		zap.Error(err),
	)
}
