package apiclient

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

var _ session.Authenticator = (*AuthAPI)(nil)

// AuthAPI implements session.Authenticator.
type AuthAPI struct {
	c *Client
}

// NewAuthAPI returns an AuthAPI using c.
func NewAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{c: c}
}

func (a *AuthAPI) Login(ctx context.Context, cr session.Credentials) (*session.AuthResponse, error) {
	var out session.AuthResponse
	if err := a.c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: cr}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) Register(ctx context.Context, r session.Registration) (*session.AuthResponse, error) {
	var out session.AuthResponse
	if err := a.c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: r}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me accepts both a bare user and {"user": {...}}.
func (a *AuthAPI) Me(ctx context.Context) (*user.User, error) {
	var raw json.RawMessage
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/auth/me"}, &raw); err != nil {
		return nil, err
	}

	var wrapped struct {
		User *user.User `json:"user"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, errors.Wrap(err, "decode user")
	}
	if wrapped.User != nil {
		return wrapped.User, nil
	}

	var u user.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, errors.Wrap(err, "decode user")
	}
	return &u, nil
}
