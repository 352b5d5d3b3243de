package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"

	"github.com/xenking/grocery-kart/internal/domain/user"
)

var _ user.Gateway = (*UserAPI)(nil)

// UserAPI implements user.Gateway.
type UserAPI struct {
	c *Client
}

// NewUserAPI returns a UserAPI using c.
func NewUserAPI(c *Client) *UserAPI {
	return &UserAPI{c: c}
}

func (a *UserAPI) List(ctx context.Context) ([]user.Account, error) {
	var out []user.Account
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/users"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *UserAPI) UpdateRole(ctx context.Context, id int64, role user.Role) error {
	return a.c.do(ctx, request{
		method: http.MethodPut,
		path:   "/users/" + strconv.FormatInt(id, 10) + "/role",
		body:   map[string]user.Role{"role": role},
	}, nil)
}

func errMissing(field string) error {
	return errors.Errorf("response has no %s", field)
}
