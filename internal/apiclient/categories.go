package apiclient

import (
	"context"
	"net/http"

	"github.com/xenking/grocery-kart/internal/domain/product"
)

var _ product.CategoryGateway = (*CategoryAPI)(nil)

// CategoryAPI implements product.CategoryGateway.
type CategoryAPI struct {
	c *Client
}

func NewCategoryAPI(c *Client) *CategoryAPI {
	return &CategoryAPI{c: c}
}

// Tree returns the root categories with their children.
func (a *CategoryAPI) Tree(ctx context.Context) ([]product.Category, error) {
	var out []product.Category
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/categories/tree"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
