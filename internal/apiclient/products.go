package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xenking/grocery-kart/internal/domain/product"
)

var _ product.Gateway = (*ProductAPI)(nil)

// ProductAPI implements product.Gateway.
type ProductAPI struct {
	c *Client
}

// NewProductAPI returns a ProductAPI using c.
func NewProductAPI(c *Client) *ProductAPI {
	return &ProductAPI{c: c}
}

func (a *ProductAPI) List(ctx context.Context, f product.Filters) (*product.Page, error) {
	var out product.Page
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/products", query: filterQuery(f)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *ProductAPI) Get(ctx context.Context, id int64) (*product.Product, error) {
	var out product.Product
	path := "/products/" + strconv.FormatInt(id, 10)
	if err := a.c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func filterQuery(f product.Filters) url.Values {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.CategoryID > 0 {
		q.Set("categoryId", strconv.FormatInt(f.CategoryID, 10))
	}
	if f.MinPrice.Valid {
		q.Set("minPrice", f.MinPrice.Decimal.String())
	}
	if f.MaxPrice.Valid {
		q.Set("maxPrice", f.MaxPrice.Decimal.String())
	}
	return q
}
