package apiclient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/xenking/grocery-kart/internal/domain/order"
)

var _ order.Gateway = (*OrderAPI)(nil)

// OrderAPI implements order.Gateway.
type OrderAPI struct {
	c *Client
}

// NewOrderAPI returns an OrderAPI using c.
func NewOrderAPI(c *Client) *OrderAPI {
	return &OrderAPI{c: c}
}

type orderEnvelope struct {
	Message string       `json:"message"`
	Order   *order.Order `json:"order"`
}

func (a *OrderAPI) List(ctx context.Context) ([]order.Order, error) {
	var out []order.Order
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/orders"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *OrderAPI) ListOwn(ctx context.Context) ([]order.Order, error) {
	var out []order.Order
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/orders/my"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *OrderAPI) Get(ctx context.Context, id int64) (*order.Order, error) {
	var out order.Order
	if err := a.c.do(ctx, request{method: http.MethodGet, path: orderPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create sends a fresh Idempotency-Key so a proxy retry cannot place the
// order twice.
func (a *OrderAPI) Create(ctx context.Context, req order.CreateRequest) (*order.Order, error) {
	var out orderEnvelope
	err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/orders",
		header: http.Header{"Idempotency-Key": {uuid.NewString()}},
		body:   req,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, errMissing("order")
	}
	return out.Order, nil
}

func (a *OrderAPI) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	var out orderEnvelope
	err := a.c.do(ctx, request{
		method: http.MethodPut,
		path:   orderPath(id),
		body:   map[string]order.Status{"status": status},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Order == nil {
		return nil, errMissing("order")
	}
	return out.Order, nil
}

func orderPath(id int64) string {
	return "/orders/" + strconv.FormatInt(id, 10)
}
