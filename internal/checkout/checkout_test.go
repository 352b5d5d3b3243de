package checkout

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/grocery-kart/internal/domain/cart"
	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
)

type mockOrders struct {
	calls  int
	last   order.CreateRequest
	result order.Result
	// during runs inside Create, before the result is returned.
	during func()
}

func (m *mockOrders) Create(_ context.Context, req order.CreateRequest) order.Result {
	m.calls++
	m.last = req
	if m.during != nil {
		m.during()
	}
	return m.result
}

func fillCart(t *testing.T) *cart.Cart {
	t.Helper()
	c := cart.New(nil)
	c.AddItem(product.Product{ID: 1, Name: "Apples", Price: decimal.NewFromInt(10), Stock: 5}, 2)
	c.AddItem(product.Product{ID: 2, Name: "Pears", Price: decimal.NewFromInt(5), Stock: 5}, 1)
	return c
}

func newOrchestrator(t *testing.T, c Cart, orders Orders) *Orchestrator {
	t.Helper()
	o, err := New(c, orders, Options{})
	require.NoError(t, err)
	return o
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	orders := &mockOrders{}
	o := newOrchestrator(t, cart.New(nil), orders)

	res := o.PlaceOrder(context.Background(), "123 Main St")

	assert.Equal(t, order.Result{Error: "Cart is empty"}, res)
	assert.Zero(t, orders.calls)
}

func TestPlaceOrder_Success(t *testing.T) {
	c := fillCart(t)
	placed := &order.Order{ID: 11, Status: order.StatusPending, TotalAmount: decimal.NewFromInt(25)}
	orders := &mockOrders{result: order.Result{Success: true, Order: placed}}
	o := newOrchestrator(t, c, orders)

	res := o.PlaceOrder(context.Background(), "123 Main St")

	require.True(t, res.Success)
	assert.Same(t, placed, res.Order)
	assert.Equal(t, "123 Main St", orders.last.Address)
	assert.ElementsMatch(t, []order.CreateItem{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}, orders.last.Items)
	assert.Empty(t, c.Items())
}

func TestPlaceOrder_FailureKeepsCart(t *testing.T) {
	c := fillCart(t)
	before := c.Items()
	orders := &mockOrders{result: order.Result{Error: "Insufficient stock for Apples"}}
	o := newOrchestrator(t, c, orders)

	res := o.PlaceOrder(context.Background(), "123 Main St")

	assert.Equal(t, order.Result{Error: "Insufficient stock for Apples"}, res)
	assert.Equal(t, before, c.Items())
	assert.Equal(t, 1, orders.calls)
}

func TestPlaceOrder_ReadsCartAtCallTime(t *testing.T) {
	c := cart.New(nil)
	orders := &mockOrders{result: order.Result{Success: true, Order: &order.Order{ID: 1}}}
	o := newOrchestrator(t, c, orders)

	c.AddItem(product.Product{ID: 9, Price: decimal.NewFromInt(1), Stock: 3}, 3)
	res := o.PlaceOrder(context.Background(), "x")

	require.True(t, res.Success)
	assert.Equal(t, []order.CreateItem{{ProductID: 9, Quantity: 3}}, orders.last.Items)
}

func TestPlaceOrder_CartResetDuringRequest(t *testing.T) {
	c := fillCart(t)
	next := product.Product{ID: 5, Price: decimal.NewFromInt(1), Stock: 9}
	orders := &mockOrders{
		result: order.Result{Success: true, Order: &order.Order{ID: 1}},
		// Another user signs in and starts shopping while the request is out.
		during: func() {
			c.Reset()
			c.AddItem(next, 1)
		},
	}
	o := newOrchestrator(t, c, orders)

	res := o.PlaceOrder(context.Background(), "x")

	require.True(t, res.Success)
	assert.Equal(t, 1, c.ItemQuantity(next.ID), "new session's cart must survive")
}

func TestPlaceOrder_EditsDuringRequestAreCleared(t *testing.T) {
	c := fillCart(t)
	extra := product.Product{ID: 5, Price: decimal.NewFromInt(1), Stock: 9}
	orders := &mockOrders{
		result: order.Result{Success: true, Order: &order.Order{ID: 1}},
		// Same session keeps shopping while the request is out.
		during: func() { c.AddItem(extra, 1) },
	}
	o := newOrchestrator(t, c, orders)

	res := o.PlaceOrder(context.Background(), "x")

	require.True(t, res.Success)
	assert.Empty(t, c.Items())
	assert.NotContains(t, orders.last.Items, order.CreateItem{ProductID: extra.ID, Quantity: 1})
}
