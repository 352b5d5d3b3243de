// Package checkout turns the cart into an order.
package checkout

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/domain/cart"
	"github.com/xenking/grocery-kart/internal/domain/order"
)

// ErrCartEmpty is the message returned for a checkout with nothing in the
// cart.
const ErrCartEmpty = "Cart is empty"

// Cart is the part of the cart aggregate checkout needs.
type Cart interface {
	Snapshot() ([]cart.Item, uint64)
	ClearIfGeneration(gen uint64) bool
}

// Orders is the part of the order aggregate checkout needs.
type Orders interface {
	Create(ctx context.Context, req order.CreateRequest) order.Result
}

// Options configures an Orchestrator.
type Options struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Orchestrator places orders from the cart.
type Orchestrator struct {
	cart   Cart
	orders Orders
	lg     *zap.Logger
	tracer trace.Tracer

	attempts metric.Int64Counter
}

// New returns an Orchestrator.
func New(c Cart, orders Orders, opts Options) (*Orchestrator, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}

	attempts, err := opts.MeterProvider.Meter("storefront.checkout").Int64Counter(
		"storefront.checkout.attempts",
		metric.WithDescription("Checkout attempts by result"),
	)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cart:     c,
		orders:   orders,
		lg:       opts.Logger,
		tracer:   opts.TracerProvider.Tracer("storefront.checkout"),
		attempts: attempts,
	}, nil
}

// PlaceOrder submits the current cart for delivery to address. The cart is
// read when the call is made. It is cleared only if the order was created
// and the cart has not been reset since it was read, so a failed checkout
// keeps the user's selection. The order result is returned unchanged.
func (o *Orchestrator) PlaceOrder(ctx context.Context, address string) order.Result {
	ctx, span := o.tracer.Start(ctx, "checkout.PlaceOrder")
	defer span.End()

	items, gen := o.cart.Snapshot()
	if len(items) == 0 {
		o.record(ctx, "empty")
		return order.Result{Error: ErrCartEmpty}
	}

	req := order.CreateRequest{
		Items:   make([]order.CreateItem, len(items)),
		Address: address,
	}
	for i, it := range items {
		req.Items[i] = order.CreateItem{ProductID: it.Product.ID, Quantity: it.Quantity}
	}
	span.SetAttributes(attribute.Int("checkout.lines", len(items)))

	res := o.orders.Create(ctx, req)
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
		o.record(ctx, "failed")
		o.lg.Info("Checkout failed, cart kept", zap.String("error", res.Error))
		return res
	}

	if !o.cart.ClearIfGeneration(gen) {
		o.lg.Info("Cart reset during checkout, not cleared")
	}
	if res.Order != nil {
		span.SetAttributes(attribute.Int64("order.id", res.Order.ID))
		o.lg.Info("Order placed",
			zap.Int64("order_id", res.Order.ID),
			zap.String("total", res.Order.TotalAmount.String()),
		)
	}
	o.record(ctx, "success")
	return res
}

func (o *Orchestrator) record(ctx context.Context, result string) {
	o.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
