// Package storefront is the composition root of the storefront state layer.
// It owns one instance of every aggregate, wires identity-change
// notifications between them and saves their state after each action.
package storefront

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apiclient"
	"github.com/xenking/grocery-kart/internal/checkout"
	"github.com/xenking/grocery-kart/internal/domain/cart"
	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/domain/user"
	"github.com/xenking/grocery-kart/internal/events"
	"github.com/xenking/grocery-kart/internal/storage"
)

// Persisted keys.
const (
	KeyCart   = "cart-storage"
	KeyOrders = "order-storage"
	KeyAuth   = "auth-storage"
	KeyToken  = "token"
)

// sessionKeys are removed together on logout.
var sessionKeys = []string{KeyCart, KeyOrders, KeyAuth, KeyToken}

// ErrNotAuthenticated is returned by actions that need a signed-in user.
var ErrNotAuthenticated = errors.New("not signed in")

// ErrNotInCart is returned when editing a line the cart does not hold.
var ErrNotInCart = errors.New("not in cart")

// Gateways are the remote APIs the aggregates talk to.
type Gateways struct {
	Auth       session.Authenticator
	Orders     order.Gateway
	Products   product.Gateway
	Categories product.CategoryGateway
	Users      user.Gateway
}

// RemoteGateways binds every gateway to the REST API behind c.
func RemoteGateways(c *apiclient.Client) Gateways {
	return Gateways{
		Auth:       apiclient.NewAuthAPI(c),
		Orders:     apiclient.NewOrderAPI(c),
		Products:   apiclient.NewProductAPI(c),
		Categories: apiclient.NewCategoryAPI(c),
		Users:      apiclient.NewUserAPI(c),
	}
}

// Options configures a Storefront.
type Options struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	// Now is the clock used to check stored token expiry.
	Now func() time.Time
}

// Storefront holds the aggregates of one client.
type Storefront struct {
	Cart       *cart.Cart
	Orders     *order.Store
	Catalog    *product.Catalog
	Categories *product.Categories
	Users      *user.Directory
	Session    *session.Session
	Checkout   *checkout.Orchestrator

	kv     storage.KV
	gw     Gateways
	bus    *events.Bus
	lg     *zap.Logger
	now    func() time.Time
	cancel context.CancelFunc
}

// New builds a Storefront on kv. Call Load to restore saved state and Close
// when done. kv is not closed by Close.
func New(kv storage.KV, gw Gateways, opts Options) (*Storefront, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := opts.Logger

	bus := events.NewBus(lg.Named("events"))
	s := &Storefront{
		Cart:       cart.New(lg.Named("cart")),
		Orders:     order.NewStore(gw.Orders, lg.Named("orders")),
		Catalog:    product.NewCatalog(gw.Products, lg.Named("catalog")),
		Categories: product.NewCategories(gw.Categories, lg.Named("categories")),
		Users:      user.NewDirectory(gw.Users, lg.Named("users")),
		kv:         kv,
		gw:         gw,
		bus:        bus,
		lg:         lg,
		now:        opts.Now,
	}
	s.Session = session.New(gw.Auth, tokenStore{kv: kv}, bus, session.Options{
		Logger:         lg.Named("session"),
		TracerProvider: opts.TracerProvider,
	})

	co, err := checkout.New(s.Cart, s.Orders, checkout.Options{
		Logger:         lg.Named("checkout"),
		TracerProvider: opts.TracerProvider,
		MeterProvider:  opts.MeterProvider,
	})
	if err != nil {
		_ = bus.Close()
		return nil, errors.Wrap(err, "create checkout")
	}
	s.Checkout = co

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := s.subscribe(ctx); err != nil {
		cancel()
		_ = bus.Close()
		return nil, err
	}
	return s, nil
}

// subscribe registers the aggregates' reactions to identity changes.
func (s *Storefront) subscribe(ctx context.Context) error {
	handlers := []struct {
		name string
		h    events.Handler
	}{
		{"cart", func(context.Context, session.Event) error {
			s.Cart.Reset()
			return nil
		}},
		{"orders", func(context.Context, session.Event) error {
			s.Orders.Reset()
			return nil
		}},
		{"users", func(context.Context, session.Event) error {
			s.Users.Reset()
			return nil
		}},
		{"storage", func(ctx context.Context, e session.Event) error {
			if e.Kind != session.EventLogout {
				return nil
			}
			return s.kv.Delete(ctx, sessionKeys...)
		}},
	}
	for _, h := range handlers {
		if err := s.bus.Subscribe(ctx, h.name, h.h); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the event subscriptions.
func (s *Storefront) Close() error {
	s.cancel()
	return s.bus.Close()
}
