package order

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/grocery-kart/internal/domain/product"
)

// Status is the server-authoritative lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusPaid, StatusShipped, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = errors.New("order must contain at least one item")
	ErrAddressRequired = errors.New("delivery address is required")
	ErrInvalidStatus   = errors.New("invalid order status")
	// ErrSuperseded is returned when the session changed while a request was
	// in flight and its result was discarded.
	ErrSuperseded = errors.New("session changed before the response arrived")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// Owner is the user an order belongs to, populated in staff views.
type Owner struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// LineItem records the quantity and unit price at the time of purchase.
type LineItem struct {
	ID              int64            `json:"id"`
	Quantity        int              `json:"quantity"`
	PriceAtPurchase decimal.Decimal  `json:"priceAtPurchase"`
	ProductID       int64            `json:"ProductId"`
	Product         *product.Product `json:"Product,omitempty"`
}

// Order is a server-confirmed order. The id is always assigned by the API.
type Order struct {
	ID          int64             `json:"id"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Status      Status            `json:"status"`
	Address     string            `json:"address"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	UserID      int64             `json:"UserId"`
	Owner       *Owner            `json:"User,omitempty"`
	Products    []product.Product `json:"Products,omitempty"`
	Items       []LineItem        `json:"OrderItems,omitempty"`
}

// Clone returns a deep copy of o.
func (o Order) Clone() Order {
	if o.Owner != nil {
		owner := *o.Owner
		o.Owner = &owner
	}
	o.Products = slices.Clone(o.Products)
	if o.Items != nil {
		items := make([]LineItem, len(o.Items))
		for i, it := range o.Items {
			if it.Product != nil {
				p := *it.Product
				it.Product = &p
			}
			items[i] = it
		}
		o.Items = items
	}
	return o
}

// CreateItem is one requested line of a new order.
type CreateItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// CreateRequest is the payload of POST /orders.
type CreateRequest struct {
	Items   []CreateItem `json:"items"`
	Address string       `json:"address"`
}

// Validate checks the request before it is sent.
func (r CreateRequest) Validate() error {
	if len(r.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	if strings.TrimSpace(r.Address) == "" {
		return ErrAddressRequired
	}
	return nil
}

// Gateway is the remote order API.
type Gateway interface {
	// List returns every order (staff scope).
	List(ctx context.Context) ([]Order, error)
	// ListOwn returns the orders of the authenticated user.
	ListOwn(ctx context.Context) ([]Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	Create(ctx context.Context, req CreateRequest) (*Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) (*Order, error)
}
