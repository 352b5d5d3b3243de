package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a server-owned catalog item. Stock is the last-known quantity
// available and caps how many units a cart may hold.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Image       string          `json:"image,omitempty"`
	CategoryID  int64           `json:"categoryId"`
	Category    *Category       `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Category is a node of the category tree. As a product's embedded
// reference it carries no children.
type Category struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	Slug     string     `json:"slug"`
	ParentID *int64     `json:"parentId,omitempty"`
	Children []Category `json:"children,omitempty"`
}

// Filters narrows a catalog listing. Zero values are not sent.
type Filters struct {
	Page       int
	Limit      int
	Search     string
	CategoryID int64
	MinPrice   decimal.NullDecimal
	MaxPrice   decimal.NullDecimal
}

// Pagination describes the page returned by a listing.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of catalog products.
type Page struct {
	Products   []Product  `json:"products"`
	Pagination Pagination `json:"pagination"`
}

// Gateway reads the remote catalog.
type Gateway interface {
	List(ctx context.Context, f Filters) (*Page, error)
	Get(ctx context.Context, id int64) (*Product, error)
}
