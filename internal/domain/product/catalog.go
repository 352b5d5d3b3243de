package product

import (
	"context"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/observe"
)

// State is a point-in-time copy of the catalog.
type State struct {
	Products   []Product
	Pagination *Pagination
	IsLoading  bool
	Error      string
}

// Catalog holds the most recently fetched product listing.
type Catalog struct {
	gw Gateway
	lg *zap.Logger

	mu         sync.Mutex
	products   []Product
	pagination *Pagination
	err        string
	inflight   int
	// seq orders overlapping fetches: only the latest issued one may apply.
	seq uint64

	changes observe.Subject
}

// NewCatalog returns an empty Catalog reading from gw.
func NewCatalog(gw Gateway, lg *zap.Logger) *Catalog {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Catalog{gw: gw, lg: lg}
}

// Fetch replaces the listing with the page matching f. Failures are recorded
// in the catalog error and wipe the listing.
func (c *Catalog) Fetch(ctx context.Context, f Filters) {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.inflight++
	c.err = ""
	c.mu.Unlock()
	c.changes.Notify()

	page, err := c.gw.List(ctx, f)

	c.mu.Lock()
	c.inflight--
	if seq != c.seq {
		c.mu.Unlock()
		c.lg.Debug("Dropping superseded product listing", zap.Uint64("seq", seq))
		return
	}
	if err != nil {
		apierr.Log(c.lg, err, "catalog.Fetch")
		c.err = apierr.Message(err, "Failed to load products")
		c.products = nil
		c.pagination = nil
	} else {
		c.products = page.Products
		p := page.Pagination
		c.pagination = &p
	}
	c.mu.Unlock()
	c.changes.Notify()
}

// Find returns a locally known product.
func (c *Catalog) Find(id int64) (Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.products, func(p Product) bool { return p.ID == id })
	if i < 0 {
		return Product{}, false
	}
	return c.products[i], true
}

// Lookup returns the product with the given id, asking the API only when it
// is not part of the current listing.
func (c *Catalog) Lookup(ctx context.Context, id int64) (Product, error) {
	if p, ok := c.Find(id); ok {
		return p, nil
	}
	p, err := c.gw.Get(ctx, id)
	if err != nil {
		if apierr.IsNotFound(err) {
			return Product{}, ErrNotFound
		}
		return Product{}, errors.Wrapf(err, "get product %d", id)
	}
	return *p, nil
}

// State returns a copy of the catalog state.
func (c *Catalog) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Products:  slices.Clone(c.products),
		IsLoading: c.inflight > 0,
		Error:     c.err,
	}
	if c.pagination != nil {
		p := *c.pagination
		s.Pagination = &p
	}
	return s
}

// Subscribe registers fn to run after every state change.
func (c *Catalog) Subscribe(fn func()) (cancel func()) {
	return c.changes.Subscribe(fn)
}
