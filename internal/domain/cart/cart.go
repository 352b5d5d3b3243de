// Package cart holds the client-side shopping cart. The cart never talks to
// the API: it lives in memory, is saved by its owner after each action and
// is only turned into an order at checkout.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/observe"
)

// Item is one product line in the cart. Quantity is always in [1, Product.Stock].
type Item struct {
	Product  product.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// State is a point-in-time copy of the cart.
type State struct {
	Items     []Item
	IsLoading bool
	Error     string
}

// Cart is the set of line items for the active session. It holds at most one
// item per product id. Safe for concurrent use.
type Cart struct {
	lg *zap.Logger

	mu    sync.Mutex
	items []Item
	// generation advances on Reset so holders of an older view can detect
	// that the cart now belongs to a different session.
	generation uint64

	changes observe.Subject
}

// New returns an empty cart.
func New(lg *zap.Logger) *Cart {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Cart{lg: lg}
}

// AddItem adds quantity units of p, merging with an existing line for the
// same product. The resulting quantity is clamped to p.Stock; a non-positive
// quantity is ignored.
func (c *Cart) AddItem(p product.Product, quantity int) {
	if quantity <= 0 {
		return
	}

	c.mu.Lock()
	want := quantity
	i := c.indexLocked(p.ID)
	if i >= 0 {
		want += c.items[i].Quantity
	}
	got := min(want, p.Stock)
	if got < want {
		c.lg.Warn("Requested quantity exceeds stock, clamping",
			zap.Int64("product_id", p.ID),
			zap.Int("requested", want),
			zap.Int("stock", p.Stock),
		)
	}

	changed := true
	switch {
	case i < 0 && got < 1:
		changed = false
	case i < 0:
		c.items = append(c.items, Item{Product: p, Quantity: got})
	case got < 1:
		c.items = slices.Delete(c.items, i, i+1)
	default:
		// Keep the fresher product snapshot along with the new quantity.
		c.items[i] = Item{Product: p, Quantity: got}
	}
	c.mu.Unlock()

	if changed {
		c.changes.Notify()
	}
}

// RemoveItem deletes the line for productID if present.
func (c *Cart) RemoveItem(productID int64) {
	c.mu.Lock()
	i := c.indexLocked(productID)
	if i >= 0 {
		c.items = slices.Delete(c.items, i, i+1)
	}
	c.mu.Unlock()

	if i >= 0 {
		c.changes.Notify()
	}
}

// UpdateQuantity sets the quantity of an existing line, clamped to the
// product's stock. A non-positive quantity removes the line. Unknown
// products are ignored.
func (c *Cart) UpdateQuantity(productID int64, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}

	c.mu.Lock()
	i := c.indexLocked(productID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	stock := c.items[i].Product.Stock
	got := min(quantity, stock)
	if got < quantity {
		c.lg.Warn("Requested quantity exceeds stock, clamping",
			zap.Int64("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("stock", stock),
		)
	}
	if got < 1 {
		c.items = slices.Delete(c.items, i, i+1)
	} else {
		c.items[i].Quantity = got
	}
	c.mu.Unlock()

	c.changes.Notify()
}

// Increment adds one unit to an existing line.
func (c *Cart) Increment(productID int64) {
	if q := c.ItemQuantity(productID); q > 0 {
		c.UpdateQuantity(productID, q+1)
	}
}

// Decrement removes one unit from an existing line, dropping it at zero.
func (c *Cart) Decrement(productID int64) {
	if q := c.ItemQuantity(productID); q > 0 {
		c.UpdateQuantity(productID, q-1)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()

	c.changes.Notify()
}

// ClearIfGeneration empties the cart only if it has not been reset since gen
// was observed. It reports whether the cart was cleared.
func (c *Cart) ClearIfGeneration(gen uint64) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	c.items = nil
	c.mu.Unlock()

	c.changes.Notify()
	return true
}

// Reset empties the cart and starts a new generation. Called when the
// authenticated identity changes.
func (c *Cart) Reset() {
	c.mu.Lock()
	c.items = nil
	c.generation++
	c.mu.Unlock()

	c.changes.Notify()
}

// Restore replaces the cart with previously saved items. Lines are
// normalised: duplicates merged, quantities clamped to stock, empty lines
// dropped.
func (c *Cart) Restore(items []Item) {
	normalized := make([]Item, 0, len(items))
	for _, it := range items {
		i := slices.IndexFunc(normalized, func(n Item) bool { return n.Product.ID == it.Product.ID })
		if i >= 0 {
			normalized[i].Quantity += it.Quantity
			normalized[i].Product = it.Product
			continue
		}
		normalized = append(normalized, it)
	}
	normalized = slices.DeleteFunc(normalized, func(it Item) bool {
		return min(it.Quantity, it.Product.Stock) < 1
	})
	for i := range normalized {
		normalized[i].Quantity = min(normalized[i].Quantity, normalized[i].Product.Stock)
	}

	c.mu.Lock()
	c.items = normalized
	c.mu.Unlock()

	c.changes.Notify()
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Snapshot returns the line items together with the current generation.
func (c *Cart) Snapshot() ([]Item, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items), c.generation
}

// State returns a copy of the cart state.
func (c *Cart) State() State {
	return State{Items: c.Items()}
}

// TotalItems is the sum of quantities.
func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, it := range c.items {
		total += it.Quantity
	}
	return total
}

// TotalPrice is the sum of price times quantity.
func (c *Cart) TotalPrice() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.Product.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// ItemQuantity returns the quantity held for productID, or 0.
func (c *Cart) ItemQuantity(productID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexLocked(productID); i >= 0 {
		return c.items[i].Quantity
	}
	return 0
}

// Contains reports whether the cart has a line for productID.
func (c *Cart) Contains(productID int64) bool {
	return c.ItemQuantity(productID) > 0
}

// Subscribe registers fn to run after every change.
func (c *Cart) Subscribe(fn func()) (cancel func()) {
	return c.changes.Subscribe(fn)
}

func (c *Cart) indexLocked(productID int64) int {
	return slices.IndexFunc(c.items, func(it Item) bool { return it.Product.ID == productID })
}
