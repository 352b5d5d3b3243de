package storefront

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

// Destination is where the front end should go after an identity action.
type Destination string

const (
	DestHome  Destination = "home"
	DestAdmin Destination = "admin"
	DestLogin Destination = "login"
)

// Landing returns the landing page for role after login.
func Landing(role user.Role) Destination {
	if role.IsStaff() {
		return DestAdmin
	}
	return DestHome
}

// Login signs in. On failure the destination stays DestLogin.
func (s *Storefront) Login(ctx context.Context, c session.Credentials) (session.Result, Destination) {
	res := s.Session.Login(ctx, c)
	if !res.Success {
		return res, DestLogin
	}
	s.save(ctx, KeyAuth, KeyCart, KeyOrders)
	return res, Landing(res.User.Role)
}

// Register creates a customer account and signs it in. Registration always
// lands on the home page.
func (s *Storefront) Register(ctx context.Context, r session.Registration) (session.Result, Destination) {
	res := s.Session.Register(ctx, r)
	if !res.Success {
		return res, DestLogin
	}
	s.save(ctx, KeyAuth, KeyCart, KeyOrders)
	return res, DestHome
}

// Logout signs out. The identity subscribers drop every persisted key, so
// nothing is saved afterwards.
func (s *Storefront) Logout(ctx context.Context) Destination {
	s.Session.Logout(ctx)
	return DestLogin
}

// RefreshUser re-reads the current identity from the API.
func (s *Storefront) RefreshUser(ctx context.Context) (user.User, error) {
	if _, ok := s.Session.Identity(); !ok {
		return user.User{}, ErrNotAuthenticated
	}
	if err := s.Session.RefreshUser(ctx); err != nil {
		return user.User{}, err
	}
	u, ok := s.Session.Identity()
	if !ok {
		return user.User{}, ErrNotAuthenticated
	}
	s.save(ctx, KeyAuth)
	return u, nil
}

// AddToCart adds quantity units of the product with the given id.
func (s *Storefront) AddToCart(ctx context.Context, productID int64, quantity int) error {
	p, err := s.Catalog.Lookup(ctx, productID)
	if err != nil {
		return err
	}
	s.Cart.AddItem(p, quantity)
	s.save(ctx, KeyCart)
	return nil
}

func (s *Storefront) RemoveFromCart(ctx context.Context, productID int64) {
	s.Cart.RemoveItem(productID)
	s.save(ctx, KeyCart)
}

func (s *Storefront) SetQuantity(ctx context.Context, productID int64, quantity int) {
	s.Cart.UpdateQuantity(productID, quantity)
	s.save(ctx, KeyCart)
}

// IncrementItem adds one unit to a product already in the cart.
func (s *Storefront) IncrementItem(ctx context.Context, productID int64) error {
	if !s.Cart.Contains(productID) {
		return errors.Wrapf(ErrNotInCart, "product %d", productID)
	}
	s.Cart.Increment(productID)
	s.save(ctx, KeyCart)
	return nil
}

// DecrementItem removes one unit, dropping the line at zero.
func (s *Storefront) DecrementItem(ctx context.Context, productID int64) error {
	if !s.Cart.Contains(productID) {
		return errors.Wrapf(ErrNotInCart, "product %d", productID)
	}
	s.Cart.Decrement(productID)
	s.save(ctx, KeyCart)
	return nil
}

func (s *Storefront) ClearCart(ctx context.Context) {
	s.Cart.Clear()
	s.save(ctx, KeyCart)
}

// PlaceOrder checks out the cart.
func (s *Storefront) PlaceOrder(ctx context.Context, address string) order.Result {
	res := s.Checkout.PlaceOrder(ctx, address)
	s.save(ctx, KeyCart, KeyOrders)
	return res
}

// FetchOrders refreshes one of the list slots and returns it.
func (s *Storefront) FetchOrders(ctx context.Context, slot order.Slot) ([]order.Order, error) {
	switch slot {
	case order.SlotAll:
		s.Orders.FetchAll(ctx)
	case order.SlotOwn:
		s.Orders.FetchOwn(ctx)
	default:
		return nil, errors.Errorf("cannot list slot %s", slot)
	}
	s.save(ctx, KeyOrders)
	if msg := s.Orders.State().Error; msg != "" {
		// Handed to the caller.
		s.Orders.ClearError()
		return nil, errors.New(msg)
	}
	return s.Orders.Orders(slot), nil
}

// OrdersByStatus refreshes slot and keeps the orders in status.
func (s *Storefront) OrdersByStatus(ctx context.Context, slot order.Slot, status order.Status) ([]order.Order, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(order.ErrInvalidStatus, "%q", status)
	}
	if _, err := s.FetchOrders(ctx, slot); err != nil {
		return nil, err
	}
	return s.Orders.ByStatus(slot, status), nil
}

// Order returns a single order and focuses it.
func (s *Storefront) Order(ctx context.Context, id int64) (order.Order, error) {
	o, err := s.Orders.FetchByID(ctx, id)
	if err != nil {
		s.Orders.ClearError()
	}
	s.save(ctx, KeyOrders)
	return o, err
}

// FocusedOrder returns the order last opened with Order.
func (s *Storefront) FocusedOrder() (order.Order, bool) {
	return s.Orders.Focused()
}

// CloseOrder forgets the focused order.
func (s *Storefront) CloseOrder(ctx context.Context) {
	s.Orders.ClearFocused()
	s.save(ctx, KeyOrders)
}

func (s *Storefront) UpdateOrderStatus(ctx context.Context, id int64, status order.Status) order.Result {
	res := s.Orders.UpdateStatus(ctx, id, status)
	s.save(ctx, KeyOrders)
	return res
}

// FetchProducts refreshes the catalog listing.
func (s *Storefront) FetchProducts(ctx context.Context, f product.Filters) (product.State, error) {
	s.Catalog.Fetch(ctx, f)
	st := s.Catalog.State()
	if st.Error != "" {
		return st, errors.New(st.Error)
	}
	return st, nil
}

// FetchCategories refreshes the category tree.
func (s *Storefront) FetchCategories(ctx context.Context) ([]product.Category, error) {
	s.Categories.Fetch(ctx)
	st := s.Categories.State()
	if st.Error != "" {
		return nil, errors.New(st.Error)
	}
	return st.Tree, nil
}

// FetchUsers refreshes the staff user directory.
func (s *Storefront) FetchUsers(ctx context.Context) ([]user.Account, error) {
	s.Users.Fetch(ctx)
	st := s.Users.State()
	if st.Error != "" {
		return nil, errors.New(st.Error)
	}
	return st.Accounts, nil
}

func (s *Storefront) UpdateUserRole(ctx context.Context, id int64, role user.Role) user.Result {
	return s.Users.UpdateRole(ctx, id, role)
}
