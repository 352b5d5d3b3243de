package storefront

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

const (
	recentOrders      = 5
	lowStockThreshold = 10
	dashboardProducts = 100
)

// ErrForbidden is returned when the signed-in user lacks the required role.
var ErrForbidden = errors.New("staff access required")

// Dashboard is the back-office overview.
type Dashboard struct {
	Orders       order.Stats
	RecentOrders []order.Order
	// Users is nil unless the viewer is an admin.
	Users        *user.Stats
	Accounts     []user.Account
	ProductCount int
	LowStock     []product.Product
	// Errors holds the failure message of each section that could not load,
	// keyed by "orders", "users" or "products".
	Errors map[string]string
}

// Dashboard loads orders, users and products concurrently. Sections fail
// independently.
func (s *Storefront) Dashboard(ctx context.Context) (Dashboard, error) {
	me, ok := s.Session.Identity()
	if !ok {
		return Dashboard{}, ErrNotAuthenticated
	}
	if !me.Role.IsStaff() {
		return Dashboard{}, ErrForbidden
	}
	admin := me.Role == user.RoleAdmin

	// Sections record their own failures; the group only reports the caller
	// giving up.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Orders.FetchAll(gctx)
		return gctx.Err()
	})
	if admin {
		g.Go(func() error {
			s.Users.Fetch(gctx)
			return gctx.Err()
		})
	}
	g.Go(func() error {
		s.Catalog.Fetch(gctx, product.Filters{Page: 1, Limit: dashboardProducts})
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, errors.Wrap(err, "load dashboard")
	}
	s.save(ctx, KeyOrders)

	d := Dashboard{Errors: map[string]string{}}

	if st := s.Orders.State(); st.Error != "" {
		d.Errors["orders"] = st.Error
	} else {
		d.Orders = order.ComputeStats(st.All)
		d.RecentOrders = newest(st.All, recentOrders)
	}

	if admin {
		if st := s.Users.State(); st.Error != "" {
			d.Errors["users"] = st.Error
		} else {
			stats := s.Users.Stats()
			d.Users = &stats
			d.Accounts = annotate(st.Accounts, s.Orders.Orders(order.SlotAll))
		}
	}

	if st := s.Catalog.State(); st.Error != "" {
		d.Errors["products"] = st.Error
	} else {
		d.ProductCount = len(st.Products)
		if st.Pagination != nil {
			d.ProductCount = st.Pagination.Total
		}
		for _, p := range st.Products {
			if p.Stock < lowStockThreshold {
				d.LowStock = append(d.LowStock, p)
			}
		}
	}
	return d, nil
}

func newest(orders []order.Order, n int) []order.Order {
	out := slices.Clone(orders)
	slices.SortStableFunc(out, func(a, b order.Order) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out[:min(n, len(out))]
}

// annotate fills the per-account order figures the API does not report.
func annotate(accounts []user.Account, orders []order.Order) []user.Account {
	byUser := map[int64][]order.Order{}
	for _, o := range orders {
		byUser[o.UserID] = append(byUser[o.UserID], o)
	}
	out := slices.Clone(accounts)
	for i := range out {
		own := byUser[out[i].ID]
		out[i].OrdersCount = len(own)
		out[i].TotalSpent = order.TotalSpent(own)
		last := out[i].LastActive
		for _, o := range own {
			if o.CreatedAt.After(last) {
				last = o.CreatedAt
			}
		}
		out[i].LastActive = last
	}
	return out
}
