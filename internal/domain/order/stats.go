package order

import "github.com/shopspring/decimal"

// Stats summarises a collection of orders.
type Stats struct {
	Count      int
	TotalSpent decimal.Decimal
	Pending    int
	Paid       int
	Shipped    int
	Cancelled  int
}

// ComputeStats derives Stats from orders.
func ComputeStats(orders []Order) Stats {
	s := Stats{
		Count:      len(orders),
		TotalSpent: TotalSpent(orders),
	}
	for _, o := range orders {
		switch o.Status {
		case StatusPending:
			s.Pending++
		case StatusPaid:
			s.Paid++
		case StatusShipped:
			s.Shipped++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// TotalSpent sums TotalAmount over paid orders only. Every view uses this
// one policy.
func TotalSpent(orders []Order) decimal.Decimal {
	total := decimal.Zero
	for _, o := range orders {
		if o.Status == StatusPaid {
			total = total.Add(o.TotalAmount)
		}
	}
	return total
}

// FilterByStatus returns the orders in the given status.
func FilterByStatus(orders []Order, status Status) []Order {
	var out []Order
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
