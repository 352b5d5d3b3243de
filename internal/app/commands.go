package app

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/domain/user"
	"github.com/xenking/grocery-kart/internal/storefront"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage")

const usage = `usage: storefront [flags] COMMAND

  login EMAIL PASSWORD
  register USERNAME EMAIL PASSWORD
  logout
  whoami
  products [SEARCH]
  categories
  cart [add ID [QTY] | inc ID | dec ID | remove ID | set ID QTY | clear]
  checkout ADDRESS
  orders [all] [--status STATUS]
  order [ID | close]
  order-status ID STATUS
  users
  user-role ID ROLE
  dashboard
  status
`

// CLI executes storefront commands and prints their results.
type CLI struct {
	sf  *storefront.Storefront
	out io.Writer
}

func NewCLI(sf *storefront.Storefront, out io.Writer) *CLI {
	return &CLI{sf: sf, out: out}
}

// Exec runs the command named by args[0].
func (c *CLI) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		_, _ = io.WriteString(c.out, usage)
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return c.login(ctx, rest)
	case "register":
		return c.register(ctx, rest)
	case "logout":
		dest := c.sf.Logout(ctx)
		c.printf("Signed out. Next: %s\n", dest)
		return nil
	case "whoami":
		return c.whoami(ctx)
	case "products":
		return c.products(ctx, rest)
	case "categories":
		return c.categories(ctx)
	case "cart":
		return c.cart(ctx, rest)
	case "checkout":
		return c.checkout(ctx, rest)
	case "orders":
		return c.orders(ctx, rest)
	case "order":
		return c.order(ctx, rest)
	case "order-status":
		return c.orderStatus(ctx, rest)
	case "users":
		return c.users(ctx)
	case "user-role":
		return c.userRole(ctx, rest)
	case "dashboard":
		return c.dashboard(ctx)
	case "status":
		return c.status(ctx)
	default:
		_, _ = io.WriteString(c.out, usage)
		return errors.Wrapf(ErrUsage, "unknown command %q", cmd)
	}
}

func (c *CLI) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.Wrap(ErrUsage, "login EMAIL PASSWORD")
	}
	res, dest := c.sf.Login(ctx, session.Credentials{Email: args[0], Password: args[1]})
	if !res.Success {
		return errors.New(res.Error)
	}
	c.printf("Signed in as %s (%s). Next: %s\n", res.User.Username, res.User.Role, dest)
	return nil
}

func (c *CLI) register(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errors.Wrap(ErrUsage, "register USERNAME EMAIL PASSWORD")
	}
	res, dest := c.sf.Register(ctx, session.Registration{Username: args[0], Email: args[1], Password: args[2]})
	if !res.Success {
		return errors.New(res.Error)
	}
	c.printf("Registered %s. Next: %s\n", res.User.Username, dest)
	return nil
}

func (c *CLI) whoami(ctx context.Context) error {
	u, err := c.sf.RefreshUser(ctx)
	if err != nil {
		return err
	}
	c.printf("%s <%s> %s\n", u.Username, u.Email, u.Role)
	return nil
}

func (c *CLI) products(ctx context.Context, args []string) error {
	st, err := c.sf.FetchProducts(ctx, product.Filters{Search: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	w := c.table()
	fmt.Fprintln(w, "ID\tNAME\tPRICE\tSTOCK")
	for _, p := range st.Products {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
	}
	return w.Flush()
}

func (c *CLI) categories(ctx context.Context) error {
	tree, err := c.sf.FetchCategories(ctx)
	if err != nil {
		return err
	}
	c.printCategories(tree, 0)
	return nil
}

func (c *CLI) printCategories(nodes []product.Category, depth int) {
	for _, n := range nodes {
		c.printf("%s%d %s (%s)\n", strings.Repeat("  ", depth), n.ID, n.Name, n.Slug)
		c.printCategories(n.Children, depth+1)
	}
}

func (c *CLI) cart(ctx context.Context, args []string) error {
	if len(args) > 0 {
		if err := c.editCart(ctx, args); err != nil {
			return err
		}
	}
	w := c.table()
	fmt.Fprintln(w, "ID\tNAME\tQTY\tPRICE")
	for _, it := range c.sf.Cart.Items() {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", it.Product.ID, it.Product.Name, it.Quantity, it.Product.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "\t\t%d\t%s\n", c.sf.Cart.TotalItems(), c.sf.Cart.TotalPrice().StringFixed(2))
	return w.Flush()
}

func (c *CLI) editCart(ctx context.Context, args []string) error {
	sub, rest := args[0], args[1:]
	switch {
	case sub == "clear" && len(rest) == 0:
		c.sf.ClearCart(ctx)
		return nil
	case sub == "add" && (len(rest) == 1 || len(rest) == 2):
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		qty := 1
		if len(rest) == 2 {
			if qty, err = strconv.Atoi(rest[1]); err != nil {
				return errors.Wrap(err, "quantity")
			}
		}
		return c.sf.AddToCart(ctx, id, qty)
	case (sub == "inc" || sub == "dec") && len(rest) == 1:
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		if sub == "inc" {
			return c.sf.IncrementItem(ctx, id)
		}
		return c.sf.DecrementItem(ctx, id)
	case sub == "remove" && len(rest) == 1:
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		c.sf.RemoveFromCart(ctx, id)
		return nil
	case sub == "set" && len(rest) == 2:
		id, err := parseID(rest[0])
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(rest[1])
		if err != nil {
			return errors.Wrap(err, "quantity")
		}
		c.sf.SetQuantity(ctx, id, qty)
		return nil
	default:
		return errors.Wrap(ErrUsage, "cart [add ID [QTY] | inc ID | dec ID | remove ID | set ID QTY | clear]")
	}
}

func (c *CLI) checkout(ctx context.Context, args []string) error {
	res := c.sf.PlaceOrder(ctx, strings.Join(args, " "))
	if !res.Success {
		return errors.New(res.Error)
	}
	c.printf("Order #%d placed: %s, total %s\n", res.Order.ID, res.Order.Status, res.Order.TotalAmount.StringFixed(2))
	return nil
}

func (c *CLI) orders(ctx context.Context, args []string) error {
	slot := order.SlotOwn
	var status order.Status
	for i := 0; i < len(args); i++ {
		switch a := args[i]; {
		case a == "all" && slot == order.SlotOwn:
			slot = order.SlotAll
		case a == "--status" && i+1 < len(args):
			i++
			status = order.Status(args[i])
		case strings.HasPrefix(a, "--status="):
			status = order.Status(strings.TrimPrefix(a, "--status="))
		default:
			return errors.Wrap(ErrUsage, "orders [all] [--status STATUS]")
		}
	}
	var (
		orders []order.Order
		err    error
	)
	if status == "" {
		orders, err = c.sf.FetchOrders(ctx, slot)
	} else {
		orders, err = c.sf.OrdersByStatus(ctx, slot, status)
	}
	if err != nil {
		return err
	}
	c.printOrders(orders)
	stats := order.ComputeStats(orders)
	c.printf("%d orders, %s spent\n", stats.Count, stats.TotalSpent.StringFixed(2))
	return nil
}

func (c *CLI) printOrders(orders []order.Order) {
	w := c.table()
	fmt.Fprintln(w, "ID\tSTATUS\tTOTAL\tCREATED\tADDRESS")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			o.ID, o.Status, o.TotalAmount.StringFixed(2), o.CreatedAt.Format("2006-01-02 15:04"), o.Address)
	}
	_ = w.Flush()
}

func (c *CLI) order(ctx context.Context, args []string) error {
	var o order.Order
	switch {
	case len(args) == 0:
		focused, ok := c.sf.FocusedOrder()
		if !ok {
			c.printf("No order open\n")
			return nil
		}
		o = focused
	case len(args) == 1 && args[0] == "close":
		c.sf.CloseOrder(ctx)
		c.printf("Order closed\n")
		return nil
	case len(args) == 1:
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if o, err = c.sf.Order(ctx, id); err != nil {
			return err
		}
	default:
		return errors.Wrap(ErrUsage, "order [ID | close]")
	}
	c.printf("Order #%d %s, total %s\nShip to: %s\n", o.ID, o.Status, o.TotalAmount.StringFixed(2), o.Address)
	w := c.table()
	fmt.Fprintln(w, "PRODUCT\tQTY\tPRICE")
	for _, it := range o.Items {
		name := strconv.FormatInt(it.ProductID, 10)
		if it.Product != nil {
			name = it.Product.Name
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", name, it.Quantity, it.PriceAtPurchase.StringFixed(2))
	}
	return w.Flush()
}

func (c *CLI) orderStatus(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.Wrap(ErrUsage, "order-status ID STATUS")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res := c.sf.UpdateOrderStatus(ctx, id, order.Status(args[1]))
	if !res.Success {
		return errors.New(res.Error)
	}
	c.printf("Order #%d is now %s\n", id, res.Order.Status)
	return nil
}

func (c *CLI) users(ctx context.Context) error {
	accounts, err := c.sf.FetchUsers(ctx)
	if err != nil {
		return err
	}
	w := c.table()
	fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Username, a.Email, a.Role)
	}
	return w.Flush()
}

func (c *CLI) userRole(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.Wrap(ErrUsage, "user-role ID ROLE")
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	res := c.sf.UpdateUserRole(ctx, id, user.Role(args[1]))
	if !res.Success {
		return errors.New(res.Error)
	}
	c.printf("User %d is now %s\n", id, args[1])
	return nil
}

func (c *CLI) dashboard(ctx context.Context) error {
	d, err := c.sf.Dashboard(ctx)
	if err != nil {
		return err
	}
	for _, section := range slices.Sorted(maps.Keys(d.Errors)) {
		c.printf("%s: %s\n", section, d.Errors[section])
	}
	w := c.table()
	fmt.Fprintf(w, "Orders\t%d\n", d.Orders.Count)
	fmt.Fprintf(w, "Pending\t%d\n", d.Orders.Pending)
	fmt.Fprintf(w, "Paid\t%d\n", d.Orders.Paid)
	fmt.Fprintf(w, "Shipped\t%d\n", d.Orders.Shipped)
	fmt.Fprintf(w, "Revenue\t%s\n", d.Orders.TotalSpent.StringFixed(2))
	fmt.Fprintf(w, "Products\t%d\n", d.ProductCount)
	fmt.Fprintf(w, "Low stock\t%d\n", len(d.LowStock))
	if d.Users != nil {
		fmt.Fprintf(w, "Users\t%d (%d admin, %d manager, %d customer)\n",
			d.Users.Total, d.Users.Admins, d.Users.Managers, d.Users.Customers)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(d.RecentOrders) > 0 {
		c.printf("\nRecent orders\n")
		c.printOrders(d.RecentOrders)
	}
	return nil
}

func (c *CLI) status(ctx context.Context) error {
	report := c.sf.Status(ctx)
	w := c.table()
	for _, r := range report {
		state := "ok"
		if r.Err != nil {
			state = r.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Duration.Round(time.Millisecond), state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !report.OK() {
		return errors.New("some checks failed")
	}
	return nil
}

func (c *CLI) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *CLI) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Errorf("invalid id %q", s)
	}
	return id, nil
}
