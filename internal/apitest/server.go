// Package apitest provides an in-memory fake of the storefront REST API for
// tests.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

var signingKey = []byte("apitest-secret")

type account struct {
	user.Account
	password string
}

type failure struct {
	status  int
	message string
}

// Server is a fake API. Routes are named "METHOD /path-pattern", e.g.
// "GET /orders/{id}", without the /api prefix.
type Server struct {
	srv *httptest.Server
	// TokenTTL is the lifetime of issued tokens.
	TokenTTL time.Duration

	mu          sync.Mutex
	accounts    []*account
	products    map[int64]*product.Product
	categories  []product.Category
	orders      []order.Order
	idempotency map[string]int64
	nextUserID  int64
	nextOrderID int64
	calls       map[string]int
	failures    map[string]failure
	gates       map[string]chan struct{}
	now         func() time.Time
}

// New starts a Server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		TokenTTL:    time.Hour,
		products:    make(map[int64]*product.Product),
		idempotency: make(map[string]int64),
		nextUserID:  1,
		nextOrderID: 1,
		calls:       make(map[string]int),
		failures:    make(map[string]failure),
		gates:       make(map[string]chan struct{}),
		now:         time.Now,
	}
	s.srv = httptest.NewServer(s.router())
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the API base URL, including the /api prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		s.handle(r, http.MethodPost, "/auth/login", s.login)
		s.handle(r, http.MethodPost, "/auth/register", s.register)
		s.handle(r, http.MethodGet, "/auth/me", s.authed(s.me))

		s.handle(r, http.MethodGet, "/products", s.listProducts)
		s.handle(r, http.MethodGet, "/products/{id}", s.getProduct)
		s.handle(r, http.MethodGet, "/categories/tree", s.categoryTree)

		s.handle(r, http.MethodGet, "/orders", s.authed(s.staff(s.listOrders)))
		s.handle(r, http.MethodGet, "/orders/my", s.authed(s.listOwnOrders))
		s.handle(r, http.MethodGet, "/orders/{id}", s.authed(s.getOrder))
		s.handle(r, http.MethodPost, "/orders", s.authed(s.createOrder))
		s.handle(r, http.MethodPut, "/orders/{id}", s.authed(s.staff(s.updateOrderStatus)))

		s.handle(r, http.MethodGet, "/users", s.authed(s.admin(s.listUsers)))
		s.handle(r, http.MethodPut, "/users/{id}/role", s.authed(s.admin(s.updateUserRole)))
	})
	return r
}

// handle registers h and applies call counting, gates and injected failures.
func (s *Server) handle(r chi.Router, method, pattern string, h http.HandlerFunc) {
	route := method + " " + pattern
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		gate := s.gates[route]
		f, failing := s.failures[route]
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if failing {
			writeMessage(w, f.status, f.message)
			return
		}
		h(w, req)
	})
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Fail makes route answer with status and message until Recover is called.
// An empty message yields a body without one.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

// Recover removes an injected failure.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Gate blocks requests to route until the returned function is called.
func (s *Server) Gate(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.gates, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// SetClock overrides the clock used for timestamps and token expiry.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddUser registers an account and returns a valid token for it.
func (s *Server) AddUser(username, email, password string, role user.Role) (user.User, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.addAccountLocked(username, email, password, role)
	return a.User, s.issueTokenLocked(a.ID)
}

// SetRole changes a role server-side, as another admin would.
func (s *Server) SetRole(id int64, role user.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.accountLocked(id); a != nil {
		a.Role = role
	}
}

// SetCategories replaces the category tree.
func (s *Server) SetCategories(tree []product.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = tree
}

// AddProduct stores p. A zero ID is assigned.
func (s *Server) AddProduct(p product.Product) product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = int64(len(s.products) + 1)
	}
	stored := p
	s.products[p.ID] = &stored
	return p
}

// Stock returns the current stock of a product.
func (s *Server) Stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[id]; ok {
		return p.Stock
	}
	return 0
}

// Orders returns every stored order.
func (s *Server) Orders() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.Clone()
	}
	return out
}

// AddOrder stores o for its owner. A zero ID is assigned.
func (s *Server) AddOrder(o order.Order) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		o.ID = s.nextOrderID
	}
	s.nextOrderID = max(s.nextOrderID, o.ID+1)
	if o.Status == "" {
		o.Status = order.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now().UTC()
		o.UpdatedAt = o.CreatedAt
	}
	s.orders = append(s.orders, o.Clone())
	return o
}

func (s *Server) addAccountLocked(username, email, password string, role user.Role) *account {
	now := s.now().UTC()
	a := &account{
		Account: user.Account{
			User:      user.User{ID: s.nextUserID, Username: username, Email: email, Role: role},
			CreatedAt: now,
			UpdatedAt: now,
		},
		password: password,
	}
	s.nextUserID++
	s.accounts = append(s.accounts, a)
	return a
}

func (s *Server) accountLocked(id int64) *account {
	for _, a := range s.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) accountByEmailLocked(email string) *account {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a
		}
	}
	return nil
}

func (s *Server) issueTokenLocked(id int64) string {
	now := s.now()
	claims := jwt.MapClaims{
		"id":  id,
		"iat": now.Unix(),
		"exp": now.Add(s.TokenTTL).Unix(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	return tok
}

func lineTotal(p *product.Product, qty int) decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(qty)))
}
