package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

type callerKey struct{}

func caller(r *http.Request) user.User {
	return r.Context().Value(callerKey{}).(user.User)
}

// authed resolves the bearer token into the calling user.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeMessage(w, http.StatusUnauthorized, "No token provided")
			return
		}

		s.mu.Lock()
		now := s.now
		s.mu.Unlock()

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims,
			func(*jwt.Token) (any, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(now),
		)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		id, _ := claims["id"].(float64)

		s.mu.Lock()
		a := s.accountLocked(int64(id))
		var u user.User
		if a != nil {
			u = a.User
		}
		s.mu.Unlock()
		if a == nil {
			writeMessage(w, http.StatusUnauthorized, "User not found")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, u)))
	}
}

func (s *Server) staff(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !caller(r).Role.IsStaff() {
			writeMessage(w, http.StatusForbidden, "Access denied")
			return
		}
		next(w, r)
	}
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if caller(r).Role != user.RoleAdmin {
			writeMessage(w, http.StatusForbidden, "Access denied")
			return
		}
		next(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req session.Credentials
	if !decode(w, r, &req) {
		return
	}

	s.mu.Lock()
	a := s.accountByEmailLocked(req.Email)
	if a == nil || a.password != req.Password {
		s.mu.Unlock()
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	resp := session.AuthResponse{Message: "Login successful", Token: s.issueTokenLocked(a.ID), User: a.User}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req session.Registration
	if !decode(w, r, &req) {
		return
	}

	var details []string
	if strings.TrimSpace(req.Username) == "" {
		details = append(details, "Username is required")
	}
	if !strings.Contains(req.Email, "@") {
		details = append(details, "Valid email is required")
	}
	if len(req.Password) < 6 {
		details = append(details, "Password must be at least 6 characters")
	}
	if len(details) > 0 {
		writeValidation(w, details)
		return
	}

	s.mu.Lock()
	if s.accountByEmailLocked(req.Email) != nil {
		s.mu.Unlock()
		writeMessage(w, http.StatusBadRequest, "User already exists")
		return
	}
	a := s.addAccountLocked(req.Username, req.Email, req.Password, user.RoleCustomer)
	resp := session.AuthResponse{Message: "User registered successfully", Token: s.issueTokenLocked(a.ID), User: a.User}
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, caller(r))
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := max(atoiDefault(q.Get("page"), 1), 1)
	limit := max(atoiDefault(q.Get("limit"), 20), 1)
	search := strings.ToLower(q.Get("search"))
	categoryID := int64(atoiDefault(q.Get("categoryId"), 0))
	minPrice, hasMin := parseDecimal(q.Get("minPrice"))
	maxPrice, hasMax := parseDecimal(q.Get("maxPrice"))

	s.mu.Lock()
	matched := []product.Product{}
	for _, p := range s.products {
		switch {
		case search != "" && !strings.Contains(strings.ToLower(p.Name), search):
		case categoryID > 0 && p.CategoryID != categoryID:
		case hasMin && p.Price.LessThan(minPrice):
		case hasMax && p.Price.GreaterThan(maxPrice):
		default:
			matched = append(matched, *p)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(matched, func(a, b product.Product) int { return int(a.ID - b.ID) })

	total := len(matched)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	writeJSON(w, http.StatusOK, product.Page{
		Products: matched[start:end:end],
		Pagination: product.Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	p, found := s.products[id]
	var out product.Product
	if found {
		out = *p
	}
	s.mu.Unlock()

	if !found {
		writeMessage(w, http.StatusNotFound, "Product not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) categoryTree(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	tree := append([]product.Category{}, s.categories...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) listOrders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.filterOrders(func(order.Order) bool { return true }))
}

func (s *Server) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	id := caller(r).ID
	writeJSON(w, http.StatusOK, s.filterOrders(func(o order.Order) bool { return o.UserID == id }))
}

// filterOrders returns matching orders, newest first.
func (s *Server) filterOrders(keep func(order.Order) bool) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []order.Order{}
	for i := len(s.orders) - 1; i >= 0; i-- {
		if keep(s.orders[i]) {
			out = append(out, s.orders[i].Clone())
		}
	}
	return out
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c := caller(r)

	s.mu.Lock()
	i := s.orderIndexLocked(id)
	var o order.Order
	if i >= 0 {
		o = s.orders[i].Clone()
	}
	s.mu.Unlock()

	switch {
	case i < 0:
		writeMessage(w, http.StatusNotFound, "Order not found")
	case o.UserID != c.ID && !c.Role.IsStaff():
		writeMessage(w, http.StatusForbidden, "Access denied")
	default:
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	c := caller(r)
	key := r.Header.Get("Idempotency-Key")

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, seen := s.idempotency[key]; seen && key != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Order already created",
			"order":   s.orders[s.orderIndexLocked(id)],
		})
		return
	}

	// Check every line before touching stock.
	for _, it := range req.Items {
		p, ok := s.products[it.ProductID]
		if !ok {
			writeMessage(w, http.StatusNotFound, "Product "+strconv.FormatInt(it.ProductID, 10)+" not found")
			return
		}
		if p.Stock < it.Quantity {
			writeMessage(w, http.StatusBadRequest, "Insufficient stock for "+p.Name)
			return
		}
	}

	now := s.now().UTC()
	o := order.Order{
		ID:          s.nextOrderID,
		TotalAmount: decimal.Zero,
		Status:      order.StatusPending,
		Address:     req.Address,
		CreatedAt:   now,
		UpdatedAt:   now,
		UserID:      c.ID,
		Owner:       &order.Owner{ID: c.ID, Username: c.Username, Email: c.Email},
	}
	s.nextOrderID++
	for i, it := range req.Items {
		p := s.products[it.ProductID]
		p.Stock -= it.Quantity
		o.TotalAmount = o.TotalAmount.Add(lineTotal(p, it.Quantity))
		o.Items = append(o.Items, order.LineItem{
			ID:              int64(i + 1),
			Quantity:        it.Quantity,
			PriceAtPurchase: p.Price,
			ProductID:       p.ID,
		})
	}
	s.orders = append(s.orders, o)
	if key != "" {
		s.idempotency[key] = o.ID
	}

	writeJSON(w, http.StatusCreated, map[string]any{"message": "Order created successfully", "order": o})
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status order.Status `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeValidation(w, []string{"Invalid status"})
		return
	}

	s.mu.Lock()
	i := s.orderIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "Order not found")
		return
	}
	s.orders[i].Status = req.Status
	s.orders[i].UpdatedAt = s.now().UTC()
	o := s.orders[i].Clone()
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"message": "Order status updated", "order": o})
}

func (s *Server) orderIndexLocked(id int64) int {
	return slices.IndexFunc(s.orders, func(o order.Order) bool { return o.ID == id })
}

func (s *Server) listUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]user.Account, len(s.accounts))
	for i, a := range s.accounts {
		out[i] = a.Account
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) updateUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Role user.Role `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		writeValidation(w, []string{"Invalid role"})
		return
	}

	s.mu.Lock()
	a := s.accountLocked(id)
	if a != nil {
		a.Role = req.Role
		a.UpdatedAt = s.now().UTC()
	}
	s.mu.Unlock()

	if a == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeMessage(w, http.StatusOK, "User role updated")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	if message == "" {
		writeJSON(w, status, map[string]any{})
		return
	}
	writeJSON(w, status, map[string]string{"message": message})
}

func writeValidation(w http.ResponseWriter, details []string) {
	errs := make([]map[string]string, len(details))
	for i, d := range details {
		errs[i] = map[string]string{"msg": d}
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
}
