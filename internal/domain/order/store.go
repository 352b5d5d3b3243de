package order

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/observe"
)

// Slot names one of the order collections held by a Store.
type Slot int

const (
	// SlotAll holds every order (staff scope).
	SlotAll Slot = iota
	// SlotOwn holds the orders of the authenticated user.
	SlotOwn
	// SlotFocused holds the single order currently being viewed.
	SlotFocused
)

func (s Slot) String() string {
	switch s {
	case SlotAll:
		return "all"
	case SlotOwn:
		return "own"
	case SlotFocused:
		return "focused"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Result is the outcome of an order mutation. Mutations report failure here
// rather than through an error so callers can branch on Success.
type Result struct {
	Success bool
	Order   *Order
	Error   string
}

// State is a point-in-time copy of the store.
type State struct {
	All       []Order
	Own       []Order
	Focused   *Order
	IsLoading bool
	Error     string
}

// Snapshot is the persisted part of the store.
type Snapshot struct {
	All     []Order `json:"allOrders"`
	Own     []Order `json:"currentUserOrders"`
	Focused *Order  `json:"currentOrder"`
}

// Store keeps the independently fetched order slots consistent. The all and
// own slots are never merged with each other; confirmed changes to an order
// are applied to every slot holding its id.
type Store struct {
	gw Gateway
	lg *zap.Logger

	mu          sync.Mutex
	all         []Order
	own         []Order
	focused     *Order
	err         string
	fetchingAll bool
	fetchingOwn bool
	inflight    int
	// epoch advances on Reset; responses to requests issued under an older
	// epoch are discarded.
	epoch uint64

	changes observe.Subject
}

// NewStore returns an empty Store backed by gw.
func NewStore(gw Gateway, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Store{gw: gw, lg: lg}
}

// FetchAll replaces the all-orders slot. A call made while another FetchAll
// is in flight returns immediately. Failures are recorded in the store error
// and empty the slot.
func (s *Store) FetchAll(ctx context.Context) {
	s.fetch(ctx, SlotAll)
}

// FetchOwn replaces the own-orders slot, with the same rules as FetchAll.
func (s *Store) FetchOwn(ctx context.Context) {
	s.fetch(ctx, SlotOwn)
}

func (s *Store) fetch(ctx context.Context, slot Slot) {
	var (
		list     func(context.Context) ([]Order, error)
		fallback string
		op       string
	)
	switch slot {
	case SlotAll:
		list, fallback, op = s.gw.List, "Failed to load orders", "orders.FetchAll"
	case SlotOwn:
		list, fallback, op = s.gw.ListOwn, "Failed to load your orders", "orders.FetchOwn"
	default:
		panic(fmt.Sprintf("order: cannot fetch %s slot", slot))
	}

	s.mu.Lock()
	flag := s.fetchFlagLocked(slot)
	if *flag {
		s.mu.Unlock()
		s.lg.Debug("Fetch already in flight", zap.Stringer("slot", slot))
		return
	}
	*flag = true
	s.inflight++
	s.err = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.changes.Notify()

	orders, err := list(ctx)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.lg.Debug("Discarding stale fetch", zap.Stringer("slot", slot))
		return
	}
	*s.fetchFlagLocked(slot) = false
	s.inflight--
	if err != nil {
		apierr.Log(s.lg, err, op)
		s.err = apierr.Message(err, fallback)
		orders = nil
	}
	if slot == SlotAll {
		s.all = orders
	} else {
		s.own = orders
	}
	s.mu.Unlock()
	s.changes.Notify()
}

func (s *Store) fetchFlagLocked(slot Slot) *bool {
	if slot == SlotAll {
		return &s.fetchingAll
	}
	return &s.fetchingOwn
}

// FetchByID returns the order with the given id. Locally held orders are
// returned without a request; otherwise the order is fetched and focused.
// Unlike the bulk fetches, failures are returned to the caller.
func (s *Store) FetchByID(ctx context.Context, id int64) (Order, error) {
	if o, ok := s.Find(id); ok {
		return o, nil
	}

	epoch := s.begin()
	o, err := s.gw.Get(ctx, id)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return Order{}, ErrSuperseded
	}
	s.inflight--
	if err != nil {
		apierr.Log(s.lg, err, "orders.FetchByID")
		s.err = apierr.Message(err, "Failed to load order details")
		s.focused = nil
		s.mu.Unlock()
		s.changes.Notify()
		return Order{}, errors.Wrapf(err, "get order %d", id)
	}
	focused := o.Clone()
	s.focused = &focused
	s.mu.Unlock()
	s.changes.Notify()

	return o.Clone(), nil
}

// Create submits a new order. Invalid requests are rejected without a
// request. On success the order is prepended to the all and own slots and
// focused.
func (s *Store) Create(ctx context.Context, req CreateRequest) Result {
	if err := req.Validate(); err != nil {
		return Result{Error: err.Error()}
	}

	epoch := s.begin()
	o, err := s.gw.Create(ctx, req)

	s.mu.Lock()
	stale := epoch != s.epoch
	if !stale {
		s.inflight--
	}
	if err != nil {
		apierr.Log(s.lg, err, "orders.Create")
		msg := apierr.Message(err, "Failed to create order")
		if !stale {
			s.err = msg
		}
		s.mu.Unlock()
		s.changes.Notify()
		return Result{Error: msg}
	}
	if stale {
		s.mu.Unlock()
		s.lg.Info("Order created after session change, not recorded locally", zap.Int64("order_id", o.ID))
		created := o.Clone()
		return Result{Success: true, Order: &created}
	}
	s.all = slices.Insert(s.all, 0, o.Clone())
	s.own = slices.Insert(s.own, 0, o.Clone())
	focused := o.Clone()
	s.focused = &focused
	s.mu.Unlock()
	s.changes.Notify()

	created := o.Clone()
	return Result{Success: true, Order: &created}
}

// UpdateStatus asks the API to move an order to status. Only after the API
// confirms is the returned order substituted into every slot holding its id;
// an id held nowhere leaves the slots untouched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, status Status) Result {
	if !status.Valid() {
		return Result{Error: ErrInvalidStatus.Error()}
	}

	epoch := s.begin()
	o, err := s.gw.UpdateStatus(ctx, id, status)

	s.mu.Lock()
	stale := epoch != s.epoch
	if !stale {
		s.inflight--
	}
	if err != nil {
		apierr.Log(s.lg, err, "orders.UpdateStatus")
		msg := apierr.Message(err, "Failed to update order status")
		if !stale {
			s.err = msg
		}
		s.mu.Unlock()
		s.changes.Notify()
		return Result{Error: msg}
	}
	if !stale {
		s.patchLocked(
			func(cur Order) bool { return cur.ID == id },
			func(Order) Order { return o.Clone() },
		)
	}
	s.mu.Unlock()
	s.changes.Notify()

	updated := o.Clone()
	return Result{Success: true, Order: &updated}
}

// patchLocked replaces every order matching match, in every slot, with
// replace(order).
func (s *Store) patchLocked(match func(Order) bool, replace func(Order) Order) {
	for i := range s.all {
		if match(s.all[i]) {
			s.all[i] = replace(s.all[i])
		}
	}
	for i := range s.own {
		if match(s.own[i]) {
			s.own[i] = replace(s.own[i])
		}
	}
	if s.focused != nil && match(*s.focused) {
		next := replace(*s.focused)
		s.focused = &next
	}
}

// begin marks a single-shot request as in flight and returns the epoch it
// belongs to.
func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.inflight++
	s.err = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.changes.Notify()
	return epoch
}

// Find looks up an order in the all, own and focused slots, in that order.
func (s *Store) Find(id int64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range [][]Order{s.all, s.own} {
		if i := slices.IndexFunc(slot, func(o Order) bool { return o.ID == id }); i >= 0 {
			return slot[i].Clone(), true
		}
	}
	if s.focused != nil && s.focused.ID == id {
		return s.focused.Clone(), true
	}
	return Order{}, false
}

// Orders returns a copy of the given slot. The focused slot yields at most
// one order.
func (s *Store) Orders(slot Slot) []Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrders(s.slotLocked(slot))
}

// Focused returns the focused order, if any.
func (s *Store) Focused() (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.focused == nil {
		return Order{}, false
	}
	return s.focused.Clone(), true
}

// ByStatus returns the orders of slot in the given status.
func (s *Store) ByStatus(slot Slot, status Status) []Order {
	return FilterByStatus(s.Orders(slot), status)
}

// Stats summarises the given slot.
func (s *Store) Stats(slot Slot) Stats {
	return ComputeStats(s.Orders(slot))
}

// State returns a copy of the store state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		All:       cloneOrders(s.all),
		Own:       cloneOrders(s.own),
		IsLoading: s.inflight > 0,
		Error:     s.err,
	}
	if s.focused != nil {
		f := s.focused.Clone()
		st.Focused = &f
	}
	return st
}

// Snapshot returns the persisted part of the store.
func (s *Store) Snapshot() Snapshot {
	st := s.State()
	return Snapshot{All: st.All, Own: st.Own, Focused: st.Focused}
}

// Restore replaces the slots with a previously saved snapshot.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	s.all = cloneOrders(snap.All)
	s.own = cloneOrders(snap.Own)
	s.focused = nil
	if snap.Focused != nil {
		f := snap.Focused.Clone()
		s.focused = &f
	}
	s.mu.Unlock()
	s.changes.Notify()
}

// ClearError drops the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
	s.changes.Notify()
}

// ClearFocused empties the focused slot.
func (s *Store) ClearFocused() {
	s.mu.Lock()
	s.focused = nil
	s.mu.Unlock()
	s.changes.Notify()
}

// Reset empties every slot and discards the results of requests still in
// flight. Called when the authenticated identity changes.
func (s *Store) Reset() {
	s.mu.Lock()
	s.all = nil
	s.own = nil
	s.focused = nil
	s.err = ""
	s.fetchingAll = false
	s.fetchingOwn = false
	s.inflight = 0
	s.epoch++
	s.mu.Unlock()
	s.changes.Notify()
}

// Subscribe registers fn to run after every state change.
func (s *Store) Subscribe(fn func()) (cancel func()) {
	return s.changes.Subscribe(fn)
}

func (s *Store) slotLocked(slot Slot) []Order {
	switch slot {
	case SlotAll:
		return s.all
	case SlotOwn:
		return s.own
	case SlotFocused:
		if s.focused == nil {
			return nil
		}
		return []Order{*s.focused}
	default:
		return nil
	}
}

func cloneOrders(orders []Order) []Order {
	if orders == nil {
		return nil
	}
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}
