// Package session holds the authenticated identity of the storefront.
//
// A Session never touches the cart or order aggregates directly. Every
// identity change is announced through a Publisher and the publish call
// returns only after subscribers have reset themselves, so a new identity is
// never visible next to the previous user's data.
package session

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/domain/user"
	"github.com/xenking/grocery-kart/internal/observe"
)

// ErrSuperseded is returned when the identity changed while a request was in
// flight and its result was discarded.
var ErrSuperseded = errors.New("session changed before the response arrived")

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the sign-up payload.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    user.User `json:"user"`
}

// Authenticator is the remote auth API.
type Authenticator interface {
	Login(ctx context.Context, c Credentials) (*AuthResponse, error)
	Register(ctx context.Context, r Registration) (*AuthResponse, error)
	// Me returns the identity bound to the current token.
	Me(ctx context.Context) (*user.User, error)
}

// TokenStore holds the standalone bearer token read by the HTTP client.
type TokenStore interface {
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// EventKind names an identity transition.
type EventKind string

const (
	EventLogin    EventKind = "login"
	EventRegister EventKind = "register"
	EventLogout   EventKind = "logout"
)

// Event announces an identity change. UserID is zero on logout.
type Event struct {
	Kind   EventKind `json:"kind"`
	UserID int64     `json:"userId"`
}

// Publisher delivers identity events. Publish must not return before every
// subscriber has handled the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Result is the outcome of login and register.
type Result struct {
	Success bool
	User    *user.User
	Error   string
}

// State is a point-in-time copy of the session.
type State struct {
	Token           string
	User            *user.User
	IsAuthenticated bool
	IsLoading       bool
	Error           string
}

// Snapshot is the persisted part of the session.
type Snapshot struct {
	Token           *string    `json:"token"`
	User            *user.User `json:"user"`
	IsAuthenticated bool       `json:"isAuthenticated"`
}

// Options configures a Session.
type Options struct {
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
}

// Session is the authenticated identity. Safe for concurrent use.
type Session struct {
	auth   Authenticator
	tokens TokenStore
	pub    Publisher
	lg     *zap.Logger
	tracer trace.Tracer

	mu       sync.Mutex
	token    string
	user     *user.User
	inflight int
	err      string
	// epoch advances on every identity change.
	epoch uint64

	changes observe.Subject
}

// New returns a logged-out Session.
func New(auth Authenticator, tokens TokenStore, pub Publisher, opts Options) *Session {
	opts.setDefaults()
	return &Session{
		auth:   auth,
		tokens: tokens,
		pub:    pub,
		lg:     opts.Logger,
		tracer: opts.TracerProvider.Tracer("storefront.session"),
	}
}

// Login authenticates with c. On success the identity-changed event is
// published before the new identity is committed.
func (s *Session) Login(ctx context.Context, c Credentials) Result {
	ctx, span := s.tracer.Start(ctx, "session.Login")
	defer span.End()

	return s.authenticate(ctx, EventLogin, "session.Login", "Login failed. Please try again.",
		func(ctx context.Context) (*AuthResponse, error) { return s.auth.Login(ctx, c) },
	)
}

// Register creates an account and signs into it, with the same ordering as
// Login.
func (s *Session) Register(ctx context.Context, r Registration) Result {
	ctx, span := s.tracer.Start(ctx, "session.Register")
	defer span.End()

	return s.authenticate(ctx, EventRegister, "session.Register", "Registration failed. Please try again.",
		func(ctx context.Context) (*AuthResponse, error) { return s.auth.Register(ctx, r) },
	)
}

func (s *Session) authenticate(
	ctx context.Context,
	kind EventKind,
	op, fallback string,
	call func(context.Context) (*AuthResponse, error),
) Result {
	s.mu.Lock()
	s.inflight++
	s.err = ""
	epoch := s.epoch
	s.mu.Unlock()
	s.changes.Notify()

	resp, err := call(ctx)
	if err == nil && resp.Token == "" {
		err = errors.New("auth response carries no token")
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.lg.Info("Discarding authentication result after identity change", zap.String("op", op))
		return Result{Error: ErrSuperseded.Error()}
	}
	s.inflight--
	if err != nil {
		s.err = apierr.Message(err, fallback)
		msg := s.err
		s.mu.Unlock()
		apierr.Log(s.lg, err, op)
		trace.SpanFromContext(ctx).RecordError(err)
		s.changes.Notify()
		return Result{Error: msg}
	}
	s.epoch++
	committing := s.epoch
	s.mu.Unlock()

	// Subscribers wipe the previous identity's data before the new one is
	// visible.
	if err := s.pub.Publish(ctx, Event{Kind: kind, UserID: resp.User.ID}); err != nil {
		s.lg.Error("Publish identity change", zap.String("op", op), zap.Error(err))
	}

	u := resp.User
	s.mu.Lock()
	if s.epoch != committing {
		// A logout or another sign-in ran while subscribers were resetting.
		s.mu.Unlock()
		s.lg.Info("Discarding authentication result after identity change", zap.String("op", op))
		return Result{Error: ErrSuperseded.Error()}
	}
	s.token = resp.Token
	s.user = &u
	s.mu.Unlock()

	if err := s.tokens.SetToken(ctx, resp.Token); err != nil {
		s.lg.Error("Persist token", zap.Error(err))
	}
	s.changes.Notify()

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("user.id", u.ID),
		attribute.String("user.role", string(u.Role)),
	)
	s.lg.Info("Signed in", zap.String("op", op), zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))

	out := u
	return Result{Success: true, User: &out}
}

// Logout clears the identity, asks subscribers to reset and drop their
// persisted state, then removes the standalone token.
func (s *Session) Logout(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "session.Logout")
	defer span.End()

	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.err = ""
	s.inflight = 0
	s.epoch++
	s.mu.Unlock()

	if err := s.pub.Publish(ctx, Event{Kind: EventLogout}); err != nil {
		s.lg.Error("Publish identity change", zap.String("op", "session.Logout"), zap.Error(err))
	}
	if err := s.tokens.ClearToken(ctx); err != nil {
		s.lg.Error("Clear token", zap.Error(err))
	}
	s.changes.Notify()
	s.lg.Info("Signed out")
}

// RefreshUser re-reads the identity from the API to pick up role changes.
// A 401 response logs the session out. Other failures leave the session
// untouched and are returned.
func (s *Session) RefreshUser(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "session.RefreshUser")
	defer span.End()

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	u, err := s.auth.Me(ctx)

	s.mu.Lock()
	if epoch != s.epoch {
		// The answer concerns a token that is no longer current.
		s.mu.Unlock()
		if err != nil {
			apierr.Log(s.lg, err, "session.RefreshUser")
		}
		return ErrSuperseded
	}
	if err != nil {
		s.mu.Unlock()
		apierr.Log(s.lg, err, "session.RefreshUser")
		if apierr.IsUnauthorized(err) {
			s.Logout(ctx)
		}
		return errors.Wrap(err, "refresh user")
	}
	if s.token == "" {
		s.mu.Unlock()
		return nil
	}
	if s.user != nil && s.user.Role != u.Role {
		s.lg.Info("Role changed",
			zap.Int64("user_id", u.ID),
			zap.String("from", string(s.user.Role)),
			zap.String("to", string(u.Role)),
		)
	}
	next := *u
	s.user = &next
	s.mu.Unlock()
	s.changes.Notify()
	return nil
}

// Identity returns the current user, if authenticated.
func (s *Session) Identity() (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil || s.token == "" {
		return user.User{}, false
	}
	return *s.user, true
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Token:           s.token,
		IsAuthenticated: s.token != "" && s.user != nil,
		IsLoading:       s.inflight > 0,
		Error:           s.err,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	return st
}

// Snapshot returns the persisted part of the session.
func (s *Session) Snapshot() Snapshot {
	st := s.State()
	snap := Snapshot{User: st.User, IsAuthenticated: st.IsAuthenticated}
	if st.Token != "" {
		tok := st.Token
		snap.Token = &tok
	}
	return snap
}

// Restore adopts a previously saved identity without publishing an event.
// Snapshots without a token or user restore as logged out.
func (s *Session) Restore(snap Snapshot) {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	if snap.Token != nil && *snap.Token != "" && snap.User != nil {
		u := *snap.User
		s.token = *snap.Token
		s.user = &u
	}
	s.mu.Unlock()
	s.changes.Notify()
}

// ClearError drops the recorded error.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.err = ""
	s.mu.Unlock()
	s.changes.Notify()
}

// Subscribe registers fn to run after every state change.
func (s *Session) Subscribe(fn func()) (cancel func()) {
	return s.changes.Subscribe(fn)
}
