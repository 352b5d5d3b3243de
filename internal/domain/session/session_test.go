package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/domain/user"
)

type mockAuth struct {
	resp   *AuthResponse
	err    error
	me     *user.User
	meErr  error
	logins int
	gate   chan struct{}
	meGate chan struct{}
	// meStarted, when set, receives once Me has been called.
	meStarted chan struct{}
}

func (m *mockAuth) Login(_ context.Context, _ Credentials) (*AuthResponse, error) {
	m.logins++
	if m.gate != nil {
		<-m.gate
	}
	return m.resp, m.err
}

func (m *mockAuth) Register(_ context.Context, _ Registration) (*AuthResponse, error) {
	return m.resp, m.err
}

func (m *mockAuth) Me(_ context.Context) (*user.User, error) {
	if m.meStarted != nil {
		m.meStarted <- struct{}{}
	}
	if m.meGate != nil {
		<-m.meGate
	}
	return m.me, m.meErr
}

type mockTokens struct {
	mu    sync.Mutex
	token string
}

func (m *mockTokens) SetToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *mockTokens) ClearToken(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// recordingPublisher captures events together with the identity the session
// exposed when each event was published.
type recordingPublisher struct {
	s      *Session
	events []Event
	seen   []bool
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	p.events = append(p.events, e)
	_, ok := p.s.Identity()
	p.seen = append(p.seen, ok)
	return nil
}

func newTestSession(auth *mockAuth) (*Session, *mockTokens, *recordingPublisher) {
	tokens := &mockTokens{}
	pub := &recordingPublisher{}
	s := New(auth, tokens, pub, Options{})
	pub.s = s
	return s, tokens, pub
}

func customer() user.User {
	return user.User{ID: 7, Username: "ann", Email: "ann@example.com", Role: user.RoleCustomer}
}

func TestLogin_PublishesBeforeCommit(t *testing.T) {
	auth := &mockAuth{resp: &AuthResponse{Token: "tok-1", User: customer()}}
	s, tokens, pub := newTestSession(auth)

	res := s.Login(context.Background(), Credentials{Email: "ann@example.com", Password: "pw"})

	require.True(t, res.Success)
	require.NotNil(t, res.User)
	assert.Equal(t, user.RoleCustomer, res.User.Role)

	require.Len(t, pub.events, 1)
	assert.Equal(t, Event{Kind: EventLogin, UserID: 7}, pub.events[0])
	assert.False(t, pub.seen[0], "identity must not be visible while subscribers reset")

	st := s.State()
	assert.True(t, st.IsAuthenticated)
	assert.Equal(t, "tok-1", st.Token)
	assert.Equal(t, "tok-1", tokens.token)
	assert.False(t, st.IsLoading)
}

func TestLogin_SwitchingUsersHidesPreviousIdentity(t *testing.T) {
	auth := &mockAuth{resp: &AuthResponse{Token: "tok-1", User: customer()}}
	s, _, pub := newTestSession(auth)
	require.True(t, s.Login(context.Background(), Credentials{}).Success)

	auth.resp = &AuthResponse{Token: "tok-2", User: user.User{ID: 8, Role: user.RoleAdmin}}
	require.True(t, s.Login(context.Background(), Credentials{}).Success)

	require.Len(t, pub.events, 2)
	assert.Equal(t, int64(8), pub.events[1].UserID)
	// Subscribers still see the previous identity while they reset.
	assert.True(t, pub.seen[1])

	u, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, user.RoleAdmin, u.Role)
}

func TestLogin_Failure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "server message",
			err:  &apierr.Error{Status: 401, Message: "Invalid credentials"},
			want: "Invalid credentials",
		},
		{
			name: "validation details",
			err:  &apierr.Error{Status: 400, Details: []string{"Email is invalid"}},
			want: "Email is invalid",
		},
		{
			name: "network",
			err:  errors.New("dial tcp: connection refused"),
			want: "Login failed. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &mockAuth{err: tt.err}
			s, tokens, pub := newTestSession(auth)

			res := s.Login(context.Background(), Credentials{})

			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.Error)
			assert.Equal(t, tt.want, s.State().Error)
			assert.Empty(t, pub.events)
			assert.Empty(t, tokens.token)
			assert.False(t, s.State().IsAuthenticated)
		})
	}
}

func TestRegister_FailureFallback(t *testing.T) {
	s, _, _ := newTestSession(&mockAuth{err: errors.New("boom")})

	res := s.Register(context.Background(), Registration{Username: "ann"})

	assert.False(t, res.Success)
	assert.Equal(t, "Registration failed. Please try again.", res.Error)
}

func TestRegister_PublishesRegisterEvent(t *testing.T) {
	s, _, pub := newTestSession(&mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}})

	res := s.Register(context.Background(), Registration{Username: "ann"})

	require.True(t, res.Success)
	require.Len(t, pub.events, 1)
	assert.Equal(t, EventRegister, pub.events[0].Kind)
}

func TestLogout(t *testing.T) {
	s, tokens, pub := newTestSession(&mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}})
	require.True(t, s.Login(context.Background(), Credentials{}).Success)

	s.Logout(context.Background())

	require.Len(t, pub.events, 2)
	assert.Equal(t, Event{Kind: EventLogout}, pub.events[1])
	assert.False(t, pub.seen[1])

	st := s.State()
	assert.False(t, st.IsAuthenticated)
	assert.Empty(t, st.Token)
	assert.Nil(t, st.User)
	assert.Empty(t, tokens.token)
}

func TestLogin_DiscardedAfterLogout(t *testing.T) {
	auth := &mockAuth{
		resp: &AuthResponse{Token: "tok", User: customer()},
		gate: make(chan struct{}),
	}
	s, tokens, pub := newTestSession(auth)

	done := make(chan Result)
	go func() { done <- s.Login(context.Background(), Credentials{}) }()
	require.Eventually(t, func() bool { return s.State().IsLoading }, time.Second, time.Millisecond)

	s.Logout(context.Background())
	close(auth.gate)
	res := <-done

	assert.False(t, res.Success)
	assert.False(t, s.State().IsAuthenticated)
	assert.Empty(t, tokens.token)
	require.Len(t, pub.events, 1)
	assert.Equal(t, EventLogout, pub.events[0].Kind)
}

// logoutOnLogin signs the session out while subscribers handle a login.
type logoutOnLogin struct {
	s      *Session
	events []Event
}

func (p *logoutOnLogin) Publish(ctx context.Context, e Event) error {
	p.events = append(p.events, e)
	if e.Kind == EventLogin {
		p.s.Logout(ctx)
	}
	return nil
}

func TestLogin_LogoutDuringResetWins(t *testing.T) {
	auth := &mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}}
	tokens := &mockTokens{}
	pub := &logoutOnLogin{}
	s := New(auth, tokens, pub, Options{})
	pub.s = s

	res := s.Login(context.Background(), Credentials{})

	assert.False(t, res.Success)
	assert.Equal(t, ErrSuperseded.Error(), res.Error)
	assert.False(t, s.State().IsAuthenticated)
	assert.Empty(t, tokens.token)
	require.Len(t, pub.events, 2)
	assert.Equal(t, EventLogout, pub.events[1].Kind)
}

func TestRefreshUser_LateUnauthorizedAfterUserSwitch(t *testing.T) {
	auth := &mockAuth{
		resp:      &AuthResponse{Token: "tok-a", User: customer()},
		meErr:     &apierr.Error{Status: 401, Message: "Token expired"},
		meGate:    make(chan struct{}),
		meStarted: make(chan struct{}),
	}
	s, tokens, pub := newTestSession(auth)
	require.True(t, s.Login(context.Background(), Credentials{}).Success)

	done := make(chan error)
	go func() { done <- s.RefreshUser(context.Background()) }()
	<-auth.meStarted

	auth.resp = &AuthResponse{Token: "tok-b", User: user.User{ID: 8, Username: "bob", Role: user.RoleCustomer}}
	require.True(t, s.Login(context.Background(), Credentials{}).Success)

	close(auth.meGate)
	err := <-done

	assert.ErrorIs(t, err, ErrSuperseded)
	u, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, "tok-b", tokens.token)
	for _, e := range pub.events {
		assert.NotEqual(t, EventLogout, e.Kind)
	}
}

func TestRefreshUser(t *testing.T) {
	t.Run("role change", func(t *testing.T) {
		auth := &mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}}
		s, _, _ := newTestSession(auth)
		require.True(t, s.Login(context.Background(), Credentials{}).Success)

		promoted := customer()
		promoted.Role = user.RoleManager
		auth.me = &promoted

		require.NoError(t, s.RefreshUser(context.Background()))
		u, ok := s.Identity()
		require.True(t, ok)
		assert.Equal(t, user.RoleManager, u.Role)
	})

	t.Run("unauthorized logs out", func(t *testing.T) {
		auth := &mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}}
		s, tokens, pub := newTestSession(auth)
		require.True(t, s.Login(context.Background(), Credentials{}).Success)

		auth.meErr = &apierr.Error{Status: 401, Message: "Token expired"}

		err := s.RefreshUser(context.Background())
		require.Error(t, err)
		assert.True(t, apierr.IsUnauthorized(err))
		assert.False(t, s.State().IsAuthenticated)
		assert.Empty(t, tokens.token)
		assert.Equal(t, EventLogout, pub.events[len(pub.events)-1].Kind)
	})

	t.Run("other failure keeps session", func(t *testing.T) {
		auth := &mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}}
		s, _, _ := newTestSession(auth)
		require.True(t, s.Login(context.Background(), Credentials{}).Success)

		auth.meErr = &apierr.Error{Status: 500}

		require.Error(t, s.RefreshUser(context.Background()))
		u, ok := s.Identity()
		require.True(t, ok)
		assert.Equal(t, customer(), u)
	})
}

func TestSnapshotRestore(t *testing.T) {
	s, _, pub := newTestSession(&mockAuth{resp: &AuthResponse{Token: "tok", User: customer()}})
	require.True(t, s.Login(context.Background(), Credentials{}).Success)
	snap := s.Snapshot()
	require.NotNil(t, snap.Token)
	assert.True(t, snap.IsAuthenticated)

	restored, _, restoredPub := newTestSession(&mockAuth{})
	restored.Restore(snap)

	u, ok := restored.Identity()
	require.True(t, ok)
	assert.Equal(t, customer(), u)
	assert.Empty(t, restoredPub.events)
	assert.Len(t, pub.events, 1)

	restored.Restore(Snapshot{})
	_, ok = restored.Identity()
	assert.False(t, ok)
	assert.Nil(t, restored.Snapshot().Token)
}
