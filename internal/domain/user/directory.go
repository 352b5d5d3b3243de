package user

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/observe"
)

// Stats counts directory accounts by role.
type Stats struct {
	Total     int
	Admins    int
	Managers  int
	Customers int
}

// Result is the outcome of a directory mutation.
type Result struct {
	Success bool
	Error   string
}

// DirectoryState is a point-in-time copy of the directory.
type DirectoryState struct {
	Accounts  []Account
	IsLoading bool
	Error     string
}

// Directory holds the staff view of all user accounts.
type Directory struct {
	gw Gateway
	lg *zap.Logger

	mu       sync.Mutex
	accounts []Account
	fetching bool
	err      string
	epoch    uint64

	changes observe.Subject
}

// NewDirectory returns an empty Directory backed by gw.
func NewDirectory(gw Gateway, lg *zap.Logger) *Directory {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Directory{gw: gw, lg: lg}
}

// Fetch replaces the account list. A call made while another Fetch is in
// flight returns immediately.
func (d *Directory) Fetch(ctx context.Context) {
	d.mu.Lock()
	if d.fetching {
		d.mu.Unlock()
		return
	}
	d.fetching = true
	d.err = ""
	epoch := d.epoch
	d.mu.Unlock()
	d.changes.Notify()

	accounts, err := d.gw.List(ctx)

	d.mu.Lock()
	if epoch != d.epoch {
		d.mu.Unlock()
		return
	}
	d.fetching = false
	if err != nil {
		apierr.Log(d.lg, err, "directory.Fetch")
		d.err = apierr.Message(err, "Failed to load users")
		d.accounts = nil
	} else {
		for i := range accounts {
			if accounts[i].LastActive.IsZero() {
				accounts[i].LastActive = accounts[i].UpdatedAt
			}
		}
		d.accounts = accounts
	}
	d.mu.Unlock()
	d.changes.Notify()
}

// UpdateRole asks the API to change a user's role and patches the local
// account once the API confirms.
func (d *Directory) UpdateRole(ctx context.Context, id int64, role Role) Result {
	d.mu.Lock()
	d.err = ""
	epoch := d.epoch
	d.mu.Unlock()

	if err := d.gw.UpdateRole(ctx, id, role); err != nil {
		apierr.Log(d.lg, err, "directory.UpdateRole")
		msg := apierr.Message(err, "Failed to update user role")
		d.mu.Lock()
		if epoch == d.epoch {
			d.err = msg
		}
		d.mu.Unlock()
		d.changes.Notify()
		return Result{Error: msg}
	}

	d.mu.Lock()
	if epoch == d.epoch {
		for i := range d.accounts {
			if d.accounts[i].ID == id {
				d.accounts[i].Role = role
			}
		}
	}
	d.mu.Unlock()
	d.changes.Notify()

	return Result{Success: true}
}

// Find returns a locally known account.
func (d *Directory) Find(id int64) (Account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.accounts, func(a Account) bool { return a.ID == id })
	if i < 0 {
		return Account{}, false
	}
	return d.accounts[i], true
}

// ByRole returns the accounts holding role.
func (d *Directory) ByRole(role Role) []Account {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Account
	for _, a := range d.accounts {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Stats counts the accounts by role.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{Total: len(d.accounts)}
	for _, a := range d.accounts {
		switch a.Role {
		case RoleAdmin:
			s.Admins++
		case RoleManager:
			s.Managers++
		case RoleCustomer:
			s.Customers++
		}
	}
	return s
}

// State returns a copy of the directory state.
func (d *Directory) State() DirectoryState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return DirectoryState{
		Accounts:  slices.Clone(d.accounts),
		IsLoading: d.fetching,
		Error:     d.err,
	}
}

// ClearError drops the recorded error.
func (d *Directory) ClearError() {
	d.mu.Lock()
	d.err = ""
	d.mu.Unlock()
	d.changes.Notify()
}

// Reset empties the directory and discards results of requests still in
// flight.
func (d *Directory) Reset() {
	d.mu.Lock()
	d.accounts = nil
	d.fetching = false
	d.err = ""
	d.epoch++
	d.mu.Unlock()
	d.changes.Notify()
}

// Subscribe registers fn to run after every state change.
func (d *Directory) Subscribe(fn func()) (cancel func()) {
	return d.changes.Subscribe(fn)
}
