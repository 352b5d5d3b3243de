package product

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/apierr"
	"github.com/xenking/grocery-kart/internal/observe"
)

// CategoryGateway reads the remote category tree.
type CategoryGateway interface {
	Tree(ctx context.Context) ([]Category, error)
}

// CategoriesState is a point-in-time copy of the category tree.
type CategoriesState struct {
	Tree      []Category
	IsLoading bool
	Error     string
}

// Categories holds the category tree.
type Categories struct {
	gw CategoryGateway
	lg *zap.Logger

	mu       sync.Mutex
	tree     []Category
	err      string
	fetching bool

	changes observe.Subject
}

func NewCategories(gw CategoryGateway, lg *zap.Logger) *Categories {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Categories{gw: gw, lg: lg}
}

// Fetch replaces the tree. A call made while another Fetch is in flight
// returns immediately. Failures wipe the tree.
func (c *Categories) Fetch(ctx context.Context) {
	c.mu.Lock()
	if c.fetching {
		c.mu.Unlock()
		return
	}
	c.fetching = true
	c.err = ""
	c.mu.Unlock()
	c.changes.Notify()

	tree, err := c.gw.Tree(ctx)

	c.mu.Lock()
	c.fetching = false
	if err != nil {
		apierr.Log(c.lg, err, "categories.Fetch")
		c.err = apierr.Message(err, "Failed to fetch categories")
		c.tree = nil
	} else {
		c.tree = tree
	}
	c.mu.Unlock()
	c.changes.Notify()
}

// Find searches the whole tree for id.
func (c *Categories) Find(id int64) (Category, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return findCategory(c.tree, id)
}

func findCategory(nodes []Category, id int64) (Category, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return cloneCategory(n), true
		}
		if found, ok := findCategory(n.Children, id); ok {
			return found, true
		}
	}
	return Category{}, false
}

func cloneCategory(c Category) Category {
	if c.ParentID != nil {
		p := *c.ParentID
		c.ParentID = &p
	}
	if c.Children != nil {
		children := make([]Category, len(c.Children))
		for i, ch := range c.Children {
			children[i] = cloneCategory(ch)
		}
		c.Children = children
	}
	return c
}

// State returns a copy of the tree state.
func (c *Categories) State() CategoriesState {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tree []Category
	if c.tree != nil {
		tree = make([]Category, len(c.tree))
		for i, n := range c.tree {
			tree[i] = cloneCategory(n)
		}
	}
	return CategoriesState{Tree: tree, IsLoading: c.fetching, Error: c.err}
}

// Subscribe registers fn to run after every state change.
func (c *Categories) Subscribe(fn func()) (cancel func()) {
	return c.changes.Subscribe(fn)
}
