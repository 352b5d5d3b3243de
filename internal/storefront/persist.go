package storefront

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/grocery-kart/internal/domain/cart"
	"github.com/xenking/grocery-kart/internal/domain/order"
	"github.com/xenking/grocery-kart/internal/domain/session"
	"github.com/xenking/grocery-kart/internal/storage"
	"github.com/xenking/grocery-kart/pkg/roundtrip"
)

type cartState struct {
	Items []cart.Item `json:"items"`
}

// tokenStore keeps the bearer token under KeyToken as a JSON string.
type tokenStore struct {
	kv storage.KV
}

func (t tokenStore) SetToken(ctx context.Context, token string) error {
	data, err := json.Marshal(token)
	if err != nil {
		return errors.Wrap(err, "marshal token")
	}
	return t.kv.Set(ctx, KeyToken, data)
}

func (t tokenStore) ClearToken(ctx context.Context) error {
	return t.kv.Delete(ctx, KeyToken)
}

// TokenSource reads the bearer token saved in kv, for the API client.
func TokenSource(kv storage.KV) roundtrip.TokenSource {
	return func(ctx context.Context) (string, error) {
		data, err := kv.Get(ctx, KeyToken)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		var token string
		if err := json.Unmarshal(data, &token); err != nil {
			return "", errors.Wrap(err, "decode token")
		}
		return token, nil
	}
}

// Load restores saved state. A saved session whose token has expired is
// discarded together with the rest of its state. Unreadable entries are
// logged and skipped.
func (s *Storefront) Load(ctx context.Context) error {
	var auth session.Snapshot
	ok, err := storage.Load(ctx, s.kv, KeyAuth, &auth)
	if err != nil {
		s.lg.Warn("Skipping unreadable saved session", zap.Error(err))
	}
	if ok && auth.Token != nil {
		if session.TokenExpired(*auth.Token, s.now()) {
			s.lg.Info("Saved session expired, discarding")
			if err := s.kv.Delete(ctx, sessionKeys...); err != nil {
				return errors.Wrap(err, "purge expired session")
			}
			return nil
		}
		s.Session.Restore(auth)
		// The standalone token may be missing if it was written by an
		// older client; keep it in sync with the auth entry.
		if err := (tokenStore{kv: s.kv}).SetToken(ctx, *auth.Token); err != nil {
			return errors.Wrap(err, "sync token")
		}
	}

	var c cartState
	if ok, err := storage.Load(ctx, s.kv, KeyCart, &c); err != nil {
		s.lg.Warn("Skipping unreadable saved cart", zap.Error(err))
	} else if ok {
		s.Cart.Restore(c.Items)
	}

	var o order.Snapshot
	if ok, err := storage.Load(ctx, s.kv, KeyOrders, &o); err != nil {
		s.lg.Warn("Skipping unreadable saved orders", zap.Error(err))
	} else if ok {
		s.Orders.Restore(o)
	}
	return nil
}

// save writes the named aggregates. Failures are logged: the in-memory
// state stays authoritative for the rest of the process.
func (s *Storefront) save(ctx context.Context, keys ...string) {
	for _, key := range keys {
		var v any
		switch key {
		case KeyCart:
			v = cartState{Items: s.Cart.Items()}
		case KeyOrders:
			v = s.Orders.Snapshot()
		case KeyAuth:
			v = s.Session.Snapshot()
		default:
			continue
		}
		if err := storage.Save(ctx, s.kv, key, v); err != nil {
			s.lg.Error("Save state", zap.String("key", key), zap.Error(err))
		}
	}
}
