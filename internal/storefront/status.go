package storefront

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/grocery-kart/internal/domain/product"
	"github.com/xenking/grocery-kart/internal/storage"
	"github.com/xenking/grocery-kart/pkg/health"
)

const probeTimeout = 5 * time.Second

// Status probes the state store and the API.
func (s *Storefront) Status(ctx context.Context) health.Report {
	c := health.New()
	c.Add("storage", probeTimeout, func(ctx context.Context) error {
		_, err := s.kv.Get(ctx, KeyToken)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	c.Add("api", probeTimeout, func(ctx context.Context) error {
		_, err := s.gw.Products.List(ctx, product.Filters{Limit: 1})
		return err
	})
	return c.Run(ctx)
}
