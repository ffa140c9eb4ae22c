package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/coupon"
)

const (
	productKeyPrefix = "pos:catalog:product:"
	couponsKey       = "pos:catalog:coupons"
)

// Cached decorates a catalog Client with a Redis read-through cache for
// products and the coupon list. Lookups fall back to the inner client on any
// cache error; cache writes are best effort.
type Cached struct {
	Inner  Client
	R      *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func (c *Cached) ttl() time.Duration {
	if c.TTL <= 0 {
		return 30 * time.Second
	}
	return c.TTL
}

// Product returns a product, served from cache when fresh.
func (c *Cached) Product(ctx context.Context, id string) (Product, error) {
	key := productKeyPrefix + id
	if c.R != nil {
		if raw, err := c.R.Get(ctx, key).Bytes(); err == nil {
			var p Product
			if json.Unmarshal(raw, &p) == nil {
				return p, nil
			}
		}
	}
	p, err := c.Inner.Product(ctx, id)
	if err != nil {
		return Product{}, err
	}
	c.store(ctx, key, p)
	return p, nil
}

// SearchProducts is not cached: queries are free text and results churn with stock.
func (c *Cached) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	return c.Inner.SearchProducts(ctx, query)
}

// Coupon resolves a single rule from the cached coupon list when possible.
func (c *Cached) Coupon(ctx context.Context, code string) (coupon.Rule, error) {
	normalized := coupon.Normalize(code)
	if rules, err := c.cachedCoupons(ctx); err == nil {
		for _, r := range rules {
			if r.Code == normalized {
				return r, nil
			}
		}
	}
	return c.Inner.Coupon(ctx, normalized)
}

// ListCoupons returns the coupon catalog, served from cache when fresh.
func (c *Cached) ListCoupons(ctx context.Context) ([]coupon.Rule, error) {
	if rules, err := c.cachedCoupons(ctx); err == nil {
		return rules, nil
	}
	rules, err := c.Inner.ListCoupons(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, couponsKey, rules)
	return rules, nil
}

func (c *Cached) cachedCoupons(ctx context.Context) ([]coupon.Rule, error) {
	if c.R == nil {
		return nil, redis.Nil
	}
	raw, err := c.R.Get(ctx, couponsKey).Bytes()
	if err != nil {
		return nil, err
	}
	var rules []coupon.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Cached) store(ctx context.Context, key string, v any) {
	if c.R == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.R.Set(ctx, key, raw, c.ttl()).Err(); err != nil {
		c.Logger.Debug().Err(err).Str("key", key).Msg("catalog cache write failed")
	}
}
