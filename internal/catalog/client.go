package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-pos/internal/coupon"
	"github.com/noah-isme/backend-pos/internal/pricing"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

// ErrProductNotFound indicates the catalog has no product with the given id.
var ErrProductNotFound = errors.New("product not found")

// Product is a catalog product record as served by the upstream service.
type Product struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	SKU          string        `json:"sku"`
	SellingPrice pricing.Money `json:"sellingPrice"`
	CostPrice    pricing.Money `json:"costPrice"`
	CurrentStock int           `json:"currentStock"`
	CategoryID   string        `json:"categoryId"`
}

// Client is the read interface over the product and coupon catalog.
type Client interface {
	Product(ctx context.Context, id string) (Product, error)
	SearchProducts(ctx context.Context, query string) ([]Product, error)
	Coupon(ctx context.Context, code string) (coupon.Rule, error)
	ListCoupons(ctx context.Context) ([]coupon.Rule, error)
}

// RESTClient talks to the catalog service over HTTP.
type RESTClient struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

// NewRESTClient builds a catalog client with tracing transport and a breaker
// dedicated to the catalog upstream.
func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithUpstream("catalog"),
			BaseBackoff: 100 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
		},
	}
}

type productEnvelope struct {
	Data Product `json:"data"`
}

type productListEnvelope struct {
	Data []Product `json:"data"`
}

// couponRecord is the coupon wire shape; it maps onto coupon.Rule.
type couponRecord struct {
	Code         string        `json:"code"`
	Kind         string        `json:"kind"`
	PercentBps   int32         `json:"percentBps"`
	Value        pricing.Money `json:"value"`
	MaxDiscount  pricing.Money `json:"maxDiscount"`
	MinPurchase  pricing.Money `json:"minPurchase"`
	AllowedTiers []string      `json:"allowedTiers"`
	UsageLimit   int32         `json:"usageLimit"`
	UsedCount    int32         `json:"usedCount"`
	ValidFrom    *time.Time    `json:"validFrom"`
	ValidTo      *time.Time    `json:"validTo"`
}

func (c couponRecord) rule() coupon.Rule {
	return coupon.Rule{
		Code:         coupon.Normalize(c.Code),
		Kind:         coupon.Kind(c.Kind),
		PercentBps:   c.PercentBps,
		Value:        c.Value,
		MaxDiscount:  c.MaxDiscount,
		MinPurchase:  c.MinPurchase,
		AllowedTiers: c.AllowedTiers,
		UsageLimit:   c.UsageLimit,
		UsedCount:    c.UsedCount,
		ValidFrom:    c.ValidFrom,
		ValidTo:      c.ValidTo,
	}
}

// Product fetches a single product by id.
func (c *RESTClient) Product(ctx context.Context, id string) (Product, error) {
	var env productEnvelope
	err := c.get(ctx, "/v1/products/"+url.PathEscape(id), &env)
	if err != nil {
		if errors.Is(err, errUpstreamNotFound) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return env.Data, nil
}

// SearchProducts returns products matching the free-text query.
func (c *RESTClient) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	var env productListEnvelope
	path := "/v1/products"
	if strings.TrimSpace(query) != "" {
		path += "?q=" + url.QueryEscape(query)
	}
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Coupon fetches a single coupon rule by its normalized code.
func (c *RESTClient) Coupon(ctx context.Context, code string) (coupon.Rule, error) {
	var env struct {
		Data couponRecord `json:"data"`
	}
	err := c.get(ctx, "/v1/coupons/"+url.PathEscape(coupon.Normalize(code)), &env)
	if err != nil {
		if errors.Is(err, errUpstreamNotFound) {
			return coupon.Rule{}, coupon.ErrNotFound
		}
		return coupon.Rule{}, err
	}
	return env.Data.rule(), nil
}

// ListCoupons returns all currently published coupon rules.
func (c *RESTClient) ListCoupons(ctx context.Context) ([]coupon.Rule, error) {
	var env struct {
		Data []couponRecord `json:"data"`
	}
	if err := c.get(ctx, "/v1/coupons", &env); err != nil {
		return nil, err
	}
	rules := make([]coupon.Rule, 0, len(env.Data))
	for _, rec := range env.Data {
		rules = append(rules, rec.rule())
	}
	return rules, nil
}

var errUpstreamNotFound = errors.New("catalog: not found")

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("catalog request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errUpstreamNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("catalog responded %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}
