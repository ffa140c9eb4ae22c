package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Handler exposes liveness and readiness endpoints over a set of named probes.
type Handler struct {
	Probes  map[string]Probe
	Timeout time.Duration
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency and reports per-dependency status.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Probes))
	healthy := true
	for name, probe := range h.Probes {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
		if err := probe(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
		} else {
			status[name] = "ok"
		}
		cancel()
	}
	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

// DBProbe pings the Postgres pool.
func DBProbe(pool *pgxpool.Pool) Probe {
	return func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db pool not configured")
		}
		return pool.Ping(ctx)
	}
}

// RedisProbe pings the Redis client.
func RedisProbe(r *redis.Client) Probe {
	return func(ctx context.Context) error {
		if r == nil {
			return fmt.Errorf("redis not configured")
		}
		return r.Ping(ctx).Err()
	}
}

// HTTPProbe issues a GET against an upstream health URL.
func HTTPProbe(client *http.Client, url string) Probe {
	return func(ctx context.Context) error {
		if client == nil {
			client = http.DefaultClient
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream responded %s", resp.Status)
		}
		return nil
	}
}
