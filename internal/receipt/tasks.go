package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/billing"
)

// TypeRender is the asynq task type for background receipt rendering.
const TypeRender = "receipt:render"

// ErrNotRendered indicates no rendered receipt exists for the bill number.
var ErrNotRendered = errors.New("receipt not rendered")

const keyPrefix = "pos:receipt:"

// Key returns the Redis key holding the rendered receipt for a bill number.
func Key(billNumber string) string {
	return keyPrefix + billNumber
}

type renderPayload struct {
	Bill billing.Bill `json:"bill"`
}

// NewRenderTask builds the asynq task carrying the bill to render.
func NewRenderTask(bill billing.Bill) (*asynq.Task, error) {
	raw, err := json.Marshal(renderPayload{Bill: bill})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRender, raw, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Enqueuer schedules receipt rendering through asynq.
type Enqueuer struct {
	Client *asynq.Client
}

// EnqueueRender implements billing.ReceiptEnqueuer.
func (e *Enqueuer) EnqueueRender(ctx context.Context, bill billing.Bill) error {
	if e == nil || e.Client == nil {
		return errors.New("receipt enqueuer not configured")
	}
	task, err := NewRenderTask(bill)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue receipt render: %w", err)
	}
	return nil
}

// Worker renders receipts and stores them in Redis.
type Worker struct {
	R      *redis.Client
	TTL    time.Duration
	Logger zerolog.Logger
}

func (w *Worker) ttl() time.Duration {
	if w.TTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return w.TTL
}

// HandleRender is the asynq handler for TypeRender tasks.
func (w *Worker) HandleRender(ctx context.Context, task *asynq.Task) error {
	var payload renderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal render payload: %w", err)
	}
	text := Render(payload.Bill)
	if err := w.R.Set(ctx, Key(payload.Bill.BillNumber), text, w.ttl()).Err(); err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	w.Logger.Info().Str("bill_number", payload.Bill.BillNumber).Msg("receipt rendered")
	return nil
}

// Fetch returns the rendered receipt for a bill number.
func Fetch(ctx context.Context, r *redis.Client, billNumber string) (string, error) {
	text, err := r.Get(ctx, Key(billNumber)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotRendered
		}
		return "", err
	}
	return text, nil
}
