package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLIdempotency is how long a recorded charge outcome stays
// authoritative. Retries inside the window short-circuit to the stored
// result; after it, a replayed key is treated as a fresh request.
var TTLIdempotency = 24 * time.Hour

// IdempotencyIndex maps a client-supplied idempotency key to the first
// outcome computed for it. Writes are first-write-wins: a key can never
// be overwritten inside its TTL window, so a retried request always sees
// the outcome of the attempt that actually ran.
type IdempotencyIndex struct {
	rdb *redis.Client
}

// NewIdempotencyIndex returns an index bound to the provided Redis client.
func NewIdempotencyIndex(rdb *redis.Client) *IdempotencyIndex {
	return &IdempotencyIndex{rdb: rdb}
}

func idempotencyKey(key string) string { return fmt.Sprintf("payment:idempotency:%s", key) }

// Lookup returns the recorded outcome for key, or ok=false when no
// outcome has been recorded (distinct from a store error).
func (i *IdempotencyIndex) Lookup(ctx context.Context, key string) (*ChargeResult, bool, error) {
	data, err := i.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	var res ChargeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("idempotency decode: %w", err)
	}
	return &res, true, nil
}

// Record stores the outcome for key unless one already exists. The
// SET NX keeps the first recorded outcome authoritative even when two
// retries race to record. The value is stored as a JSON string so it
// reads back symmetrically with Lookup.
func (i *IdempotencyIndex) Record(ctx context.Context, key string, res *ChargeResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	if err := i.rdb.SetNX(ctx, idempotencyKey(key), string(data), TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}
