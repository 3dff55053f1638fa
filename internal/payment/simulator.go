// Package payment provides the charge gateway consumed by the booking
// orchestrator, a deterministic simulator implementation of it, and the
// idempotency index that makes retried charges side-effect-free.
package payment

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Charge outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Method describes how the client wants to pay. Force overrides the
// simulated outcome ("success" or "fail"); otherwise the last digit of
// CardNumber decides (even succeeds, odd fails).
type Method struct {
	Force      string `json:"force,omitempty"`
	CardNumber string `json:"card_number,omitempty"`
}

// ChargeResult is the outcome of a charge attempt. Reason is a stable
// machine-readable string surfaced to the client on failure; it is never
// used for control flow beyond the Status check.
type ChargeResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason"`
}

// Gateway charges a payment method. Implementations must either honor
// the idempotency key themselves or be wrapped so that a retried key
// returns the original outcome without charging twice.
type Gateway interface {
	Charge(ctx context.Context, amountCents int64, method Method, idempotencyKey string) (*ChargeResult, error)
}

// Simulator is a deterministic Gateway for test and development
// workflows: no money moves, but the idempotency behavior matches a real
// gateway. The zero index disables dedup (every call charges).
type Simulator struct {
	idx *IdempotencyIndex
}

// NewSimulator returns a Simulator recording outcomes in the given Redis
// client. rdb may not be nil.
func NewSimulator(rdb *redis.Client) *Simulator {
	return &Simulator{idx: NewIdempotencyIndex(rdb)}
}

// NewOfflineSimulator returns a Simulator without an idempotency index,
// for the degraded path when Redis is down. Charge-level dedup then
// rests solely on the booking table's unique key.
func NewOfflineSimulator() *Simulator {
	return &Simulator{}
}

// Charge simulates a charge. A previously recorded outcome for the
// idempotency key is returned as-is; otherwise the outcome is computed
// from the method, recorded first-write-wins, and returned.
func (s *Simulator) Charge(ctx context.Context, amountCents int64, method Method, idempotencyKey string) (*ChargeResult, error) {
	if idempotencyKey != "" && s.idx != nil {
		prev, ok, err := s.idx.Lookup(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if ok {
			return prev, nil
		}
	}

	result := s.decide(method)

	if idempotencyKey != "" && s.idx != nil {
		if err := s.idx.Record(ctx, idempotencyKey, result); err != nil {
			// The charge itself is done; losing the record only costs
			// dedup on a later retry. Surface it in the log, not to the
			// caller.
			log.Printf("payment: failed to record idempotency %s: %v", idempotencyKey, err)
		}
	}
	return result, nil
}

func (s *Simulator) decide(method Method) *ChargeResult {
	switch method.Force {
	case "success":
		return &ChargeResult{Status: StatusSuccess, TransactionID: txID(), Reason: "forced_success"}
	case "fail":
		return &ChargeResult{Status: StatusFailure, Reason: "forced_failure"}
	}
	if card := method.CardNumber; card != "" && isDigits(card) {
		if (card[len(card)-1]-'0')%2 == 0 {
			return &ChargeResult{Status: StatusSuccess, TransactionID: txID(), Reason: "even_card_success"}
		}
		return &ChargeResult{Status: StatusFailure, Reason: "odd_card_failure"}
	}
	return &ChargeResult{Status: StatusSuccess, TransactionID: txID(), Reason: "default_success"}
}

func txID() string { return "sim-" + uuid.NewString() }

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
