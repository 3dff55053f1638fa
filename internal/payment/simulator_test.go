package payment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_Decide(t *testing.T) {
	s := NewOfflineSimulator()

	cases := []struct {
		name   string
		method Method
		status string
		reason string
	}{
		{"forced success", Method{Force: "success"}, StatusSuccess, "forced_success"},
		{"forced failure", Method{Force: "fail"}, StatusFailure, "forced_failure"},
		{"even card succeeds", Method{CardNumber: "4242424242424242"}, StatusSuccess, "even_card_success"},
		{"odd card fails", Method{CardNumber: "4242424242424241"}, StatusFailure, "odd_card_failure"},
		{"non-numeric card falls through", Method{CardNumber: "4242-4242"}, StatusSuccess, "default_success"},
		{"no method at all", Method{}, StatusSuccess, "default_success"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Charge(context.Background(), 1000, tc.method, "")
			require.NoError(t, err)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.reason, res.Reason)
			if tc.status == StatusSuccess {
				assert.NotEmpty(t, res.TransactionID)
			} else {
				assert.Empty(t, res.TransactionID)
			}
		})
	}
}

func TestSimulator_Charge_RecordsFirstOutcome(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	s := NewSimulator(db)

	mock.ExpectGet("payment:idempotency:key-1").RedisNil()
	mock.Regexp().ExpectSetNX("payment:idempotency:key-1", `.*"status":"failure".*`, 24*time.Hour).SetVal(true)

	res, err := s.Charge(context.Background(), 1000, Method{Force: "fail"}, "key-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulator_Charge_ReplaysRecordedOutcome(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	s := NewSimulator(db)

	stored, err := json.Marshal(&ChargeResult{
		Status:        StatusSuccess,
		TransactionID: "sim-original",
		Reason:        "default_success",
	})
	require.NoError(t, err)
	mock.ExpectGet("payment:idempotency:key-2").SetVal(string(stored))

	// Even a forced failure must replay the recorded success: the first
	// attempt's outcome is authoritative for the key's lifetime.
	res, err := s.Charge(context.Background(), 1000, Method{Force: "fail"}, "key-2")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "sim-original", res.TransactionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSimulator_Charge_NoKeySkipsIndex(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer mock.ClearExpect()
	s := NewSimulator(db)

	// No expectations registered: any Redis traffic would fail the test.
	res, err := s.Charge(context.Background(), 500, Method{Force: "success"}, "")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
