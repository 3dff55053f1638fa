package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/show-booking-engine/internal/cache"
	"github.com/iliyamo/show-booking-engine/internal/monitoring"
	"github.com/iliyamo/show-booking-engine/internal/notify"
	"github.com/iliyamo/show-booking-engine/internal/repository"
)

func newTestReservationHandler() (*ReservationHandler, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	h := NewReservationHandler(
		cache.NewCapacityLedger(db),
		cache.NewSeatHoldTable(db),
		repository.NewShowRepo(nil), // never reached when the counter is primed
		notify.Nop{},
		monitoring.New(),
	)
	return h, mock
}

// newRequestContext builds an authenticated echo context for a JSON
// request against a route with an :id parameter.
func newRequestContext(method, target, body, owner string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if owner != "" {
		c.Set("owner", owner)
	}
	return c, rec
}

// Raw reply errors as the store scripts produce them.
func errInsufficient() error        { return errors.New("INSUFFICIENT_CAPACITY") }
func errSeatHeld(seat string) error { return errors.New("SEAT_ALREADY_HELD:" + seat) }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReserveByCount_Success(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectGet("show:42:capacity").SetVal("100")
	mock.ExpectEvalSha(cache.ReserveScriptHash(),
		[]string{"show:42:capacity", "lock:show:42", "reservation_counter"},
		3, int64(10000), "alice", "42", int64(300),
	).SetVal([]interface{}{int64(7), int64(97)})

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/reserve", `{"count":3}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.ReserveByCount(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 7, body["reservation_id"])
	assert.EqualValues(t, 97, body["remaining"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveByCount_InsufficientCapacity(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectGet("show:42:capacity").SetVal("2")
	mock.ExpectEvalSha(cache.ReserveScriptHash(),
		[]string{"show:42:capacity", "lock:show:42", "reservation_counter"},
		5, int64(10000), "alice", "42", int64(300),
	).SetErr(errInsufficient())

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/reserve", `{"count":5}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.ReserveByCount(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "insufficient_capacity", decodeBody(t, rec)["error"])
}

func TestReserveByCount_RejectsZeroCount(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/reserve", `{"count":0}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.ReserveByCount(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveByCount_Unauthenticated(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/reserve", `{"count":1}`, "")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.ReserveByCount(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHoldSeats_ConflictNamesSeat(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectEvalSha(cache.HoldSeatsScriptHash(),
		[]string{"reservation_counter"},
		"alice", "42", int64(120), "A1", "A2",
	).SetErr(errSeatHeld("A2"))

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/hold", `{"seats":["A1","A2"]}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.HoldSeats(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "seat_already_held", body["error"])
	assert.Equal(t, "A2", body["seat"])
}

func TestHoldSeats_DeduplicatesSeats(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	// "A1" twice in the request, once in the script call.
	mock.ExpectEvalSha(cache.HoldSeatsScriptHash(),
		[]string{"reservation_counter"},
		"alice", "42", int64(120), "A1", "B2",
	).SetVal([]interface{}{"9", "A1,B2"})

	c, rec := newRequestContext(http.MethodPost, "/v1/shows/42/hold", `{"seats":["A1","A1","B2"]}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.HoldSeats(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 9, decodeBody(t, rec)["reservation_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmReservation_SeatMode(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "seats",
		"seats": "A1,A2", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ConfirmHoldScriptHash(), []string{"reservation:9"}, "alice").SetVal("OK")

	c, rec := newRequestContext(http.MethodPost, "/v1/reservations/9/confirm", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.ConfirmReservation(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decodeBody(t, rec)["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmReservation_ForeignOwner(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "bob", "show_id": "42", "mode": "count",
		"count": "2", "created_at": "1700000000",
	})

	c, rec := newRequestContext(http.MethodPost, "/v1/reservations/9/confirm", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.ConfirmReservation(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReleaseReservation_GoneIsNoOp(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{})

	c, rec := newRequestContext(http.MethodPost, "/v1/reservations/9/release", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.ReleaseReservation(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "released", decodeBody(t, rec)["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseReservation_CountMode(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("reservation:9").SetVal(map[string]string{
		"owner": "alice", "show_id": "42", "mode": "count",
		"count": "3", "created_at": "1700000000",
	})
	mock.ExpectEvalSha(cache.ReleaseCountScriptHash(),
		[]string{"show:42:capacity", "reservation:9"},
		3,
	).SetVal("OK")

	c, rec := newRequestContext(http.MethodPost, "/v1/reservations/9/release", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("9")

	require.NoError(t, h.ReleaseReservation(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemainingCapacity(t *testing.T) {
	h, mock := newTestReservationHandler()
	defer mock.ClearExpect()

	// ensureCapacity finds the counter primed, then the read serves it.
	mock.ExpectGet("show:42:capacity").SetVal("55")
	mock.ExpectGet("show:42:capacity").SetVal("55")

	c, rec := newRequestContext(http.MethodGet, "/v1/shows/42/capacity", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("42")

	require.NoError(t, h.RemainingCapacity(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 55, decodeBody(t, rec)["remaining"])
}
