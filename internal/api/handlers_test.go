package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"example.com/habitledger/internal/domain"
	"example.com/habitledger/internal/persistence/memory"
	"example.com/habitledger/internal/persistence/persistencetest"
)

type testServer struct {
	router *mux.Router
	clock  *persistencetest.Clock
}

func newTestServer(t *testing.T, pinger Pinger) *testServer {
	t.Helper()
	clock := persistencetest.NewClock(time.Date(2024, time.April, 1, 9, 30, 0, 0, time.UTC))
	service := domain.NewService(memory.NewRepository(), domain.WithClock(clock.Now))

	router := mux.NewRouter()
	NewHandler(service, pinger).RegisterRoutes(router)
	return &testServer{router: router, clock: clock}
}

func (s *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func requireErrorType(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rr.Code, rr.Body.String())
	body := decode[map[string]string](t, rr)
	require.Equal(t, code, body["type"])
	require.NotEmpty(t, body["detail"])
}

func TestHabitLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := srv.do(t, http.MethodPost, "/habits", `{"title":"Drink water","weekDays":[1,3]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Empty(t, rr.Body.String())

	habits := decode[[]HabitView](t, srv.do(t, http.MethodGet, "/habits", ""))
	require.Len(t, habits, 1)
	habit := habits[0]
	require.Equal(t, "Drink water", habit.Title)
	require.Equal(t, []int{1, 3}, habit.WeekDays)
	require.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), habit.CreatedAt)

	day := decode[DayView](t, srv.do(t, http.MethodGet, "/day?date=2024-04-01", ""))
	require.Len(t, day.PossibleHabits, 1)
	require.Equal(t, habit.ID, day.PossibleHabits[0].ID)
	require.Empty(t, day.CompletedHabits)
	require.NotNil(t, day.CompletedHabits)

	rr = srv.do(t, http.MethodPatch, "/habits/"+habit.ID+"/toggle?date=2024-04-01T18:00:00Z", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.JSONEq(t, `{"habitId":"`+habit.ID+`","date":"2024-04-01T00:00:00Z","completed":true}`, rr.Body.String())

	day = decode[DayView](t, srv.do(t, http.MethodGet, "/day?date=2024-04-01T12:00:00Z", ""))
	require.Equal(t, []string{habit.ID}, day.CompletedHabits)

	summary := decode[[]SummaryView](t, srv.do(t, http.MethodGet, "/summary", ""))
	require.Len(t, summary, 1)
	require.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), summary[0].Date)
	require.Equal(t, 1, summary[0].Completed)
	require.Equal(t, 1, summary[0].Amount)
	require.NotEmpty(t, summary[0].ID)

	rr = srv.do(t, http.MethodDelete, "/habits/"+habit.ID, "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	requireErrorType(t, srv.do(t, http.MethodDelete, "/habits/"+habit.ID, ""), http.StatusNotFound, "not_found")

	summary = decode[[]SummaryView](t, srv.do(t, http.MethodGet, "/summary", ""))
	require.Len(t, summary, 1)
	require.Zero(t, summary[0].Completed)
	require.Zero(t, summary[0].Amount)
}

func TestToggleDefaultsToToday(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/habits", `{"title":"Read","weekDays":[0,1,2,3,4,5,6]}`).Code)
	habit := decode[[]HabitView](t, srv.do(t, http.MethodGet, "/habits", ""))[0]

	srv.clock.Set(time.Date(2024, time.April, 3, 23, 59, 0, 0, time.UTC))
	toggled := decode[ToggleView](t, srv.do(t, http.MethodPatch, "/habits/"+habit.ID+"/toggle", ""))
	require.True(t, toggled.Completed)
	require.Equal(t, time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC), toggled.Date)

	toggled = decode[ToggleView](t, srv.do(t, http.MethodPatch, "/habits/"+habit.ID+"/toggle", ""))
	require.False(t, toggled.Completed)
}

func TestHabitWireFormat(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/habits", `{"title":"Read","weekDays":[1]}`).Code)

	var raw []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(srv.do(t, http.MethodGet, "/habits", "").Body.Bytes(), &raw))
	require.Len(t, raw, 1)
	require.JSONEq(t, `"2024-04-01T00:00:00Z"`, string(raw[0]["created_at"]))
	require.JSONEq(t, `"Read"`, string(raw[0]["title"]))
	require.JSONEq(t, `[1]`, string(raw[0]["weekDays"]))
	require.NotContains(t, raw[0], "createdAt")
}

func TestToggleAcceptsUnencodedPositiveOffset(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/habits", `{"title":"Read","weekDays":[0,1,2,3,4,5,6]}`).Code)
	habit := decode[[]HabitView](t, srv.do(t, http.MethodGet, "/habits", ""))[0]

	// 05:00 at +09:00 is still the previous UTC day.
	rr := srv.do(t, http.MethodPatch, "/habits/"+habit.ID+"/toggle?date=2024-04-02T05:00:00+09:00", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), decode[ToggleView](t, rr).Date)

	day := decode[DayView](t, srv.do(t, http.MethodGet, "/day?date=2024-04-01T23:00:00%2B02:00", ""))
	require.Equal(t, []string{habit.ID}, day.CompletedHabits)
}

func TestCreateHabitRejectsInvalidPayloads(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: `{"title":`, code: "invalid_request"},
		{name: "missing title", body: `{"weekDays":[1]}`, code: "validation_failed"},
		{name: "blank title", body: `{"title":"   ","weekDays":[1]}`, code: "validation_failed"},
		{name: "missing week days", body: `{"title":"Run"}`, code: "validation_failed"},
		{name: "empty week days", body: `{"title":"Run","weekDays":[]}`, code: "validation_failed"},
		{name: "week day too large", body: `{"title":"Run","weekDays":[7]}`, code: "validation_failed"},
		{name: "negative week day", body: `{"title":"Run","weekDays":[-1]}`, code: "validation_failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, nil)
			requireErrorType(t, srv.do(t, http.MethodPost, "/habits", tc.body), http.StatusBadRequest, tc.code)
			require.Empty(t, decode[[]HabitView](t, srv.do(t, http.MethodGet, "/habits", "")))
		})
	}
}

func TestValidationMessageUsesJSONFieldNames(t *testing.T) {
	srv := newTestServer(t, nil)
	rr := srv.do(t, http.MethodPost, "/habits", `{"title":"Run","weekDays":[2,9]}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, decode[map[string]string](t, rr)["detail"], "weekDays[1]")
}

func TestGetDayRequiresValidDate(t *testing.T) {
	srv := newTestServer(t, nil)
	requireErrorType(t, srv.do(t, http.MethodGet, "/day", ""), http.StatusBadRequest, "validation_failed")
	requireErrorType(t, srv.do(t, http.MethodGet, "/day?date=yesterday", ""), http.StatusBadRequest, "validation_failed")
}

func TestGetDayDoesNotCreateDays(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/habits", `{"title":"Read","weekDays":[1]}`).Code)
	require.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/day?date=2024-04-01", "").Code)

	rr := srv.do(t, http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `[]`, rr.Body.String())
}

func TestToggleErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	requireErrorType(t, srv.do(t, http.MethodPatch, "/habits/not-a-uuid/toggle", ""), http.StatusBadRequest, "validation_failed")
	requireErrorType(t, srv.do(t, http.MethodPatch, "/habits/"+uuid.NewString()+"/toggle", ""), http.StatusNotFound, "not_found")
	requireErrorType(t, srv.do(t, http.MethodPatch, "/habits/"+uuid.NewString()+"/toggle?date=04/01/2024", ""), http.StatusBadRequest, "validation_failed")
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	srv := newTestServer(t, nil)
	requireErrorType(t, srv.do(t, http.MethodDelete, "/habits/42", ""), http.StatusBadRequest, "validation_failed")
}

func TestUnknownRoutesReturnJSONErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	requireErrorType(t, srv.do(t, http.MethodGet, "/nope", ""), http.StatusNotFound, "not_found")
	requireErrorType(t, srv.do(t, http.MethodPut, "/summary", ""), http.StatusMethodNotAllowed, "method_not_allowed")
}

func TestHealthz(t *testing.T) {
	rr := newTestServer(t, memory.NewRepository()).do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	failing := pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	requireErrorType(t, newTestServer(t, failing).do(t, http.MethodGet, "/healthz", ""), http.StatusServiceUnavailable, "unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/habits", `{"title":"Read","weekDays":[1]}`).Code)

	rr := srv.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "habit_ledger_habits_created_total")
}

func TestParseDate(t *testing.T) {
	got, err := parseDate("2024-04-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseDate("2024-04-01T23:30:00-02:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.April, 2, 1, 30, 0, 0, time.UTC), got.UTC())

	got, err = parseDate("2024-04-02T05:00:00 09:00")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.April, 1, 20, 0, 0, 0, time.UTC), got.UTC())

	_, err = parseDate("April 1st")
	require.Error(t, err)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }
