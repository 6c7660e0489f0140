// Package api exposes HTTP handlers for the habit ledger.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/habitledger/internal/domain"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	pinger   Pinger
	validate *validator.Validate
}

// NewHandler builds a Handler. pinger may be nil, in which case /healthz always succeeds.
func NewHandler(service *domain.Service, pinger Pinger) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{service: service, pinger: pinger, validate: validate}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/habits", h.createHabit).Methods(http.MethodPost)
	r.HandleFunc("/habits", h.listHabits).Methods(http.MethodGet)
	r.HandleFunc("/habits/{id}/toggle", h.toggleHabit).Methods(http.MethodPatch)
	r.HandleFunc("/habits/{id}", h.deleteHabit).Methods(http.MethodDelete)
	r.HandleFunc("/day", h.getDay).Methods(http.MethodGet)
	r.HandleFunc("/summary", h.summary).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
}

// healthz reports storage reachability for container health checks.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createHabit(w http.ResponseWriter, r *http.Request) {
	var req CreateHabitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", describeValidation(err))
		return
	}

	if _, err := h.service.CreateHabit(r.Context(), domain.CreateHabitInput{
		Title:    req.Title,
		WeekDays: req.WeekDays,
	}); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) listHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := h.service.ListHabits(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitViews(habits))
}

func (h *Handler) getDay(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing date parameter")
		return
	}
	date, err := parseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	detail, err := h.service.GetDay(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DayView{
		PossibleHabits:  toHabitViews(detail.PossibleHabits),
		CompletedHabits: detail.CompletedHabits,
	})
}

func (h *Handler) toggleHabit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var date *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		date = &parsed
	}

	result, err := h.service.ToggleHabit(r.Context(), id, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleView{
		HabitID:   result.HabitID,
		Date:      result.Date,
		Completed: result.Completed,
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]SummaryView, 0, len(summary))
	for _, s := range summary {
		items = append(items, SummaryView{ID: s.ID, Date: s.Date, Completed: s.Completed, Amount: s.Amount})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) deleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteHabit(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateHabitRequest is the payload for POST /habits.
type CreateHabitRequest struct {
	Title    string `json:"title" validate:"required"`
	WeekDays []int  `json:"weekDays" validate:"required,min=1,dive,min=0,max=6"`
}

// HabitView is the wire form of a habit. created_at keeps the column name existing clients read.
type HabitView struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	WeekDays  []int     `json:"weekDays"`
}

// DayView answers GET /day.
type DayView struct {
	PossibleHabits  []HabitView `json:"possibleHabits"`
	CompletedHabits []string    `json:"completedHabits"`
}

// ToggleView answers PATCH /habits/{id}/toggle.
type ToggleView struct {
	HabitID   string    `json:"habitId"`
	Date      time.Time `json:"date"`
	Completed bool      `json:"completed"`
}

// SummaryView is one entry of GET /summary.
type SummaryView struct {
	ID        string    `json:"id"`
	Date      time.Time `json:"date"`
	Completed int       `json:"completed"`
	Amount    int       `json:"amount"`
}

func toHabitViews(habits []domain.Habit) []HabitView {
	out := make([]HabitView, 0, len(habits))
	for _, h := range habits {
		weekDays := h.WeekDays
		if weekDays == nil {
			weekDays = []int{}
		}
		out = append(out, HabitView{ID: h.ID, Title: h.Title, CreatedAt: h.CreatedAt.UTC(), WeekDays: weekDays})
	}
	return out
}

// parseDate accepts an RFC3339 instant or a bare YYYY-MM-DD calendar date.
// An unencoded "+" offset arrives from the query string as a space and is restored.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndexByte(raw, ' '); i > len(time.DateOnly) {
		raw = raw[:i] + "+" + raw[i+1:]
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q is not an ISO-8601 date", raw)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), rule))
	}
	return strings.Join(msgs, "; ")
}

func writeDomainError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation_failed", verr.Error())
	case errors.Is(err, domain.ErrHabitNotFound):
		writeError(w, http.StatusNotFound, "not_found", "habit not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
