package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/persistence"
)

type scheduleService interface {
	CreateSchedule(ctx context.Context, params application.CreateScheduleParams) (persistence.Schedule, error)
	GetSchedule(ctx context.Context, principal application.Principal, scheduleID string) (persistence.Schedule, error)
	ListSchedules(ctx context.Context, principal application.Principal) ([]persistence.Schedule, error)
	DeleteSchedule(ctx context.Context, principal application.Principal, scheduleID string) error
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]persistence.Event, error)
	CreateEvent(ctx context.Context, params application.CreateEventParams) (persistence.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (persistence.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, scheduleID, eventID string) error
}

// ScheduleHandler serves personal schedules and their events.
type ScheduleHandler struct {
	service   scheduleService
	responder responder
	logger    *slog.Logger
}

func NewScheduleHandler(service scheduleService, logger *slog.Logger) *ScheduleHandler {
	base := defaultLogger(logger)
	return &ScheduleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ScheduleHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ScheduleHandler", operation, attrs...)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	schedules, err := h.service.ListSchedules(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSchedulesResponse{Schedules: toScheduleDTOs(schedules)})
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode schedule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	schedule, err := h.service.CreateSchedule(r.Context(), application.CreateScheduleParams{
		Principal: principal,
		Name:      req.Name,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	schedule, err := h.service.GetSchedule(r.Context(), principal, r.PathValue("scheduleID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(schedule))
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteSchedule(r.Context(), principal, r.PathValue("scheduleID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// ListEvents accepts optional from/to query parameters bounding the listing.
func (h *ScheduleHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	params, vErr := buildListEventsParams(r.URL.Query())
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}
	params.Principal = principal
	params.ScheduleID = r.PathValue("scheduleID")

	events, err := h.service.ListEvents(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *ScheduleHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	scheduleID := r.PathValue("scheduleID")

	input, ok := h.decodeEvent(w, r, "CreateEvent", scheduleID)
	if !ok {
		return
	}

	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{
		Principal:  principal,
		ScheduleID: scheduleID,
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEventDTO(event))
}

func (h *ScheduleHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	scheduleID := r.PathValue("scheduleID")

	input, ok := h.decodeEvent(w, r, "UpdateEvent", scheduleID)
	if !ok {
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal:  principal,
		ScheduleID: scheduleID,
		EventID:    r.PathValue("eventID"),
		Input:      input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEventDTO(event))
}

func (h *ScheduleHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	err := h.service.DeleteEvent(r.Context(), principal, r.PathValue("scheduleID"), r.PathValue("eventID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *ScheduleHandler) decodeEvent(w http.ResponseWriter, r *http.Request, operation, scheduleID string) (application.EventInput, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), operation, "schedule_id", scheduleID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.EventInput{}, false
	}

	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return application.EventInput{}, false
	}
	return input, true
}

type scheduleRequest struct {
	Name string `json:"name"`
}

type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

// toInput parses the timestamps. Empty values are left zero for the service to report.
func (r eventRequest) toInput() (application.EventInput, *application.ValidationError) {
	fieldErrors := map[string]string{}
	start, ok := parseTime(r.Start)
	if !ok {
		fieldErrors["start"] = "start must be an ISO-8601 timestamp"
	}
	end, ok := parseTime(r.End)
	if !ok {
		fieldErrors["end"] = "end must be an ISO-8601 timestamp"
	}
	if len(fieldErrors) > 0 {
		return application.EventInput{}, &application.ValidationError{FieldErrors: fieldErrors}
	}
	return application.EventInput{
		Title:       r.Title,
		Description: r.Description,
		Start:       start,
		End:         end,
	}, nil
}

func buildListEventsParams(values url.Values) (application.ListEventsParams, *application.ValidationError) {
	var params application.ListEventsParams
	fieldErrors := map[string]string{}

	from, ok := parseTime(queryTimestamp(values, "from"))
	if !ok {
		fieldErrors["from"] = "from must be an ISO-8601 timestamp"
	}
	to, ok := parseTime(queryTimestamp(values, "to"))
	if !ok {
		fieldErrors["to"] = "to must be an ISO-8601 timestamp"
	}
	if len(fieldErrors) > 0 {
		return params, &application.ValidationError{FieldErrors: fieldErrors}
	}

	params.From = from
	params.To = to
	return params, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseTime reports ok for an empty value (zero time) or a recognised timestamp.
// Values without an offset are read as UTC.
func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, true
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// queryTimestamp restores a "+" offset that form decoding turned into a space.
func queryTimestamp(values url.Values, key string) string {
	return strings.ReplaceAll(strings.TrimSpace(values.Get(key)), " ", "+")
}

type scheduleDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

type listSchedulesResponse struct {
	Schedules []scheduleDTO `json:"schedules"`
}

type eventDTO struct {
	ID          string `json:"id"`
	ScheduleID  string `json:"scheduleId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

func toScheduleDTO(schedule persistence.Schedule) scheduleDTO {
	return scheduleDTO{
		ID:        schedule.ID,
		OwnerID:   schedule.OwnerID,
		Name:      schedule.Name,
		CreatedAt: formatTime(schedule.CreatedAt),
	}
}

func toScheduleDTOs(schedules []persistence.Schedule) []scheduleDTO {
	out := make([]scheduleDTO, 0, len(schedules))
	for _, schedule := range schedules {
		out = append(out, toScheduleDTO(schedule))
	}
	return out
}

func toEventDTO(event persistence.Event) eventDTO {
	return eventDTO{
		ID:          event.ID,
		ScheduleID:  event.ScheduleID,
		Title:       event.Title,
		Description: event.Description,
		Start:       formatTime(event.Start),
		End:         formatTime(event.End),
		CreatedAt:   formatTime(event.CreatedAt),
		UpdatedAt:   formatTime(event.UpdatedAt),
	}
}

func toEventDTOs(events []persistence.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}
