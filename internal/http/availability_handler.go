package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/availability"
)

type availabilityService interface {
	ComputeAvailability(ctx context.Context, params application.AvailabilityParams) (application.AvailabilityReport, error)
}

// AvailabilityHandler serves GET /groups/{groupID}/availability.
type AvailabilityHandler struct {
	service   availabilityService
	responder responder
	logger    *slog.Logger
}

func NewAvailabilityHandler(service availabilityService, logger *slog.Logger) *AvailabilityHandler {
	base := defaultLogger(logger)
	return &AvailabilityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AvailabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()

	report, err := h.service.ComputeAvailability(r.Context(), application.AvailabilityParams{
		Principal: principal,
		GroupID:   r.PathValue("groupID"),
		Start:     queryTimestamp(query, "start"),
		End:       queryTimestamp(query, "end"),
		Step:      query.Get("step"),
		Mode:      query.Get("mode"),
		MinPeople: query.Get("min_people"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAvailabilityDTO(report))
}

type slotDTO struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available int    `json:"available"`
}

type blockDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type availabilityDTO struct {
	GroupID          string     `json:"groupId"`
	StepMinutes      int        `json:"stepMinutes"`
	ActiveCount      int        `json:"activeCount"`
	TotalMembers     int        `json:"totalMembers"`
	MissingCount     int        `json:"missingCount"`
	ActiveMemberIDs  []string   `json:"activeMemberIds"`
	MissingMemberIDs []string   `json:"missingMemberIds"`
	Slots            []slotDTO  `json:"slots"`
	AllFreeBlocks    []blockDTO `json:"allFreeBlocks"`
	Mode             string     `json:"mode,omitempty"`
	MinPeople        string     `json:"minPeople,omitempty"`
}

func toAvailabilityDTO(report application.AvailabilityReport) availabilityDTO {
	dto := availabilityDTO{
		GroupID:          report.GroupID,
		StepMinutes:      report.StepMinutes,
		ActiveCount:      report.ActiveCount,
		TotalMembers:     report.TotalMembers,
		MissingCount:     report.MissingCount,
		ActiveMemberIDs:  nonNil(report.ActiveMemberIDs),
		MissingMemberIDs: nonNil(report.MissingMemberIDs),
		Slots:            make([]slotDTO, 0, len(report.Slots)),
		AllFreeBlocks:    make([]blockDTO, 0, len(report.FreeBlocks)),
		Mode:             report.Mode,
		MinPeople:        report.MinPeople,
	}
	for _, slot := range report.Slots {
		dto.Slots = append(dto.Slots, slotDTO{Start: formatTime(slot.Start), End: formatTime(slot.End), Available: slot.Available})
	}
	for _, block := range report.FreeBlocks {
		dto.AllFreeBlocks = append(dto.AllFreeBlocks, toBlockDTO(block))
	}
	return dto
}

func toBlockDTO(block availability.Block) blockDTO {
	return blockDTO{Start: formatTime(block.Start), End: formatTime(block.End)}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
