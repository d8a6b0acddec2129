package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/groupsync/internal/application"
	"github.com/example/groupsync/internal/persistence"
)

type groupService interface {
	CreateGroup(ctx context.Context, params application.CreateGroupParams) (persistence.Group, error)
	GetGroup(ctx context.Context, principal application.Principal, groupID string) (persistence.Group, error)
	ListGroups(ctx context.Context, principal application.Principal) ([]persistence.Group, error)
	RenameGroup(ctx context.Context, params application.RenameGroupParams) (persistence.Group, error)
	DeleteGroup(ctx context.Context, principal application.Principal, groupID string) error
	ListMembers(ctx context.Context, principal application.Principal, groupID string) ([]persistence.Membership, error)
	AddMember(ctx context.Context, params application.AddMemberParams) (persistence.Membership, error)
	RemoveMember(ctx context.Context, params application.RemoveMemberParams) error
	SetActiveSchedule(ctx context.Context, params application.SetActiveScheduleParams) (persistence.Membership, error)
}

// GroupHandler serves group and membership endpoints.
type GroupHandler struct {
	service   groupService
	responder responder
	logger    *slog.Logger
}

func NewGroupHandler(service groupService, logger *slog.Logger) *GroupHandler {
	base := defaultLogger(logger)
	return &GroupHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *GroupHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "GroupHandler", operation, attrs...)
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	groups, err := h.service.ListGroups(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listGroupsResponse{Groups: toGroupDTOs(groups)})
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode group request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	group, err := h.service.CreateGroup(r.Context(), application.CreateGroupParams{
		Principal: principal,
		Name:      req.Name,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toGroupDTO(group))
}

func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	group, err := h.service.GetGroup(r.Context(), principal, r.PathValue("groupID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGroupDTO(group))
}

func (h *GroupHandler) Rename(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	groupID := r.PathValue("groupID")

	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Rename", "group_id", groupID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode group request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	group, err := h.service.RenameGroup(r.Context(), application.RenameGroupParams{
		Principal: principal,
		GroupID:   groupID,
		Name:      req.Name,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toGroupDTO(group))
}

func (h *GroupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteGroup(r.Context(), principal, r.PathValue("groupID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	members, err := h.service.ListMembers(r.Context(), principal, r.PathValue("groupID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMembersResponse{Members: toMembershipDTOs(members)})
}

func (h *GroupHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	groupID := r.PathValue("groupID")

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "AddMember", "group_id", groupID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode member request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	membership, err := h.service.AddMember(r.Context(), application.AddMemberParams{
		Principal: principal,
		GroupID:   groupID,
		UserID:    strings.TrimSpace(req.UserID),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toMembershipDTO(membership))
}

func (h *GroupHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	err := h.service.RemoveMember(r.Context(), application.RemoveMemberParams{
		Principal: principal,
		GroupID:   r.PathValue("groupID"),
		UserID:    r.PathValue("userID"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// SetActiveSchedule only accepts the caller's own membership; a null scheduleId clears it.
func (h *GroupHandler) SetActiveSchedule(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	groupID := r.PathValue("groupID")

	if userID := r.PathValue("userID"); userID != principal.UserID {
		h.responder.handleServiceError(r.Context(), w, application.ErrUnauthorized)
		return
	}

	var req activeScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SetActiveSchedule", "group_id", groupID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode active schedule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	membership, err := h.service.SetActiveSchedule(r.Context(), application.SetActiveScheduleParams{
		Principal:  principal,
		GroupID:    groupID,
		ScheduleID: req.ScheduleID,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toMembershipDTO(membership))
}

type groupRequest struct {
	Name string `json:"name"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

type activeScheduleRequest struct {
	ScheduleID *string `json:"scheduleId"`
}

type groupDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AdminID   string `json:"adminId"`
	CreatedAt string `json:"createdAt"`
}

type listGroupsResponse struct {
	Groups []groupDTO `json:"groups"`
}

type membershipDTO struct {
	ID               string  `json:"id"`
	GroupID          string  `json:"groupId"`
	UserID           string  `json:"userId"`
	ActiveScheduleID *string `json:"activeScheduleId"`
	JoinedAt         string  `json:"joinedAt"`
}

type listMembersResponse struct {
	Members []membershipDTO `json:"members"`
}

func toGroupDTO(group persistence.Group) groupDTO {
	return groupDTO{
		ID:        group.ID,
		Name:      group.Name,
		AdminID:   group.AdminID,
		CreatedAt: formatTime(group.CreatedAt),
	}
}

func toGroupDTOs(groups []persistence.Group) []groupDTO {
	out := make([]groupDTO, 0, len(groups))
	for _, group := range groups {
		out = append(out, toGroupDTO(group))
	}
	return out
}

func toMembershipDTO(m persistence.Membership) membershipDTO {
	return membershipDTO{
		ID:               m.ID,
		GroupID:          m.GroupID,
		UserID:           m.UserID,
		ActiveScheduleID: m.ActiveScheduleID,
		JoinedAt:         formatTime(m.JoinedAt),
	}
}

func toMembershipDTOs(memberships []persistence.Membership) []membershipDTO {
	out := make([]membershipDTO, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, toMembershipDTO(m))
	}
	return out
}

// formatTime keeps sub-second precision so rendered slot bounds match the window.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
