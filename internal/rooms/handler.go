package rooms

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/events"
	"github.com/bissquit/crisis-room/internal/pkg/ctxlog"
	"github.com/bissquit/crisis-room/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pagination constants.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrRoomNotFound, Status: http.StatusNotFound, Code: "room_not_found"},
	{Error: events.ErrEventNotFound, Status: http.StatusNotFound, Code: "event_not_found"},
	{Error: ErrStakeholderNotFound, Status: http.StatusNotFound, Code: "stakeholder_not_found"},
	{Error: ErrTemplateNotFound, Status: http.StatusNotFound, Code: "template_not_found"},
	{Error: ErrInvalidInput, Status: http.StatusBadRequest, Code: "invalid_input"},
	{Error: ErrInvalidTransition, Status: http.StatusConflict, Code: "invalid_transition"},
	{Error: ErrRoomResolved, Status: http.StatusConflict, Code: "room_resolved"},
	{Error: ErrVersionConflict, Status: http.StatusConflict, Code: "version_conflict", Message: "room is busy, retry the request"},
}

// Handler handles HTTP requests for crisis rooms.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new rooms handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers read-only routes (any authenticated role).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)
	r.Get("/rooms/{id}/communications", h.ListCommunications)
	r.Get("/rooms/{id}/responses", h.ListResponses)
	r.Get("/rooms/{id}/escalations", h.ListEscalations)
	r.Get("/rooms/{id}/timeline", h.ListTimeline)
	r.Get("/rooms/{id}/analytics", h.GetAnalytics)
}

// RegisterOperatorRoutes registers routes that mutate rooms.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Post("/rooms", h.CreateRoom)
	r.Patch("/rooms/{id}/status", h.UpdateStatus)
	r.Post("/rooms/{id}/resolve", h.Resolve)
	r.Post("/rooms/{id}/communications", h.SendCommunication)
	r.Post("/rooms/{id}/responses", h.RecordResponse)
	r.Post("/rooms/{id}/escalations", h.TriggerEscalation)
	r.Post("/rooms/{id}/stakeholders", h.AddStakeholder)
}

// StakeholderRequest represents a stakeholder in a request body.
type StakeholderRequest struct {
	ID                   string   `json:"id" validate:"omitempty,max=64"`
	Name                 string   `json:"name" validate:"required,min=1,max=255"`
	Email                string   `json:"email" validate:"omitempty,email"`
	Phone                string   `json:"phone" validate:"omitempty,e164"`
	Role                 string   `json:"role" validate:"max=255"`
	NotificationChannels []string `json:"notification_channels" validate:"dive,oneof=email slack teams sms webhook"`
	EscalationLevel      int      `json:"escalation_level" validate:"omitempty,min=1,max=5"`
	IsActive             *bool    `json:"is_active"`
}

// ToDomain converts the request to a domain model. Stakeholders are active
// unless stated otherwise.
func (r *StakeholderRequest) ToDomain() domain.Stakeholder {
	channels := make([]domain.ChannelType, 0, len(r.NotificationChannels))
	for _, c := range r.NotificationChannels {
		channels = append(channels, domain.ChannelType(c))
	}
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return domain.Stakeholder{
		ID:                   r.ID,
		Name:                 r.Name,
		Email:                r.Email,
		Phone:                r.Phone,
		Role:                 r.Role,
		NotificationChannels: channels,
		EscalationLevel:      r.EscalationLevel,
		IsActive:             active,
	}
}

// TemplateRequest represents a communication template in a request body.
type TemplateRequest struct {
	ID      string `json:"id" validate:"omitempty,max=64"`
	Name    string `json:"name" validate:"required,max=255"`
	Type    string `json:"type" validate:"required,oneof=initial_alert update escalation resolution custom"`
	Subject string `json:"subject" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// SettingsRequest represents room settings in a request body.
type SettingsRequest struct {
	AutoEscalationEnabled  bool `json:"auto_escalation_enabled"`
	TimeThresholdMin       int  `json:"time_threshold_min" validate:"min=0"`
	NoResponseThresholdMin int  `json:"no_response_threshold_min" validate:"min=0"`
}

// CreateRoomRequest represents the request body for opening a room.
type CreateRoomRequest struct {
	EventID      string               `json:"event_id" validate:"required"`
	Stakeholders []StakeholderRequest `json:"stakeholders" validate:"dive"`
	AssignedTeam []domain.TeamMember  `json:"assigned_team" validate:"dive"`
	Templates    []TemplateRequest    `json:"templates" validate:"dive"`
	Settings     *SettingsRequest     `json:"settings"`
}

// ToInput converts the request to service input.
func (r *CreateRoomRequest) ToInput() CreateRoomInput {
	input := CreateRoomInput{
		EventID:      r.EventID,
		AssignedTeam: r.AssignedTeam,
	}
	for i := range r.Stakeholders {
		input.Stakeholders = append(input.Stakeholders, r.Stakeholders[i].ToDomain())
	}
	for _, t := range r.Templates {
		input.Templates = append(input.Templates, domain.Template{
			ID:      t.ID,
			Name:    t.Name,
			Type:    domain.CommunicationType(t.Type),
			Subject: t.Subject,
			Content: t.Content,
		})
	}
	if r.Settings != nil {
		input.Settings = &domain.RoomSettings{
			AutoEscalationEnabled:  r.Settings.AutoEscalationEnabled,
			TimeThresholdMin:       r.Settings.TimeThresholdMin,
			NoResponseThresholdMin: r.Settings.NoResponseThresholdMin,
		}
	}
	return input
}

// UpdateStatusRequest represents the request body for a status change.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active monitoring escalated resolved"`
}

// ResolveRequest represents the request body for resolving a room.
type ResolveRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

// SendCommunicationRequest represents the request body for sending a
// communication. Channel is not restricted here: unknown channels are
// recorded as failed deliveries.
type SendCommunicationRequest struct {
	Type           string             `json:"type" validate:"omitempty,oneof=initial_alert update escalation resolution custom"`
	Channel        string             `json:"channel" validate:"required,max=32"`
	Subject        string             `json:"subject" validate:"max=998"`
	Content        string             `json:"content"`
	TemplateID     string             `json:"template_id"`
	StakeholderIDs []string           `json:"stakeholder_ids"`
	Recipients     []RecipientRequest `json:"recipients" validate:"dive"`
}

// RecipientRequest represents an ad-hoc recipient.
type RecipientRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,e164"`
	Role  string `json:"role"`
}

// RecordResponseRequest represents the request body for a stakeholder response.
type RecordResponseRequest struct {
	StakeholderID string              `json:"stakeholder_id" validate:"required"`
	ResponseType  string              `json:"response_type" validate:"required,oneof=acknowledgement action_required no_action_needed escalation_request information_request"`
	Content       string              `json:"content"`
	ActionItems   []domain.ActionItem `json:"action_items" validate:"dive"`
}

// TriggerEscalationRequest represents the request body for a manual escalation.
type TriggerEscalationRequest struct {
	Reason string `json:"reason" validate:"required,max=10000"`
}

// CreateRoom handles POST /rooms request.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, err := h.service.CreateRoom(r.Context(), req.ToInput(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, room)
}

// GetRoom handles GET /rooms/{id} request.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, room)
}

// ListRooms handles GET /rooms request.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	filters := RoomFilters{Limit: page.Limit, Offset: page.Offset}

	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.RoomStatus(v)
		if !status.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid status filter")
			return
		}
		filters.Status = &status
	}

	if v := r.URL.Query().Get("severity"); v != "" {
		severity := domain.Severity(v)
		if !severity.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid severity filter")
			return
		}
		filters.Severity = &severity
	}

	rooms, err := h.service.ListRooms(r.Context(), filters)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, map[string]interface{}{
		"rooms":  rooms,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GetAnalytics handles GET /rooms/{id}/analytics request.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetAnalytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, m)
}

// ListCommunications handles GET /rooms/{id}/communications request.
func (h *Handler) ListCommunications(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	filters := CommunicationFilters{Page: page}
	if v := r.URL.Query().Get("channel"); v != "" {
		channel := domain.ChannelType(v)
		filters.Channel = &channel
	}
	if v := r.URL.Query().Get("type"); v != "" {
		commType := domain.CommunicationType(v)
		if !commType.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		filters.Type = &commType
	}

	items, total, err := h.service.ListCommunications(r.Context(), chi.URLParam(r, "id"), filters)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	listResponse(w, "communications", items, total, page)
}

// ListResponses handles GET /rooms/{id}/responses request.
func (h *Handler) ListResponses(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	filters := ResponseFilters{Page: page}
	if v := r.URL.Query().Get("type"); v != "" {
		responseType := domain.ResponseType(v)
		if !responseType.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		filters.Type = &responseType
	}

	items, total, err := h.service.ListResponses(r.Context(), chi.URLParam(r, "id"), filters)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	listResponse(w, "responses", items, total, page)
}

// ListEscalations handles GET /rooms/{id}/escalations request.
func (h *Handler) ListEscalations(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	items, total, err := h.service.ListEscalations(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	listResponse(w, "escalations", items, total, page)
}

// ListTimeline handles GET /rooms/{id}/timeline request.
func (h *Handler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	items, total, err := h.service.ListTimeline(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	listResponse(w, "entries", items, total, page)
}

// UpdateStatus handles PATCH /rooms/{id}/status request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, err := h.service.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.RoomStatus(req.Status), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, room)
}

// Resolve handles POST /rooms/{id}/resolve request.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}

	room, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), ResolveInput{Notes: req.Notes}, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, room)
}

// SendCommunication handles POST /rooms/{id}/communications request.
func (h *Handler) SendCommunication(w http.ResponseWriter, r *http.Request) {
	var req SendCommunicationRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := SendCommunicationInput{
		Type:           domain.CommunicationType(req.Type),
		Channel:        domain.ChannelType(req.Channel),
		Subject:        req.Subject,
		Content:        req.Content,
		TemplateID:     req.TemplateID,
		StakeholderIDs: req.StakeholderIDs,
	}
	for _, rc := range req.Recipients {
		input.Recipients = append(input.Recipients, domain.Recipient{
			Name:  rc.Name,
			Email: rc.Email,
			Phone: rc.Phone,
			Role:  rc.Role,
		})
	}

	comm, err := h.service.SendCommunication(r.Context(), chi.URLParam(r, "id"), input, httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, comm)
}

// RecordResponse handles POST /rooms/{id}/responses request.
func (h *Handler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	var req RecordResponseRequest
	if !h.decode(w, r, &req) {
		return
	}

	response, err := h.service.RecordResponse(r.Context(), chi.URLParam(r, "id"), RecordResponseInput{
		StakeholderID: req.StakeholderID,
		ResponseType:  domain.ResponseType(req.ResponseType),
		Content:       req.Content,
		ActionItems:   req.ActionItems,
	})
	if err != nil && response == nil {
		h.handleError(w, r, err)
		return
	}
	if err != nil {
		// The response is stored; only the requested escalation failed.
		ctxlog.FromContext(r.Context()).Error("requested escalation failed", "error", err)
	}

	httputil.Success(w, http.StatusCreated, response)
}

// TriggerEscalation handles POST /rooms/{id}/escalations request.
func (h *Handler) TriggerEscalation(w http.ResponseWriter, r *http.Request) {
	var req TriggerEscalationRequest
	if !h.decode(w, r, &req) {
		return
	}

	escalation, err := h.service.TriggerEscalation(r.Context(), chi.URLParam(r, "id"), req.Reason, httputil.GetUserID(r.Context()))
	if err != nil && escalation == nil {
		h.handleError(w, r, err)
		return
	}
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("escalation communications not recorded", "error", err)
	}

	httputil.Success(w, http.StatusCreated, escalation)
}

// AddStakeholder handles POST /rooms/{id}/stakeholders request.
func (h *Handler) AddStakeholder(w http.ResponseWriter, r *http.Request) {
	var req StakeholderRequest
	if !h.decode(w, r, &req) {
		return
	}

	st, err := h.service.AddStakeholder(r.Context(), chi.URLParam(r, "id"), req.ToDomain(), httputil.GetUserID(r.Context()))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, st)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func parsePage(w http.ResponseWriter, r *http.Request) (Page, bool) {
	page, err := httputil.ParsePage(r.URL.Query(), DefaultListLimit, MaxListLimit)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return Page{}, false
	}
	return Page{Limit: page.Limit, Offset: page.Offset}, true
}

func listResponse[T any](w http.ResponseWriter, key string, items []T, total int, page Page) {
	httputil.List(w, key, items, total, httputil.Page{Limit: page.Limit, Offset: page.Offset})
}
