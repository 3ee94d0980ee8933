// Package rooms implements the crisis room orchestration engine: room
// lifecycle, communication dispatch, response correlation and escalation.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
	"github.com/bissquit/crisis-room/internal/notifications"
	"github.com/bissquit/crisis-room/internal/pkg/metrics"
	"github.com/google/uuid"
)

const maxSaveAttempts = 3

// EventSource reads detected geopolitical events.
type EventSource interface {
	GetEvent(ctx context.Context, id string) (*domain.GeopoliticalEvent, error)
}

// ProfileSource lists the stakeholder profiles used for severity scoring.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]domain.StakeholderProfile, error)
}

// SeverityScorer rates the relevance of an event for one profile in [0,1].
type SeverityScorer interface {
	Score(ctx context.Context, profile domain.StakeholderProfile, event *domain.GeopoliticalEvent) (float64, error)
}

// Dispatcher delivers messages through channel senders.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg notifications.Message) notifications.DeliveryResult
	Supports(channel domain.ChannelType) bool
}

// TimelinePublisher receives timeline entries after they were persisted.
type TimelinePublisher interface {
	PublishTimeline(ctx context.Context, room *domain.Room, entries []domain.TimelineEntry) error
}

// Service implements crisis room business logic.
type Service struct {
	repo       Repository
	events     EventSource
	profiles   ProfileSource
	scorer     SeverityScorer
	dispatcher Dispatcher
	publisher  TimelinePublisher
	locks      *roomLocks
	now        func() time.Time
}

// NewService creates a new room service.
func NewService(repo Repository, events EventSource, profiles ProfileSource, scorer SeverityScorer, dispatcher Dispatcher) *Service {
	return &Service{
		repo:       repo,
		events:     events,
		profiles:   profiles,
		scorer:     scorer,
		dispatcher: dispatcher,
		locks:      newRoomLocks(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetTimelinePublisher sets the sink for persisted timeline entries.
func (s *Service) SetTimelinePublisher(p TimelinePublisher) {
	s.publisher = p
}

// CreateRoomInput holds data for opening a room.
type CreateRoomInput struct {
	EventID      string
	Stakeholders []domain.Stakeholder
	AssignedTeam []domain.TeamMember
	Templates    []domain.Template
	Settings     *domain.RoomSettings
}

// SendCommunicationInput holds data for sending a communication.
// Without StakeholderIDs or Recipients the communication goes to every
// active stakeholder who opted into the channel, or to every active
// stakeholder when the channel has no sender.
type SendCommunicationInput struct {
	Type           domain.CommunicationType
	Channel        domain.ChannelType
	Subject        string
	Content        string
	TemplateID     string
	StakeholderIDs []string
	Recipients     []domain.Recipient
}

// RecordResponseInput holds an inbound stakeholder response.
type RecordResponseInput struct {
	StakeholderID string
	ResponseType  domain.ResponseType
	Content       string
	ActionItems   []domain.ActionItem
}

// ResolveInput holds resolution data.
type ResolveInput struct {
	Notes string
}

// CreateRoom opens a room for an event. Severity is the highest relevance
// score across all stakeholder profiles.
func (s *Service) CreateRoom(ctx context.Context, input CreateRoomInput, createdBy string) (*domain.Room, error) {
	if input.EventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	event, err := s.events.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	stakeholders, err := normalizeStakeholders(input.Stakeholders)
	if err != nil {
		return nil, err
	}
	templates, err := normalizeTemplates(input.Templates)
	if err != nil {
		return nil, err
	}

	settings := domain.DefaultRoomSettings()
	if input.Settings != nil {
		settings = *input.Settings
	}
	if settings.TimeThresholdMin < 0 || settings.NoResponseThresholdMin < 0 {
		return nil, fmt.Errorf("%w: thresholds must not be negative", ErrInvalidInput)
	}

	severity := s.scoreSeverity(ctx, event)
	now := s.now()

	room := &domain.Room{
		ID:             uuid.NewString(),
		EventID:        event.ID,
		Title:          event.Title,
		Status:         domain.RoomStatusActive,
		Severity:       severity,
		CreatedAt:      now,
		AssignedTeam:   nonNil(input.AssignedTeam),
		Stakeholders:   stakeholders,
		Templates:      templates,
		Communications: []domain.Communication{},
		Responses:      []domain.Response{},
		Escalations:    []domain.Escalation{},
		Settings:       settings,
	}
	room.AppendTimeline(domain.TimelineEntry{
		Timestamp:   now,
		Type:        domain.TimelineRoomCreated,
		Description: fmt.Sprintf("Crisis room opened for %q with %s severity", event.Title, severity),
		Actor:       createdBy,
		Metadata: map[string]string{
			"event_id": event.ID,
			"severity": string(severity),
		},
	})
	room.Metrics = ComputeMetrics(room, now)

	if err := s.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	metrics.RoomsCreated.WithLabelValues(string(severity)).Inc()
	s.publish(ctx, room, room.Timeline)
	return room, nil
}

// scoreSeverity scores every known profile. Failed scores are skipped; with
// no successful score the room is opened with low severity.
func (s *Service) scoreSeverity(ctx context.Context, event *domain.GeopoliticalEvent) domain.Severity {
	profiles, err := s.profiles.ListProfiles(ctx)
	if err != nil {
		slog.Warn("failed to list stakeholder profiles, defaulting severity",
			"event_id", event.ID,
			"error", err,
		)
		return domain.SeverityLow
	}

	maxScore := 0.0
	for _, p := range profiles {
		score, err := s.scorer.Score(ctx, p, event)
		if err != nil {
			slog.Warn("failed to score profile",
				"event_id", event.ID,
				"profile_id", p.ID,
				"error", err,
			)
			continue
		}
		maxScore = max(maxScore, score)
	}
	return domain.SeverityFromScore(maxScore)
}

// GetRoom retrieves a room by ID.
func (s *Service) GetRoom(ctx context.Context, id string) (*domain.Room, error) {
	return s.repo.GetRoom(ctx, id)
}

// ListRooms retrieves rooms matching filters.
func (s *Service) ListRooms(ctx context.Context, filters RoomFilters) ([]*domain.Room, error) {
	return s.repo.ListRooms(ctx, filters)
}

// GetAnalytics recomputes the room metrics at the current time.
func (s *Service) GetAnalytics(ctx context.Context, id string) (*domain.RoomMetrics, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	m := ComputeMetrics(room, s.now())
	return &m, nil
}

// UpdateStatus moves the room through the lifecycle state machine.
func (s *Service) UpdateStatus(ctx context.Context, id string, status domain.RoomStatus, actor string) (*domain.Room, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	now := s.now()
	room, err := s.mutate(ctx, id, func(room *domain.Room) error {
		if !room.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, room.Status, status)
		}
		previous := room.Status
		room.Status = status
		if status == domain.RoomStatusResolved {
			room.ResolvedAt = &now
		}
		room.AppendTimeline(domain.TimelineEntry{
			Timestamp:   now,
			Type:        domain.TimelineStatusChanged,
			Description: fmt.Sprintf("Status changed from %s to %s", previous, status),
			Actor:       actor,
			Metadata: map[string]string{
				"from": string(previous),
				"to":   string(status),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RoomStatusChanges.WithLabelValues(string(status)).Inc()
	return room, nil
}

// Resolve closes the room and sends one resolution email per stakeholder
// on the room. Delivery failures are recorded on the communications.
//
// The status change is committed before the emails go out. If recording
// the communications fails afterwards, the room stays resolved and the
// error is returned with the committed room.
func (s *Service) Resolve(ctx context.Context, id string, input ResolveInput, actor string) (*domain.Room, error) {
	now := s.now()
	room, err := s.mutate(ctx, id, func(room *domain.Room) error {
		if !room.Status.CanTransitionTo(domain.RoomStatusResolved) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, room.Status, domain.RoomStatusResolved)
		}
		room.Status = domain.RoomStatusResolved
		room.ResolvedAt = &now

		description := "Crisis room resolved"
		if input.Notes != "" {
			description += ": " + input.Notes
		}
		room.AppendTimeline(domain.TimelineEntry{
			Timestamp:   now,
			Type:        domain.TimelineRoomResolved,
			Description: description,
			Actor:       actor,
			Metadata:    map[string]string{"notes": input.Notes},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RoomStatusChanges.WithLabelValues(string(domain.RoomStatusResolved)).Inc()

	subject := "Resolved: " + room.Title
	content := input.Notes
	if content == "" {
		content = "The crisis has been resolved. No further action is required."
	}

	recipients := make([][]domain.Recipient, 0, len(room.Stakeholders))
	for _, st := range room.Stakeholders {
		recipients = append(recipients, []domain.Recipient{st.Recipient()})
	}
	if len(recipients) == 0 {
		return room, nil
	}

	comms := s.dispatchEach(ctx, room, domain.CommunicationTypeResolution, domain.ChannelTypeEmail, subject, content, actor, recipients)
	updated, err := s.appendCommunications(ctx, id, comms)
	if err != nil {
		return room, fmt.Errorf("record resolution communications: %w", err)
	}
	return updated, nil
}

// SendCommunication dispatches one communication and records it. An
// unsupported or failing channel yields a failed communication, not an
// error.
func (s *Service) SendCommunication(ctx context.Context, id string, input SendCommunicationInput, sentBy string) (*domain.Communication, error) {
	room, err := s.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.TemplateID != "" {
		tmpl, ok := room.FindTemplate(input.TemplateID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, input.TemplateID)
		}
		if input.Type == "" {
			input.Type = tmpl.Type
		}
		if input.Subject == "" {
			input.Subject = tmpl.Subject
		}
		if input.Content == "" {
			input.Content = tmpl.Content
		}
	}

	switch {
	case !input.Type.IsValid():
		return nil, fmt.Errorf("%w: unknown communication type %q", ErrInvalidInput, input.Type)
	case input.Channel == "":
		return nil, fmt.Errorf("%w: channel is required", ErrInvalidInput)
	case strings.TrimSpace(input.Subject) == "":
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	case strings.TrimSpace(input.Content) == "":
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}

	recipients, err := resolveRecipients(room, input, s.dispatcher.Supports(input.Channel))
	if err != nil {
		return nil, err
	}

	comm := s.dispatchOne(ctx, room, input.Type, input.Channel, input.Subject, input.Content, sentBy, recipients)
	if _, err := s.appendCommunications(ctx, id, []domain.Communication{comm}); err != nil {
		return nil, err
	}
	return &comm, nil
}

// resolveRecipients picks the audience of a communication. For a channel
// without a sender no stakeholder can have opted in, so the audience falls
// back to every active stakeholder and the dispatch is recorded as failed.
func resolveRecipients(room *domain.Room, input SendCommunicationInput, supported bool) ([]domain.Recipient, error) {
	if len(input.StakeholderIDs) > 0 {
		recipients := make([]domain.Recipient, 0, len(input.StakeholderIDs))
		for _, sid := range input.StakeholderIDs {
			st, ok := room.FindStakeholder(sid)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrStakeholderNotFound, sid)
			}
			recipients = append(recipients, st.Recipient())
		}
		return recipients, nil
	}

	if len(input.Recipients) > 0 {
		return input.Recipients, nil
	}

	recipients := []domain.Recipient{}
	for _, st := range room.Stakeholders {
		if st.IsActive && (!supported || st.PrefersChannel(input.Channel)) {
			recipients = append(recipients, st.Recipient())
		}
	}
	if len(recipients) == 0 && supported {
		return nil, fmt.Errorf("%w: no stakeholder accepts channel %q", ErrInvalidInput, input.Channel)
	}
	return recipients, nil
}

// RecordResponse appends a stakeholder response and correlates it with the
// most recent unanswered communication addressed to that stakeholder. An
// escalation request triggers an escalation; if that fails the recorded
// response is returned together with the error.
func (s *Service) RecordResponse(ctx context.Context, id string, input RecordResponseInput) (*domain.Response, error) {
	if input.StakeholderID == "" {
		return nil, fmt.Errorf("%w: stakeholder id is required", ErrInvalidInput)
	}
	if !input.ResponseType.IsValid() {
		return nil, fmt.Errorf("%w: unknown response type %q", ErrInvalidInput, input.ResponseType)
	}

	responseID := uuid.NewString()
	now := s.now()

	var recorded domain.Response
	room, err := s.mutate(ctx, id, func(room *domain.Room) error {
		st, ok := room.FindStakeholder(input.StakeholderID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrStakeholderNotFound, input.StakeholderID)
		}

		response := domain.Response{
			ID:              responseID,
			StakeholderID:   st.ID,
			StakeholderName: st.Name,
			ResponseType:    input.ResponseType,
			Content:         input.Content,
			ReceivedAt:      now,
			ActionItems:     normalizeActionItems(input.ActionItems),
		}

		if i := correlate(room, *st); i >= 0 {
			c := &room.Communications[i]
			c.ResponseReceived = true
			c.ResponseContent = input.Content
			c.ResponseAt = &now
			response.CommunicationID = c.ID
		}

		room.Responses = append(room.Responses, response)
		room.AppendTimeline(domain.TimelineEntry{
			Timestamp:   now,
			Type:        domain.TimelineResponseReceived,
			Description: fmt.Sprintf("%s responded: %s", st.Name, input.ResponseType),
			Actor:       st.ID,
			Metadata: map[string]string{
				"response_id":      response.ID,
				"response_type":    string(response.ResponseType),
				"communication_id": response.CommunicationID,
			},
		})
		recorded = response
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ResponsesRecorded.WithLabelValues(
		string(recorded.ResponseType),
		strconv.FormatBool(recorded.CommunicationID != ""),
	).Inc()

	if recorded.ResponseType != domain.ResponseTypeEscalationRequest {
		return &recorded, nil
	}

	if room.Status.IsTerminal() {
		slog.Info("escalation request on resolved room ignored",
			"room_id", id,
			"stakeholder_id", recorded.StakeholderID,
		)
		return &recorded, nil
	}

	reason := recorded.Content
	if reason == "" {
		reason = fmt.Sprintf("Escalation requested by %s", recorded.StakeholderName)
	}
	if _, err := s.TriggerEscalation(ctx, id, reason, recorded.StakeholderID); err != nil {
		return &recorded, fmt.Errorf("trigger requested escalation: %w", err)
	}
	return &recorded, nil
}

// correlate returns the index of the most recent communication addressed to
// the stakeholder that has no response yet, or -1.
func correlate(room *domain.Room, st domain.Stakeholder) int {
	for i := len(room.Communications) - 1; i >= 0; i-- {
		c := room.Communications[i]
		if !c.ResponseReceived && c.AddressedTo(st) {
			return i
		}
	}
	return -1
}

// TriggerEscalation raises the room to the next escalation level and emails
// every selected stakeholder individually, in parallel.
//
// The escalation is committed before the emails go out. If recording the
// communications fails afterwards, the escalation stands and is returned
// together with the error.
func (s *Service) TriggerEscalation(ctx context.Context, id, reason, triggeredBy string) (*domain.Escalation, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	now := s.now()
	var escalation domain.Escalation
	var selected []domain.Stakeholder

	room, err := s.mutate(ctx, id, func(room *domain.Room) error {
		if room.Status.IsTerminal() {
			return ErrRoomResolved
		}
		if room.Status != domain.RoomStatusEscalated && !room.Status.CanTransitionTo(domain.RoomStatusEscalated) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, room.Status, domain.RoomStatusEscalated)
		}

		level := ComputeLevel(room)
		selected = SelectRecipients(room, level)

		escalatedTo := make([]domain.EscalatedTo, 0, len(selected))
		for _, st := range selected {
			escalatedTo = append(escalatedTo, domain.EscalatedTo{
				StakeholderID: st.ID,
				Name:          st.Name,
				Role:          st.Role,
			})
		}

		escalation = domain.Escalation{
			Level:       level,
			Reason:      reason,
			TriggeredBy: triggeredBy,
			TriggeredAt: now,
			EscalatedTo: escalatedTo,
		}
		previous := room.Status
		room.Escalations = append(room.Escalations, escalation)
		room.Status = domain.RoomStatusEscalated
		room.AppendTimeline(domain.TimelineEntry{
			Timestamp:   now,
			Type:        domain.TimelineEscalationTriggered,
			Description: fmt.Sprintf("Escalated to level %d: %s", level, reason),
			Actor:       triggeredBy,
			Metadata: map[string]string{
				"level":           strconv.Itoa(level),
				"recipients":      strconv.Itoa(len(selected)),
				"previous_status": string(previous),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Escalations.WithLabelValues(escalationSource(triggeredBy), strconv.Itoa(escalation.Level)).Inc()

	if len(selected) == 0 {
		slog.Warn("escalation has no eligible recipients",
			"room_id", id,
			"level", escalation.Level,
		)
		return &escalation, nil
	}

	recipients := make([][]domain.Recipient, 0, len(selected))
	for _, st := range selected {
		recipients = append(recipients, []domain.Recipient{st.Recipient()})
	}
	subject := fmt.Sprintf("Escalation level %d: %s", escalation.Level, room.Title)
	comms := s.dispatchEach(ctx, room, domain.CommunicationTypeEscalation, domain.ChannelTypeEmail, subject, reason, triggeredBy, recipients)
	if _, err := s.appendCommunications(ctx, id, comms); err != nil {
		return &escalation, fmt.Errorf("record escalation communications: %w", err)
	}
	return &escalation, nil
}

func escalationSource(triggeredBy string) string {
	if strings.HasPrefix(triggeredBy, "system:") {
		return "system"
	}
	return "manual"
}

// AddStakeholder adds a stakeholder to an existing room.
func (s *Service) AddStakeholder(ctx context.Context, id string, stakeholder domain.Stakeholder, actor string) (*domain.Stakeholder, error) {
	normalized, err := normalizeStakeholders([]domain.Stakeholder{stakeholder})
	if err != nil {
		return nil, err
	}
	st := normalized[0]
	now := s.now()

	_, err = s.mutate(ctx, id, func(room *domain.Room) error {
		if _, exists := room.FindStakeholder(st.ID); exists {
			return fmt.Errorf("%w: stakeholder %s already exists", ErrInvalidInput, st.ID)
		}
		room.Stakeholders = append(room.Stakeholders, st)
		room.AppendTimeline(domain.TimelineEntry{
			Timestamp:   now,
			Type:        domain.TimelineStakeholderAdded,
			Description: fmt.Sprintf("Stakeholder %s added at escalation level %d", st.Name, st.EscalationLevel),
			Actor:       actor,
			Metadata:    map[string]string{"stakeholder_id": st.ID},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// dispatchOne sends a communication and returns it with its final
// delivery status. No room lock is held.
func (s *Service) dispatchOne(ctx context.Context, room *domain.Room, commType domain.CommunicationType, channel domain.ChannelType, subject, content, sentBy string, recipients []domain.Recipient) domain.Communication {
	comm := domain.Communication{
		ID:             uuid.NewString(),
		Type:           commType,
		Channel:        channel,
		Recipients:     recipients,
		Subject:        subject,
		Content:        content,
		SentAt:         s.now(),
		SentBy:         sentBy,
		DeliveryStatus: domain.DeliveryStatusPending,
	}

	result := s.dispatcher.Dispatch(ctx, notifications.Message{
		CommunicationID: comm.ID,
		RoomID:          room.ID,
		Type:            comm.Type,
		Channel:         comm.Channel,
		Recipients:      comm.Recipients,
		Subject:         comm.Subject,
		Content:         comm.Content,
		Severity:        room.Severity,
		SentAt:          comm.SentAt,
	})

	comm.DeliveryStatus = result.Status
	comm.ProviderRef = result.ProviderRef
	comm.DeliveryError = result.ErrorString()
	return comm
}

// dispatchEach sends one communication per recipient group concurrently.
// The result keeps the order of groups.
func (s *Service) dispatchEach(ctx context.Context, room *domain.Room, commType domain.CommunicationType, channel domain.ChannelType, subject, content, sentBy string, groups [][]domain.Recipient) []domain.Communication {
	comms := make([]domain.Communication, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group []domain.Recipient) {
			defer wg.Done()
			comms[i] = s.dispatchOne(ctx, room, commType, channel, subject, content, sentBy, group)
		}(i, group)
	}
	wg.Wait()
	return comms
}

// appendCommunications records dispatched communications with one
// communication_sent timeline entry each.
func (s *Service) appendCommunications(ctx context.Context, id string, comms []domain.Communication) (*domain.Room, error) {
	return s.mutate(ctx, id, func(room *domain.Room) error {
		for _, c := range comms {
			room.Communications = append(room.Communications, c)
			room.AppendTimeline(communicationEntry(c))
		}
		return nil
	})
}

func communicationEntry(c domain.Communication) domain.TimelineEntry {
	meta := map[string]string{
		"communication_id": c.ID,
		"channel":          string(c.Channel),
		"type":             string(c.Type),
		"recipients":       strconv.Itoa(len(c.Recipients)),
		"delivery_status":  string(c.DeliveryStatus),
	}
	if c.DeliveryError != "" {
		meta["delivery_error"] = c.DeliveryError
	}
	return domain.TimelineEntry{
		Timestamp: c.SentAt,
		Type:      domain.TimelineCommunicationSent,
		Description: fmt.Sprintf("%s sent via %s to %d recipient(s): %s",
			c.Type, c.Channel, len(c.Recipients), c.DeliveryStatus),
		Actor:    c.SentBy,
		Metadata: meta,
	}
}

// mutate applies fn to a freshly loaded copy of the room under the room
// lock and saves it. fn must be safe to re-run: on a version conflict the
// room is reloaded and fn applied again. Nothing is saved when fn fails.
func (s *Service) mutate(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, error) {
	room, added, err := s.mutateLocked(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, room, added)
	return room, nil
}

func (s *Service) mutateLocked(ctx context.Context, id string, fn func(room *domain.Room) error) (*domain.Room, []domain.TimelineEntry, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		room, err := s.repo.GetRoom(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		before := len(room.Timeline)
		if err := fn(room); err != nil {
			return nil, nil, err
		}
		room.Metrics = ComputeMetrics(room, s.now())

		err = s.repo.SaveRoom(ctx, room)
		if err == nil {
			return room, room.Timeline[before:], nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= maxSaveAttempts {
			return nil, nil, fmt.Errorf("save room: %w", err)
		}

		metrics.VersionConflicts.Inc()
		slog.Warn("room modified concurrently, retrying",
			"room_id", id,
			"attempt", attempt,
		)
	}
}

func (s *Service) publish(ctx context.Context, room *domain.Room, entries []domain.TimelineEntry) {
	if s.publisher == nil || len(entries) == 0 {
		return
	}
	if err := s.publisher.PublishTimeline(ctx, room, entries); err != nil {
		slog.Warn("failed to publish timeline entries",
			"room_id", room.ID,
			"entries", len(entries),
			"error", err,
		)
	}
}

func normalizeStakeholders(in []domain.Stakeholder) ([]domain.Stakeholder, error) {
	out := make([]domain.Stakeholder, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, st := range in {
		if strings.TrimSpace(st.Name) == "" {
			return nil, fmt.Errorf("%w: stakeholder name is required", ErrInvalidInput)
		}
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("%w: duplicate stakeholder id %s", ErrInvalidInput, st.ID)
		}
		seen[st.ID] = true

		if st.EscalationLevel == 0 {
			st.EscalationLevel = domain.MinEscalationLevel
		}
		if st.EscalationLevel < domain.MinEscalationLevel || st.EscalationLevel > domain.MaxEscalationLevel {
			return nil, fmt.Errorf("%w: escalation level %d out of range", ErrInvalidInput, st.EscalationLevel)
		}
		if st.NotificationChannels == nil {
			st.NotificationChannels = []domain.ChannelType{}
		}
		out = append(out, st)
	}
	return out, nil
}

func normalizeTemplates(in []domain.Template) ([]domain.Template, error) {
	out := make([]domain.Template, 0, len(in))
	for _, t := range in {
		if !t.Type.IsValid() {
			return nil, fmt.Errorf("%w: template %q has unknown type %q", ErrInvalidInput, t.Name, t.Type)
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		out = append(out, t)
	}
	return out, nil
}

func normalizeActionItems(in []domain.ActionItem) []domain.ActionItem {
	out := make([]domain.ActionItem, 0, len(in))
	for _, a := range in {
		if a.Status == "" {
			a.Status = domain.ActionItemPending
		}
		out = append(out, a)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
