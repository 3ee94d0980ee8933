package domain

import "time"

// RoomStatus represents the lifecycle status of a crisis room.
type RoomStatus string

// Room statuses.
const (
	RoomStatusActive     RoomStatus = "active"
	RoomStatusMonitoring RoomStatus = "monitoring"
	RoomStatusEscalated  RoomStatus = "escalated"
	RoomStatusResolved   RoomStatus = "resolved"
)

// roomTransitions lists the allowed outgoing transitions per status.
// Resolved is terminal.
var roomTransitions = map[RoomStatus][]RoomStatus{
	RoomStatusActive:     {RoomStatusMonitoring, RoomStatusEscalated, RoomStatusResolved},
	RoomStatusMonitoring: {RoomStatusActive, RoomStatusEscalated, RoomStatusResolved},
	RoomStatusEscalated:  {RoomStatusResolved},
	RoomStatusResolved:   nil,
}

// IsValid checks if the room status is valid.
func (s RoomStatus) IsValid() bool {
	_, ok := roomTransitions[s]
	return ok
}

// IsTerminal reports whether no further status change is possible.
func (s RoomStatus) IsTerminal() bool {
	return s == RoomStatusResolved
}

// CanTransitionTo checks the lifecycle state machine.
func (s RoomStatus) CanTransitionTo(next RoomStatus) bool {
	for _, allowed := range roomTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Severity represents the severity of a crisis room.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is valid.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityFromScore maps a relevance score in [0,1] to a severity.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= 0.8:
		return SeverityCritical
	case score >= 0.6:
		return SeverityHigh
	case score >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Room is the crisis room aggregate. Communications, Responses,
// Escalations and Timeline are append-only.
type Room struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	Title          string          `json:"title"`
	Status         RoomStatus      `json:"status"`
	Severity       Severity        `json:"severity"`
	CreatedAt      time.Time       `json:"created_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
	AssignedTeam   []TeamMember    `json:"assigned_team"`
	Stakeholders   []Stakeholder   `json:"stakeholders"`
	Templates      []Template      `json:"templates"`
	Communications []Communication `json:"communications"`
	Responses      []Response      `json:"responses"`
	Escalations    []Escalation    `json:"escalations"`
	Timeline       []TimelineEntry `json:"timeline"`
	Settings       RoomSettings    `json:"settings"`
	Metrics        RoomMetrics     `json:"metrics"`
	Version        int             `json:"version"`
}

// TeamMember is a user assigned to work the room.
type TeamMember struct {
	UserID string `json:"user_id" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

// RoomSettings holds per-room automation settings.
type RoomSettings struct {
	AutoEscalationEnabled  bool `json:"auto_escalation_enabled"`
	TimeThresholdMin       int  `json:"time_threshold_min"`
	NoResponseThresholdMin int  `json:"no_response_threshold_min"`
}

// DefaultRoomSettings returns settings applied when none are supplied.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AutoEscalationEnabled:  true,
		TimeThresholdMin:       60,
		NoResponseThresholdMin: 30,
	}
}

// Template is a reusable communication body stored on the room.
type Template struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Type    CommunicationType `json:"type"`
	Subject string            `json:"subject"`
	Content string            `json:"content"`
}

// FindStakeholder returns the stakeholder with the given id.
func (r *Room) FindStakeholder(id string) (*Stakeholder, bool) {
	for i := range r.Stakeholders {
		if r.Stakeholders[i].ID == id {
			return &r.Stakeholders[i], true
		}
	}
	return nil, false
}

// FindTemplate returns the template with the given id.
func (r *Room) FindTemplate(id string) (*Template, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

// AppendTimeline appends an audit entry.
func (r *Room) AppendTimeline(entry TimelineEntry) {
	r.Timeline = append(r.Timeline, entry)
}

// MaxEscalationLevel returns the highest escalation level reached, or 0.
func (r *Room) MaxEscalationLevel() int {
	level := 0
	for _, e := range r.Escalations {
		if e.Level > level {
			level = e.Level
		}
	}
	return level
}

// TimelineEntryType categorizes timeline entries.
type TimelineEntryType string

// Timeline entry types.
const (
	TimelineRoomCreated         TimelineEntryType = "room_created"
	TimelineStatusChanged       TimelineEntryType = "status_changed"
	TimelineCommunicationSent   TimelineEntryType = "communication_sent"
	TimelineResponseReceived    TimelineEntryType = "response_received"
	TimelineEscalationTriggered TimelineEntryType = "escalation_triggered"
	TimelineRoomResolved        TimelineEntryType = "room_resolved"
	TimelineStakeholderAdded    TimelineEntryType = "stakeholder_added"
)

// TimelineEntry is one record of the room's audit log.
type TimelineEntry struct {
	Timestamp   time.Time         `json:"timestamp"`
	Type        TimelineEntryType `json:"type"`
	Description string            `json:"description"`
	Actor       string            `json:"actor"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
