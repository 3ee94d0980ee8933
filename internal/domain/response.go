package domain

import "time"

// ResponseType classifies an inbound stakeholder response.
type ResponseType string

// Response types.
const (
	ResponseTypeAcknowledgement    ResponseType = "acknowledgement"
	ResponseTypeActionRequired     ResponseType = "action_required"
	ResponseTypeNoActionNeeded     ResponseType = "no_action_needed"
	ResponseTypeEscalationRequest  ResponseType = "escalation_request"
	ResponseTypeInformationRequest ResponseType = "information_request"
)

// IsValid checks if the response type is valid.
func (t ResponseType) IsValid() bool {
	switch t {
	case ResponseTypeAcknowledgement, ResponseTypeActionRequired,
		ResponseTypeNoActionNeeded, ResponseTypeEscalationRequest,
		ResponseTypeInformationRequest:
		return true
	}
	return false
}

// ActionItemStatus is the progress of an action item.
type ActionItemStatus string

// Action item statuses.
const (
	ActionItemPending    ActionItemStatus = "pending"
	ActionItemInProgress ActionItemStatus = "in_progress"
	ActionItemCompleted  ActionItemStatus = "completed"
)

// ActionItem is a follow-up requested in a response.
type ActionItem struct {
	Description string           `json:"description" validate:"required"`
	AssignedTo  string           `json:"assigned_to"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Status      ActionItemStatus `json:"status"`
}

// Response is an inbound stakeholder reply.
type Response struct {
	ID              string       `json:"id"`
	StakeholderID   string       `json:"stakeholder_id"`
	StakeholderName string       `json:"stakeholder_name"`
	ResponseType    ResponseType `json:"response_type"`
	Content         string       `json:"content"`
	ReceivedAt      time.Time    `json:"received_at"`
	ActionItems     []ActionItem `json:"action_items"`
	CommunicationID string       `json:"communication_id,omitempty"`
}

// Escalation records an elevation of response urgency.
type Escalation struct {
	Level       int           `json:"level"`
	Reason      string        `json:"reason"`
	TriggeredBy string        `json:"triggered_by"`
	TriggeredAt time.Time     `json:"triggered_at"`
	EscalatedTo []EscalatedTo `json:"escalated_to"`
}

// EscalatedTo identifies a stakeholder notified by an escalation.
type EscalatedTo struct {
	StakeholderID string `json:"stakeholder_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
}
