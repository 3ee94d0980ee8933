package rooms

import (
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
)

// ComputeLevel returns the level of the next escalation: one above the
// highest level reached so far, capped at domain.MaxEscalationLevel.
func ComputeLevel(room *domain.Room) int {
	return min(room.MaxEscalationLevel()+1, domain.MaxEscalationLevel)
}

// SelectRecipients returns the active stakeholders whose escalation level
// is at least level, in room order.
func SelectRecipients(room *domain.Room, level int) []domain.Stakeholder {
	selected := make([]domain.Stakeholder, 0, len(room.Stakeholders))
	for _, s := range room.Stakeholders {
		if s.IsActive && s.EscalationLevel >= level {
			selected = append(selected, s)
		}
	}
	return selected
}

// NeedsNoResponseEscalation reports whether a communication requiring
// acknowledgement went unanswered for the room's no-response threshold.
// Communications sent before the last escalation do not count, so every
// escalation restarts the clock with its own notifications.
func NeedsNoResponseEscalation(room *domain.Room, now time.Time) bool {
	if room.Status.IsTerminal() || !room.Settings.AutoEscalationEnabled {
		return false
	}
	if room.Settings.NoResponseThresholdMin <= 0 {
		return false
	}
	if room.MaxEscalationLevel() >= domain.MaxEscalationLevel {
		return false
	}

	var lastEscalation time.Time
	for _, e := range room.Escalations {
		if e.TriggeredAt.After(lastEscalation) {
			lastEscalation = e.TriggeredAt
		}
	}

	threshold := time.Duration(room.Settings.NoResponseThresholdMin) * time.Minute
	for _, c := range room.Communications {
		if !c.Type.RequiresAcknowledgement() || !c.IsSuccessful() || c.ResponseReceived {
			continue
		}
		if c.SentAt.Before(lastEscalation) {
			continue
		}
		if now.Sub(c.SentAt) >= threshold {
			return true
		}
	}
	return false
}
