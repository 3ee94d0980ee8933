package rooms

import (
	"time"

	"github.com/bissquit/crisis-room/internal/domain"
)

// ComputeMetrics derives the room metrics from its logs.
func ComputeMetrics(room *domain.Room, now time.Time) domain.RoomMetrics {
	m := domain.RoomMetrics{
		TotalCommunications:   len(room.Communications),
		EscalationCount:       len(room.Escalations),
		ChannelBreakdown:      make(map[domain.ChannelType]domain.ChannelStats),
		StakeholderEngagement: make(map[string]domain.StakeholderEngagement),
		ComputedAt:            now,
	}

	for _, c := range room.Communications {
		m.TotalRecipients += len(c.Recipients)

		stats := m.ChannelBreakdown[c.Channel]
		stats.Total++
		switch c.DeliveryStatus {
		case domain.DeliveryStatusSent:
			stats.Successful++
		case domain.DeliveryStatusFailed:
			stats.Failed++
		}
		m.ChannelBreakdown[c.Channel] = stats
	}

	if m.TotalRecipients > 0 {
		m.ResponseRate = float64(len(room.Responses)) / float64(m.TotalRecipients) * 100
	}

	m.AverageResponseTime = averageResponseTime(room)

	if room.Status == domain.RoomStatusResolved && room.ResolvedAt != nil {
		m.ResolutionTime = room.ResolvedAt.Sub(room.CreatedAt).Minutes()
	}

	for _, s := range room.Stakeholders {
		var e domain.StakeholderEngagement
		for _, c := range room.Communications {
			if c.AddressedTo(s) {
				e.TotalCommunications++
			}
		}
		for i := range room.Responses {
			r := &room.Responses[i]
			if r.StakeholderID != s.ID {
				continue
			}
			e.Responses++
			if e.LastResponseAt == nil || r.ReceivedAt.After(*e.LastResponseAt) {
				at := r.ReceivedAt
				e.LastResponseAt = &at
			}
		}
		m.StakeholderEngagement[s.ID] = e
	}

	return m
}

// averageResponseTime is the mean delay in minutes between a communication
// and the response correlated to it. Non-positive deltas are ignored.
func averageResponseTime(room *domain.Room) float64 {
	sentAt := make(map[string]time.Time, len(room.Communications))
	for _, c := range room.Communications {
		sentAt[c.ID] = c.SentAt
	}

	var total float64
	var n int
	for _, r := range room.Responses {
		if r.CommunicationID == "" {
			continue
		}
		at, ok := sentAt[r.CommunicationID]
		if !ok {
			continue
		}
		delta := r.ReceivedAt.Sub(at)
		if delta <= 0 {
			continue
		}
		total += delta.Minutes()
		n++
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
