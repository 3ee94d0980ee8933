package domain

import "time"

// RoomMetrics is derived from the room's logs and recomputed on every
// mutation. It is never authoritative on its own.
type RoomMetrics struct {
	TotalCommunications   int                              `json:"total_communications"`
	TotalRecipients       int                              `json:"total_recipients"`
	ResponseRate          float64                          `json:"response_rate"`
	AverageResponseTime   float64                          `json:"average_response_time"`
	EscalationCount       int                              `json:"escalation_count"`
	ResolutionTime        float64                          `json:"resolution_time"`
	ChannelBreakdown      map[ChannelType]ChannelStats     `json:"channel_breakdown"`
	StakeholderEngagement map[string]StakeholderEngagement `json:"stakeholder_engagement"`
	ComputedAt            time.Time                        `json:"computed_at"`
}

// ChannelStats aggregates delivery outcomes for one channel.
type ChannelStats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// StakeholderEngagement aggregates activity for one stakeholder.
type StakeholderEngagement struct {
	TotalCommunications int        `json:"total_communications"`
	Responses           int        `json:"responses"`
	LastResponseAt      *time.Time `json:"last_response_at,omitempty"`
}
