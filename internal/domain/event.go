package domain

import "time"

// GeopoliticalEvent is a detected risk event. Rooms are opened against
// events; the service never modifies them.
type GeopoliticalEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	Regions     []string  `json:"regions"`
	DetectedAt  time.Time `json:"detected_at"`
}
