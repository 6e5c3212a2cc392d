package models

import (
	"time"
)

// Participant is one member of a war lineup. Name caches the display name
// at the time the war was set so the lineup can be shown without a lookup.
type Participant struct {
	ID       int64  `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name"`
}

// WarRecord is the scheduled war of one server (Telegram group chat)
type WarRecord struct {
	ServerID     int64         `json:"server_id"`
	Token        string        `json:"token"`
	Opponent     string        `json:"opponent"`
	FireAt       time.Time     `json:"fire_at"`
	DaySelector  string        `json:"day_selector"`
	RawTime      string        `json:"raw_time"`
	DisplayTime  string        `json:"display_time"`
	Participants []Participant `json:"participants,omitempty"`
	CreatedBy    int64         `json:"created_by,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// LineupNames returns the cached participant names, or a single "(Empty)" entry
func (w WarRecord) LineupNames() []string {
	if len(w.Participants) == 0 {
		return []string{"(Empty)"}
	}
	names := make([]string, len(w.Participants))
	for i, p := range w.Participants {
		names[i] = p.Name
	}
	return names
}

// UserRanks holds the rank of every stat set for a user
type UserRanks struct {
	UserID    int64             `json:"user_id"`
	Stats     map[string]string `json:"stats"` // Stat -> Rank
	UpdatedAt time.Time         `json:"updated_at"`
}
