package model

import "slices"

// Spot is a slackline location. Its key is the canonical "lat,lng" string.
type Spot struct {
	SpotKey          string  `gorm:"primaryKey;size:64" json:"spot_key"`
	Latitude         float64 `gorm:"not null" json:"latitude"`
	Longitude        float64 `gorm:"not null" json:"longitude"`
	CheckedInUserIDs Roster  `gorm:"type:text;not null" json:"checked_in_user_ids"`
	ActiveUsers      int     `gorm:"not null" json:"active_users"`
	TotalUsers       int     `gorm:"not null" json:"total_users"`
}

// Roster is the set of user IDs checked into a spot, stored as a JSON list.
type Roster []string

// Contains reports whether userID is on the roster.
func (r Roster) Contains(userID string) bool {
	return slices.Contains(r, userID)
}

// Without returns a copy of the roster with every occurrence of userID removed.
func (r Roster) Without(userID string) Roster {
	out := make(Roster, 0, len(r))
	for _, id := range r {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}
