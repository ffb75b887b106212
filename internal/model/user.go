package model

import "time"

// User holds the occupancy fields of a registered user.
type User struct {
	UserID           string     `gorm:"primaryKey;size:128" json:"user_id"`
	CheckInSpot      *string    `gorm:"size:64;index" json:"check_in_spot"`
	CheckOutDeadline *time.Time `json:"check_out_deadline"`
}

// IsCheckedIn reports whether the user currently points at any spot.
func (u *User) IsCheckedIn() bool {
	return u.CheckInSpot != nil && *u.CheckInSpot != ""
}

// IsCheckedInto reports whether the user currently points at spotKey.
func (u *User) IsCheckedInto(spotKey string) bool {
	return u.IsCheckedIn() && *u.CheckInSpot == spotKey
}

// Expired reports whether the user's check-in deadline lies strictly before now.
func (u *User) Expired(now time.Time) bool {
	return u.IsCheckedIn() && u.CheckOutDeadline != nil && u.CheckOutDeadline.Before(now)
}
