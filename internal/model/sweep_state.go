package model

import "time"

// ExpirySweepStateKey names the singleton throttle record of the expiry sweep.
const ExpirySweepStateKey = "expiry_sweep"

// SweepState persists when a background sweep last started scanning.
type SweepState struct {
	Name        string    `gorm:"primaryKey;size:64" json:"name"`
	LastSweepAt time.Time `gorm:"not null" json:"last_sweep_at"`
}
