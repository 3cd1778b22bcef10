package models

import "time"

type Milestone struct {
	MilestoneID   int
	ParticipantID int
	Title         string
	MilestoneDate *time.Time
	CreatedAt     time.Time

	// Populated by joins.
	ParticipantName string
	Email           string
}
