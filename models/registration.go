package models

import "time"

const (
	RegistrationStatusRegistered = "registered"
	RegistrationStatusCancelled  = "cancelled"
)

type Registration struct {
	RegistrationID int
	ParticipantID  int
	EventDetailsID int
	Status         string
	CheckInTime    *time.Time
	Attended       bool
	CreatedAt      time.Time

	// Populated by joins.
	ParticipantName string
	EventName       string
	EventType       string
	StartTime       time.Time
	Location        string
}
