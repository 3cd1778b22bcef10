package models

import "time"

// Event is the reusable description of a program event. Each scheduled
// occurrence of it is an EventDetail row.
type Event struct {
	EventID     int
	Name        string
	EventType   string
	Description string
	CreatedAt   time.Time
}

// EventDetail is one scheduled occurrence of an Event.
type EventDetail struct {
	EventDetailsID       int
	EventID              int
	StartTime            time.Time
	EndTime              *time.Time
	Location             string
	Capacity             int
	RegistrationDeadline *time.Time
	RegisteredCount      int

	// Populated by joins.
	EventName     string
	EventType     string
	Description   string
	AttendedCount int
}
