package models

import "time"

// Canonical login roles. Participant.Role is unrelated; that one is a
// free-text program role (mentor, student, ...).
const (
	RoleManager     = "manager"
	RoleParticipant = "participant"
)

type User struct {
	UserID        int
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	ParticipantID *int
	CreatedAt     time.Time
}
