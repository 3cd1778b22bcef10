package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Survey is one post-event feedback record per participant per occurrence.
// Component scores are 1-5 and optional; Overall is either supplied or
// computed as the mean of the components that are present.
type Survey struct {
	SurveyID       int
	ParticipantID  int
	EventDetailsID int
	Satisfaction   *int
	Usefulness     *int
	Instructor     *int
	Recommendation *int
	Overall        *decimal.Decimal
	Comments       string
	SubmittedAt    time.Time

	// Populated by joins.
	ParticipantName string
	EventName       string
	StartTime       time.Time
	Location        string
}
