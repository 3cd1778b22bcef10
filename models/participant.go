package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Participant is a person the program serves. TotalDonations is a running
// total maintained by the donation handlers, not recomputed per page.
type Participant struct {
	ParticipantID   int
	Email           string
	FirstName       string
	LastName        string
	Phone           string
	DOB             *time.Time
	Role            string
	City            string
	State           string
	Zip             string
	FieldOfInterest string
	OriginTypeID    *int
	TotalDonations  decimal.Decimal
	CreatedAt       time.Time

	// Populated by joins.
	Origin          string
	OriginType      string
	MilestoneTitles string
}

func (p Participant) FullName() string {
	return p.FirstName + " " + p.LastName
}

// OriginType is how a participant first connected with the program.
type OriginType struct {
	OriginTypeID int
	Origin       string
	OriginType   string
}
