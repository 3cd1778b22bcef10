package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Donation struct {
	DonationID    int
	ParticipantID int
	Amount        decimal.Decimal
	DonationDate  time.Time
	CreatedAt     time.Time

	// Populated by joins.
	ParticipantName string
	Email           string
}
