package controllers

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type RegistrationController struct{}

// Register signs the logged-in participant up for an occurrence. The
// duplicate, deadline, and capacity checks all run against a row lock so
// concurrent signups cannot oversell the event.
func (c *RegistrationController) Register(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		if user.ParticipantID == 0 {
			utils.FlashError(w, r, "Your account is not linked to a participant record.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		participantID := user.ParticipantID

		detailsID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid event id.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("registration begin failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var capacity, registered int
		var deadline sql.NullTime
		err = tx.QueryRow(
			`SELECT capacity, registered_count, registration_deadline
			 FROM event_details WHERE event_details_id = $1 FOR UPDATE`,
			detailsID,
		).Scan(&capacity, &registered, &deadline)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Event not found.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("registration lock failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		var existing int
		err = tx.QueryRow(
			`SELECT COUNT(*) FROM registrations
			 WHERE participant_id = $1 AND event_details_id = $2`,
			participantID, detailsID,
		).Scan(&existing)
		if err != nil {
			logrus.WithError(err).Error("registration duplicate check failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if existing > 0 {
			utils.FlashError(w, r, "You are already registered for this event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		if deadline.Valid && time.Now().After(deadline.Time) {
			utils.FlashError(w, r, "The registration deadline for this event has passed.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if capacity > 0 && registered >= capacity {
			utils.FlashError(w, r, "This event is full.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		if _, err := tx.Exec(
			`INSERT INTO registrations (participant_id, event_details_id, status)
			 VALUES ($1, $2, $3)`,
			participantID, detailsID, models.RegistrationStatusRegistered,
		); err != nil {
			logrus.WithError(err).Error("registration insert failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if _, err := tx.Exec(
			`UPDATE event_details SET registered_count = registered_count + 1
			 WHERE event_details_id = $1`,
			detailsID,
		); err != nil {
			logrus.WithError(err).Error("registration count update failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("registration commit failed")
			utils.FlashError(w, r, "Error registering for event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "You are registered for this event.")
		http.Redirect(w, r, "/events", http.StatusSeeOther)
	}
}

// Checkin marks a registration attended. Manager only.
func (c *RegistrationController) Checkin(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registrationID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid registration id.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		res, err := db.Exec(
			`UPDATE registrations SET attended = TRUE, check_in_time = now()
			 WHERE registration_id = $1`,
			registrationID,
		)
		if err != nil {
			logrus.WithError(err).Error("check-in failed")
			utils.FlashError(w, r, "Error checking in participant.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "Registration not found.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Participant checked in.")
		http.Redirect(w, r, "/events", http.StatusSeeOther)
	}
}
