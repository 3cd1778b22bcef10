package controllers

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type DonationController struct{}

func buildDonationFilters(r *http.Request, user utils.SessionUser) *whereBuilder {
	b := &whereBuilder{}
	q := r.URL.Query()

	if name := strings.TrimSpace(q.Get("participantName")); name != "" {
		b.add("LOWER(p.first_name || ' ' || p.last_name) LIKE LOWER(?)", like(name))
	}
	if email := strings.TrimSpace(q.Get("email")); email != "" {
		b.add("p.email ILIKE ?", like(email))
	}
	if start, err := utils.ParseDate(q.Get("startDate")); err == nil && start != nil {
		b.add("d.donation_date >= ?", *start)
	}
	if end, err := utils.ParseDate(q.Get("endDate")); err == nil && end != nil {
		b.add("d.donation_date <= ?", *end)
	}
	if !user.IsManager() {
		b.add("d.participant_id = ?", user.ParticipantID)
	}
	return b
}

// List shows the scoped donation history with a grand total over the same
// filter predicate the rows use.
func (c *DonationController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		filters := buildDonationFilters(r, user)
		q := r.URL.Query()
		data := map[string]interface{}{
			"ParticipantName": q.Get("participantName"),
			"Email":           q.Get("email"),
			"StartDate":       q.Get("startDate"),
			"EndDate":         q.Get("endDate"),
			"Donations":       []models.Donation{},
			"GrandTotal":      decimal.Zero,
			"Pagination":      utils.Paginate("1", 0),
		}

		var total int
		var grandTotalStr string
		summaryQuery := `SELECT COUNT(*), COALESCE(SUM(d.amount), 0)
			FROM donations d
			JOIN participants p ON p.participant_id = d.participant_id` + filters.clause()
		if err := db.QueryRow(summaryQuery, filters.args...).Scan(&total, &grandTotalStr); err != nil {
			logrus.WithError(err).Error("donation summary failed")
			utils.FlashError(w, r, "Error loading donations.")
			utils.Render(w, r, "donations.html", data)
			return
		}
		if gt, err := decimal.NewFromString(grandTotalStr); err == nil {
			data["GrandTotal"] = gt
		}

		page := utils.Paginate(q.Get("page"), total)

		listFilters := filters.clone()
		listQuery := `SELECT d.donation_id, d.participant_id, d.amount,
			d.donation_date, d.created_at,
			p.first_name || ' ' || p.last_name, p.email
			FROM donations d
			JOIN participants p ON p.participant_id = d.participant_id` +
			listFilters.clause() +
			` ORDER BY d.donation_date DESC, d.donation_id DESC
			LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

		rows, err := db.Query(listQuery, listFilters.args...)
		if err != nil {
			logrus.WithError(err).Error("donation list failed")
			utils.FlashError(w, r, "Error loading donations.")
			utils.Render(w, r, "donations.html", data)
			return
		}
		defer rows.Close()

		var donations []models.Donation
		for rows.Next() {
			var d models.Donation
			var amount string
			if err := rows.Scan(&d.DonationID, &d.ParticipantID, &amount,
				&d.DonationDate, &d.CreatedAt, &d.ParticipantName, &d.Email); err != nil {
				logrus.WithError(err).Error("donation scan failed")
				utils.FlashError(w, r, "Error loading donations.")
				utils.Render(w, r, "donations.html", data)
				return
			}
			if d.Amount, err = decimal.NewFromString(amount); err != nil {
				logrus.WithError(err).Error("donation amount parse failed")
				utils.FlashError(w, r, "Error loading donations.")
				utils.Render(w, r, "donations.html", data)
				return
			}
			donations = append(donations, d)
		}

		data["Donations"] = donations
		data["Pagination"] = page
		utils.Render(w, r, "donations.html", data)
	}
}

func (c *DonationController) NewForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "donation_form.html", map[string]interface{}{"Donation": nil})
	}
}

// parseAmount enforces a positive money value before any write happens.
func parseAmount(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !d.IsPositive() {
		return decimal.Zero, false
	}
	return d.Round(2), true
}

func parseDonationDate(raw string) (time.Time, bool) {
	d, err := utils.ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	if d == nil {
		return time.Now(), true
	}
	return *d, true
}

// Create records a donation on behalf of the submitted email, creating a
// participant record when none exists, and moves the participant's running
// total inside the same transaction.
func (c *DonationController) Create(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		firstName := strings.TrimSpace(r.FormValue("firstName"))
		lastName := strings.TrimSpace(r.FormValue("lastName"))
		email := strings.TrimSpace(r.FormValue("email"))
		if firstName == "" || lastName == "" || email == "" {
			utils.FlashError(w, r, "First name, last name, and email are required.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}
		amount, ok := parseAmount(r.FormValue("amount"))
		if !ok {
			utils.FlashError(w, r, "Donation amount must be a positive number.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}
		date, ok := parseDonationDate(r.FormValue("donationDate"))
		if !ok {
			utils.FlashError(w, r, "Donation date is invalid.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("donation begin failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var participantID int
		err = tx.QueryRow(
			`SELECT participant_id FROM participants
			 WHERE LOWER(email) = LOWER($1) FOR UPDATE`, email,
		).Scan(&participantID)
		if err == sql.ErrNoRows {
			err = tx.QueryRow(
				`INSERT INTO participants (first_name, last_name, email)
				 VALUES ($1, $2, $3) RETURNING participant_id`,
				firstName, lastName, email,
			).Scan(&participantID)
		}
		if err != nil {
			logrus.WithError(err).Error("donation participant lookup failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}

		if err := insertDonation(tx, participantID, amount, date); err != nil {
			logrus.WithError(err).Error("donation insert failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("donation commit failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/new", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Thank you for your donation of $"+amount.StringFixed(2)+".")
		http.Redirect(w, r, "/donations", http.StatusSeeOther)
	}
}

func (c *DonationController) AddForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participants, err := loadParticipantOptions(db)
		if err != nil {
			logrus.WithError(err).Error("donation form participants failed")
			utils.FlashError(w, r, "Error loading donation form.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		utils.Render(w, r, "donation_form.html", map[string]interface{}{
			"Donation":     nil,
			"Participants": participants,
		})
	}
}

// Add records a donation against a known participant. Manager only.
func (c *DonationController) Add(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := utils.StrToInt(r.FormValue("participantId"))
		if err != nil {
			utils.FlashError(w, r, "Please choose a participant.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}
		amount, ok := parseAmount(r.FormValue("amount"))
		if !ok {
			utils.FlashError(w, r, "Donation amount must be a positive number.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}
		date, ok := parseDonationDate(r.FormValue("donationDate"))
		if !ok {
			utils.FlashError(w, r, "Donation date is invalid.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("donation begin failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		if err := lockParticipant(tx, participantID); err == sql.ErrNoRows {
			utils.FlashError(w, r, "Participant not found.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		} else if err != nil {
			logrus.WithError(err).Error("donation participant lock failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}

		if err := insertDonation(tx, participantID, amount, date); err != nil {
			logrus.WithError(err).Error("donation insert failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("donation commit failed")
			utils.FlashError(w, r, "Error recording donation.")
			http.Redirect(w, r, "/donations/add", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Donation recorded successfully.")
		http.Redirect(w, r, "/donations", http.StatusSeeOther)
	}
}

func (c *DonationController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donationID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid donation id.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		d, err := loadDonation(db, donationID)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Donation not found.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("donation load failed")
			utils.FlashError(w, r, "Error loading donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		participants, err := loadParticipantOptions(db)
		if err != nil {
			logrus.WithError(err).Error("donation form participants failed")
			utils.FlashError(w, r, "Error loading donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		utils.Render(w, r, "donation_form.html", map[string]interface{}{
			"Donation":     d,
			"Participants": participants,
		})
	}
}

// Edit rewrites a donation. The owning participant's running total moves by
// the amount delta; when the owner changes, the old owner loses the old
// amount and the new owner gains the new one, with both rows locked in
// ascending id order.
func (c *DonationController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donationID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid donation id.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		editURL := "/donations/" + mux.Vars(r)["id"] + "/edit"

		newOwnerID, err := utils.StrToInt(r.FormValue("participantId"))
		if err != nil {
			utils.FlashError(w, r, "Please choose a participant.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		newAmount, ok := parseAmount(r.FormValue("amount"))
		if !ok {
			utils.FlashError(w, r, "Donation amount must be a positive number.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		date, ok := parseDonationDate(r.FormValue("donationDate"))
		if !ok {
			utils.FlashError(w, r, "Donation date is invalid.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("donation edit begin failed")
			utils.FlashError(w, r, "Error updating donation.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var oldOwnerID int
		var oldAmountStr string
		err = tx.QueryRow(
			`SELECT participant_id, amount FROM donations
			 WHERE donation_id = $1 FOR UPDATE`, donationID,
		).Scan(&oldOwnerID, &oldAmountStr)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Donation not found.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("donation lock failed")
			utils.FlashError(w, r, "Error updating donation.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		oldAmount, err := decimal.NewFromString(oldAmountStr)
		if err != nil {
			logrus.WithError(err).Error("donation amount parse failed")
			utils.FlashError(w, r, "Error updating donation.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		// Lock owner rows in ascending id order to avoid deadlocks.
		lockOrder := []int{oldOwnerID}
		if newOwnerID != oldOwnerID {
			if newOwnerID < oldOwnerID {
				lockOrder = []int{newOwnerID, oldOwnerID}
			} else {
				lockOrder = []int{oldOwnerID, newOwnerID}
			}
		}
		for _, id := range lockOrder {
			if err := lockParticipant(tx, id); err == sql.ErrNoRows {
				utils.FlashError(w, r, "Participant not found.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			} else if err != nil {
				logrus.WithError(err).Error("donation participant lock failed")
				utils.FlashError(w, r, "Error updating donation.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
		}

		if _, err := tx.Exec(
			`UPDATE donations SET participant_id = $1, amount = $2, donation_date = $3
			 WHERE donation_id = $4`,
			newOwnerID, newAmount.StringFixed(2), date, donationID,
		); err != nil {
			logrus.WithError(err).Error("donation update failed")
			utils.FlashError(w, r, "Error updating donation.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		if newOwnerID == oldOwnerID {
			delta := newAmount.Sub(oldAmount)
			if err := adjustTotal(tx, oldOwnerID, delta); err != nil {
				logrus.WithError(err).Error("donation total adjust failed")
				utils.FlashError(w, r, "Error updating donation.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
		} else {
			if err := adjustTotal(tx, oldOwnerID, oldAmount.Neg()); err != nil {
				logrus.WithError(err).Error("donation total adjust failed")
				utils.FlashError(w, r, "Error updating donation.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
			if err := adjustTotal(tx, newOwnerID, newAmount); err != nil {
				logrus.WithError(err).Error("donation total adjust failed")
				utils.FlashError(w, r, "Error updating donation.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("donation edit commit failed")
			utils.FlashError(w, r, "Error updating donation.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Donation updated successfully.")
		http.Redirect(w, r, "/donations", http.StatusSeeOther)
	}
}

// Delete removes a donation and backs its amount out of the owner's total.
func (c *DonationController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		donationID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid donation id.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("donation delete begin failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var ownerID int
		var amountStr string
		err = tx.QueryRow(
			`SELECT participant_id, amount FROM donations
			 WHERE donation_id = $1 FOR UPDATE`, donationID,
		).Scan(&ownerID, &amountStr)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Donation not found.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("donation lock failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			logrus.WithError(err).Error("donation amount parse failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		if err := lockParticipant(tx, ownerID); err != nil {
			logrus.WithError(err).Error("donation participant lock failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		if err := adjustTotal(tx, ownerID, amount.Neg()); err != nil {
			logrus.WithError(err).Error("donation total adjust failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}
		if _, err := tx.Exec(
			`DELETE FROM donations WHERE donation_id = $1`, donationID); err != nil {
			logrus.WithError(err).Error("donation delete failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("donation delete commit failed")
			utils.FlashError(w, r, "Error deleting donation.")
			http.Redirect(w, r, "/donations", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Donation deleted successfully.")
		http.Redirect(w, r, "/donations", http.StatusSeeOther)
	}
}

func lockParticipant(tx *sql.Tx, participantID int) error {
	var id int
	return tx.QueryRow(
		`SELECT participant_id FROM participants
		 WHERE participant_id = $1 FOR UPDATE`, participantID,
	).Scan(&id)
}

func adjustTotal(tx *sql.Tx, participantID int, delta decimal.Decimal) error {
	_, err := tx.Exec(
		`UPDATE participants SET total_donations = total_donations + $1
		 WHERE participant_id = $2`,
		delta.StringFixed(2), participantID)
	return err
}

func insertDonation(tx *sql.Tx, participantID int, amount decimal.Decimal, date time.Time) error {
	if _, err := tx.Exec(
		`INSERT INTO donations (participant_id, amount, donation_date)
		 VALUES ($1, $2, $3)`,
		participantID, amount.StringFixed(2), date); err != nil {
		return err
	}
	return adjustTotal(tx, participantID, amount)
}

func loadDonation(db *sql.DB, donationID int) (models.Donation, error) {
	var d models.Donation
	var amount string
	err := db.QueryRow(
		`SELECT d.donation_id, d.participant_id, d.amount, d.donation_date,
		        d.created_at, p.first_name || ' ' || p.last_name, p.email
		 FROM donations d
		 JOIN participants p ON p.participant_id = d.participant_id
		 WHERE d.donation_id = $1`, donationID,
	).Scan(&d.DonationID, &d.ParticipantID, &amount, &d.DonationDate,
		&d.CreatedAt, &d.ParticipantName, &d.Email)
	if err != nil {
		return d, err
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return d, err
	}
	return d, nil
}
