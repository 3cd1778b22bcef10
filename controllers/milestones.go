package controllers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type MilestoneController struct{}

func buildMilestoneFilters(r *http.Request, user utils.SessionUser) *whereBuilder {
	b := &whereBuilder{}
	q := r.URL.Query()

	if name := strings.TrimSpace(q.Get("participantName")); name != "" {
		b.add("LOWER(p.first_name || ' ' || p.last_name) LIKE LOWER(?)", like(name))
	}
	if email := strings.TrimSpace(q.Get("email")); email != "" {
		b.add("p.email ILIKE ?", like(email))
	}
	if title := strings.TrimSpace(q.Get("title")); title != "" {
		b.add("m.title ILIKE ?", like(title))
	}
	if start, err := utils.ParseDate(q.Get("startDate")); err == nil && start != nil {
		b.add("m.milestone_date >= ?", *start)
	}
	if end, err := utils.ParseDate(q.Get("endDate")); err == nil && end != nil {
		b.add("m.milestone_date <= ?", *end)
	}
	if !user.IsManager() {
		b.add("m.participant_id = ?", user.ParticipantID)
	}
	return b
}

func (c *MilestoneController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		filters := buildMilestoneFilters(r, user)
		q := r.URL.Query()
		data := map[string]interface{}{
			"ParticipantName": q.Get("participantName"),
			"Email":           q.Get("email"),
			"Title":           q.Get("title"),
			"StartDate":       q.Get("startDate"),
			"EndDate":         q.Get("endDate"),
			"Milestones":      []models.Milestone{},
			"Pagination":      utils.Paginate("1", 0),
		}

		var total int
		countQuery := `SELECT COUNT(*)
			FROM milestones m
			JOIN participants p ON p.participant_id = m.participant_id` + filters.clause()
		if err := db.QueryRow(countQuery, filters.args...).Scan(&total); err != nil {
			logrus.WithError(err).Error("milestone count failed")
			utils.FlashError(w, r, "Error loading milestones.")
			utils.Render(w, r, "milestones.html", data)
			return
		}

		page := utils.Paginate(q.Get("page"), total)

		listFilters := filters.clone()
		listQuery := `SELECT m.milestone_id, m.participant_id, m.title,
			m.milestone_date, m.created_at,
			p.first_name || ' ' || p.last_name, p.email
			FROM milestones m
			JOIN participants p ON p.participant_id = m.participant_id` +
			listFilters.clause() +
			` ORDER BY m.milestone_date DESC NULLS LAST, m.milestone_id DESC
			LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

		rows, err := db.Query(listQuery, listFilters.args...)
		if err != nil {
			logrus.WithError(err).Error("milestone list failed")
			utils.FlashError(w, r, "Error loading milestones.")
			utils.Render(w, r, "milestones.html", data)
			return
		}
		defer rows.Close()

		var milestones []models.Milestone
		for rows.Next() {
			var m models.Milestone
			var date sql.NullTime
			if err := rows.Scan(&m.MilestoneID, &m.ParticipantID, &m.Title,
				&date, &m.CreatedAt, &m.ParticipantName, &m.Email); err != nil {
				logrus.WithError(err).Error("milestone scan failed")
				utils.FlashError(w, r, "Error loading milestones.")
				utils.Render(w, r, "milestones.html", data)
				return
			}
			m.MilestoneDate = utils.NullTimePtr(date)
			milestones = append(milestones, m)
		}

		data["Milestones"] = milestones
		data["Pagination"] = page
		utils.Render(w, r, "milestones.html", data)
	}
}

func (c *MilestoneController) NewForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "milestone_form.html", map[string]interface{}{"Milestone": nil})
	}
}

// Create records a milestone. Managers target any participant by email;
// participants always record against their own linked record.
func (c *MilestoneController) Create(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			utils.FlashError(w, r, "Milestone title is required.")
			http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
			return
		}
		date, err := utils.ParseDate(r.FormValue("milestoneDate"))
		if err != nil {
			utils.FlashError(w, r, "Milestone date is invalid.")
			http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
			return
		}

		var participantID int
		if user.IsManager() {
			email := strings.TrimSpace(r.FormValue("email"))
			if email == "" {
				utils.FlashError(w, r, "Participant email is required.")
				http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
				return
			}
			err := db.QueryRow(
				`SELECT participant_id FROM participants
				 WHERE LOWER(email) = LOWER($1)`, email,
			).Scan(&participantID)
			if err == sql.ErrNoRows {
				utils.FlashError(w, r, "No participant found with that email.")
				http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
				return
			}
			if err != nil {
				logrus.WithError(err).Error("milestone participant lookup failed")
				utils.FlashError(w, r, "Error saving milestone.")
				http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
				return
			}
		} else {
			if user.ParticipantID == 0 {
				utils.FlashError(w, r, "Your account is not linked to a participant record.")
				http.Redirect(w, r, "/milestones", http.StatusSeeOther)
				return
			}
			participantID = user.ParticipantID
		}

		if _, err := db.Exec(
			`INSERT INTO milestones (participant_id, title, milestone_date)
			 VALUES ($1, $2, $3)`,
			participantID, title, date,
		); err != nil {
			logrus.WithError(err).Error("milestone insert failed")
			utils.FlashError(w, r, "Error saving milestone.")
			http.Redirect(w, r, "/milestones/new", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Milestone recorded successfully.")
		http.Redirect(w, r, "/milestones", http.StatusSeeOther)
	}
}

func (c *MilestoneController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		milestoneID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid milestone id.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		m, err := loadMilestone(db, milestoneID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, m.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Milestone not found.", "You do not have permission to edit that milestone."))
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("milestone load failed")
			utils.FlashError(w, r, "Error loading milestone.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		utils.Render(w, r, "milestone_form.html", map[string]interface{}{"Milestone": m})
	}
}

func (c *MilestoneController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		milestoneID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid milestone id.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		m, err := loadMilestone(db, milestoneID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, m.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Milestone not found.", "You do not have permission to edit that milestone."))
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("milestone load failed")
			utils.FlashError(w, r, "Error saving milestone.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			utils.FlashError(w, r, "Milestone title is required.")
			http.Redirect(w, r, "/milestones/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}
		date, err := utils.ParseDate(r.FormValue("milestoneDate"))
		if err != nil {
			utils.FlashError(w, r, "Milestone date is invalid.")
			http.Redirect(w, r, "/milestones/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}

		if _, err := db.Exec(
			`UPDATE milestones SET title = $1, milestone_date = $2
			 WHERE milestone_id = $3`,
			title, date, milestoneID,
		); err != nil {
			logrus.WithError(err).Error("milestone update failed")
			utils.FlashError(w, r, "Error saving milestone.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Milestone updated successfully.")
		http.Redirect(w, r, "/milestones", http.StatusSeeOther)
	}
}

func (c *MilestoneController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		milestoneID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid milestone id.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		m, err := loadMilestone(db, milestoneID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, m.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Milestone not found.", "You do not have permission to delete that milestone."))
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("milestone load failed")
			utils.FlashError(w, r, "Error deleting milestone.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		if _, err := db.Exec(
			`DELETE FROM milestones WHERE milestone_id = $1`, milestoneID); err != nil {
			logrus.WithError(err).Error("milestone delete failed")
			utils.FlashError(w, r, "Error deleting milestone.")
			http.Redirect(w, r, "/milestones", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Milestone deleted successfully.")
		http.Redirect(w, r, "/milestones", http.StatusSeeOther)
	}
}

func loadMilestone(db *sql.DB, milestoneID int) (models.Milestone, error) {
	var m models.Milestone
	var date sql.NullTime
	err := db.QueryRow(
		`SELECT m.milestone_id, m.participant_id, m.title, m.milestone_date,
		        m.created_at, p.first_name || ' ' || p.last_name, p.email
		 FROM milestones m
		 JOIN participants p ON p.participant_id = m.participant_id
		 WHERE m.milestone_id = $1`, milestoneID,
	).Scan(&m.MilestoneID, &m.ParticipantID, &m.Title, &date, &m.CreatedAt,
		&m.ParticipantName, &m.Email)
	if err != nil {
		return m, err
	}
	m.MilestoneDate = utils.NullTimePtr(date)
	return m, nil
}
