package controllers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type ParticipantController struct{}

// buildParticipantFilters composes the list predicates shared by the data
// and count queries. Non-managers are always scoped to their own record.
func buildParticipantFilters(r *http.Request, user utils.SessionUser) *whereBuilder {
	b := &whereBuilder{}
	q := r.URL.Query()

	if name := strings.TrimSpace(q.Get("name")); name != "" {
		b.add("LOWER(p.first_name || ' ' || p.last_name) LIKE LOWER(?)", like(name))
	}
	if email := strings.TrimSpace(q.Get("email")); email != "" {
		b.add("p.email ILIKE ?", like(email))
	}
	if phone := strings.TrimSpace(q.Get("phone")); phone != "" {
		b.add("p.phone ILIKE ?", like(phone))
	}
	if title := strings.TrimSpace(q.Get("milestoneTitle")); title != "" {
		b.add("m.title ILIKE ?", like(title))
	}
	if !user.IsManager() {
		b.add("p.participant_id = ?", user.ParticipantID)
	}
	return b
}

func (c *ParticipantController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		filters := buildParticipantFilters(r, user)
		q := r.URL.Query()

		data := map[string]interface{}{
			"Participants":   []models.Participant{},
			"Name":           q.Get("name"),
			"Email":          q.Get("email"),
			"Phone":          q.Get("phone"),
			"MilestoneTitle": q.Get("milestoneTitle"),
			"Pagination":     utils.Paginate("1", 0),
		}

		var total int
		countQuery := `SELECT COUNT(DISTINCT p.participant_id)
			FROM participants p
			LEFT JOIN milestones m ON m.participant_id = p.participant_id` +
			filters.clause()
		if err := db.QueryRow(countQuery, filters.args...).Scan(&total); err != nil {
			logrus.WithError(err).Error("participant count failed")
			utils.FlashError(w, r, "Error loading participants.")
			utils.Render(w, r, "participants.html", data)
			return
		}

		page := utils.Paginate(q.Get("page"), total)
		data["Pagination"] = page

		listFilters := filters.clone()
		listQuery := `SELECT p.participant_id, p.email, p.first_name, p.last_name,
			p.phone, p.total_donations,
			COALESCE(string_agg(DISTINCT m.title, ', '), '')
			FROM participants p
			LEFT JOIN milestones m ON m.participant_id = p.participant_id` +
			listFilters.clause() +
			` GROUP BY p.participant_id
			ORDER BY p.last_name ASC, p.first_name ASC
			LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

		rows, err := db.Query(listQuery, listFilters.args...)
		if err != nil {
			logrus.WithError(err).Error("participant list failed")
			utils.FlashError(w, r, "Error loading participants.")
			utils.Render(w, r, "participants.html", data)
			return
		}
		defer rows.Close()

		var participants []models.Participant
		for rows.Next() {
			var p models.Participant
			var totalDonations string
			if err := rows.Scan(&p.ParticipantID, &p.Email, &p.FirstName, &p.LastName,
				&p.Phone, &totalDonations, &p.MilestoneTitles); err != nil {
				logrus.WithError(err).Error("participant scan failed")
				utils.FlashError(w, r, "Error loading participants.")
				utils.Render(w, r, "participants.html", data)
				return
			}
			if d, err := decimal.NewFromString(totalDonations); err == nil {
				p.TotalDonations = d
			}
			participants = append(participants, p)
		}
		if err := rows.Err(); err != nil {
			logrus.WithError(err).Error("participant rows failed")
			utils.FlashError(w, r, "Error loading participants.")
			utils.Render(w, r, "participants.html", data)
			return
		}

		data["Participants"] = participants
		utils.Render(w, r, "participants.html", data)
	}
}

// Detail shows the participant profile with registrations, milestones,
// surveys, donations and aggregates. Participants can only open their own.
func (c *ParticipantController) Detail(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		participantID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid participant id.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		if !canTouch(user, participantID) {
			utils.FlashError(w, r, "You do not have permission to view that participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		p, err := loadParticipant(db, participantID)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Participant not found.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("participant load failed")
			utils.FlashError(w, r, "Error loading participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		data := map[string]interface{}{"Participant": p}

		regs, err := loadParticipantRegistrations(db, participantID)
		if err != nil {
			logrus.WithError(err).Error("participant registrations load failed")
		}
		data["Registrations"] = regs

		milestones, err := loadParticipantMilestones(db, participantID)
		if err != nil {
			logrus.WithError(err).Error("participant milestones load failed")
		}
		data["Milestones"] = milestones

		surveys, err := loadParticipantSurveys(db, participantID)
		if err != nil {
			logrus.WithError(err).Error("participant surveys load failed")
		}
		data["Surveys"] = surveys

		donations, err := loadParticipantDonations(db, participantID)
		if err != nil {
			logrus.WithError(err).Error("participant donations load failed")
		}
		data["Donations"] = donations

		var avgOverall sql.NullString
		var surveyCount int
		if err := db.QueryRow(
			`SELECT AVG(overall), COUNT(*) FROM surveys WHERE participant_id = $1`,
			participantID,
		).Scan(&avgOverall, &surveyCount); err != nil {
			logrus.WithError(err).Error("participant survey aggregate failed")
		}
		if avgOverall.Valid {
			if d, err := decimal.NewFromString(avgOverall.String); err == nil {
				data["AvgOverallScore"] = d.Round(2)
			}
		}
		data["SurveyCount"] = surveyCount

		var firstReg, lastReg sql.NullTime
		if err := db.QueryRow(
			`SELECT MIN(created_at), MAX(created_at) FROM registrations WHERE participant_id = $1`,
			participantID,
		).Scan(&firstReg, &lastReg); err != nil {
			logrus.WithError(err).Error("participant registration aggregate failed")
		}
		data["FirstRegistration"] = utils.NullTimePtr(firstReg)
		data["LastRegistration"] = utils.NullTimePtr(lastReg)

		utils.Render(w, r, "participant_detail.html", data)
	}
}

func (c *ParticipantController) AddForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origins, err := loadOriginTypes(db)
		if err != nil {
			logrus.WithError(err).Error("origin types load failed")
		}
		utils.Render(w, r, "participant_form.html", map[string]interface{}{
			"Participant": nil,
			"OriginTypes": origins,
		})
	}
}

type participantForm struct {
	Email     string `validate:"required,email"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
}

func (c *ParticipantController) Add(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := participantForm{
			Email:     strings.TrimSpace(r.FormValue("email")),
			FirstName: strings.TrimSpace(r.FormValue("firstName")),
			LastName:  strings.TrimSpace(r.FormValue("lastName")),
		}
		if err := validate.Struct(form); err != nil {
			utils.FlashError(w, r, "Email, first name, and last name are required.")
			http.Redirect(w, r, "/participants/add", http.StatusSeeOther)
			return
		}

		dob, err := utils.ParseDate(r.FormValue("dob"))
		if err != nil {
			utils.FlashError(w, r, "Date of birth must be yyyy-mm-dd.")
			http.Redirect(w, r, "/participants/add", http.StatusSeeOther)
			return
		}

		var originTypeID interface{}
		if v := strings.TrimSpace(r.FormValue("originTypeID")); v != "" {
			id, err := utils.StrToInt(v)
			if err != nil {
				utils.FlashError(w, r, "Invalid origin selection.")
				http.Redirect(w, r, "/participants/add", http.StatusSeeOther)
				return
			}
			originTypeID = id
		}

		_, err = db.Exec(
			`INSERT INTO participants
			 (email, first_name, last_name, phone, dob, role, city, state, zip,
			  field_of_interest, origin_type_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			form.Email, form.FirstName, form.LastName,
			strings.TrimSpace(r.FormValue("phone")), dob,
			strings.TrimSpace(r.FormValue("role")),
			strings.TrimSpace(r.FormValue("city")),
			strings.TrimSpace(r.FormValue("state")),
			strings.TrimSpace(r.FormValue("zip")),
			strings.TrimSpace(r.FormValue("fieldOfInterest")),
			originTypeID,
		)
		if err != nil {
			logrus.WithError(err).Error("participant insert failed")
			utils.FlashError(w, r, "Error creating participant.")
			http.Redirect(w, r, "/participants/add", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Participant \""+form.FirstName+" "+form.LastName+"\" created successfully.")
		http.Redirect(w, r, "/participants", http.StatusSeeOther)
	}
}

func (c *ParticipantController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid participant id.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		p, err := loadParticipant(db, participantID)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Participant not found.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("participant load failed")
			utils.FlashError(w, r, "Error loading participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		origins, err := loadOriginTypes(db)
		if err != nil {
			logrus.WithError(err).Error("origin types load failed")
		}
		utils.Render(w, r, "participant_form.html", map[string]interface{}{
			"Participant": p,
			"OriginTypes": origins,
		})
	}
}

func (c *ParticipantController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid participant id.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		form := participantForm{
			Email:     strings.TrimSpace(r.FormValue("email")),
			FirstName: strings.TrimSpace(r.FormValue("firstName")),
			LastName:  strings.TrimSpace(r.FormValue("lastName")),
		}
		if err := validate.Struct(form); err != nil {
			utils.FlashError(w, r, "Email, first name, and last name are required.")
			http.Redirect(w, r, "/participants/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}

		dob, err := utils.ParseDate(r.FormValue("dob"))
		if err != nil {
			utils.FlashError(w, r, "Date of birth must be yyyy-mm-dd.")
			http.Redirect(w, r, "/participants/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}

		var originTypeID interface{}
		if v := strings.TrimSpace(r.FormValue("originTypeID")); v != "" {
			id, err := utils.StrToInt(v)
			if err == nil {
				originTypeID = id
			}
		}

		res, err := db.Exec(
			`UPDATE participants SET
			 email = $1, first_name = $2, last_name = $3, phone = $4, dob = $5,
			 role = $6, city = $7, state = $8, zip = $9, field_of_interest = $10,
			 origin_type_id = $11
			 WHERE participant_id = $12`,
			form.Email, form.FirstName, form.LastName,
			strings.TrimSpace(r.FormValue("phone")), dob,
			strings.TrimSpace(r.FormValue("role")),
			strings.TrimSpace(r.FormValue("city")),
			strings.TrimSpace(r.FormValue("state")),
			strings.TrimSpace(r.FormValue("zip")),
			strings.TrimSpace(r.FormValue("fieldOfInterest")),
			originTypeID, participantID,
		)
		if err != nil {
			logrus.WithError(err).Error("participant update failed")
			utils.FlashError(w, r, "Error updating participant.")
			http.Redirect(w, r, "/participants/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "Participant not found.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Participant updated successfully.")
		http.Redirect(w, r, "/participants", http.StatusSeeOther)
	}
}

// Delete removes a participant. Login accounts are detached rather than
// deleted, and the donation history goes with the record.
func (c *ParticipantController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid participant id.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("participant delete begin failed")
			utils.FlashError(w, r, "Error deleting participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			`UPDATE users SET participant_id = NULL WHERE participant_id = $1`,
			participantID); err != nil {
			logrus.WithError(err).Error("participant user detach failed")
			utils.FlashError(w, r, "Error deleting participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}
		if _, err := tx.Exec(
			`DELETE FROM donations WHERE participant_id = $1`, participantID); err != nil {
			logrus.WithError(err).Error("participant donations delete failed")
			utils.FlashError(w, r, "Error deleting participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		res, err := tx.Exec(`DELETE FROM participants WHERE participant_id = $1`, participantID)
		if err != nil {
			logrus.WithError(err).Error("participant delete failed")
			utils.FlashError(w, r, "Error deleting participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "Participant not found.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("participant delete commit failed")
			utils.FlashError(w, r, "Error deleting participant.")
			http.Redirect(w, r, "/participants", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Participant deleted successfully.")
		http.Redirect(w, r, "/participants", http.StatusSeeOther)
	}
}

func loadParticipant(db *sql.DB, participantID int) (models.Participant, error) {
	var p models.Participant
	var dob sql.NullTime
	var originTypeID sql.NullInt64
	var origin, originType sql.NullString
	var totalDonations string

	err := db.QueryRow(
		`SELECT p.participant_id, p.email, p.first_name, p.last_name, p.phone,
		        p.dob, p.role, p.city, p.state, p.zip, p.field_of_interest,
		        p.origin_type_id, p.total_donations, p.created_at,
		        o.origin, o.origin_type
		 FROM participants p
		 LEFT JOIN origin_types o ON o.origin_type_id = p.origin_type_id
		 WHERE p.participant_id = $1`, participantID,
	).Scan(&p.ParticipantID, &p.Email, &p.FirstName, &p.LastName, &p.Phone,
		&dob, &p.Role, &p.City, &p.State, &p.Zip, &p.FieldOfInterest,
		&originTypeID, &totalDonations, &p.CreatedAt, &origin, &originType)
	if err != nil {
		return p, err
	}

	p.DOB = utils.NullTimePtr(dob)
	p.OriginTypeID = utils.NullInt64Ptr(originTypeID)
	p.Origin = utils.NullStringToString(origin)
	p.OriginType = utils.NullStringToString(originType)
	if d, err := decimal.NewFromString(totalDonations); err == nil {
		p.TotalDonations = d
	}
	return p, nil
}

func loadOriginTypes(db *sql.DB) ([]models.OriginType, error) {
	rows, err := db.Query(
		`SELECT origin_type_id, origin, origin_type FROM origin_types ORDER BY origin ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.OriginType
	for rows.Next() {
		var o models.OriginType
		if err := rows.Scan(&o.OriginTypeID, &o.Origin, &o.OriginType); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func loadParticipantRegistrations(db *sql.DB, participantID int) ([]models.Registration, error) {
	rows, err := db.Query(
		`SELECT r.registration_id, r.event_details_id, r.status, r.check_in_time,
		        r.attended, r.created_at, e.name, e.event_type, ed.start_time
		 FROM registrations r
		 JOIN event_details ed ON ed.event_details_id = r.event_details_id
		 JOIN events e ON e.event_id = ed.event_id
		 WHERE r.participant_id = $1
		 ORDER BY ed.start_time ASC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Registration
	for rows.Next() {
		var reg models.Registration
		var checkIn sql.NullTime
		if err := rows.Scan(&reg.RegistrationID, &reg.EventDetailsID, &reg.Status,
			&checkIn, &reg.Attended, &reg.CreatedAt, &reg.EventName, &reg.EventType,
			&reg.StartTime); err != nil {
			return nil, err
		}
		reg.CheckInTime = utils.NullTimePtr(checkIn)
		reg.ParticipantID = participantID
		out = append(out, reg)
	}
	return out, rows.Err()
}

func loadParticipantMilestones(db *sql.DB, participantID int) ([]models.Milestone, error) {
	rows, err := db.Query(
		`SELECT milestone_id, title, milestone_date, created_at
		 FROM milestones
		 WHERE participant_id = $1
		 ORDER BY milestone_date ASC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Milestone
	for rows.Next() {
		var m models.Milestone
		var date sql.NullTime
		if err := rows.Scan(&m.MilestoneID, &m.Title, &date, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.MilestoneDate = utils.NullTimePtr(date)
		m.ParticipantID = participantID
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadParticipantSurveys(db *sql.DB, participantID int) ([]models.Survey, error) {
	rows, err := db.Query(
		`SELECT s.survey_id, s.event_details_id, e.name, ed.start_time,
		        s.satisfaction, s.usefulness, s.instructor, s.recommendation,
		        s.overall, s.submitted_at
		 FROM surveys s
		 JOIN event_details ed ON ed.event_details_id = s.event_details_id
		 JOIN events e ON e.event_id = ed.event_id
		 WHERE s.participant_id = $1
		 ORDER BY s.submitted_at ASC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Survey
	for rows.Next() {
		s, err := scanSurveyScores(rows, participantID)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSurveyScores(rows *sql.Rows, participantID int) (models.Survey, error) {
	var s models.Survey
	var sat, use, inst, rec sql.NullInt64
	var overall sql.NullString
	if err := rows.Scan(&s.SurveyID, &s.EventDetailsID, &s.EventName, &s.StartTime,
		&sat, &use, &inst, &rec, &overall, &s.SubmittedAt); err != nil {
		return s, err
	}
	s.ParticipantID = participantID
	s.Satisfaction = utils.NullInt64Ptr(sat)
	s.Usefulness = utils.NullInt64Ptr(use)
	s.Instructor = utils.NullInt64Ptr(inst)
	s.Recommendation = utils.NullInt64Ptr(rec)
	if overall.Valid {
		if d, err := decimal.NewFromString(overall.String); err == nil {
			s.Overall = &d
		}
	}
	return s, nil
}

func loadParticipantDonations(db *sql.DB, participantID int) ([]models.Donation, error) {
	rows, err := db.Query(
		`SELECT donation_id, amount, donation_date, created_at
		 FROM donations
		 WHERE participant_id = $1
		 ORDER BY donation_date ASC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Donation
	for rows.Next() {
		var d models.Donation
		var amount string
		if err := rows.Scan(&d.DonationID, &amount, &d.DonationDate, &d.CreatedAt); err != nil {
			return nil, err
		}
		if dec, err := decimal.NewFromString(amount); err == nil {
			d.Amount = dec
		}
		d.ParticipantID = participantID
		out = append(out, d)
	}
	return out, rows.Err()
}
