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

type SurveyController struct{}

// computeOverall averages whichever component scores were supplied,
// rounded to two decimal places. Nil when no score is present.
func computeOverall(scores ...*int) *decimal.Decimal {
	sum := decimal.Zero
	n := 0
	for _, s := range scores {
		if s != nil {
			sum = sum.Add(decimal.NewFromInt(int64(*s)))
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum.Div(decimal.NewFromInt(int64(n))).Round(2)
	return &avg
}

func buildSurveyFilters(r *http.Request, user utils.SessionUser) *whereBuilder {
	b := &whereBuilder{}
	q := r.URL.Query()

	if name := strings.TrimSpace(q.Get("eventName")); name != "" {
		b.add("e.name ILIKE ?", like(name))
	}
	if name := strings.TrimSpace(q.Get("participantName")); name != "" {
		b.add("LOWER(p.first_name || ' ' || p.last_name) LIKE LOWER(?)", like(name))
	}
	if start, err := utils.ParseDate(q.Get("startDate")); err == nil && start != nil {
		b.add("s.submitted_at >= ?", *start)
	}
	if end, err := utils.ParseDate(q.Get("endDate")); err == nil && end != nil {
		b.add("s.submitted_at <= ?", utils.EndOfDay(*end))
	}
	if !user.IsManager() {
		b.add("s.participant_id = ?", user.ParticipantID)
	}
	return b
}

func (c *SurveyController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		filters := buildSurveyFilters(r, user)
		q := r.URL.Query()
		data := map[string]interface{}{
			"EventName":       q.Get("eventName"),
			"ParticipantName": q.Get("participantName"),
			"StartDate":       q.Get("startDate"),
			"EndDate":         q.Get("endDate"),
			"Surveys":         []models.Survey{},
			"Pagination":      utils.Paginate("1", 0),
		}

		var total int
		countQuery := `SELECT COUNT(*)
			FROM surveys s
			JOIN participants p ON p.participant_id = s.participant_id
			JOIN event_details ed ON ed.event_details_id = s.event_details_id
			JOIN events e ON e.event_id = ed.event_id` + filters.clause()
		if err := db.QueryRow(countQuery, filters.args...).Scan(&total); err != nil {
			logrus.WithError(err).Error("survey count failed")
			utils.FlashError(w, r, "Error loading surveys.")
			utils.Render(w, r, "surveys.html", data)
			return
		}

		page := utils.Paginate(q.Get("page"), total)

		listFilters := filters.clone()
		listQuery := `SELECT s.survey_id, s.participant_id, s.event_details_id,
			s.satisfaction, s.usefulness, s.instructor, s.recommendation,
			s.overall, s.comments, s.submitted_at,
			p.first_name || ' ' || p.last_name, e.name, ed.start_time
			FROM surveys s
			JOIN participants p ON p.participant_id = s.participant_id
			JOIN event_details ed ON ed.event_details_id = s.event_details_id
			JOIN events e ON e.event_id = ed.event_id` +
			listFilters.clause() +
			` ORDER BY s.submitted_at DESC
			LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

		rows, err := db.Query(listQuery, listFilters.args...)
		if err != nil {
			logrus.WithError(err).Error("survey list failed")
			utils.FlashError(w, r, "Error loading surveys.")
			utils.Render(w, r, "surveys.html", data)
			return
		}
		defer rows.Close()

		var surveys []models.Survey
		for rows.Next() {
			s, err := scanSurveyRow(rows)
			if err != nil {
				logrus.WithError(err).Error("survey scan failed")
				utils.FlashError(w, r, "Error loading surveys.")
				utils.Render(w, r, "surveys.html", data)
				return
			}
			surveys = append(surveys, s)
		}

		data["Surveys"] = surveys
		data["Pagination"] = page
		utils.Render(w, r, "surveys.html", data)
	}
}

func scanSurveyRow(rows *sql.Rows) (models.Survey, error) {
	var s models.Survey
	var sat, use, ins, rec sql.NullInt64
	var overall sql.NullString
	var comments sql.NullString
	err := rows.Scan(&s.SurveyID, &s.ParticipantID, &s.EventDetailsID,
		&sat, &use, &ins, &rec, &overall, &comments, &s.SubmittedAt,
		&s.ParticipantName, &s.EventName, &s.StartTime)
	if err != nil {
		return s, err
	}
	s.Satisfaction = utils.NullInt64Ptr(sat)
	s.Usefulness = utils.NullInt64Ptr(use)
	s.Instructor = utils.NullInt64Ptr(ins)
	s.Recommendation = utils.NullInt64Ptr(rec)
	s.Comments = utils.NullStringToString(comments)
	if overall.Valid {
		if d, err := decimal.NewFromString(overall.String); err == nil {
			s.Overall = &d
		}
	}
	return s, nil
}

func (c *SurveyController) NewForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		occurrences, err := queryOccurrences(db,
			`SELECT ed.event_details_id, e.event_id, e.name, e.event_type,
			        ed.start_time, ed.end_time, ed.location, ed.capacity,
			        ed.registered_count
			 FROM event_details ed
			 JOIN events e ON e.event_id = ed.event_id
			 ORDER BY ed.start_time DESC LIMIT 100`)
		if err != nil {
			logrus.WithError(err).Error("survey form events failed")
			utils.FlashError(w, r, "Error loading survey form.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}
		data := map[string]interface{}{
			"Survey":      nil,
			"Occurrences": occurrences,
		}
		if user.IsManager() {
			participants, err := loadParticipantOptions(db)
			if err != nil {
				logrus.WithError(err).Error("survey form participants failed")
				utils.FlashError(w, r, "Error loading survey form.")
				http.Redirect(w, r, "/surveys", http.StatusSeeOther)
				return
			}
			data["Participants"] = participants
		}
		utils.Render(w, r, "survey_form.html", data)
	}
}

func (c *SurveyController) Create(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)

		detailsID, err := utils.StrToInt(r.FormValue("eventDetailsId"))
		if err != nil {
			utils.FlashError(w, r, "Please choose an event.")
			http.Redirect(w, r, "/surveys/new", http.StatusSeeOther)
			return
		}

		participantID := 0
		if user.IsManager() {
			participantID, err = utils.StrToInt(r.FormValue("participantId"))
			if err != nil {
				utils.FlashError(w, r, "Please choose a participant.")
				http.Redirect(w, r, "/surveys/new", http.StatusSeeOther)
				return
			}
		} else {
			if user.ParticipantID == 0 {
				utils.FlashError(w, r, "Your account is not linked to a participant record.")
				http.Redirect(w, r, "/surveys", http.StatusSeeOther)
				return
			}
			participantID = user.ParticipantID
		}

		sat, use, ins, rec, ok := parseSurveyScores(r)
		if !ok {
			utils.FlashError(w, r, "Scores must be whole numbers from 1 to 5.")
			http.Redirect(w, r, "/surveys/new", http.StatusSeeOther)
			return
		}
		overall, ok := resolveOverall(r, sat, use, ins, rec)
		if !ok {
			utils.FlashError(w, r, "Overall score must be between 1 and 5.")
			http.Redirect(w, r, "/surveys/new", http.StatusSeeOther)
			return
		}

		_, err = db.Exec(
			`INSERT INTO surveys
			 (participant_id, event_details_id, satisfaction, usefulness,
			  instructor, recommendation, overall, comments)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			participantID, detailsID, sat, use, ins, rec,
			decimalPtrArg(overall), strings.TrimSpace(r.FormValue("comments")),
		)
		if err != nil {
			logrus.WithError(err).Error("survey insert failed")
			utils.FlashError(w, r, "Error saving survey.")
			http.Redirect(w, r, "/surveys/new", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Survey submitted. Thank you for your feedback.")
		http.Redirect(w, r, "/surveys", http.StatusSeeOther)
	}
}

func (c *SurveyController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		surveyID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid survey id.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		s, err := loadSurvey(db, surveyID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, s.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Survey not found.", "You do not have permission to edit that survey."))
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("survey load failed")
			utils.FlashError(w, r, "Error loading survey.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		utils.Render(w, r, "survey_form.html", map[string]interface{}{"Survey": s})
	}
}

func (c *SurveyController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		surveyID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid survey id.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		s, err := loadSurvey(db, surveyID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, s.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Survey not found.", "You do not have permission to edit that survey."))
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("survey load failed")
			utils.FlashError(w, r, "Error loading survey.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		sat, use, ins, rec, ok := parseSurveyScores(r)
		if !ok {
			utils.FlashError(w, r, "Scores must be whole numbers from 1 to 5.")
			http.Redirect(w, r, "/surveys/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}
		overall, ok := resolveOverall(r, sat, use, ins, rec)
		if !ok {
			utils.FlashError(w, r, "Overall score must be between 1 and 5.")
			http.Redirect(w, r, "/surveys/"+mux.Vars(r)["id"]+"/edit", http.StatusSeeOther)
			return
		}

		_, err = db.Exec(
			`UPDATE surveys SET satisfaction = $1, usefulness = $2, instructor = $3,
			 recommendation = $4, overall = $5, comments = $6
			 WHERE survey_id = $7`,
			sat, use, ins, rec, decimalPtrArg(overall),
			strings.TrimSpace(r.FormValue("comments")), surveyID,
		)
		if err != nil {
			logrus.WithError(err).Error("survey update failed")
			utils.FlashError(w, r, "Error saving survey.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Survey updated successfully.")
		http.Redirect(w, r, "/surveys", http.StatusSeeOther)
	}
}

func (c *SurveyController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		surveyID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid survey id.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		s, err := loadSurvey(db, surveyID)
		if err == sql.ErrNoRows || (err == nil && !canTouch(user, s.ParticipantID)) {
			utils.FlashError(w, r, guardMessage(user, err == sql.ErrNoRows,
				"Survey not found.", "You do not have permission to delete that survey."))
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("survey load failed")
			utils.FlashError(w, r, "Error deleting survey.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		if _, err := db.Exec(
			`DELETE FROM surveys WHERE survey_id = $1`, surveyID); err != nil {
			logrus.WithError(err).Error("survey delete failed")
			utils.FlashError(w, r, "Error deleting survey.")
			http.Redirect(w, r, "/surveys", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Survey deleted successfully.")
		http.Redirect(w, r, "/surveys", http.StatusSeeOther)
	}
}

func loadSurvey(db *sql.DB, surveyID int) (models.Survey, error) {
	var s models.Survey
	var sat, use, ins, rec sql.NullInt64
	var overall, comments sql.NullString
	err := db.QueryRow(
		`SELECT s.survey_id, s.participant_id, s.event_details_id,
		        s.satisfaction, s.usefulness, s.instructor, s.recommendation,
		        s.overall, s.comments, s.submitted_at,
		        p.first_name || ' ' || p.last_name, e.name, ed.start_time
		 FROM surveys s
		 JOIN participants p ON p.participant_id = s.participant_id
		 JOIN event_details ed ON ed.event_details_id = s.event_details_id
		 JOIN events e ON e.event_id = ed.event_id
		 WHERE s.survey_id = $1`, surveyID,
	).Scan(&s.SurveyID, &s.ParticipantID, &s.EventDetailsID,
		&sat, &use, &ins, &rec, &overall, &comments, &s.SubmittedAt,
		&s.ParticipantName, &s.EventName, &s.StartTime)
	if err != nil {
		return s, err
	}
	s.Satisfaction = utils.NullInt64Ptr(sat)
	s.Usefulness = utils.NullInt64Ptr(use)
	s.Instructor = utils.NullInt64Ptr(ins)
	s.Recommendation = utils.NullInt64Ptr(rec)
	s.Comments = utils.NullStringToString(comments)
	if overall.Valid {
		if d, derr := decimal.NewFromString(overall.String); derr == nil {
			s.Overall = &d
		}
	}
	return s, nil
}

// parseSurveyScores reads the four optional 1-5 component scores.
func parseSurveyScores(r *http.Request) (sat, use, ins, rec *int, ok bool) {
	parse := func(field string) (*int, bool) {
		v := strings.TrimSpace(r.FormValue(field))
		if v == "" {
			return nil, true
		}
		n, err := utils.StrToInt(v)
		if err != nil || n < 1 || n > 5 {
			return nil, false
		}
		return &n, true
	}
	if sat, ok = parse("satisfaction"); !ok {
		return
	}
	if use, ok = parse("usefulness"); !ok {
		return
	}
	if ins, ok = parse("instructor"); !ok {
		return
	}
	rec, ok = parse("recommendation")
	return
}

// resolveOverall prefers an explicitly submitted overall score and falls
// back to the component mean.
func resolveOverall(r *http.Request, sat, use, ins, rec *int) (*decimal.Decimal, bool) {
	v := strings.TrimSpace(r.FormValue("overall"))
	if v == "" {
		return computeOverall(sat, use, ins, rec), true
	}
	d, err := decimal.NewFromString(v)
	if err != nil || d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(5)) {
		return nil, false
	}
	d = d.Round(2)
	return &d, true
}

// decimalPtrArg converts an optional decimal to a driver-friendly value.
func decimalPtrArg(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func loadParticipantOptions(db *sql.DB) ([]models.Participant, error) {
	rows, err := db.Query(
		`SELECT participant_id, first_name, last_name, email
		 FROM participants ORDER BY last_name, first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var email sql.NullString
		if err := rows.Scan(&p.ParticipantID, &p.FirstName, &p.LastName, &email); err != nil {
			return nil, err
		}
		p.Email = utils.NullStringToString(email)
		out = append(out, p)
	}
	return out, rows.Err()
}
