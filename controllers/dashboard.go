package controllers

import (
	"database/sql"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type DashboardController struct{}

func (c *DashboardController) Show(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := utils.CurrentUser(r)
		data := map[string]interface{}{
			"TotalParticipants": 0,
			"TotalEvents":       0,
			"UpcomingEvents":    []models.EventDetail{},
			"RecentSurveys":     []models.Survey{},
		}

		var totalParticipants, totalEvents int
		if err := db.QueryRow(`SELECT COUNT(*) FROM participants`).Scan(&totalParticipants); err != nil {
			logrus.WithError(err).Error("dashboard participant count failed")
			utils.FlashError(w, r, "Error loading dashboard.")
			utils.Render(w, r, "dashboard.html", data)
			return
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&totalEvents); err != nil {
			logrus.WithError(err).Error("dashboard event count failed")
			utils.FlashError(w, r, "Error loading dashboard.")
			utils.Render(w, r, "dashboard.html", data)
			return
		}
		data["TotalParticipants"] = totalParticipants
		data["TotalEvents"] = totalEvents

		upcoming, err := queryOccurrences(db,
			`SELECT ed.event_details_id, e.event_id, e.name, e.event_type,
			        ed.start_time, ed.end_time, ed.location, ed.capacity,
			        ed.registered_count
			 FROM event_details ed
			 JOIN events e ON e.event_id = ed.event_id
			 WHERE ed.start_time > now()
			 ORDER BY ed.start_time ASC
			 LIMIT 5`)
		if err != nil {
			logrus.WithError(err).Error("dashboard upcoming events failed")
		} else {
			data["UpcomingEvents"] = upcoming
		}

		rows, err := db.Query(
			`SELECT s.survey_id, e.name, ed.start_time, s.overall, s.submitted_at,
			        p.first_name || ' ' || p.last_name
			 FROM surveys s
			 JOIN event_details ed ON ed.event_details_id = s.event_details_id
			 JOIN events e ON e.event_id = ed.event_id
			 JOIN participants p ON p.participant_id = s.participant_id
			 ORDER BY s.submitted_at DESC
			 LIMIT 5`)
		if err != nil {
			logrus.WithError(err).Error("dashboard recent surveys failed")
		} else {
			defer rows.Close()
			var recent []models.Survey
			for rows.Next() {
				var s models.Survey
				var overall sql.NullString
				if err := rows.Scan(&s.SurveyID, &s.EventName, &s.StartTime, &overall, &s.SubmittedAt, &s.ParticipantName); err != nil {
					logrus.WithError(err).Error("dashboard survey scan failed")
					break
				}
				if overall.Valid {
					if d, err := decimal.NewFromString(overall.String); err == nil {
						s.Overall = &d
					}
				}
				recent = append(recent, s)
			}
			data["RecentSurveys"] = recent
		}

		// Participants additionally see their own upcoming registrations
		// and running donation total.
		if !user.IsManager() && user.ParticipantID != 0 {
			myEvents, err := queryMyRegistrations(db, user.ParticipantID)
			if err != nil {
				logrus.WithError(err).Error("dashboard own registrations failed")
			} else {
				data["MyRegistrations"] = myEvents
			}

			var total string
			if err := db.QueryRow(
				`SELECT total_donations FROM participants WHERE participant_id = $1`,
				user.ParticipantID,
			).Scan(&total); err == nil {
				if d, err := decimal.NewFromString(total); err == nil {
					data["MyDonationTotal"] = d
				}
			}
		}

		utils.Render(w, r, "dashboard.html", data)
	}
}

func queryOccurrences(db *sql.DB, query string, args ...interface{}) ([]models.EventDetail, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EventDetail
	for rows.Next() {
		var d models.EventDetail
		var endTime sql.NullTime
		var location sql.NullString
		if err := rows.Scan(&d.EventDetailsID, &d.EventID, &d.EventName, &d.EventType,
			&d.StartTime, &endTime, &location, &d.Capacity, &d.RegisteredCount); err != nil {
			return nil, err
		}
		d.EndTime = utils.NullTimePtr(endTime)
		d.Location = utils.NullStringToString(location)
		out = append(out, d)
	}
	return out, rows.Err()
}

func queryMyRegistrations(db *sql.DB, participantID int) ([]models.Registration, error) {
	rows, err := db.Query(
		`SELECT r.registration_id, r.event_details_id, r.status, r.attended,
		        e.name, ed.start_time, ed.location
		 FROM registrations r
		 JOIN event_details ed ON ed.event_details_id = r.event_details_id
		 JOIN events e ON e.event_id = ed.event_id
		 WHERE r.participant_id = $1 AND ed.start_time > now()
		 ORDER BY ed.start_time ASC`, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(&reg.RegistrationID, &reg.EventDetailsID, &reg.Status,
			&reg.Attended, &reg.EventName, &reg.StartTime, &reg.Location); err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}
