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

type EventController struct{}

// buildEventFilters composes the shared predicates for both the upcoming
// and past sections. The time-window predicate is added per section.
func buildEventFilters(r *http.Request) *whereBuilder {
	b := &whereBuilder{}
	q := r.URL.Query()

	if name := strings.TrimSpace(q.Get("name")); name != "" {
		b.add("e.name ILIKE ?", like(name))
	}
	if start, err := utils.ParseDate(q.Get("startDate")); err == nil && start != nil {
		b.add("ed.start_time >= ?", *start)
	}
	if end, err := utils.ParseDate(q.Get("endDate")); err == nil && end != nil {
		b.add("ed.start_time <= ?", utils.EndOfDay(*end))
	}
	return b
}

func (c *EventController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := map[string]interface{}{
			"Name":               q.Get("name"),
			"StartDate":          q.Get("startDate"),
			"EndDate":            q.Get("endDate"),
			"UpcomingEvents":     []models.EventDetail{},
			"PastEvents":         []models.EventDetail{},
			"UpcomingPagination": utils.Paginate("1", 0),
			"PastPagination":     utils.Paginate("1", 0),
		}

		upcoming, upPage, err := c.listSection(db, r, true, q.Get("upcomingPage"))
		if err != nil {
			logrus.WithError(err).Error("upcoming events list failed")
			utils.FlashError(w, r, "Error loading events.")
			utils.Render(w, r, "events.html", data)
			return
		}
		past, pastPage, err := c.listSection(db, r, false, q.Get("pastPage"))
		if err != nil {
			logrus.WithError(err).Error("past events list failed")
			utils.FlashError(w, r, "Error loading events.")
			utils.Render(w, r, "events.html", data)
			return
		}

		data["UpcomingEvents"] = upcoming
		data["UpcomingPagination"] = upPage
		data["PastEvents"] = past
		data["PastPagination"] = pastPage
		utils.Render(w, r, "events.html", data)
	}
}

func (c *EventController) listSection(db *sql.DB, r *http.Request, upcoming bool, pageParam string) ([]models.EventDetail, utils.Pagination, error) {
	filters := buildEventFilters(r)
	order := "DESC"
	if upcoming {
		filters.add("ed.start_time >= now()")
		order = "ASC"
	} else {
		filters.add("ed.start_time < now()")
	}

	var total int
	countQuery := `SELECT COUNT(DISTINCT ed.event_details_id)
		FROM event_details ed
		JOIN events e ON e.event_id = ed.event_id` + filters.clause()
	if err := db.QueryRow(countQuery, filters.args...).Scan(&total); err != nil {
		return nil, utils.Pagination{}, err
	}

	page := utils.Paginate(pageParam, total)

	listFilters := filters.clone()
	listQuery := `SELECT ed.event_details_id, e.event_id, e.name, e.event_type,
		e.description, ed.start_time, ed.end_time, ed.location, ed.capacity,
		ed.registration_deadline, ed.registered_count,
		COALESCE(SUM(CASE WHEN r.attended THEN 1 ELSE 0 END), 0)
		FROM event_details ed
		JOIN events e ON e.event_id = ed.event_id
		LEFT JOIN registrations r ON r.event_details_id = ed.event_details_id` +
		listFilters.clause() +
		` GROUP BY ed.event_details_id, e.event_id
		ORDER BY ed.start_time ` + order +
		` LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

	rows, err := db.Query(listQuery, listFilters.args...)
	if err != nil {
		return nil, page, err
	}
	defer rows.Close()

	var out []models.EventDetail
	for rows.Next() {
		var d models.EventDetail
		var endTime, deadline sql.NullTime
		if err := rows.Scan(&d.EventDetailsID, &d.EventID, &d.EventName, &d.EventType,
			&d.Description, &d.StartTime, &endTime, &d.Location, &d.Capacity,
			&deadline, &d.RegisteredCount, &d.AttendedCount); err != nil {
			return nil, page, err
		}
		d.EndTime = utils.NullTimePtr(endTime)
		d.RegistrationDeadline = utils.NullTimePtr(deadline)
		out = append(out, d)
	}
	return out, page, rows.Err()
}

func (c *EventController) AddForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "event_form.html", map[string]interface{}{"Event": nil})
	}
}

type eventForm struct {
	Name     string `validate:"required"`
	Capacity int    `validate:"gte=0"`
}

// Add creates the event and its first scheduled occurrence together.
func (c *EventController) Add(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := eventForm{Name: strings.TrimSpace(r.FormValue("name"))}
		if v := strings.TrimSpace(r.FormValue("capacity")); v != "" {
			n, err := utils.StrToInt(v)
			if err != nil || n < 0 {
				utils.FlashError(w, r, "Capacity must be a non-negative number.")
				http.Redirect(w, r, "/events/add", http.StatusSeeOther)
				return
			}
			form.Capacity = n
		}
		if err := validate.Struct(form); err != nil {
			utils.FlashError(w, r, "Event name is required.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}

		start, err := utils.ParseDateTime(r.FormValue("startTime"))
		if err != nil || start == nil {
			utils.FlashError(w, r, "A valid start date/time is required.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}
		end, err := utils.ParseDateTime(r.FormValue("endTime"))
		if err != nil {
			utils.FlashError(w, r, "End date/time is invalid.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}
		deadline, err := utils.ParseDateTime(r.FormValue("deadline"))
		if err != nil {
			utils.FlashError(w, r, "Registration deadline is invalid.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("event add begin failed")
			utils.FlashError(w, r, "Error creating event.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var eventID int
		if err := tx.QueryRow(
			`INSERT INTO events (name, event_type, description)
			 VALUES ($1, $2, $3) RETURNING event_id`,
			form.Name,
			strings.TrimSpace(r.FormValue("eventType")),
			strings.TrimSpace(r.FormValue("description")),
		).Scan(&eventID); err != nil {
			logrus.WithError(err).Error("event insert failed")
			utils.FlashError(w, r, "Error creating event.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}

		if _, err := tx.Exec(
			`INSERT INTO event_details
			 (event_id, start_time, end_time, location, capacity, registration_deadline)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			eventID, *start, end, strings.TrimSpace(r.FormValue("location")),
			form.Capacity, deadline,
		); err != nil {
			logrus.WithError(err).Error("event details insert failed")
			utils.FlashError(w, r, "Error creating event.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("event add commit failed")
			utils.FlashError(w, r, "Error creating event.")
			http.Redirect(w, r, "/events/add", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Event \""+form.Name+"\" created successfully.")
		http.Redirect(w, r, "/events", http.StatusSeeOther)
	}
}

func (c *EventController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detailsID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid event id.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		var d models.EventDetail
		var endTime, deadline sql.NullTime
		err = db.QueryRow(
			`SELECT ed.event_details_id, e.event_id, e.name, e.event_type,
			        e.description, ed.start_time, ed.end_time, ed.location,
			        ed.capacity, ed.registration_deadline, ed.registered_count
			 FROM event_details ed
			 JOIN events e ON e.event_id = ed.event_id
			 WHERE ed.event_details_id = $1`, detailsID,
		).Scan(&d.EventDetailsID, &d.EventID, &d.EventName, &d.EventType,
			&d.Description, &d.StartTime, &endTime, &d.Location,
			&d.Capacity, &deadline, &d.RegisteredCount)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Event not found.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("event load failed")
			utils.FlashError(w, r, "Error loading event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		d.EndTime = utils.NullTimePtr(endTime)
		d.RegistrationDeadline = utils.NullTimePtr(deadline)

		utils.Render(w, r, "event_form.html", map[string]interface{}{"Event": d})
	}
}

// Edit updates the parent event and the occurrence in one transaction, the
// same shape the occurrence was created with.
func (c *EventController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detailsID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid event id.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		editURL := "/events/" + mux.Vars(r)["id"] + "/edit"

		name := strings.TrimSpace(r.FormValue("name"))
		if name == "" {
			utils.FlashError(w, r, "Event name is required.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		capacity := 0
		if v := strings.TrimSpace(r.FormValue("capacity")); v != "" {
			n, err := utils.StrToInt(v)
			if err != nil || n < 0 {
				utils.FlashError(w, r, "Capacity must be a non-negative number.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
			capacity = n
		}
		start, err := utils.ParseDateTime(r.FormValue("startTime"))
		if err != nil || start == nil {
			utils.FlashError(w, r, "A valid start date/time is required.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		end, err := utils.ParseDateTime(r.FormValue("endTime"))
		if err != nil {
			utils.FlashError(w, r, "End date/time is invalid.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		deadline, err := utils.ParseDateTime(r.FormValue("deadline"))
		if err != nil {
			utils.FlashError(w, r, "Registration deadline is invalid.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("event edit begin failed")
			utils.FlashError(w, r, "Error updating event.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		var eventID int
		err = tx.QueryRow(
			`SELECT event_id FROM event_details WHERE event_details_id = $1`,
			detailsID,
		).Scan(&eventID)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "Event not found.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("event edit lookup failed")
			utils.FlashError(w, r, "Error updating event.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		if _, err := tx.Exec(
			`UPDATE events SET name = $1, event_type = $2, description = $3
			 WHERE event_id = $4`,
			name, strings.TrimSpace(r.FormValue("eventType")),
			strings.TrimSpace(r.FormValue("description")), eventID,
		); err != nil {
			logrus.WithError(err).Error("event update failed")
			utils.FlashError(w, r, "Error updating event.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		if _, err := tx.Exec(
			`UPDATE event_details SET start_time = $1, end_time = $2, location = $3,
			 capacity = $4, registration_deadline = $5
			 WHERE event_details_id = $6`,
			*start, end, strings.TrimSpace(r.FormValue("location")),
			capacity, deadline, detailsID,
		); err != nil {
			logrus.WithError(err).Error("event details update failed")
			utils.FlashError(w, r, "Error updating event.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("event edit commit failed")
			utils.FlashError(w, r, "Error updating event.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Event updated successfully.")
		http.Redirect(w, r, "/events", http.StatusSeeOther)
	}
}

// Delete removes the occurrence and its registrations in one transaction.
func (c *EventController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detailsID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid event id.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("event delete begin failed")
			utils.FlashError(w, r, "Error deleting event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		defer tx.Rollback()

		if _, err := tx.Exec(
			`DELETE FROM registrations WHERE event_details_id = $1`, detailsID,
		); err != nil {
			logrus.WithError(err).Error("event registrations delete failed")
			utils.FlashError(w, r, "Error deleting event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		res, err := tx.Exec(
			`DELETE FROM event_details WHERE event_details_id = $1`, detailsID)
		if err != nil {
			logrus.WithError(err).Error("event details delete failed")
			utils.FlashError(w, r, "Error deleting event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "Event not found.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("event delete commit failed")
			utils.FlashError(w, r, "Error deleting event.")
			http.Redirect(w, r, "/events", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "Event deleted successfully.")
		http.Redirect(w, r, "/events", http.StatusSeeOther)
	}
}
