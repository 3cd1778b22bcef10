package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ella-rises/utils"
)

// RequireLogin redirects anonymous requests to the login page.
func RequireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !utils.CurrentUser(r).LoggedIn {
			utils.FlashError(w, r, "Please log in to access this page.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RequireManager gates manager-only routes. Non-managers land back on the
// dashboard with a permission flash; the message never depends on the
// target resource.
func RequireManager(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := utils.CurrentUser(r)
		if !u.LoggedIn {
			utils.FlashError(w, r, "Please log in to access this page.")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if !u.IsManager() {
			utils.FlashError(w, r, "You do not have permission to access that page.")
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RequestLogger tags every request with an id and logs method, path and
// duration once the handler returns.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Info("request handled")
	})
}

// canTouch reports whether the session user may mutate a row owned by
// ownerID: managers always, participants only their own rows.
func canTouch(u utils.SessionUser, ownerID int) bool {
	if u.IsManager() {
		return true
	}
	return u.ParticipantID != 0 && u.ParticipantID == ownerID
}

// guardMessage picks the flash for a missing-or-forbidden row. Managers
// see a plain not-found; everyone else gets the same permission message
// whether or not the row exists.
func guardMessage(u utils.SessionUser, missing bool, notFound, denied string) string {
	if missing && u.IsManager() {
		return notFound
	}
	return denied
}
