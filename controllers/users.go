package controllers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

type UserController struct{}

// List shows login accounts with an optional username search. Manager only.
func (c *UserController) List(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := map[string]interface{}{
			"Username":   q.Get("username"),
			"Users":      []models.User{},
			"Pagination": utils.Paginate("1", 0),
		}

		filters := &whereBuilder{}
		if username := strings.TrimSpace(q.Get("username")); username != "" {
			filters.add("u.username ILIKE ?", like(username))
		}

		var total int
		countQuery := `SELECT COUNT(*) FROM users u` + filters.clause()
		if err := db.QueryRow(countQuery, filters.args...).Scan(&total); err != nil {
			logrus.WithError(err).Error("user count failed")
			utils.FlashError(w, r, "Error loading users.")
			utils.Render(w, r, "users.html", data)
			return
		}

		page := utils.Paginate(q.Get("page"), total)

		listFilters := filters.clone()
		listQuery := `SELECT u.user_id, u.username, COALESCE(u.email, ''), u.role,
			u.participant_id, u.created_at
			FROM users u` + listFilters.clause() +
			` ORDER BY u.username
			LIMIT ` + listFilters.bind(page.PageSize) + ` OFFSET ` + listFilters.bind(page.Offset)

		rows, err := db.Query(listQuery, listFilters.args...)
		if err != nil {
			logrus.WithError(err).Error("user list failed")
			utils.FlashError(w, r, "Error loading users.")
			utils.Render(w, r, "users.html", data)
			return
		}
		defer rows.Close()

		var users []models.User
		for rows.Next() {
			var u models.User
			var pid sql.NullInt64
			if err := rows.Scan(&u.UserID, &u.Username, &u.Email, &u.Role,
				&pid, &u.CreatedAt); err != nil {
				logrus.WithError(err).Error("user scan failed")
				utils.FlashError(w, r, "Error loading users.")
				utils.Render(w, r, "users.html", data)
				return
			}
			u.ParticipantID = utils.NullInt64Ptr(pid)
			users = append(users, u)
		}

		data["Users"] = users
		data["Pagination"] = page
		utils.Render(w, r, "users.html", data)
	}
}

func (c *UserController) AddForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "user_form.html", map[string]interface{}{"EditUser": nil})
	}
}

func (c *UserController) Add(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")
		role := normalizeRole(r.FormValue("role"))
		if username == "" || password == "" {
			utils.FlashError(w, r, "Username and password are required.")
			http.Redirect(w, r, "/users/add", http.StatusSeeOther)
			return
		}

		hash, err := utils.HashPassword(password)
		if err != nil {
			logrus.WithError(err).Error("password hash failed")
			utils.FlashError(w, r, "Error creating user.")
			http.Redirect(w, r, "/users/add", http.StatusSeeOther)
			return
		}

		_, err = db.Exec(
			`INSERT INTO users (username, email, password_hash, role)
			 VALUES ($1, $2, $3, $4)`,
			username, utils.NullableString(r.FormValue("email")), hash, role)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				utils.FlashError(w, r, "That username is already taken.")
				http.Redirect(w, r, "/users/add", http.StatusSeeOther)
				return
			}
			logrus.WithError(err).Error("user insert failed")
			utils.FlashError(w, r, "Error creating user.")
			http.Redirect(w, r, "/users/add", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "User \""+username+"\" created successfully.")
		http.Redirect(w, r, "/users", http.StatusSeeOther)
	}
}

func (c *UserController) EditForm(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid user id.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}

		var u models.User
		var pid sql.NullInt64
		err = db.QueryRow(
			`SELECT user_id, username, COALESCE(email, ''), role, participant_id, created_at
			 FROM users WHERE user_id = $1`, userID,
		).Scan(&u.UserID, &u.Username, &u.Email, &u.Role, &pid, &u.CreatedAt)
		if err == sql.ErrNoRows {
			utils.FlashError(w, r, "User not found.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		if err != nil {
			logrus.WithError(err).Error("user load failed")
			utils.FlashError(w, r, "Error loading user.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		u.ParticipantID = utils.NullInt64Ptr(pid)

		utils.Render(w, r, "user_form.html", map[string]interface{}{"EditUser": u})
	}
}

// Edit updates username, email, and role. The password changes only when a
// new one is supplied.
func (c *UserController) Edit(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid user id.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		editURL := "/users/" + mux.Vars(r)["id"] + "/edit"

		username := strings.TrimSpace(r.FormValue("username"))
		if username == "" {
			utils.FlashError(w, r, "Username is required.")
			http.Redirect(w, r, editURL, http.StatusSeeOther)
			return
		}
		role := normalizeRole(r.FormValue("role"))

		var res sql.Result
		if password := r.FormValue("password"); password != "" {
			hash, err := utils.HashPassword(password)
			if err != nil {
				logrus.WithError(err).Error("password hash failed")
				utils.FlashError(w, r, "Error updating user.")
				http.Redirect(w, r, editURL, http.StatusSeeOther)
				return
			}
			res, err = db.Exec(
				`UPDATE users SET username = $1, email = $2, role = $3, password_hash = $4
				 WHERE user_id = $5`,
				username, utils.NullableString(r.FormValue("email")), role, hash, userID)
			if err != nil {
				handleUserUpdateErr(w, r, err, editURL)
				return
			}
		} else {
			res, err = db.Exec(
				`UPDATE users SET username = $1, email = $2, role = $3
				 WHERE user_id = $4`,
				username, utils.NullableString(r.FormValue("email")), role, userID)
			if err != nil {
				handleUserUpdateErr(w, r, err, editURL)
				return
			}
		}

		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "User not found.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "User updated successfully.")
		http.Redirect(w, r, "/users", http.StatusSeeOther)
	}
}

func (c *UserController) Delete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := utils.StrToInt(mux.Vars(r)["id"])
		if err != nil {
			utils.FlashError(w, r, "Invalid user id.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}

		current := utils.CurrentUser(r)
		if current.UserID == userID {
			utils.FlashError(w, r, "You cannot delete your own account.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}

		res, err := db.Exec(`DELETE FROM users WHERE user_id = $1`, userID)
		if err != nil {
			logrus.WithError(err).Error("user delete failed")
			utils.FlashError(w, r, "Error deleting user.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		if n, _ := res.RowsAffected(); n == 0 {
			utils.FlashError(w, r, "User not found.")
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}

		utils.FlashSuccess(w, r, "User deleted successfully.")
		http.Redirect(w, r, "/users", http.StatusSeeOther)
	}
}

func handleUserUpdateErr(w http.ResponseWriter, r *http.Request, err error, editURL string) {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		utils.FlashError(w, r, "That username is already taken.")
		http.Redirect(w, r, editURL, http.StatusSeeOther)
		return
	}
	logrus.WithError(err).Error("user update failed")
	utils.FlashError(w, r, "Error updating user.")
	http.Redirect(w, r, editURL, http.StatusSeeOther)
}

// normalizeRole collapses any submitted value onto the two canonical roles.
func normalizeRole(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), models.RoleManager) {
		return models.RoleManager
	}
	return models.RoleParticipant
}
