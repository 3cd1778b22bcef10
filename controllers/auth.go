package controllers

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"ella-rises/models"
	"ella-rises/utils"
)

var validate = validator.New()

type AuthController struct{}

func (c *AuthController) Landing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "landing.html", nil)
	}
}

func (c *AuthController) LoginForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if utils.CurrentUser(r).LoggedIn {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}
		utils.Render(w, r, "login.html", nil)
	}
}

// Login checks credentials and establishes the session. The failure message
// is identical whether the username is unknown or the password is wrong.
func (c *AuthController) Login(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username := strings.TrimSpace(r.FormValue("username"))
		password := r.FormValue("password")

		if username == "" || password == "" {
			utils.Render(w, r, "login.html", map[string]interface{}{
				"ErrorMessage": "Username and password are required.",
			})
			return
		}

		var user models.User
		var participantID sql.NullInt64
		err := db.QueryRow(
			`SELECT user_id, username, email, password_hash, role, participant_id
			 FROM users WHERE username = $1`, username,
		).Scan(&user.UserID, &user.Username, &user.Email, &user.PasswordHash, &user.Role, &participantID)
		if err == sql.ErrNoRows {
			utils.Render(w, r, "login.html", map[string]interface{}{
				"ErrorMessage": "Invalid username or password.",
			})
			return
		}
		if err != nil {
			logrus.WithError(err).Error("login lookup failed")
			utils.Render(w, r, "login.html", map[string]interface{}{
				"ErrorMessage": "Error during login. Please try again.",
			})
			return
		}

		if !utils.ComparePasswords(user.PasswordHash, []byte(password)) {
			utils.Render(w, r, "login.html", map[string]interface{}{
				"ErrorMessage": "Invalid username or password.",
			})
			return
		}

		user.ParticipantID = utils.NullInt64Ptr(participantID)

		// Link the account to its participant record once, at login, by
		// exact email match. The result is persisted so this lookup never
		// runs again for this account.
		if user.ParticipantID == nil && user.Email != "" {
			var pid int
			err := db.QueryRow(
				`SELECT participant_id FROM participants
				 WHERE LOWER(email) = LOWER($1)
				 ORDER BY participant_id LIMIT 1`, user.Email,
			).Scan(&pid)
			switch err {
			case nil:
				if _, err := db.Exec(
					`UPDATE users SET participant_id = $1 WHERE user_id = $2`,
					pid, user.UserID,
				); err != nil {
					logrus.WithError(err).Warn("failed to persist participant link")
				}
				user.ParticipantID = &pid
			case sql.ErrNoRows:
				// No linked participant; the user simply has no domain data.
			default:
				logrus.WithError(err).Warn("participant link lookup failed")
			}
		}

		if err := utils.SaveLogin(w, r, user); err != nil {
			logrus.WithError(err).Error("failed to save session")
			utils.Render(w, r, "login.html", map[string]interface{}{
				"ErrorMessage": "Error during login. Please try again.",
			})
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}

func (c *AuthController) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.ClearSession(w, r)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (c *AuthController) SignupForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.Render(w, r, "signup.html", nil)
	}
}

type signupForm struct {
	Username  string `validate:"required,min=3,max=64"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8"`
	FirstName string `validate:"required"`
	LastName  string `validate:"required"`
	Phone     string `validate:"omitempty,max=20"`
}

// Signup creates the login account and its participant record together, so
// the participant link never has to be re-derived later.
func (c *AuthController) Signup(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form := signupForm{
			Username:  strings.TrimSpace(r.FormValue("username")),
			Email:     strings.TrimSpace(r.FormValue("email")),
			Password:  r.FormValue("password"),
			FirstName: strings.TrimSpace(r.FormValue("firstName")),
			LastName:  strings.TrimSpace(r.FormValue("lastName")),
			Phone:     strings.TrimSpace(r.FormValue("phone")),
		}

		if err := validate.Struct(form); err != nil {
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Please fill in username, email, password (8+ characters), first and last name.",
				"Form":         form,
			})
			return
		}

		hash, err := utils.HashPassword(form.Password)
		if err != nil {
			logrus.WithError(err).Error("password hash failed")
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Error creating your account. Please try again.",
				"Form":         form,
			})
			return
		}

		tx, err := db.Begin()
		if err != nil {
			logrus.WithError(err).Error("signup begin failed")
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Error creating your account. Please try again.",
				"Form":         form,
			})
			return
		}
		defer tx.Rollback()

		var participantID int
		// Reuse an existing participant record with this email (created by
		// the donation flow, for example) instead of inserting a duplicate.
		err = tx.QueryRow(
			`SELECT participant_id FROM participants
			 WHERE LOWER(email) = LOWER($1)
			 ORDER BY participant_id LIMIT 1`, form.Email,
		).Scan(&participantID)
		if err == sql.ErrNoRows {
			err = tx.QueryRow(
				`INSERT INTO participants (email, first_name, last_name, phone)
				 VALUES ($1, $2, $3, $4)
				 RETURNING participant_id`,
				form.Email, form.FirstName, form.LastName, form.Phone,
			).Scan(&participantID)
		}
		if err != nil {
			logrus.WithError(err).Error("signup participant insert failed")
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Error creating your account. Please try again.",
				"Form":         form,
			})
			return
		}

		var user models.User
		err = tx.QueryRow(
			`INSERT INTO users (username, email, password_hash, role, participant_id)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING user_id`,
			form.Username, form.Email, hash, models.RoleParticipant, participantID,
		).Scan(&user.UserID)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				utils.Render(w, r, "signup.html", map[string]interface{}{
					"ErrorMessage": "That username is already taken.",
					"Form":         form,
				})
				return
			}
			logrus.WithError(err).Error("signup user insert failed")
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Error creating your account. Please try again.",
				"Form":         form,
			})
			return
		}

		if err := tx.Commit(); err != nil {
			logrus.WithError(err).Error("signup commit failed")
			utils.Render(w, r, "signup.html", map[string]interface{}{
				"ErrorMessage": "Error creating your account. Please try again.",
				"Form":         form,
			})
			return
		}

		user.Username = form.Username
		user.Email = form.Email
		user.Role = models.RoleParticipant
		user.ParticipantID = &participantID

		if err := utils.SaveLogin(w, r, user); err != nil {
			logrus.WithError(err).Error("failed to save session after signup")
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		utils.FlashSuccess(w, r, "Welcome, "+form.FirstName+"! Your account is ready.")
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	}
}
