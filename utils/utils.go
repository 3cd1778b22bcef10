package utils

import (
	"bytes"
	"database/sql"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"ella-rises/models"
)

const (
	SessionName = "ella_session"
	PageSize    = 25
)

var (
	store     *sessions.CookieStore
	templates *template.Template
)

// InitSessionStore must be called once at startup before any handler runs.
func InitSessionStore(secret []byte) {
	store = sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   24 * 60 * 60,
	}
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"datetime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
	"dateptr": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	},
	"money": func(d decimal.Decimal) string {
		return "$" + d.StringFixed(2)
	},
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
	"seq": func(n int) []int {
		s := make([]int, n)
		for i := range s {
			s[i] = i + 1
		}
		return s
	},
}

func LoadTemplates(pattern string) error {
	t, err := template.New("").Funcs(templateFuncs).ParseGlob(pattern)
	if err != nil {
		return errors.Wrap(err, "parsing view templates")
	}
	templates = t
	return nil
}

// SessionUser is the identity data the session cookie carries.
type SessionUser struct {
	LoggedIn      bool
	UserID        int
	Username      string
	Role          string
	ParticipantID int // 0 means no linked participant
}

func (u SessionUser) IsManager() bool {
	return u.LoggedIn && u.Role == models.RoleManager
}

func GetSession(r *http.Request) *sessions.Session {
	s, _ := store.Get(r, SessionName)
	return s
}

func CurrentUser(r *http.Request) SessionUser {
	s := GetSession(r)
	u := SessionUser{}
	if v, ok := s.Values["isLoggedIn"].(bool); ok {
		u.LoggedIn = v
	}
	if v, ok := s.Values["userID"].(int); ok {
		u.UserID = v
	}
	if v, ok := s.Values["username"].(string); ok {
		u.Username = v
	}
	if v, ok := s.Values["role"].(string); ok {
		u.Role = v
	}
	if v, ok := s.Values["participantID"].(int); ok {
		u.ParticipantID = v
	}
	return u
}

// SaveLogin establishes the session after a successful credential check.
// The participant link resolved at login rides along so handlers never
// re-derive it per request.
func SaveLogin(w http.ResponseWriter, r *http.Request, user models.User) error {
	s := GetSession(r)
	s.Values["isLoggedIn"] = true
	s.Values["userID"] = user.UserID
	s.Values["username"] = user.Username
	s.Values["role"] = user.Role
	if user.ParticipantID != nil {
		s.Values["participantID"] = *user.ParticipantID
	} else {
		delete(s.Values, "participantID")
	}
	return s.Save(r, w)
}

func ClearSession(w http.ResponseWriter, r *http.Request) {
	s := GetSession(r)
	s.Options.MaxAge = -1
	s.Values = map[interface{}]interface{}{}
	if err := s.Save(r, w); err != nil {
		logrus.WithError(err).Warn("failed to clear session")
	}
}

// FlashError queues a one-shot error message shown on the next render.
func FlashError(w http.ResponseWriter, r *http.Request, msg string) {
	addFlash(w, r, "error", msg)
}

func FlashSuccess(w http.ResponseWriter, r *http.Request, msg string) {
	addFlash(w, r, "success", msg)
}

func addFlash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	s := GetSession(r)
	s.AddFlash(msg, kind)
	if err := s.Save(r, w); err != nil {
		logrus.WithError(err).Warn("failed to save flash")
	}
}

// Render executes a view template with the common locals (current user,
// CSRF field, flash messages) merged in. The body is buffered so the
// session cookie can still be written after the flashes are consumed.
func Render(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	s := GetSession(r)
	if flashes := s.Flashes("error"); len(flashes) > 0 {
		if _, ok := data["ErrorMessage"]; !ok {
			data["ErrorMessage"] = flashes[0]
		}
	}
	if flashes := s.Flashes("success"); len(flashes) > 0 {
		data["SuccessMessage"] = flashes[0]
	}
	if err := s.Save(r, w); err != nil {
		logrus.WithError(err).Warn("failed to save session during render")
	}

	data["User"] = CurrentUser(r)
	data["CSRFField"] = csrf.TemplateField(r)

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		logrus.WithError(err).WithField("view", name).Error("template render failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// RenderError is the shared error page used by the CSRF handler and the
// not-found handler.
func RenderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	var buf bytes.Buffer
	data := map[string]interface{}{
		"Status":    status,
		"Message":   msg,
		"User":      CurrentUser(r),
		"CSRFField": csrf.TemplateField(r),
	}
	if err := templates.ExecuteTemplate(&buf, "error.html", data); err != nil {
		logrus.WithError(err).Error("error page render failed")
		return
	}
	buf.WriteTo(w)
}

// Pagination carries everything a list view needs. Out-of-range pages are
// clamped to the last valid page so the data query and the count query can
// never disagree about what the user sees.
type Pagination struct {
	Page       int
	PageSize   int
	Total      int
	TotalPages int
	Offset     int
}

func Paginate(pageParam string, total int) Pagination {
	page, err := strconv.Atoi(strings.TrimSpace(pageParam))
	if err != nil || page < 1 {
		page = 1
	}
	totalPages := (total + PageSize - 1) / PageSize
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return Pagination{
		Page:       page,
		PageSize:   PageSize,
		Total:      total,
		TotalPages: totalPages,
		Offset:     (page - 1) * PageSize,
	}
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }
func (p Pagination) Prev() int     { return p.Page - 1 }
func (p Pagination) Next() int     { return p.Page + 1 }

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

func ComparePasswords(hashedPassword string, password []byte) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), password)
	if err != nil {
		return false
	}
	return true
}

func StrToInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func NullStringToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func NullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

func NullInt64Ptr(ni sql.NullInt64) *int {
	if ni.Valid {
		v := int(ni.Int64)
		return &v
	}
	return nil
}

// NullableString maps an empty form field to SQL NULL.
func NullableString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

// ParseDate parses a yyyy-mm-dd form field; empty input yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseDateTime parses a datetime-local form field ("2006-01-02T15:04"),
// falling back to a plain date.
func ParseDateTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02T15:04", s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// EndOfDay turns an upper date bound into an inclusive bound.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
