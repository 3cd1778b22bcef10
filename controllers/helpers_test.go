package controllers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"ella-rises/models"
	"ella-rises/utils"
)

func TestMain(m *testing.M) {
	utils.InitSessionStore([]byte("test-session-secret"))
	os.Exit(m.Run())
}

// loginAs builds a request carrying a session cookie for the given role.
// participantID 0 means the account has no linked participant record.
func loginAs(t *testing.T, role string, participantID int) *http.Request {
	t.Helper()

	seed := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	u := models.User{UserID: 1, Username: "tester", Role: role}
	if participantID != 0 {
		u.ParticipantID = &participantID
	}
	require.NoError(t, utils.SaveLogin(rec, seed, u))

	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

// postForm turns a logged-in request into a form POST on the given path.
func postForm(base *http.Request, path string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range base.Cookies() {
		req.AddCookie(c)
	}
	return req
}
