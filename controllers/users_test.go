package controllers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ella-rises/models"
)

// Deleting an account that no longer exists flashes a not-found message
// instead of reporting success.
func TestUserDeleteMissingRowFlashesNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users")).
		WithArgs(99).
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := postForm(loginAs(t, models.RoleManager, 0), "/users/99/delete", url.Values{})
	req = mux.SetURLVars(req, map[string]string{"id": "99"})

	rec := httptest.NewRecorder()
	(&UserController{}).Delete(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An account cannot remove itself; no delete statement may reach the
// database.
func TestUserDeleteSelfIsRejected(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	req := postForm(loginAs(t, models.RoleManager, 0), "/users/1/delete", url.Values{})
	req = mux.SetURLVars(req, map[string]string{"id": "1"})

	rec := httptest.NewRecorder()
	(&UserController{}).Delete(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/users", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, models.RoleManager, normalizeRole("manager"))
	assert.Equal(t, models.RoleParticipant, normalizeRole("participant"))
	assert.Equal(t, models.RoleParticipant, normalizeRole("admin"))
	assert.Equal(t, models.RoleParticipant, normalizeRole(""))
}
