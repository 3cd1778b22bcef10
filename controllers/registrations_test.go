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

func registerRequest(t *testing.T, participantID int) *http.Request {
	t.Helper()
	req := postForm(loginAs(t, models.RoleParticipant, participantID), "/events/3/register", url.Values{})
	return mux.SetURLVars(req, map[string]string{"id": "3"})
}

func TestRegisterHappyPath(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_details")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"capacity", "registered_count", "registration_deadline"}).
			AddRow(10, 5, nil))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FROM registrations")).
		WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registrations")).
		WithArgs(7, 3, models.RegistrationStatusRegistered).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("registered_count = registered_count + 1")).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := httptest.NewRecorder()
	(&RegistrationController{}).Register(db)(rec, registerRequest(t, 7))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/events", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsFullEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_details")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"capacity", "registered_count", "registration_deadline"}).
			AddRow(10, 10, nil))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FROM registrations")).
		WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	rec := httptest.NewRecorder()
	(&RegistrationController{}).Register(db)(rec, registerRequest(t, 7))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM event_details")).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(
			[]string{"capacity", "registered_count", "registration_deadline"}).
			AddRow(10, 5, nil))
	mock.ExpectQuery(regexp.QuoteMeta("COUNT(*) FROM registrations")).
		WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	rec := httptest.NewRecorder()
	(&RegistrationController{}).Register(db)(rec, registerRequest(t, 7))

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterRequiresLinkedParticipant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	req := postForm(loginAs(t, models.RoleParticipant, 0), "/events/3/register", url.Values{})
	req = mux.SetURLVars(req, map[string]string{"id": "3"})

	rec := httptest.NewRecorder()
	(&RegistrationController{}).Register(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
