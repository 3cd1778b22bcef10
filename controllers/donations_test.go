package controllers

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ella-rises/models"
)

func TestParseAmount(t *testing.T) {
	got, ok := parseAmount(" 50.004 ")
	require.True(t, ok)
	assert.Equal(t, "50.00", got.StringFixed(2))

	_, ok = parseAmount("0")
	assert.False(t, ok)
	_, ok = parseAmount("-5")
	assert.False(t, ok)
	_, ok = parseAmount("fifty")
	assert.False(t, ok)
	_, ok = parseAmount("")
	assert.False(t, ok)
}

// Editing a $50.00 donation down to $30.00 must move the owner's running
// total by exactly -20.00.
func TestDonationEditSameOwnerAdjustsByDelta(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id", "amount"}).AddRow(7, "50.00"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET")).
		WithArgs(7, "30.00", sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("-20.00", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	form := url.Values{
		"participantId": {"7"},
		"amount":        {"30.00"},
		"donationDate":  {"2026-01-15"},
	}
	req := postForm(loginAs(t, models.RoleManager, 0), "/donations/5/edit", form)
	req = mux.SetURLVars(req, map[string]string{"id": "5"})

	rec := httptest.NewRecorder()
	(&DonationController{}).Edit(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/donations", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Moving a donation to a different participant backs the old amount out of
// the old owner and credits the new amount to the new owner, locking both
// rows in ascending id order.
func TestDonationEditOwnerChangeMovesTotals(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id", "amount"}).AddRow(9, "50.00"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants")).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(9))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET")).
		WithArgs(4, "75.00", sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("-50.00", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("75.00", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	form := url.Values{
		"participantId": {"4"},
		"amount":        {"75"},
		"donationDate":  {"2026-01-15"},
	}
	req := postForm(loginAs(t, models.RoleManager, 0), "/donations/5/edit", form)
	req = mux.SetURLVars(req, map[string]string{"id": "5"})

	rec := httptest.NewRecorder()
	(&DonationController{}).Edit(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Deleting a donation backs its full amount out of the owner's total.
func TestDonationDeleteDecrementsTotal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id", "amount"}).AddRow(7, "50.00"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("-50.00", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM donations")).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	req := postForm(loginAs(t, models.RoleManager, 0), "/donations/5/delete", url.Values{})
	req = mux.SetURLVars(req, map[string]string{"id": "5"})

	rec := httptest.NewRecorder()
	(&DonationController{}).Delete(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A donation from an unknown email creates the participant record and
// credits the new row's total in the same transaction.
func TestDonationCreateFindsOrCreatesParticipant(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("LOWER(email) = LOWER($1)")).
		WithArgs("jane.doe@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO participants")).
		WithArgs("Jane", "Doe", "jane.doe@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO donations")).
		WithArgs(42, "50.00", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("50.00", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	form := url.Values{
		"firstName": {"Jane"},
		"lastName":  {"Doe"},
		"email":     {"jane.doe@example.com"},
		"amount":    {"50.00"},
	}
	req := postForm(httptest.NewRequest("GET", "/", nil), "/donations/new", form)

	rec := httptest.NewRecorder()
	(&DonationController{}).Create(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A non-positive amount must be rejected before any write happens.
func TestDonationCreateRejectsBadAmount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	form := url.Values{
		"firstName": {"Jane"},
		"lastName":  {"Doe"},
		"email":     {"jane.doe@example.com"},
		"amount":    {"-10"},
	}
	req := postForm(httptest.NewRequest("GET", "/", nil), "/donations/new", form)

	rec := httptest.NewRecorder()
	(&DonationController{}).Create(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/donations/new", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Deleting an id that no longer exists rolls the transaction back and
// lands on the list with a flash instead of failing.
func TestDonationDeleteMissingRowFlashesNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations")).
		WithArgs(99).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	req := postForm(loginAs(t, models.RoleManager, 0), "/donations/99/delete", url.Values{})
	req = mux.SetURLVars(req, map[string]string{"id": "99"})

	rec := httptest.NewRecorder()
	(&DonationController{}).Delete(db)(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/donations", rec.Header().Get("Location"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A donation recorded through the manager form comes back intact from
// loadDonation.
func TestDonationAddThenLoadRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM participants")).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO donations")).
		WithArgs(7, "25.00", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(regexp.QuoteMeta("total_donations = total_donations + $1")).
		WithArgs("25.00", 7).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	form := url.Values{
		"participantId": {"7"},
		"amount":        {"25.00"},
		"donationDate":  {"2026-02-01"},
	}
	req := postForm(loginAs(t, models.RoleManager, 0), "/donations/add", form)

	rec := httptest.NewRecorder()
	(&DonationController{}).Add(db)(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/donations", rec.Header().Get("Location"))

	donated := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE d.donation_id = $1")).
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{
			"donation_id", "participant_id", "amount", "donation_date",
			"created_at", "name", "email",
		}).AddRow(11, 7, "25.00", donated, time.Now(), "Jane Doe", "jane.doe@example.com"))

	d, err := loadDonation(db, 11)
	require.NoError(t, err)
	assert.Equal(t, 11, d.DonationID)
	assert.Equal(t, 7, d.ParticipantID)
	assert.Equal(t, "25.00", d.Amount.StringFixed(2))
	assert.True(t, d.DonationDate.Equal(donated))
	assert.Equal(t, "Jane Doe", d.ParticipantName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
