package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"ella-rises/models"
	"ella-rises/utils"
)

func TestRequireLoginRedirectsAnonymous(t *testing.T) {
	called := false
	h := RequireLogin(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest("GET", "/participants", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestRequireLoginPassesThrough(t *testing.T) {
	called := false
	h := RequireLogin(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, loginAs(t, models.RoleParticipant, 7))

	assert.True(t, called)
}

func TestRequireManagerBlocksParticipant(t *testing.T) {
	called := false
	h := RequireManager(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, loginAs(t, models.RoleParticipant, 7))

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestRequireManagerAllowsManager(t *testing.T) {
	called := false
	h := RequireManager(func(w http.ResponseWriter, r *http.Request) { called = true })

	rec := httptest.NewRecorder()
	h(rec, loginAs(t, models.RoleManager, 0))

	assert.True(t, called)
}

func TestCanTouch(t *testing.T) {
	manager := utils.SessionUser{LoggedIn: true, Role: models.RoleManager}
	assert.True(t, canTouch(manager, 99))

	owner := utils.SessionUser{LoggedIn: true, Role: models.RoleParticipant, ParticipantID: 7}
	assert.True(t, canTouch(owner, 7))
	assert.False(t, canTouch(owner, 8))

	unlinked := utils.SessionUser{LoggedIn: true, Role: models.RoleParticipant}
	assert.False(t, canTouch(unlinked, 0))
}
