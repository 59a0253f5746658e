package main

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"rentalintake/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionCookie(t *testing.T, ti *testInstance, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == ti.cfg.Session.Name {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestSessionCookieAttributes(t *testing.T) {
	ti := setupIntegrationTest(t)

	resp := ti.login(t, ti.client, "admin", "adminpass")
	c := sessionCookie(t, ti, resp)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)
	assert.NotContains(t, c.Value, "admin", "the cookie carries only a signed session id")
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	ti := setupIntegrationTest(t)
	client := noRedirect(newClient(t))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin/api/applications"},
		{http.MethodGet, "/admin/api/count"},
		{http.MethodGet, "/admin/api/templates"},
		{http.MethodPost, "/admin/api/templates"},
		{http.MethodPost, "/admin/api/application/x/status"},
		{http.MethodDelete, "/admin/api/application/x"},
		{http.MethodPost, "/admin/api/change-password"},
		{http.MethodGet, "/admin/api/failed-logins"},
		{http.MethodDelete, "/admin/api/failed-logins"},
		{http.MethodGet, "/admin/api/email-logs"},
		{http.MethodGet, "/admin/api/does-not-exist"},
		{http.MethodGet, "/uploads/anything"},
	} {
		req, err := http.NewRequest(tc.method, ti.url(tc.path), strings.NewReader("{}"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestLogoutInvalidatesServerSession(t *testing.T) {
	ti := setupIntegrationTest(t)

	resp := ti.login(t, ti.client, "admin", "adminpass")
	stolen := sessionCookie(t, ti, resp)

	out, err := noRedirect(ti.client).Get(ti.url("/admin/logout"))
	require.NoError(t, err)
	out.Body.Close()
	assert.Equal(t, http.StatusSeeOther, out.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ti.url("/admin/api/count"), nil)
	require.NoError(t, err)
	req.AddCookie(stolen)
	replay, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	replay.Body.Close()
	assert.Equal(t, http.StatusForbidden, replay.StatusCode)
}

func TestPasswordChangeRevokesOldPassword(t *testing.T) {
	ti := setupIntegrationTest(t)
	ti.login(t, ti.client, "admin", "adminpass")

	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ti.client, ti.url("/admin/api/change-password"), `{"oldPassword":"wrong","newPassword":"n3w-secret"}`))
	assert.Equal(t, http.StatusBadRequest,
		postJSON(t, ti.client, ti.url("/admin/api/change-password"), `{"oldPassword":"adminpass","newPassword":""}`))
	assert.Equal(t, http.StatusOK,
		postJSON(t, ti.client, ti.url("/admin/api/change-password"), `{"oldPassword":"adminpass","newPassword":"n3w-secret"}`))

	resp := ti.login(t, newClient(t), "admin", "adminpass")
	assert.Equal(t, "/admin/login.html?error=BadPass", resp.Header.Get("Location"))

	resp = ti.login(t, newClient(t), "admin", "n3w-secret")
	assert.Equal(t, "/admin/dashboard.html", resp.Header.Get("Location"))
}

func TestFailedLoginsAreAudited(t *testing.T) {
	ti := setupIntegrationTest(t)

	for i := 0; i < 3; i++ {
		resp := ti.login(t, newClient(t), "admin", "guess")
		assert.Equal(t, "/admin/login.html?error=BadPass", resp.Header.Get("Location"))
	}
	resp := ti.login(t, newClient(t), "mallory", "guess")
	assert.Equal(t, "/admin/login.html?error=NoUser", resp.Header.Get("Location"))

	ti.login(t, ti.client, "admin", "adminpass")

	var page models.Page[models.LoginAttempt]
	require.Equal(t, http.StatusOK, getJSON(t, ti.client, ti.url("/admin/api/failed-logins?pageSize=2"), &page))
	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "mallory", page.Items[0].Username)
	assert.Equal(t, "127.0.0.1", page.Items[0].SourceIP)
	for _, a := range page.Items {
		assert.False(t, a.Success)
	}
}

func TestSpoofedForwardedForIgnoredByDefault(t *testing.T) {
	ti := setupIntegrationTest(t)

	req, err := http.NewRequest(http.MethodPost, ti.url("/admin/login"),
		strings.NewReader(url.Values{"username": {"admin"}, "password": {"nope"}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", "203.0.113.99")
	resp, err := noRedirect(newClient(t)).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	ti.login(t, ti.client, "admin", "adminpass")
	var page models.Page[models.LoginAttempt]
	getJSON(t, ti.client, ti.url("/admin/api/failed-logins"), &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "127.0.0.1", page.Items[0].SourceIP)
}

func TestUploadNamesCannotEscapeDirectory(t *testing.T) {
	ti := setupIntegrationTest(t)
	ti.login(t, ti.client, "admin", "adminpass")

	for _, name := range []string{"..%2Fapplications.db", ".hidden", "%2E%2E"} {
		resp, err := ti.client.Get(ti.url("/uploads/" + name))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, name)
	}
}

func TestSubmissionCannotChooseStatus(t *testing.T) {
	ti := setupIntegrationTest(t)

	resp, err := http.PostForm(ti.url("/"), url.Values{
		"firstname": {"Eve"},
		"lastname":  {"Hacker"},
		"email":     {"eve@example.com"},
		"status":    {"accepted"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	apps, err := ti.app.db.QueryxContext(context.Background(), "SELECT status FROM applications")
	require.NoError(t, err)
	defer apps.Close()
	for apps.Next() {
		var status string
		require.NoError(t, apps.Scan(&status))
		assert.Equal(t, "pending", status)
	}
}
