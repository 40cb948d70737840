package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginFormCarriesFamilyToken(t *testing.T) {
	env := newTestEnv(t)
	family := env.createFamily(t, "Smiths")

	rec := env.newClient().get("/login?family=" + url.QueryEscape(family.LoginID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `value="`+family.LoginID+`"`)
	require.NotContains(t, rec.Body.String(), "Ask your family")
}

func TestLoginRedirectsToCallPage(t *testing.T) {
	env := newTestEnv(t)
	family := env.createFamily(t, "Smiths")
	cl := env.newClient()

	rec := cl.postForm("/login", url.Values{"family-id": {family.LoginID}, "display-name": {" Ann "}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/video", rec.Header().Get("Location"))
	require.NotEmpty(t, cl.cookies)

	rec = cl.get("/video")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `data-display-name="Ann"`)
	require.Contains(t, body, `data-api-root="/api/v1/"`)
	require.Contains(t, body, `data-heartbeat-ms="10000"`)
	require.Contains(t, body, `data-peer-host="peer.test"`)
}

func TestLoginHonoursLocalNextOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.newClient().postForm("/login?next=%2Fwhoami", url.Values{"display-name": {"Ann"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/whoami", rec.Header().Get("Location"))

	rec = env.newClient().postForm("/login?next=https%3A%2F%2Fevil.example", url.Values{"display-name": {"Ann"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/video", rec.Header().Get("Location"))
}

func TestLoginRerendersFormOnValidationError(t *testing.T) {
	env := newTestEnv(t)

	rec := env.newClient().postForm("/login", url.Values{"family-id": {"tok"}, "display-name": {""}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "display name is required")
	require.Contains(t, rec.Body.String(), `value="tok"`)

	rec = env.newClient().postForm("/login", url.Values{"display-name": {strings.Repeat("x", 65)}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "at most 64")
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/video", "/whoami"} {
		rec := env.newClient().get(path)
		require.Equal(t, http.StatusSeeOther, rec.Code, path)
		require.Equal(t, "/login?next="+url.QueryEscape(path), rec.Header().Get("Location"))
	}
}

func TestWhoamiShowsFamily(t *testing.T) {
	env := newTestEnv(t)
	family := env.createFamily(t, "The Smiths")
	cl := env.newClient()
	cl.login(t, family.LoginID, "Ann")

	rec := cl.get("/whoami")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "The Smiths")

	loner := env.newClient()
	loner.login(t, "", "Bob")
	rec = loner.get("/whoami")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Not part of a family")
}

func TestLogoutPageClearsSession(t *testing.T) {
	env := newTestEnv(t)
	cl := env.newClient()
	cl.login(t, "", "Ann")

	rec := cl.get("/logout")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))

	rec = cl.get("/video")
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestTamperedCookieIsTreatedAsLoggedOut(t *testing.T) {
	env := newTestEnv(t)
	cl := env.newClient()
	cl.login(t, "", "Ann")

	for _, cookie := range cl.cookies {
		cookie.Value = "x" + cookie.Value
	}

	rec := cl.get("/video")
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestHomePage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.newClient().get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Gotchu, fam")
}

func TestSafeNext(t *testing.T) {
	cases := map[string]string{
		"":                   "/video",
		"/whoami":            "/whoami",
		"/video?x=1":         "/video?x=1",
		"//evil.example":     "/video",
		"https://evil.test/": "/video",
		`/\evil.example`:     "/video",
		"whoami":             "/video",
	}
	for input, want := range cases {
		require.Equal(t, want, safeNext(input), input)
	}
}
