package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thornhill6305/zui/internal/config"
	"github.com/thornhill6305/zui/internal/session"
)

func TestWebStart(t *testing.T) {
	ta := newTestApp(t, nil)

	require.Equal(t, 0, ta.handleWeb([]string{"start"}), ta.errOut.String())
	assert.Equal(t, "Web server started on http://127.0.0.1:3030\n", ta.out.String())
	assert.Equal(t,
		"/usr/local/bin/zui --config "+shellQuote(ta.store.Path())+" serve",
		ta.mock.Command(session.WebSessionName))

	ta.out.Reset()
	require.Equal(t, 0, ta.handleWeb([]string{"start"}))
	assert.Equal(t, "Web server already running\n", ta.out.String())
	assert.Len(t, ta.mock.Created(), 1)
}

func TestWebStartListenOverride(t *testing.T) {
	ta := newTestApp(t, nil)

	require.Equal(t, 0, ta.handleWeb([]string{"start", "--listen", "0.0.0.0:9000"}), ta.errOut.String())
	assert.Contains(t, ta.mock.Command(session.WebSessionName), "serve --listen 0.0.0.0:9000")
	assert.Equal(t, "Web server started on http://0.0.0.0:9000\n", ta.out.String())
}

func TestWebStartFailures(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.mock.SetCreateError(errors.New("no server"))
	assert.Equal(t, 1, ta.handleWeb([]string{"start"}))
	assert.Contains(t, ta.errOut.String(), "failed to start web server")

	ta = newTestApp(t, nil)
	ta.executable = func() (string, error) { return "", errors.New("no exe") }
	assert.Equal(t, 1, ta.handleWeb([]string{"start"}))
	assert.Contains(t, ta.errOut.String(), "locate zui binary")
}

func TestWebStopAndStatus(t *testing.T) {
	ta := newTestApp(t, nil)

	assert.Equal(t, 1, ta.handleWeb([]string{"status"}))
	assert.Equal(t, "Web server not running\n", ta.out.String())

	ta.out.Reset()
	require.Equal(t, 0, ta.handleWeb([]string{"start"}))
	ta.out.Reset()
	assert.Equal(t, 0, ta.handleWeb([]string{"status"}))
	assert.Equal(t, "Web server running on http://127.0.0.1:3030\n", ta.out.String())

	ta.out.Reset()
	require.Equal(t, 0, ta.handleWeb([]string{"stop"}))
	assert.Equal(t, "Web server stopped\n", ta.out.String())
	assert.Empty(t, ta.mock.Names())

	ta.out.Reset()
	require.Equal(t, 0, ta.handleWeb([]string{"stop"}))
	assert.Equal(t, "Web server not running\n", ta.out.String())
}

func TestWebUsage(t *testing.T) {
	ta := newTestApp(t, nil)
	assert.Equal(t, 2, ta.handleWeb(nil))
	assert.Equal(t, 2, ta.handleWeb([]string{"restart"}))
	assert.Contains(t, ta.errOut.String(), "Unknown web command: restart")
}

func TestBuildWebServerServesSessions(t *testing.T) {
	ta := newTestApp(t, nil)
	ta.addSessions("api-main")

	srv := ta.buildWebServer(webFlags{listenAddr: "127.0.0.1:0", token: "s3cret"})
	assert.Equal(t, "127.0.0.1:0", srv.Addr())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"api-main"`)
}

func TestBuildWebServerFollowsReloadedToken(t *testing.T) {
	cfg := config.Default()
	cfg.Web.Token = "old"
	ta := newTestApp(t, cfg)
	ta.addSessions("api-main")
	srv := ta.buildWebServer(webFlags{listenAddr: "127.0.0.1:0", liveToken: true})

	status := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.RemoteAddr = "127.0.0.1:5555"
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, status("old"))

	edited := config.Default()
	edited.Web.Token = "new"
	require.NoError(t, config.Save(edited, ta.store.Path()))
	_, err := ta.store.Reload()
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, status("old"))
	assert.Equal(t, http.StatusOK, status("new"))
}
