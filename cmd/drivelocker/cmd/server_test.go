package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/drivelocker/internal/config"
	"github.com/jmcleod/drivelocker/notify"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	c := config.Default()
	c.Storage = "memory"
	c.JWTSecret = strings.Repeat("k", 32)
	c.BcryptCost = 4
	return c
}

func TestAppHandler(t *testing.T) {
	c := testConfig(t)
	a, err := newApp(t.Context(), c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/user/profile")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/blobs/users%2Fnone")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenRepositoryBBolt(t *testing.T) {
	c := testConfig(t)
	c.Storage = "bbolt"
	c.DataDir = t.TempDir() + "/nested"

	repo, closeFn, err := openRepository(t.Context(), c)
	require.NoError(t, err)
	require.NotNil(t, repo)
	require.NoError(t, closeFn())
}

func TestOpenRepositoryUnknown(t *testing.T) {
	c := testConfig(t)
	c.Storage = "mongo"
	_, _, err := openRepository(t.Context(), c)
	require.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	c := testConfig(t)
	n, err := newNotifier(c, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.LogNotifier{}, n)
	assert.Contains(t, logs.String(), "no SMTP host configured")

	c.SMTPHost = "smtp.example.com"
	c.MailFrom = "no-reply@example.com"
	n, err = newNotifier(c, logger)
	require.NoError(t, err)
	assert.IsType(t, &notify.SMTPNotifier{}, n)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "drivelocker "+Version+"\n", out.String())
}
