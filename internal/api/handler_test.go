package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/commands"
	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

type stubRunner struct {
	gotName commands.Name
	gotArgs commands.Args
	res     *commands.Result
	err     error
}

func (s *stubRunner) Names() []commands.Name {
	return []commands.Name{commands.GetAlert, commands.TestModule}
}

func (s *stubRunner) Run(_ context.Context, name commands.Name, args commands.Args) (*commands.Result, error) {
	s.gotName = name
	s.gotArgs = args
	return s.res, s.err
}

type stubFetcher struct {
	incs []model.Incident
	err  error
}

func (s *stubFetcher) FetchOnce(context.Context) ([]model.Incident, error) { return s.incs, s.err }

type stubLog struct {
	limit int
	incs  []model.Incident
}

func (s *stubLog) RecentIncidents(_ context.Context, _ string, limit int) ([]model.Incident, error) {
	s.limit = limit
	return s.incs, nil
}

type stubCheck struct{ err error }

func (s stubCheck) HealthCheck(context.Context) error { return s.err }

func newApp(h *Handler, checks map[string]HealthChecker) *fiber.App {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	app := fiber.New()
	RegisterRoutes(app, h, checks)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, b
}

func TestListCommands(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, nil)

	resp, body := do(t, app, http.MethodGet, "/api/v1/commands", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Commands []string `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, []string{"tanium-tr-get-alert-by-id", "test-module"}, out.Commands)
}

func TestRunCommand_PassesArgs(t *testing.T) {
	runner := &stubRunner{res: &commands.Result{Readable: "ok"}}
	app := newApp(&Handler{Commands: runner}, nil)

	resp, body := do(t, app, http.MethodPost, "/api/v1/commands/tanium-tr-get-alert-by-id", `{"alert-id":"7"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, commands.GetAlert, runner.gotName)
	assert.Equal(t, "7", runner.gotArgs["alert-id"])
	assert.Contains(t, string(body), `"readable":"ok"`)
}

func TestRunCommand_EmptyBody(t *testing.T) {
	runner := &stubRunner{res: &commands.Result{Readable: "ok"}}
	app := newApp(&Handler{Commands: runner}, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/commands/test-module", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, runner.gotArgs)
}

func TestRunCommand_BadBody(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/commands/test-module", `["x"]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunCommand_FileResult(t *testing.T) {
	runner := &stubRunner{res: &commands.Result{File: &commands.File{Name: "a.txt", Content: []byte("hello")}}}
	app := newApp(&Handler{Commands: runner}, nil)

	resp, body := do(t, app, http.MethodPost, "/api/v1/commands/tanium-tr-get-downloaded-file", `{"file-id":"1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "a.txt")
}

func TestRunCommand_ErrorStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"unknown", &commands.UnknownCommandError{Name: "nope"}, http.StatusNotFound, "unknown_command"},
		{"args", &commands.ArgumentError{Err: errors.New("alert-id is required")}, http.StatusBadRequest, "invalid_arguments"},
		{"config", &tanium.ConfigurationError{Message: "bad"}, http.StatusBadRequest, "configuration"},
		{"auth", &tanium.AuthenticationError{StatusCode: 401, Message: "denied"}, http.StatusUnauthorized, "authentication"},
		{"expired", &tanium.AuthenticationError{StatusCode: 403, SessionExpired: true}, http.StatusUnauthorized, "session_expired"},
		{"not found", &tanium.RequestError{StatusCode: 404, Message: "missing"}, http.StatusNotFound, "not_found"},
		{"bad request", &tanium.RequestError{StatusCode: 400, Message: "bad"}, http.StatusBadGateway, "request"},
		{"transport", &tanium.TransportError{Method: "GET", Path: "/x", Err: errors.New("refused")}, http.StatusBadGateway, "transport"},
		{"timeout", &tanium.TransportError{Method: "GET", Path: "/x", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "transport"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp(&Handler{Commands: &stubRunner{err: tc.err}}, nil)
			resp, body := do(t, app, http.MethodPost, "/api/v1/commands/x", "")
			assert.Equal(t, tc.code, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tc.kind, out["kind"])
			assert.Equal(t, tc.err.Error(), out["error"])
		})
	}
}

func TestFetchIncidents(t *testing.T) {
	f := &stubFetcher{incs: []model.Incident{{AlertID: 1, Name: "h found d"}}}
	app := newApp(&Handler{Commands: &stubRunner{}, Fetcher: f}, nil)

	resp, body := do(t, app, http.MethodPost, "/api/v1/incidents/fetch", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"count":1`)
}

func TestFetchIncidents_NotConfigured(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/incidents/fetch", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFetchIncidents_Error(t *testing.T) {
	f := &stubFetcher{err: &tanium.AuthenticationError{StatusCode: 401, Message: "denied"}}
	app := newApp(&Handler{Commands: &stubRunner{}, Fetcher: f}, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/incidents/fetch", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestListIncidents(t *testing.T) {
	log := &stubLog{incs: []model.Incident{{AlertID: 3}}}
	app := newApp(&Handler{Commands: &stubRunner{}, Log: log}, nil)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/incidents?limit=5", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, log.limit)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/incidents?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, map[string]HealthChecker{
		"store": stubCheck{},
		"nats":  nil,
	})
	resp, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
	assert.NotContains(t, string(body), "nats")
}

func TestHealth_Degraded(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, map[string]HealthChecker{
		"store": stubCheck{err: errors.New("redis down")},
	})
	resp, body := do(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "redis down")
}

func TestMetricsRoute(t *testing.T) {
	app := newApp(&Handler{Commands: &stubRunner{}}, nil)
	resp, _ := do(t, app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
