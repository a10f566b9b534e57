package tanium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/httpclient"
	"github.com/Checker-Finance/tanium-adapter/internal/metrics"
	"github.com/Checker-Finance/tanium-adapter/pkg/utils"
)

const (
	// SessionHeader carries the session token on every Tanium call.
	SessionHeader = "session"

	currentSessionPath = "/api/v2/session/current"
	loginPath          = "/api/v2/session/login"
)

// SessionManager owns the session token of one client. The mutex covers the
// whole check-obtain-store sequence so concurrent callers log in once.
type SessionManager struct {
	mu        sync.Mutex
	token     string
	creds     Credentials
	baseURL   string
	transport Transport
	logger    *zap.Logger
}

func newSessionManager(baseURL string, creds Credentials, transport Transport, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		creds:     creds,
		baseURL:   baseURL,
		transport: transport,
		logger:    logger,
	}
}

// Token returns the cached session, or "" before the first login.
func (m *SessionManager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// EnsureSession obtains a session unless one is cached.
func (m *SessionManager) EnsureSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" {
		return nil
	}
	return m.obtainLocked(ctx, "initial")
}

// RefreshSession unconditionally obtains a new session and replaces the cached one.
func (m *SessionManager) RefreshSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.obtainLocked(ctx, "refresh")
}

func (m *SessionManager) obtainLocked(ctx context.Context, reason string) error {
	var (
		token string
		err   error
		mode  string
	)
	switch {
	case m.creds.UsesToken():
		mode = "token"
		token, err = m.validateToken(ctx)
	case m.creds.hasBasic():
		mode = "basic"
		token, err = m.login(ctx)
	default:
		return &ConfigurationError{Message: "Please provide either an API Token or Username & Password."}
	}
	if err != nil {
		m.logger.Warn("tanium.session_failed",
			zap.String("auth", mode),
			zap.String("reason", reason),
			zap.Error(err))
		return err
	}

	m.token = token
	metrics.IncSessionRefresh(reason)
	m.logger.Info("tanium.session_refreshed",
		zap.String("auth", mode),
		zap.String("reason", reason),
		zap.String("session", utils.MaskSecret(token)))
	return nil
}

// validateToken checks the API token against the current-session endpoint;
// the token itself is then used as the session.
func (m *SessionManager) validateToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+currentSessionPath, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set(SessionHeader, m.creds.APIToken)

	body, err := m.send(ctx, req)
	if err != nil {
		return "", err
	}
	if !truthy(gjson.GetBytes(body, "data")) {
		return "", &AuthenticationError{StatusCode: http.StatusOK, Message: "api token was not accepted"}
	}
	return m.creds.APIToken, nil
}

// login exchanges username/password for a session. Tanium expects the
// credentials as a JSON body on a GET.
func (m *SessionManager) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": m.creds.Username,
		"password": m.creds.Password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+loginPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := m.send(ctx, req)
	if err != nil {
		return "", err
	}
	session := gjson.GetBytes(body, "data.session").String()
	if session == "" {
		return "", &AuthenticationError{StatusCode: http.StatusOK, Message: "login response did not contain a session"}
	}
	return session, nil
}

// send accepts 200 only; any other status becomes an AuthenticationError
// carrying the provider text.
func (m *SessionManager) send(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := m.transport.Send(ctx, req, httpclient.StatusSet{http.StatusOK})
	if err == nil {
		return resp.Body, nil
	}
	err = transportFailure(req, err)
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return nil, &AuthenticationError{StatusCode: reqErr.StatusCode, Message: reqErr.Message}
	}
	return nil, err
}

// truthy mirrors how the console reports an accepted token: any non-empty,
// non-zero, non-false value.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		return len(r.Map()) > 0
	}
	return false
}
