package tanium

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/httpclient"
)

const alertsPath = "/plugin/products/detect3/api/v1/alerts"

var basic = BasicCredentials("admin", "pw")

// ─── Construction ─────────────────────────────────────────────────────────────

func TestNewClient_CredentialVariants(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr string
	}{
		{"basic", basic, ""},
		{"token", TokenCredentials("tok"), ""},
		{"both", Credentials{Username: "u", Password: "p", APIToken: "t"}, "Please clear either the Credentials or the API Token fields."},
		{"neither", Credentials{}, "Please provide either an API Token or Username & Password."},
		{"username only", Credentials{Username: "u"}, "Please provide either an API Token or Username & Password."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewClient(Options{BaseURL: "https://tanium.example.com", Credentials: tc.creds})
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsConfiguration(err))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Options{Credentials: basic})
	assert.True(t, IsConfiguration(err))

	c, err := NewClient(Options{BaseURL: " https://t.example.com/// ", Credentials: basic})
	require.NoError(t, err)
	assert.Equal(t, "https://t.example.com", c.BaseURL())
}

func TestNewClient_MakesNoNetworkCall(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	c := newTestClient(t, srv, basic)
	assert.Equal(t, 0, f.count(loginPath))
	assert.Equal(t, 0, f.count(currentSessionPath))
	assert.Equal(t, 0, f.count(alertsPath))

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.NoError(t, err)
	assert.Equal(t, 1, f.count(loginPath))
	assert.Equal(t, 0, f.count(currentSessionPath))
	assert.Equal(t, 1, f.count(alertsPath))
	// the business call carried the session the single login produced
	assert.Equal(t, []string{"sess-1"}, f.seenSessions())
}

// ─── Session header ───────────────────────────────────────────────────────────

func TestExecute_AttachesSessionHeader(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{
		Method: http.MethodGet,
		Path:   alertsPath,
		Header: http.Header{"Session": []string{"caller-value"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-1"}, f.seenSessions())
}

func TestExecute_SessionReusedAcrossCalls(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, srv, basic)

	for i := 0; i < 3; i++ {
		_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.count(loginPath))
	assert.Equal(t, []string{"sess-1", "sess-1", "sess-1"}, f.seenSessions())
}

func TestExecute_ConcurrentCallersLoginOnce(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, srv, basic)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.count(loginPath))
}

// ─── Token credentials ────────────────────────────────────────────────────────

func TestExecute_TokenIsValidatedThenUsedAsSession(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":1}]}`))
	})
	c := newTestClient(t, srv, TokenCredentials("tok"))

	out, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.NoError(t, err)

	assert.Equal(t, 1, f.count(currentSessionPath))
	assert.Equal(t, 0, f.count(loginPath))
	assert.Equal(t, []string{"tok"}, f.seenSessions())

	s, ok := out.(Structured)
	require.True(t, ok)
	assert.NotNil(t, s.Value)
}

func TestExecute_TokenRejectedWhenDataFalsy(t *testing.T) {
	for _, data := range []string{`null`, `false`, `{}`, `[]`, `""`, `0`} {
		t.Run(data, func(t *testing.T) {
			f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("business endpoint must not be called")
			})
			f.tokenData = data
			c := newTestClient(t, srv, TokenCredentials("tok"))

			_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
			require.Error(t, err)
			assert.True(t, IsAuthentication(err))
			assert.Contains(t, err.Error(), "api token was not accepted")
		})
	}
}

func TestLogin_Non200IsAuthenticationError(t *testing.T) {
	srv := newRawServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"text":"bad credentials"}`))
	})
	c := newTestClient(t, srv, basic)

	err := c.Login(context.Background())
	require.Error(t, err)
	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestLogin_MissingSessionField(t *testing.T) {
	srv := newRawServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})
	c := newTestClient(t, srv, basic)
	assert.True(t, IsAuthentication(c.Login(context.Background())))
}

func TestLogin_SendsCredentialsAsJSONBody(t *testing.T) {
	var got map[string]string
	srv := newRawServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, loginPath, r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":{"session":"abc"}}`))
	})
	c := newTestClient(t, srv, basic)

	require.NoError(t, c.Login(context.Background()))
	assert.Equal(t, map[string]string{"username": "admin", "password": "pw"}, got)
	assert.Equal(t, "abc", c.sessions.Token())
}

// ─── 401 ──────────────────────────────────────────────────────────────────────

func TestExecute_401IsTerminal(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"text": "not allowed"}`))
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)
	assert.True(t, IsAuthentication(err))
	assert.Equal(t, `{"text":"not allowed"}`, err.Error())
	assert.Equal(t, 1, f.count(alertsPath), "no retry on 401")
	assert.Equal(t, 1, f.count(loginPath), "no refresh on 401")
}

func TestExecute_401WithTokenAddsAllowListHint(t *testing.T) {
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`denied`))
	})
	c := newTestClient(t, srv, TokenCredentials("tok"))

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)
	assert.Equal(t, unauthorizedTokenHint+"denied", err.Error())
}

// ─── 403 refresh and retry ────────────────────────────────────────────────────

func TestExecute_403RefreshesAndRetriesOnce(t *testing.T) {
	f, srv := newFakeTanium(t, statusSequence(http.StatusForbidden, http.StatusOK))
	c := newTestClient(t, srv, basic)

	out, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.NoError(t, err)

	assert.Equal(t, 2, f.count(alertsPath))
	assert.Equal(t, 2, f.count(loginPath))
	assert.Equal(t, []string{"sess-1", "sess-2"}, f.seenSessions())
	assert.Equal(t, map[string]any{"data": "ok"}, out.(Structured).Value)
}

func TestExecute_Second403IsSessionExpired(t *testing.T) {
	f, srv := newFakeTanium(t, statusSequence(http.StatusForbidden))
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)

	var authErr *AuthenticationError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, authErr.SessionExpired)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)
	assert.Equal(t, 2, f.count(alertsPath), "exactly one retry")
}

func TestExecute_403ThenNotFoundClassifiedNormally(t *testing.T) {
	f, srv := newFakeTanium(t, statusSequence(http.StatusForbidden, http.StatusNotFound))
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 2, f.count(alertsPath))
}

func TestExecute_403RetryResendsBody(t *testing.T) {
	var bodies []string
	var mu sync.Mutex
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		_ = json.NewDecoder(r.Body).Decode(&v)
		mu.Lock()
		defer mu.Unlock()
		bodies = append(bodies, v["path"].(string))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/plugin/products/threat-response/api/v1/conns/c1/file",
		JSON:   map[string]string{"path": `C:\evil.exe`},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{`C:\evil.exe`, `C:\evil.exe`}, bodies)
}

// ─── 400 / 404 ────────────────────────────────────────────────────────────────

func TestExecute_RequestErrorMessagePriority(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"body wins", http.StatusNotFound, "intel doc not found", "intel doc not found"},
		{"reason when empty", http.StatusBadRequest, "", "Bad Request"},
		{"reason for 404", http.StatusNotFound, "", "Not Found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			c := newTestClient(t, srv, basic)

			_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
			require.Error(t, err)
			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tc.status, reqErr.StatusCode)
			assert.Equal(t, tc.want, reqErr.Message)
		})
	}
}

func TestExecute_UnacceptedStatusRaisedByTransport(t *testing.T) {
	f, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)
	assert.True(t, IsRequest(err))
	assert.Equal(t, "Error in API call [500] - Internal Server Error", err.Error())
	assert.Equal(t, 1, f.count(alertsPath))
}

// ─── Unwrapping ───────────────────────────────────────────────────────────────

func TestExecute_ShapesUnwrap(t *testing.T) {
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/html":
			_, _ = w.Write([]byte(`<html>`))
		case "/null":
			_, _ = w.Write([]byte(`null`))
		case "/file":
			w.Header().Set("Content-Disposition", "attachment; filename=evil.exe")
			_, _ = w.Write([]byte{0x4d, 0x5a})
		default:
			_, _ = w.Write([]byte(`hello`))
		}
	})
	c := newTestClient(t, srv, basic)
	ctx := context.Background()

	out, err := c.Execute(ctx, Request{Method: http.MethodGet, Path: "/html"})
	require.NoError(t, err)
	s := out.(Structured)
	assert.False(t, s.Decoded)
	assert.Nil(t, s.Value)
	assert.Equal(t, []byte(`<html>`), s.Body)

	out, err = c.Execute(ctx, Request{Method: http.MethodGet, Path: "/null"})
	require.NoError(t, err)
	s = out.(Structured)
	assert.True(t, s.Decoded)
	assert.Nil(t, s.Value)
	assert.Equal(t, []byte(`null`), s.Body)

	out, err = c.Execute(ctx, Request{Method: http.MethodGet, Path: "/file", Shape: ShapeBinary})
	require.NoError(t, err)
	b := out.(Binary)
	assert.Equal(t, []byte{0x4d, 0x5a}, b.Body)
	assert.True(t, b.HasDisposition)
	assert.Equal(t, "attachment; filename=evil.exe", b.Disposition)

	out, err = c.Execute(ctx, Request{Method: http.MethodGet, Path: "/text", Shape: ShapeText})
	require.NoError(t, err)
	txt := out.(Text)
	assert.Equal(t, "hello", txt.Body)
	assert.False(t, txt.HasDisposition)

	out, err = c.Execute(ctx, Request{Method: http.MethodGet, Path: "/text", Shape: ShapeRaw})
	require.NoError(t, err)
	raw := out.(Raw)
	assert.Equal(t, http.StatusOK, raw.Response.StatusCode)
	assert.Equal(t, ShapeRaw, raw.Shape())
}

func TestExecute_StructuredKeepsLargeIDs(t *testing.T) {
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id": 9007199254740993}`))
	})
	c := newTestClient(t, srv, basic)

	out, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.NoError(t, err)
	m := out.(Structured).Value.(map[string]any)
	assert.Equal(t, json.Number("9007199254740993"), m["id"])
}

// ─── Request building ─────────────────────────────────────────────────────────

func TestExecute_QueryAndRawBody(t *testing.T) {
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"unresolved", "inprogress"}, r.URL.Query()["state"])
		assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
		assert.Equal(t, "filename=file.ioc", r.Header.Get("Content-Disposition"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":3}`))
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "plugin/products/detect3/api/v1/intels",
		Query:  url.Values{"state": {"unresolved", "inprogress"}},
		Body:   []byte("<ioc/>"),
		Header: http.Header{
			"Content-Type":        {"application/xml"},
			"Content-Disposition": {"filename=file.ioc"},
		},
	})
	require.NoError(t, err)
}

func TestExecute_EscapedPathPreserved(t *testing.T) {
	_, srv := newFakeTanium(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conns/c1/file/list/C%3A%2FWindows", r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{}`))
	})
	c := newTestClient(t, srv, basic)

	_, err := c.Execute(context.Background(), Request{Method: http.MethodGet, Path: "/conns/c1/file/list/C%3A%2FWindows"})
	require.NoError(t, err)
}

func TestExecute_RejectsInvalidRequests(t *testing.T) {
	c, err := NewClient(Options{BaseURL: "https://t.example.com", Credentials: basic})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), Request{Method: http.MethodPatch, Path: "/x"})
	assert.True(t, IsConfiguration(err))

	_, err = c.Execute(context.Background(), Request{Method: http.MethodPost, Path: "/x", JSON: 1, Body: []byte("x")})
	assert.Error(t, err)
}

// ─── Transport failures ───────────────────────────────────────────────────────

type transportFunc func(ctx context.Context, req *http.Request, accepted httpclient.StatusSet) (*httpclient.Response, error)

func (f transportFunc) Send(ctx context.Context, req *http.Request, accepted httpclient.StatusSet) (*httpclient.Response, error) {
	return f(ctx, req, accepted)
}

func TestExecute_TransportErrorPropagates(t *testing.T) {
	boom := errors.New("dial tcp: connection refused")
	c, err := NewClient(Options{
		BaseURL:     "https://t.example.com",
		Credentials: basic,
		Logger:      zap.NewNop(),
		Transport: transportFunc(func(context.Context, *http.Request, httpclient.StatusSet) (*httpclient.Response, error) {
			return nil, boom
		}),
	})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), Request{Method: http.MethodGet, Path: alertsPath})
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.ErrorIs(t, err, boom)
}

func TestExecute_SessionCallsAcceptOnly200(t *testing.T) {
	var sets []httpclient.StatusSet
	c, err := NewClient(Options{
		BaseURL:     "https://t.example.com",
		Credentials: basic,
		Transport: transportFunc(func(_ context.Context, req *http.Request, accepted httpclient.StatusSet) (*httpclient.Response, error) {
			sets = append(sets, accepted)
			if req.URL.Path == loginPath {
				return &httpclient.Response{StatusCode: 200, Body: []byte(`{"data":{"session":"s"}}`)}, nil
			}
			return &httpclient.Response{StatusCode: 204, Header: http.Header{}}, nil
		}),
	})
	require.NoError(t, err)

	_, err = c.Execute(context.Background(), Request{Method: http.MethodDelete, Path: "/x"})
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, httpclient.StatusSet{http.StatusOK}, sets[0])
	assert.Equal(t, acceptedStatuses, sets[1])
}
