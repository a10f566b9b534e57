package tanium

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTanium serves the session endpoints and routes everything else to a
// per-test handler. It counts calls per path and records the session header
// each business call carried.
type fakeTanium struct {
	mu       sync.Mutex
	calls    map[string]int
	sessions []string
	logins   int
	handler  http.HandlerFunc

	// tokenData is the "data" value returned by the current-session endpoint.
	tokenData string
}

func newFakeTanium(t *testing.T, handler http.HandlerFunc) (*fakeTanium, *httptest.Server) {
	t.Helper()
	f := &fakeTanium{calls: map[string]int{}, handler: handler, tokenData: `{"id":7}`}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTanium) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls[r.URL.Path]++
	f.mu.Unlock()

	switch r.URL.Path {
	case loginPath:
		f.mu.Lock()
		f.logins++
		n := f.logins
		f.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"data":{"session":"sess-%d"}}`, n)
		return
	case currentSessionPath:
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"data":%s}`, f.tokenData)
		return
	}

	f.mu.Lock()
	f.sessions = append(f.sessions, r.Header.Get(SessionHeader))
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeTanium) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeTanium) seenSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sessions...)
}

func newTestClient(t *testing.T, srv *httptest.Server, creds Credentials) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:     srv.URL + "/",
		Credentials: creds,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

// statusSequence replies with the given statuses in order, repeating the last.
func statusSequence(statuses ...int) http.HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		status := statuses[min(i, len(statuses)-1)]
		i++
		mu.Unlock()
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"data":"ok"}`))
		}
	}
}

func newRawServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}
