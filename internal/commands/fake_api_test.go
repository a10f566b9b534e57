package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

// reply is a canned answer for one "METHOD path" key.
type reply struct {
	body        string
	disposition string
	err         error
}

// fakeAPI answers Execute from a table of replies and records every request.
type fakeAPI struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []tanium.Request
	loginErr error
}

func newFakeAPI(replies map[string]reply) *fakeAPI {
	return &fakeAPI{replies: replies}
}

func (f *fakeAPI) Execute(_ context.Context, req tanium.Request) (tanium.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	r, ok := f.replies[req.Method+" "+req.Path]
	f.mu.Unlock()

	if !ok {
		return nil, &tanium.RequestError{StatusCode: http.StatusNotFound, Reason: "Not Found", Message: "Not Found"}
	}
	if r.err != nil {
		return nil, r.err
	}

	switch req.Shape {
	case tanium.ShapeBinary:
		return tanium.Binary{Body: []byte(r.body), Disposition: r.disposition, HasDisposition: r.disposition != ""}, nil
	case tanium.ShapeText:
		return tanium.Text{Body: r.body, Disposition: r.disposition, HasDisposition: r.disposition != ""}, nil
	}
	out := tanium.Structured{Body: []byte(r.body)}
	dec := json.NewDecoder(strings.NewReader(r.body))
	dec.UseNumber()
	if err := dec.Decode(&out.Value); err != nil {
		out.Value = nil
	}
	return out, nil
}

func (f *fakeAPI) Login(context.Context) error { return f.loginErr }

func (f *fakeAPI) last() tanium.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
