package tanium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/httpclient"
	"github.com/Checker-Finance/tanium-adapter/internal/rate"
)

// acceptedStatuses are handed back to the classifier; everything else is
// raised by the transport as a RequestError. Used for both the first
// attempt and the post-refresh retry.
var acceptedStatuses = httpclient.StatusSet{200, 201, 202, 204, 400, 401, 403, 404}

const unauthorizedTokenHint = "Unauthorized Error: please verify that the given API token is valid and that the IP of " +
	"the client is listed in the api_token_trusted_ip_address_list global setting.\n"

// Transport sends one request and returns the response when its status is in
// accepted. *httpclient.Executor implements it.
type Transport interface {
	Send(ctx context.Context, req *http.Request, accepted httpclient.StatusSet) (*httpclient.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Credentials Credentials
	Insecure    bool
	UseProxy    bool
	Timeout     time.Duration
	Logger      *zap.Logger
	RateManager *rate.Manager
	// Transport replaces the default executor.
	Transport Transport
}

// Client is a session-aware Tanium REST client.
type Client struct {
	baseURL   string
	creds     Credentials
	logger    *zap.Logger
	transport Transport
	sessions  *SessionManager
}

// NewClient validates the options and builds a client. No network call is
// made until the first Execute.
func NewClient(opts Options) (*Client, error) {
	if err := opts.Credentials.Validate(); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, &ConfigurationError{Message: "Please provide the Tanium server URL."}
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("invalid server URL %q: %v", baseURL, err)}
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := opts.Transport
	if transport == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient := httpclient.NewHTTPClient(httpclient.ClientOptions{
			Timeout:  timeout,
			Insecure: opts.Insecure,
			UseProxy: opts.UseProxy,
		})
		transport = httpclient.New(logger, opts.RateManager, httpClient, "tanium", unacceptedStatus)
	}

	return &Client{
		baseURL:   baseURL,
		creds:     opts.Credentials,
		logger:    logger,
		transport: transport,
		sessions:  newSessionManager(baseURL, opts.Credentials, transport, logger),
	}, nil
}

// BaseURL returns the normalised server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login forces a fresh session; used as the connectivity probe.
func (c *Client) Login(ctx context.Context) error {
	return c.sessions.RefreshSession(ctx)
}

// Execute performs one logical call: ensure a session, send, and on 403
// refresh the session and resend exactly once.
func (c *Client) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := c.sessions.EnsureSession(ctx); err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusForbidden {
		c.logger.Info("tanium.session_forbidden",
			zap.String("method", req.Method),
			zap.String("path", req.Path))
		if err := c.sessions.RefreshSession(ctx); err != nil {
			return nil, err
		}
		if resp, err = c.send(ctx, req); err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusForbidden {
			return nil, &AuthenticationError{
				StatusCode:     http.StatusForbidden,
				Message:        renderBody(resp),
				SessionExpired: true,
			}
		}
	}

	if err := c.classify(resp); err != nil {
		return nil, err
	}
	return unwrap(resp, req.Shape), nil
}

func (c *Client) classify(resp *httpclient.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		msg := renderBody(resp)
		if c.creds.UsesToken() {
			msg = unauthorizedTokenHint + msg
		}
		return &AuthenticationError{StatusCode: resp.StatusCode, Message: msg}
	case http.StatusBadRequest, http.StatusNotFound:
		msg := string(resp.Body)
		if msg == "" {
			msg = resp.Reason
		}
		// Unreachable with an empty body; kept to mirror the vendor's message order.
		if msg == "" {
			msg = gjson.GetBytes(resp.Body, "text").String()
		}
		return &RequestError{StatusCode: resp.StatusCode, Reason: resp.Reason, Message: msg}
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request) (*httpclient.Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, req, c.sessions.Token())
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, httpReq, acceptedStatuses)
	if err != nil {
		return nil, transportFailure(httpReq, err)
	}
	return resp, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, session string) (*http.Request, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("tanium: bad path %q: %w", req.Path, err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("tanium: encode %s body: %w", req.Path, err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" && req.Shape == ShapeStructured {
		httpReq.Header.Set("Accept", "application/json")
	}
	httpReq.Header.Set(SessionHeader, session)
	return httpReq, nil
}

// unacceptedStatus is the executor error handler for statuses outside the
// accepted set.
func unacceptedStatus(resp *httpclient.Response) error {
	msg := fmt.Sprintf("Error in API call [%d] - %s", resp.StatusCode, resp.Reason)
	if len(resp.Body) > 0 {
		msg += "\n" + string(resp.Body)
	}
	return &RequestError{StatusCode: resp.StatusCode, Reason: resp.Reason, Message: msg}
}

// transportFailure keeps status errors as RequestError and wraps everything
// else as a TransportError.
func transportFailure(req *http.Request, err error) error {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return err
	}
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &RequestError{StatusCode: statusErr.StatusCode, Reason: statusErr.Reason, Message: statusErr.Error()}
	}
	return &TransportError{Method: req.Method, Path: req.URL.Path, Err: err}
}

// renderBody returns compact JSON when the body is JSON, the raw text otherwise.
func renderBody(resp *httpclient.Response) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, resp.Body); err == nil {
		return buf.String()
	}
	if len(resp.Body) == 0 {
		return resp.Reason
	}
	return string(resp.Body)
}

func unwrap(resp *httpclient.Response, shape ResponseShape) Outcome {
	disposition, hasDisposition := contentDisposition(resp.Header)
	switch shape {
	case ShapeText:
		return Text{Body: string(resp.Body), Disposition: disposition, HasDisposition: hasDisposition}
	case ShapeBinary:
		return Binary{Body: resp.Body, Disposition: disposition, HasDisposition: hasDisposition}
	case ShapeRaw:
		return Raw{Response: resp}
	default:
		v, ok := decodeJSON(resp.Body)
		return Structured{Value: v, Body: resp.Body, Decoded: ok}
	}
}

func contentDisposition(h http.Header) (string, bool) {
	values, ok := h[http.CanonicalHeaderKey("Content-Disposition")]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// decodeJSON keeps numbers as json.Number so large IDs survive. ok is false
// when body is not a single JSON value.
func decodeJSON(body []byte) (any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}
