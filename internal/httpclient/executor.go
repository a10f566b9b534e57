package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/metrics"
	"github.com/Checker-Finance/tanium-adapter/internal/rate"
)

// StatusSet lists the HTTP statuses a caller wants handed back instead of
// raised. A nil set accepts 2xx only.
type StatusSet []int

// Contains reports whether code is accepted.
func (s StatusSet) Contains(code int) bool {
	if s == nil {
		return code >= 200 && code < 300
	}
	return slices.Contains(s, code)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Reason     string
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// StatusError is returned for statuses outside the accepted set when no
// error handler is configured.
type StatusError struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("Error in API call [%d] - %s", e.StatusCode, e.Reason)
	if len(e.Body) > 0 {
		msg += "\n" + string(e.Body)
	}
	return msg
}

// ErrorHandler turns an unaccepted response into a venue-specific error.
type ErrorHandler func(resp *Response) error

// Executor sends rate-limited HTTP requests and reads the whole response.
// It never retries; callers decide what a status means.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	venueTag     string
	errorHandler ErrorHandler
}

// New creates an Executor. rateMgr and errorHandler may be nil.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	venueTag string,
	errorHandler ErrorHandler,
) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		venueTag:     venueTag,
		errorHandler: errorHandler,
	}
}

// Send executes req once. Statuses in accepted are returned as a Response;
// anything else goes through the error handler. Network failures are
// returned wrapped.
func (e *Executor) Send(ctx context.Context, req *http.Request, accepted StatusSet) (*Response, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, e.venueTag+":"+req.URL.Host); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	start := time.Now()
	httpResp, err := e.http.Do(req.WithContext(ctx))
	if err != nil {
		metrics.IncTaniumRequest(req.Method, 0)
		e.logger.Warn(e.venueTag+".http_failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		metrics.IncTaniumRequest(req.Method, 0)
		return nil, fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	elapsed := time.Since(start)
	metrics.IncTaniumRequest(req.Method, httpResp.StatusCode)
	metrics.ObserveDuration(metrics.TaniumRequestDuration, start, req.Method)

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Reason:     reasonPhrase(httpResp),
		Header:     httpResp.Header,
		Body:       body,
	}

	if !accepted.Contains(resp.StatusCode) {
		e.logger.Warn(e.venueTag+".unexpected_status",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))
		if e.errorHandler != nil {
			return nil, e.errorHandler(resp)
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Reason: resp.Reason, Body: body}
	}

	e.logger.Debug(e.venueTag+".http_done",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

func reasonPhrase(r *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(r.Status, strconv.Itoa(r.StatusCode)))
	if reason == "" {
		reason = http.StatusText(r.StatusCode)
	}
	return reason
}

// ClientOptions configures the outbound *http.Client.
type ClientOptions struct {
	Timeout time.Duration
	// Insecure skips TLS certificate verification.
	Insecure bool
	// UseProxy honours HTTP(S)_PROXY from the environment.
	UseProxy bool
}

// NewHTTPClient builds the client used against self-signed on-prem consoles.
func NewHTTPClient(opts ClientOptions) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.Insecure, //nolint:gosec // operator opt-in
	}
	if opts.UseProxy {
		transport.Proxy = http.ProxyFromEnvironment
	} else {
		transport.Proxy = nil
	}
	return &http.Client{Timeout: opts.Timeout, Transport: transport}
}
