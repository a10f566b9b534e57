package tanium

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/Checker-Finance/tanium-adapter/internal/httpclient"
)

// ResponseShape selects how a successful body is handed back.
type ResponseShape int

const (
	ShapeStructured ResponseShape = iota
	ShapeText
	ShapeBinary
	ShapeRaw
)

func (s ResponseShape) String() string {
	switch s {
	case ShapeText:
		return "text"
	case ShapeBinary:
		return "binary"
	case ShapeRaw:
		return "raw"
	default:
		return "structured"
	}
}

// Request describes one Tanium API call. Path is relative to the server
// root. At most one of JSON and Body may be set; Body is sent verbatim with
// the caller's Content-Type from Header.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	JSON   any
	Body   []byte
	Header http.Header
	Shape  ResponseShape
}

func (r Request) validate() error {
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return &ConfigurationError{Message: "unsupported method " + r.Method}
	}
	if r.JSON != nil && r.Body != nil {
		return errors.New("tanium: request sets both JSON and Body")
	}
	return nil
}

// Outcome is the unwrapped result of a successful call: Structured, Text,
// Binary or Raw.
type Outcome interface {
	Shape() ResponseShape
}

// Structured is a decoded JSON body. Decoded is false when the body is not
// JSON, in which case callers read Body, which always carries the raw bytes.
// A JSON null decodes to a nil Value with Decoded set.
type Structured struct {
	Value   any
	Body    []byte
	Decoded bool
}

// Text is the body as a string plus the Content-Disposition header.
type Text struct {
	Body           string
	Disposition    string
	HasDisposition bool
}

// Binary is the body bytes plus the Content-Disposition header.
type Binary struct {
	Body           []byte
	Disposition    string
	HasDisposition bool
}

// Raw is the untouched transport response.
type Raw struct {
	Response *httpclient.Response
}

func (Structured) Shape() ResponseShape { return ShapeStructured }
func (Text) Shape() ResponseShape       { return ShapeText }
func (Binary) Shape() ResponseShape     { return ShapeBinary }
func (Raw) Shape() ResponseShape        { return ShapeRaw }
