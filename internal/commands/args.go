package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

// Args are the raw key/value arguments of one command invocation.
type Args map[string]string

// argReader reads typed values out of Args and collects every problem so
// the operator sees them all at once.
type argReader struct {
	args Args
	errs []error
}

func newArgReader(args Args) *argReader {
	return &argReader{args: args}
}

func (r *argReader) str(key string) string {
	return strings.TrimSpace(r.args[key])
}

func (r *argReader) required(key string) string {
	v := r.str(key)
	if v == "" {
		r.errs = append(r.errs, fmt.Errorf("missing required argument %q", key))
	}
	return v
}

func (r *argReader) integer(key string, def int) int {
	v := r.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("argument %q must be a number, got %q", key, v))
		return def
	}
	return n
}

// list splits a comma separated argument.
func (r *argReader) list(key string, required bool) []string {
	var out []string
	for _, p := range strings.Split(r.str(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		r.errs = append(r.errs, fmt.Errorf("missing required argument %q", key))
	}
	return out
}

func (r *argReader) oneOf(key string, allowed ...string) string {
	v := strings.ToLower(r.str(key))
	if v == "" {
		return ""
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	r.errs = append(r.errs, fmt.Errorf("argument %q must be one of %s, got %q", key, strings.Join(allowed, ", "), v))
	return v
}

func (r *argReader) err() error {
	return errors.Join(r.errs...)
}

// page is the limit/offset pair most list commands take.
type page struct {
	Limit  int
	Offset int
}

func (p *page) bind(r *argReader) {
	p.Limit = r.integer("limit", defaultLimit)
	p.Offset = r.integer("offset", defaultOffset)
}

// connArgs identifies an active connection.
type connArgs struct {
	ConnectionID string
}

func (a *connArgs) bind(r *argReader) {
	a.ConnectionID = r.required("connection_id")
}

// processArgs identifies a process on an active connection.
type processArgs struct {
	connArgs
	PTID string
}

func (a *processArgs) bind(r *argReader) {
	a.connArgs.bind(r)
	a.PTID = r.required("ptid")
}
