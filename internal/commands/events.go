package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var errInvalidFilter = errors.New("Invalid filter argument.")

var eventHeaders = map[string][]string{
	"combined": {"id", "type", "processPath", "detail", "timestamp", "operation"},
	"file":     {"id", "file", "timestamp", "processTableId", "processPath", "userName"},
	"network": {"id", "timestamp", "groupName", "processTableId", "pid", "processPath", "userName", "operation",
		"localAddress", "localAddressPort", "remoteAddress", "remoteAddressPort"},
	"registry": {"id", "timestamp", "groupName", "processTableId", "pid", "processPath", "userName", "keyPath",
		"valueName"},
	"process": {"groupName", "processTableId", "processCommandLine", "pid", "processPath", "exitCode", "userName",
		"createTime", "endTime"},
	"driver": {"id", "timestamp", "processTableID", "hashes", "imageLoaded", "signature", "signed", "eventId",
		"eventOpcode", "eventRecordId", "eventTaskId"},
	"dns": {"id", "timestamp", "groupName", "processTableId", "pid", "processPath", "userName", "operation",
		"query", "response"},
	"image": {"id", "timestamp", "imagePath", "processTableID", "processID", "processName", "username", "hash",
		"signature"},
}

// eventHeader falls back to the image columns for unknown types.
func eventHeader(eventType string) []string {
	if h, ok := eventHeaders[eventType]; ok {
		return h
	}
	return eventHeaders["image"]
}

func eventCommands() []command {
	return []command{
		{name: ListEventsByConnection, needsConnection: true, run: bound(listEventsByConnection)},
		{name: GetEventsByProcess, needsConnection: true, run: bound(getEventsByProcess)},
	}
}

// filterParams turns a list of [field, operator, value] triples into the
// f<i>/o<i>/v<i> query parameters of the events view. Single quotes are
// accepted in place of double quotes.
func filterParams(expr string) (map[string]string, int, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, 0, nil
	}
	var triples [][]any
	dec := json.NewDecoder(strings.NewReader(strings.ReplaceAll(expr, "'", `"`)))
	dec.UseNumber()
	if err := dec.Decode(&triples); err != nil {
		return nil, 0, errInvalidFilter
	}
	params := make(map[string]string, 3*len(triples))
	for i, t := range triples {
		if len(t) < 3 {
			return nil, 0, errInvalidFilter
		}
		n := strconv.Itoa(i)
		params["f"+n] = cellText(t[0])
		params["o"+n] = cellText(t[1])
		params["v"+n] = cellText(t[2])
	}
	return params, len(triples), nil
}

type eventsByConnectionArgs struct {
	page
	connArgs
	Sort    string
	Fields  string
	Type    string
	Match   string
	Filter  map[string]string
	Filters int
}

func (a *eventsByConnectionArgs) bind(r *argReader) {
	a.page.bind(r)
	a.connArgs.bind(r)
	a.Sort = r.str("sort")
	a.Fields = r.str("fields")
	a.Type = strings.ToLower(r.required("type"))
	a.Match = r.str("match")

	var err error
	if a.Filter, a.Filters, err = filterParams(r.str("filter")); err != nil {
		r.errs = append(r.errs, err)
	}
}

func listEventsByConnection(ctx context.Context, api API, a *eventsByConnectionArgs) (*Result, error) {
	q := query(
		"limit", strconv.Itoa(a.Limit),
		"offset", strconv.Itoa(a.Offset),
		"sort", a.Sort,
		"fields", a.Fields,
		"match", a.Match,
	)
	if a.Filters > 0 {
		groups := make([]string, a.Filters)
		for i := range groups {
			groups[i] = strconv.Itoa(i)
		}
		// The view only applies f/o/v triples that belong to a group.
		q.Set("gm1", a.Match)
		q.Set("g1", strings.Join(groups, ","))
		for k, v := range a.Filter {
			q.Set(k, v)
		}
	}

	path := fmt.Sprintf("%s/conns/%s/views/%s/events", responseAPI, a.ConnectionID, a.Type)
	res, err := call(ctx, api, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}

	contextData := buildContext(res.Value, camelKey)
	return &Result{
		Readable: markdownTable("Events for "+a.ConnectionID, contextData, eventHeader(a.Type)),
		Outputs:  map[string]any{"TaniumEvent(val.id === obj.id)": contextData},
		Raw:      res.Value,
	}, nil
}

type eventsByProcessArgs struct {
	page
	processArgs
	Type string
}

func (a *eventsByProcessArgs) bind(r *argReader) {
	a.page.bind(r)
	a.processArgs.bind(r)
	a.Type = strings.ToLower(r.required("type"))
}

func getEventsByProcess(ctx context.Context, api API, a *eventsByProcessArgs) (*Result, error) {
	path := fmt.Sprintf("%s/conns/%s/processevents/%s/%s", responseAPI, a.ConnectionID, a.PTID, a.Type)
	q := query("limit", strconv.Itoa(a.Limit), "offset", strconv.Itoa(a.Offset))
	res, err := call(ctx, api, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}

	contextData := buildContext(res.Value, camelKey)
	return &Result{
		Readable: markdownTable("Events for process "+a.PTID, contextData,
			[]string{"id", "detail", "type", "timestamp", "operation"}),
		Outputs: map[string]any{"Tanium.ProcessEvent(val.id && val.id === obj.id)": contextData},
		Raw:     res.Value,
	}, nil
}
