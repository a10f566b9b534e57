package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const evidenceOutput = "Tanium.Evidence(val.uuid && val.uuid === obj.uuid)"

func evidenceCommands() []command {
	return []command{
		{name: ListEvidence, run: bound(listEvidence)},
		{name: GetEvidenceProperties, run: bound(evidenceProperties)},
		{name: GetEvidence, run: bound(getEvidence)},
		{name: CreateEvidence, needsConnection: true, run: bound(createEvidence)},
		{name: DeleteEvidence, run: bound(deleteEvidence)},
	}
}

type sortedPage struct {
	page
	Sort string
}

func (a *sortedPage) bind(r *argReader) {
	a.page.bind(r)
	a.Sort = r.str("sort")
}

func listEvidence(ctx context.Context, api API, a *sortedPage) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/evidence", query("sort", a.Sort), nil)
	if err != nil {
		return nil, err
	}

	evidence := paginate(asList(res.Value), a.Offset, a.Limit)
	for _, item := range evidence {
		convertTimestamps(asMap(item), "createdAt")
	}
	return &Result{
		Readable: markdownTable("Evidence list", evidence,
			[]string{"name", "evidenceType", "hostname", "createdAt", "username"}),
		Outputs: map[string]any{evidenceOutput: buildContext(evidence, nil)},
		Raw:     res.Value,
	}, nil
}

func evidenceProperties(ctx context.Context, api API, _ *noArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/event-evidence/properties", nil, nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		Readable: markdownTable("Evidence Properties", res.Value, nil),
		Outputs:  map[string]any{"Tanium.EvidenceProperties(val.type === obj.type)": res.Value},
		Raw:      res.Value,
	}, nil
}

type evidenceArgs struct {
	EvidenceID string
}

func (a *evidenceArgs) bind(r *argReader) {
	a.EvidenceID = r.required("evidence_id")
}

func getEvidence(ctx context.Context, api API, a *evidenceArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/event-evidence/"+a.EvidenceID, nil, nil)
	if err != nil {
		return nil, err
	}

	evidence := asMap(asMap(res.Value)["evidence"])
	merged := make(map[string]any, len(evidence))
	for k, v := range evidence {
		merged[k] = v
	}
	if data := asMap(evidence["data"]); len(data) > 0 {
		for k, v := range data {
			merged[k] = v
		}
		delete(merged, "data")
	}

	contextData := buildContext(merged, camelKey)
	headers := []string{"uuid", "timestamp", "hostname", "username", "summary", "evidenceType", "created",
		"processTableId"}
	return &Result{
		Readable: markdownTable("Evidence information", contextData, headers),
		Outputs:  map[string]any{evidenceOutput: contextData},
		Raw:      res.Value,
	}, nil
}

type createEvidenceArgs struct {
	processArgs
	Hostname string
	Summary  string
}

func (a *createEvidenceArgs) bind(r *argReader) {
	a.processArgs.bind(r)
	a.Hostname = r.str("hostname")
	a.Summary = r.str("summary")
}

// createEvidence snapshots the process event behind ptid as evidence.
func createEvidence(ctx context.Context, api API, a *createEvidenceArgs) (*Result, error) {
	path := fmt.Sprintf("%s/conns/%s/views/process/events", responseAPI, a.ConnectionID)
	q := query("match", "all", "f1", "process_table_id", "o1", "eq", "v1", a.PTID)
	res, err := call(ctx, api, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}

	events := asList(res.Value)
	if len(events) == 0 {
		return nil, errors.New("Invalid connection_id or ptid.")
	}
	process := asMap(events[0])
	summary := a.Summary
	if summary == "" {
		summary = field(process, "process_path")
	}

	body := map[string]any{
		"evidence": map[string]any{
			"recorderId":   a.PTID,
			"connectionId": a.ConnectionID,
			"hostname":     a.Hostname,
			"data":         process,
			"eventType":    "ProcessEvent",
			"summary":      summary,
		},
	}
	if _, err := call(ctx, api, http.MethodPost, responseAPI+"/event-evidence", nil, body); err != nil {
		return nil, err
	}
	return &Result{Readable: "Evidence have been created."}, nil
}

type evidenceIDsArgs struct {
	IDs []string
}

func (a *evidenceIDsArgs) bind(r *argReader) {
	a.IDs = r.list("evidence-ids", true)
}

func deleteEvidence(ctx context.Context, api API, a *evidenceIDsArgs) (*Result, error) {
	if _, err := call(ctx, api, http.MethodDelete, responseAPI+"/event-evidence", nil, map[string]any{"ids": a.IDs}); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Evidence %s has been deleted successfully.", strings.Join(a.IDs, ","))}, nil
}
