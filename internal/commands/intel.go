package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

var (
	intelDocHeaders   = []string{"ID", "Name", "Type", "Description", "AlertCount", "UnresolvedAlertCount", "CreatedAt", "UpdatedAt", "LabelIds"}
	intelLabelHeaders = []string{"ID", "Name", "Description", "IndicatorCount", "SignalCount", "CreatedAt", "UpdatedAt"}
)

const (
	intelDocOutput   = "Tanium.IntelDoc(val.ID && val.ID === obj.ID)"
	intelLabelOutput = "Tanium.IntelDocLabel(val.IntelDocID && val.IntelDocID === obj.IntelDocID)"
)

func intelCommands() []command {
	return []command{
		{name: GetIntelDoc, run: bound(getIntelDoc)},
		{name: ListIntelDocs, run: bound(listIntelDocs)},
		{name: ListIntelDocLabels, run: bound(listIntelDocLabels)},
		{name: AddIntelDocLabel, run: bound(addIntelDocLabel)},
		{name: RemoveIntelDocLabel, run: bound(removeIntelDocLabel)},
		{name: CreateIntelDoc, run: bound(createIntelDoc)},
		{name: UpdateIntelDoc, run: bound(updateIntelDoc)},
		{name: DeployIntel, run: bound(deployIntel)},
		{name: GetIntelDeployStatus, run: bound(intelDeployStatus)},
	}
}

// clarifyIntelDoc points the operator at the intel doc ID when Tanium says
// the resource does not exist.
func clarifyIntelDoc(err error) error {
	if tanium.IsRequest(err) && strings.Contains(strings.ToLower(err.Error()), "not found") {
		return fmt.Errorf("Please check the intel doc ID and try again.\n(%w)", err)
	}
	return err
}

// clarifyLabel points at the label ID; Tanium answers an unknown label with
// a 500.
func clarifyLabel(err error) error {
	if tanium.IsRequest(err) && strings.Contains(strings.ToLower(err.Error()), "internal server error") {
		return fmt.Errorf("Please check the given label ID.\n(%w)", err)
	}
	return clarifyIntelDoc(err)
}

func intelDocItem(doc map[string]any) map[string]any {
	return map[string]any{
		"ID":                   doc["id"],
		"Name":                 doc["name"],
		"Type":                 doc["type"],
		"Description":          doc["description"],
		"AlertCount":           doc["alertCount"],
		"UnresolvedAlertCount": doc["unresolvedAlertCount"],
		"CreatedAt":            doc["createdAt"],
		"UpdatedAt":            doc["updatedAt"],
		"LabelIds":             doc["labelIds"],
	}
}

func intelLabelItem(label map[string]any) map[string]any {
	return map[string]any{
		"ID":             label["id"],
		"Name":           label["name"],
		"Description":    label["description"],
		"IndicatorCount": label["indicatorCount"],
		"SignalCount":    label["signalCount"],
		"CreatedAt":      label["createdAt"],
		"UpdatedAt":      label["updatedAt"],
	}
}

func intelDocResult(title string, raw any) *Result {
	var rows []any
	for _, item := range asList(raw) {
		rows = append(rows, intelDocItem(asMap(item)))
	}
	return &Result{
		Readable: markdownTable(title, rows, intelDocHeaders),
		Outputs:  map[string]any{intelDocOutput: buildContext(formatContext(raw), nil)},
		Raw:      raw,
	}
}

func intelLabelResult(title, intelDocID string, raw any) *Result {
	var rows []any
	for _, item := range asList(raw) {
		rows = append(rows, intelLabelItem(asMap(item)))
	}
	contextData := buildContext(map[string]any{
		"IntelDocID": intelDocID,
		"LabelsList": formatContext(raw),
	}, nil)
	return &Result{
		Readable: markdownTable(title, rows, intelLabelHeaders),
		Outputs:  map[string]any{intelLabelOutput: contextData},
		Raw:      raw,
	}
}

type intelDocArgs struct {
	IntelDocID string
}

func (a *intelDocArgs) bind(r *argReader) {
	a.IntelDocID = r.required("intel-doc-id")
}

func getIntelDoc(ctx context.Context, api API, a *intelDocArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/intels/"+a.IntelDocID, nil, nil)
	if err != nil {
		return nil, clarifyIntelDoc(err)
	}
	return intelDocResult("Intel Doc information", res.Value), nil
}

type listIntelDocsArgs struct {
	Name             string
	Description      string
	Type             string
	Limit            string
	Offset           string
	LabelID          string
	MitreTechniqueID string
}

func (a *listIntelDocsArgs) bind(r *argReader) {
	a.Name = r.str("name")
	a.Description = r.str("description")
	a.Type = r.str("type")
	a.Limit = r.str("limit")
	a.Offset = r.str("offset")
	a.LabelID = r.str("label_id")
	a.MitreTechniqueID = r.str("mitre_technique_id")
	// passed through as given; only checked to be numeric
	r.integer("limit", 0)
	r.integer("offset", 0)
}

func listIntelDocs(ctx context.Context, api API, a *listIntelDocsArgs) (*Result, error) {
	q := query(
		"name", a.Name,
		"description", a.Description,
		"type", a.Type,
		"limit", a.Limit,
		"offset", a.Offset,
		"labelId", a.LabelID,
		"mitreTechniqueId", a.MitreTechniqueID,
	)
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/intels/", q, nil)
	if err != nil {
		return nil, err
	}
	return intelDocResult("Intel docs", res.Value), nil
}

func listIntelDocLabels(ctx context.Context, api API, a *intelDocArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/intels/"+a.IntelDocID+"/labels", nil, nil)
	if err != nil {
		if tanium.IsRequest(err) {
			return nil, fmt.Errorf("Please check the intel doc ID and try again.\n(%w)", err)
		}
		return nil, err
	}
	return intelLabelResult(fmt.Sprintf("Intel doc (%s) labels", a.IntelDocID), a.IntelDocID, res.Value), nil
}

type intelLabelArgs struct {
	intelDocArgs
	LabelID string
}

func (a *intelLabelArgs) bind(r *argReader) {
	a.intelDocArgs.bind(r)
	a.LabelID = r.required("label-id")
}

func addIntelDocLabel(ctx context.Context, api API, a *intelLabelArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodPut, detectAPI+"/intels/"+a.IntelDocID+"/labels", nil,
		map[string]string{"id": a.LabelID})
	if err != nil {
		return nil, clarifyLabel(err)
	}
	title := fmt.Sprintf("Successfully created a new label (%s) association for the identified intel document (%s).",
		a.LabelID, a.IntelDocID)
	return intelLabelResult(title, a.IntelDocID, res.Value), nil
}

// removeIntelDocLabel returns the labels still attached, so the context is
// refreshed on removal.
func removeIntelDocLabel(ctx context.Context, api API, a *intelLabelArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodDelete, detectAPI+"/intels/"+a.IntelDocID+"/labels/"+a.LabelID, nil, nil)
	if err != nil {
		return nil, clarifyLabel(err)
	}
	title := fmt.Sprintf("Successfully removed the label (%s) association for the identified intel document (%s).",
		a.LabelID, a.IntelDocID)
	return intelLabelResult(title, a.IntelDocID, res.Value), nil
}

// intelDocUpload is an intel document body, read from "file" or given
// inline as "content".
type intelDocUpload struct {
	Path      string
	Content   string
	Extension string
}

func (a *intelDocUpload) bind(r *argReader) {
	a.Path = r.str("file")
	a.Content = r.args["content"]
	a.Extension = r.required("file-extension")
	if a.Path == "" && a.Content == "" {
		r.errs = append(r.errs, errors.New(`one of "file" or "content" is required`))
	}
}

func (a *intelDocUpload) request(method, path string) (tanium.Request, error) {
	body := []byte(a.Content)
	if a.Path != "" {
		b, err := os.ReadFile(a.Path)
		if err != nil {
			return tanium.Request{}, fmt.Errorf("Please check your file entry ID.\n%w", err)
		}
		body = b
	}
	return tanium.Request{
		Method: method,
		Path:   path,
		Body:   body,
		Header: http.Header{
			"Content-Disposition": {"filename=file." + a.Extension},
			"Content-Type":        {"application/xml"},
		},
	}, nil
}

func uploadIntelDoc(ctx context.Context, api API, req tanium.Request) (*Result, error) {
	out, err := api.Execute(ctx, req)
	if err != nil {
		return nil, clarifyIntelDoc(err)
	}
	s, _ := out.(tanium.Structured)
	return intelDocResult("Intel Doc information", s.Value), nil
}

func createIntelDoc(ctx context.Context, api API, a *intelDocUpload) (*Result, error) {
	req, err := a.request(http.MethodPost, detectAPI+"/intels")
	if err != nil {
		return nil, err
	}
	return uploadIntelDoc(ctx, api, req)
}

type updateIntelDocArgs struct {
	intelDocArgs
	intelDocUpload
}

func (a *updateIntelDocArgs) bind(r *argReader) {
	a.intelDocArgs.bind(r)
	a.intelDocUpload.bind(r)
}

func updateIntelDoc(ctx context.Context, api API, a *updateIntelDocArgs) (*Result, error) {
	req, err := a.request(http.MethodPut, detectAPI+"/intels/"+a.IntelDocID)
	if err != nil {
		return nil, err
	}
	return uploadIntelDoc(ctx, api, req)
}

func deployIntel(ctx context.Context, api API, _ *noArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodPost, responseAPI+"/intel/deploy", nil, nil)
	if err != nil {
		return nil, err
	}
	// {"data": {"taskId": 779}}
	if isEmpty(asMap(res.Value)["data"]) {
		return nil, errors.New("Something went wrong while deploying intel docs.")
	}
	return &Result{Readable: "Successfully deployed intel.", Raw: res.Value}, nil
}

func intelDeployStatus(ctx context.Context, api API, _ *noArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/intel/status", nil, nil)
	if err != nil {
		return nil, err
	}
	data := asMap(asMap(res.Value)["data"])
	status := map[string]any{
		"CreatedAt":       data["createdAt"],
		"ModifiedAt":      data["modifiedAt"],
		"CurrentRevision": data["currentRevision"],
		"CurrentSize":     data["currentSize"],
	}
	return &Result{
		Readable: markdownTable("Intel deploy status", status,
			[]string{"CreatedAt", "ModifiedAt", "CurrentRevision", "CurrentSize"}),
		Outputs: map[string]any{"Tanium.IntelDeployStatus": buildContext(formatContext(data), nil)},
		Raw:     res.Value,
	}, nil
}
