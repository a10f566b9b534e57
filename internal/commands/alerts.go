package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

const alertOutput = "Tanium.Alert(val.ID && val.ID === obj.ID)"

func alertCommands() []command {
	return []command{
		{name: ListAlerts, run: bound(listAlerts)},
		{name: GetAlert, run: bound(getAlert)},
		{name: UpdateAlertState, run: bound(updateAlertState)},
	}
}

func alertItem(alert map[string]any) map[string]any {
	return map[string]any{
		"ID":                alert["id"],
		"AlertedAt":         alert["alertedAt"],
		"ComputerIpAddress": alert["computerIpAddress"],
		"ComputerName":      alert["computerName"],
		"CreatedAt":         alert["createdAt"],
		"GUID":              alert["guid"],
		"IntelDocId":        alert["intelDocId"],
		"Priority":          alert["priority"],
		"Severity":          alert["severity"],
		"State":             title(field(alert, "state")),
		"Type":              alert["type"],
		"UpdatedAt":         alert["updatedAt"],
	}
}

type listAlertsArgs struct {
	page
	ComputerIP   string
	ComputerName string
	ScanConfigID string
	IntelDocID   string
	Severity     string
	Priority     string
	Type         string
	State        string
}

func (a *listAlertsArgs) bind(r *argReader) {
	a.page.bind(r)
	a.ComputerIP = r.str("computer-ip-address")
	a.ComputerName = r.str("computer-name")
	a.ScanConfigID = r.str("scan-config-id")
	a.IntelDocID = r.str("intel-doc-id")
	a.Severity = r.str("severity")
	a.Priority = r.str("priority")
	a.Type = r.str("type")
	a.State = r.oneOf("state", tanium.AlertStates...)
}

func listAlerts(ctx context.Context, api API, a *listAlertsArgs) (*Result, error) {
	q := query(
		"type", a.Type,
		"priority", a.Priority,
		"severity", a.Severity,
		"intelDocId", a.IntelDocID,
		"scanConfigId", a.ScanConfigID,
		"computerName", a.ComputerName,
		"computerIpAddress", a.ComputerIP,
		"limit", fmt.Sprint(a.Limit),
		"offset", fmt.Sprint(a.Offset),
		"state", a.State,
	)
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/alerts/", q, nil)
	if err != nil {
		return nil, err
	}

	var alerts []any
	for _, item := range asList(res.Value) {
		alerts = append(alerts, alertItem(asMap(item)))
	}
	contextData := buildContext(alerts, nil)
	headers := []string{"ID", "Type", "Severity", "Priority", "AlertedAt", "CreatedAt", "UpdatedAt",
		"ComputerIpAddress", "ComputerName", "GUID", "State", "IntelDocId"}
	return &Result{
		Readable: markdownTable("Alerts", alerts, headers),
		Outputs:  map[string]any{alertOutput: contextData},
		Raw:      res.Value,
	}, nil
}

type alertArgs struct {
	AlertID string
}

func (a *alertArgs) bind(r *argReader) {
	a.AlertID = r.required("alert-id")
}

func getAlert(ctx context.Context, api API, a *alertArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/alerts/"+a.AlertID, nil, nil)
	if err != nil {
		return nil, err
	}
	alert := alertItem(asMap(res.Value))
	headers := []string{"ID", "Name", "Type", "Severity", "Priority", "AlertedAt", "CreatedAt", "UpdatedAt",
		"ComputerIpAddress", "ComputerName", "GUID", "State", "IntelDocId"}
	return &Result{
		Readable: markdownTable("Alert information", alert, headers),
		Outputs:  map[string]any{alertOutput: buildContext(alert, nil)},
		Raw:      res.Value,
	}, nil
}

type alertStateArgs struct {
	AlertIDs []string
	State    string
}

func (a *alertStateArgs) bind(r *argReader) {
	a.AlertIDs = r.list("alert-ids", true)
	r.required("state")
	a.State = r.oneOf("state", tanium.AlertStates...)
}

func updateAlertState(ctx context.Context, api API, a *alertStateArgs) (*Result, error) {
	body := map[string]any{
		"state": strings.ToLower(a.State),
		"id":    a.AlertIDs,
	}
	if _, err := call(ctx, api, http.MethodPut, detectAPI+"/alerts/", nil, body); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Alert state updated to %s.", a.State)}, nil
}
