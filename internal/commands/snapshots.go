package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

func snapshotCommands() []command {
	return []command{
		{name: ListSnapshots, run: bound(listSnapshots)},
		{name: CreateSnapshot, needsConnection: true, run: bound(createSnapshot)},
		{name: DeleteSnapshot, run: bound(deleteSnapshot)},
		{name: DeleteLocalSnapshot, run: bound(deleteLocalSnapshot)},
	}
}

func listSnapshots(ctx context.Context, api API, a *page) (*Result, error) {
	q := query("limit", fmt.Sprint(a.Limit), "offset", fmt.Sprint(a.Offset))
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/snapshot", q, nil)
	if err != nil {
		return nil, err
	}

	snapshots := asList(asMap(res.Value)["snapshots"])
	for _, s := range snapshots {
		convertTimestamps(asMap(s), "created")
	}
	contextData := buildContext(snapshots, nil)
	return &Result{
		Readable: markdownTable("Snapshots:", snapshots, []string{"uuid", "name", "evidenceType", "hostname", "created"}),
		Outputs:  map[string]any{"Tanium.Snapshot(val.uuid === obj.uuid)": contextData},
		Raw:      res.Value,
	}, nil
}

func createSnapshot(ctx context.Context, api API, a *connArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodPost, responseAPI+"/conns/"+a.ConnectionID+"/snapshot", nil, nil)
	if err != nil {
		return nil, err
	}

	readable := fmt.Sprintf("Initiated snapshot creation request for %s.", a.ConnectionID)
	out := &Result{Readable: readable, Raw: res.Value}
	taskInfo := asMap(asMap(res.Value)["taskInfo"])
	if id := taskInfo["id"]; !isEmpty(id) {
		out.Readable += fmt.Sprintf(" Task id: %s.", cellText(id))
		out.Outputs = map[string]any{
			"Tanium.SnapshotTask(val.id === obj.id && val.connection === obj.connection)": taskContext(taskInfo),
		}
	}
	return out, nil
}

type snapshotIDsArgs struct {
	IDs []string
}

func (a *snapshotIDsArgs) bind(r *argReader) {
	a.IDs = r.list("snapshot-ids", true)
}

func deleteSnapshot(ctx context.Context, api API, a *snapshotIDsArgs) (*Result, error) {
	if _, err := call(ctx, api, http.MethodDelete, responseAPI+"/snapshot", nil, map[string]any{"ids": a.IDs}); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Snapshot %s deleted successfully.", strings.Join(a.IDs, ","))}, nil
}

func deleteLocalSnapshot(ctx context.Context, api API, a *connArgs) (*Result, error) {
	_, err := api.Execute(ctx, tanium.Request{
		Method: http.MethodDelete,
		Path:   responseAPI + "/conns/" + a.ConnectionID,
		Shape:  tanium.ShapeBinary,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Local snapshot of connection %s was deleted successfully.", a.ConnectionID)}, nil
}
