package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

const connectionOutput = "Tanium.Connection(val.id === obj.id)"

func connectionCommands() []command {
	return []command{
		{name: ListConnections, run: bound(listConnections)},
		{name: CreateConnection, run: bound(createConnection)},
		{name: DeleteConnection, run: bound(deleteConnection)},
		{name: CloseConnection, run: bound(closeConnection)},
	}
}

func listConnections(ctx context.Context, api API, a *page) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/conns", nil, nil)
	if err != nil {
		return nil, err
	}

	conns := paginate(asList(res.Value), a.Offset, a.Limit)
	for _, c := range conns {
		convertTimestamps(asMap(c), "connectedAt", "initiatedAt")
	}
	contextData := buildContext(conns, nil)
	headers := []string{"id", "status", "hostname", "message", "ip", "platform", "connectedAt"}
	return &Result{
		Readable: markdownTable("Connections", conns, headers),
		Outputs:  map[string]any{connectionOutput: contextData},
		Raw:      res.Value,
	}, nil
}

type createConnectionArgs struct {
	IP       string
	ClientID string
	Hostname string
	Platform string
}

func (a *createConnectionArgs) bind(r *argReader) {
	a.IP = r.str("ip")
	a.ClientID = r.str("client_id")
	a.Hostname = r.str("hostname")
	a.Platform = r.str("platform")
}

// createConnection returns the new connection id as the plain response body.
func createConnection(ctx context.Context, api API, a *createConnectionArgs) (*Result, error) {
	target := map[string]string{}
	for k, v := range map[string]string{
		"hostname": a.Hostname,
		"clientId": a.ClientID,
		"ip":       a.IP,
		"platform": a.Platform,
	} {
		if v != "" {
			target[k] = v
		}
	}
	out, err := api.Execute(ctx, tanium.Request{
		Method: http.MethodPost,
		Path:   responseAPI + "/conns/connect",
		JSON:   map[string]any{"target": target},
		Shape:  tanium.ShapeBinary,
	})
	if err != nil {
		return nil, err
	}
	b, _ := out.(tanium.Binary)
	id := strings.TrimSpace(string(b.Body))
	return &Result{
		Readable: fmt.Sprintf("Initiated connection request to %s.", id),
		Outputs:  map[string]any{connectionOutput: map[string]any{"id": id}},
	}, nil
}

func deleteConnection(ctx context.Context, api API, a *connArgs) (*Result, error) {
	if _, err := call(ctx, api, http.MethodDelete, responseAPI+"/conns/delete/"+a.ConnectionID, nil, nil); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Connection %s deleted successfully.", a.ConnectionID)}, nil
}

func closeConnection(ctx context.Context, api API, a *connArgs) (*Result, error) {
	if _, err := call(ctx, api, http.MethodDelete, responseAPI+"/conns/close/"+a.ConnectionID, nil, nil); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Connection %s closed successfully.", a.ConnectionID)}, nil
}
