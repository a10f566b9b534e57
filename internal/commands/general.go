package commands

import (
	"context"
	"fmt"
	"net/http"
)

func generalCommands() []command {
	return []command{
		{name: TestModule, run: bound(testModule)},
		{name: GetSystemStatus, run: bound(systemStatus)},
		{name: GetTask, run: bound(getTask)},
	}
}

func testModule(ctx context.Context, api API, _ *noArgs) (*Result, error) {
	if err := api.Login(ctx); err != nil {
		return nil, fmt.Errorf("Test Tanium integration failed - please check your credentials and try again.\n%w", err)
	}
	return &Result{Readable: "ok"}, nil
}

func systemStatus(ctx context.Context, api API, a *page) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, "/api/v2/system_status", nil, nil)
	if err != nil {
		return nil, err
	}

	// Only entries with a computer id are live clients.
	var active []any
	for _, item := range paginate(asList(asMap(res.Value)["data"]), a.Offset, a.Limit) {
		m := asMap(item)
		if id := m["computer_id"]; !isEmpty(id) {
			m["client_id"] = id
			active = append(active, m)
		}
	}

	contextData := buildContext(active, camelKey)
	headers := []string{"hostName", "clientId", "ipaddressClient", "ipaddressServer", "portNumber"}
	return &Result{
		Readable: markdownTable("System Status", contextData, headers),
		Outputs:  map[string]any{"Tanium.SystemStatus(val.clientId === obj.clientId)": contextData},
		Raw:      res.Value,
	}, nil
}

type taskArgs struct {
	TaskID string
}

func (a *taskArgs) bind(r *argReader) {
	a.TaskID = r.required("task_id")
}

func getTask(ctx context.Context, api API, a *taskArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/tasks/"+a.TaskID, nil, nil)
	if err != nil {
		return nil, err
	}

	raw := asMap(res.Value)
	task := make(map[string]any, len(raw))
	for k, v := range raw {
		task[k] = v
	}
	if data := asMap(raw["data"]); len(data) > 0 {
		for k, v := range data {
			task[k] = v
		}
		delete(task, "data")
	}

	contextData := buildContext(task, nil)
	return &Result{
		Readable: markdownTable("Task information", contextData, []string{"id", "status"}),
		Outputs:  map[string]any{"Tanium.Task(val.id === obj.id)": contextData},
		Raw:      res.Value,
	}, nil
}
