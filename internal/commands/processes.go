package commands

import (
	"context"
	"fmt"
	"net/http"
)

const (
	processText         = "Process information for process with PTID"
	parentProcessText   = "Parent process for process with PTID"
	processChildrenText = "Children for process with PTID"
)

func processCommands() []command {
	return []command{
		{name: GetProcessInfo, needsConnection: true, run: bound(getProcessInfo)},
		{name: GetProcessChildren, needsConnection: true, run: bound(getProcessChildren)},
		{name: GetParentProcess, needsConnection: true, run: bound(getParentProcess)},
		{name: GetParentProcessTree, needsConnection: true, run: bound(getParentProcessTree)},
		{name: GetProcessTree, needsConnection: true, run: bound(getProcessTree)},
	}
}

// processTree fetches the tree around a process; treeContext selects the
// slice (node, children, parent) and is omitted when empty.
func processTree(ctx context.Context, api API, a *processArgs, treeContext string) (any, any, error) {
	path := fmt.Sprintf("%s/conns/%s/processtrees/%s", responseAPI, a.ConnectionID, a.PTID)
	res, err := call(ctx, api, http.MethodGet, path, query("context", treeContext), nil)
	if err != nil {
		return nil, nil, err
	}
	return buildContext(res.Value, camelKey), res.Value, nil
}

func getProcessInfo(ctx context.Context, api API, a *processArgs) (*Result, error) {
	contextData, raw, err := processTree(ctx, api, a, "node")
	if err != nil {
		return nil, err
	}
	headers := []string{"pid", "processTableId", "parentProcessTableId", "processPath"}
	return &Result{
		Readable: markdownTable(processText+" "+a.PTID, contextData, headers),
		Outputs:  map[string]any{"Tanium.ProcessInfo(val.id === obj.id)": contextData},
		Raw:      raw,
	}, nil
}

func getProcessChildren(ctx context.Context, api API, a *processArgs) (*Result, error) {
	contextData, raw, err := processTree(ctx, api, a, "children")
	if err != nil {
		return nil, err
	}
	headers := []string{"pid", "processTableId", "parentProcessTableId"}
	return &Result{
		Readable: markdownTable(processChildrenText+" "+a.PTID, contextData, headers),
		Outputs:  map[string]any{"Tanium.ProcessChildren(val.id === obj.id)": contextData},
		Raw:      raw,
	}, nil
}

func getParentProcess(ctx context.Context, api API, a *processArgs) (*Result, error) {
	contextData, raw, err := processTree(ctx, api, a, "parent")
	if err != nil {
		return nil, err
	}
	headers := []string{"id", "pid", "processTableId", "parentProcessTableId"}
	return &Result{
		Readable: markdownTable(parentProcessText+" "+a.PTID, contextData, headers),
		Outputs:  map[string]any{"Tanium.ProcessParent(val.id === obj.id)": contextData},
		Raw:      raw,
	}, nil
}

// getParentProcessTree is the process tree scoped to the parent chain.
func getParentProcessTree(ctx context.Context, api API, a *processArgs) (*Result, error) {
	contextData, raw, err := processTree(ctx, api, a, "parent")
	if err != nil {
		return nil, err
	}
	headers := []string{"id", "pid", "processTableId", "parentProcessTableId"}
	return &Result{
		Readable: markdownTable(parentProcessText+" "+a.PTID, contextData, headers),
		Outputs:  map[string]any{"Tanium.ProcessTree(val.id && val.id === obj.id)": contextData},
		Raw:      raw,
	}, nil
}

type processTreeArgs struct {
	processArgs
	Context string
}

func (a *processTreeArgs) bind(r *argReader) {
	a.processArgs.bind(r)
	a.Context = r.str("context")
}

func getProcessTree(ctx context.Context, api API, a *processTreeArgs) (*Result, error) {
	contextData, raw, err := processTree(ctx, api, &a.processArgs, a.Context)
	if err != nil {
		return nil, err
	}
	headers := []string{"id", "pid", "processTableId", "parentProcessTableId"}
	return &Result{
		Readable: markdownTable(processText+" "+a.PTID, contextData, headers),
		Outputs:  map[string]any{"Tanium.ProcessTree(val.id && val.id === obj.id)": contextData},
		Raw:      raw,
	}, nil
}
