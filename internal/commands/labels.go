package commands

import (
	"context"
	"net/http"
)

var labelHeaders = []string{"name", "description", "id", "indicatorCount", "signalCount", "createdAt", "updatedAt"}

func labelCommands() []command {
	return []command{
		{name: ListLabels, run: bound(listLabels)},
		{name: GetLabel, run: bound(getLabel)},
	}
}

func listLabels(ctx context.Context, api API, a *page) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/labels/", nil, nil)
	if err != nil {
		return nil, err
	}
	labels := paginate(asList(res.Value), a.Offset, a.Limit)
	return &Result{
		Readable: markdownTable("Labels", labels, labelHeaders),
		Outputs:  map[string]any{"Tanium.Label(val.id === obj.id)": buildContext(labels, nil)},
		Raw:      res.Value,
	}, nil
}

type labelArgs struct {
	LabelID string
}

func (a *labelArgs) bind(r *argReader) {
	a.LabelID = r.required("label-id")
}

func getLabel(ctx context.Context, api API, a *labelArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, detectAPI+"/labels/"+a.LabelID, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Result{
		Readable: markdownTable("Label information", res.Value, labelHeaders),
		Outputs:  map[string]any{"Tanium.Label(val.id && val.id === obj.id)": buildContext(res.Value, nil)},
		Raw:      res.Value,
	}, nil
}
