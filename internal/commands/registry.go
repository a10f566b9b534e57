package commands

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

// Name identifies an operator command by its external identifier.
type Name string

const (
	TestModule      Name = "test-module"
	GetSystemStatus Name = "tanium-tr-get-system-status"
	GetTask         Name = "tanium-tr-get-task-by-id"

	GetIntelDoc          Name = "tanium-tr-get-intel-doc-by-id"
	ListIntelDocs        Name = "tanium-tr-list-intel-docs"
	ListIntelDocLabels   Name = "tanium-tr-intel-docs-labels-list"
	AddIntelDocLabel     Name = "tanium-tr-intel-docs-add-label"
	RemoveIntelDocLabel  Name = "tanium-tr-intel-docs-remove-label"
	CreateIntelDoc       Name = "tanium-tr-intel-doc-create"
	UpdateIntelDoc       Name = "tanium-tr-intel-doc-update"
	DeployIntel          Name = "tanium-tr-intel-deploy"
	GetIntelDeployStatus Name = "tanium-tr-intel-deploy-status"

	ListAlerts       Name = "tanium-tr-list-alerts"
	GetAlert         Name = "tanium-tr-get-alert-by-id"
	UpdateAlertState Name = "tanium-tr-alert-update-state"

	CreateSnapshot      Name = "tanium-tr-create-snapshot"
	DeleteSnapshot      Name = "tanium-tr-delete-snapshot"
	ListSnapshots       Name = "tanium-tr-list-snapshots"
	DeleteLocalSnapshot Name = "tanium-tr-delete-local-snapshot"

	ListConnections  Name = "tanium-tr-list-connections"
	CreateConnection Name = "tanium-tr-create-connection"
	DeleteConnection Name = "tanium-tr-delete-connection"
	CloseConnection  Name = "tanium-tr-close-connection"

	ListLabels Name = "tanium-tr-list-labels"
	GetLabel   Name = "tanium-tr-get-label-by-id"

	ListEventsByConnection Name = "tanium-tr-list-events-by-connection"
	GetEventsByProcess     Name = "tanium-tr-get-events-by-process"

	GetProcessInfo       Name = "tanium-tr-get-process-info"
	GetProcessChildren   Name = "tanium-tr-get-process-children"
	GetParentProcess     Name = "tanium-tr-get-parent-process"
	GetParentProcessTree Name = "tanium-tr-get-parent-process-tree"
	GetProcessTree       Name = "tanium-tr-get-process-tree"

	ListEvidence          Name = "tanium-tr-event-evidence-list"
	GetEvidenceProperties Name = "tanium-tr-event-evidence-get-properties"
	GetEvidence           Name = "tanium-tr-get-evidence-by-id"
	CreateEvidence        Name = "tanium-tr-create-evidence"
	DeleteEvidence        Name = "tanium-tr-delete-evidence"

	ListFileDownloads    Name = "tanium-tr-list-file-downloads"
	GetFileDownloadInfo  Name = "tanium-tr-get-file-download-info"
	RequestFileDownload  Name = "tanium-tr-request-file-download"
	DeleteFileDownload   Name = "tanium-tr-delete-file-download"
	ListFilesInDirectory Name = "tanium-tr-list-files-in-directory"
	GetFileInfo          Name = "tanium-tr-get-file-info"
	DeleteFileFromHost   Name = "tanium-tr-delete-file-from-endpoint"
	GetDownloadedFile    Name = "tanium-tr-get-downloaded-file"
)

const (
	detectAPI   = "/plugin/products/detect3/api/v1"
	responseAPI = "/plugin/products/threat-response/api/v1"

	connectivityHint = "\nPlease verify that the connection you have specified is active."
)

// API is the part of *tanium.Client the commands use.
type API interface {
	Execute(ctx context.Context, req tanium.Request) (tanium.Outcome, error)
	Login(ctx context.Context) error
}

// Result is what a command hands back to the operator.
type Result struct {
	Readable string         `json:"readable"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Raw      any            `json:"raw,omitempty"`
	File     *File          `json:"file,omitempty"`
}

// File is a downloaded artifact.
type File struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// UnknownCommandError is returned by Run for names outside the catalog.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("command %q is not implemented", e.Name)
}

// ArgumentError wraps invalid or missing command arguments.
type ArgumentError struct {
	Err error
}

func (e *ArgumentError) Error() string { return e.Err.Error() }
func (e *ArgumentError) Unwrap() error { return e.Err }

type runFunc func(ctx context.Context, api API, r *argReader) (*Result, error)

type command struct {
	name Name
	// needsConnection marks commands that only work against an active
	// endpoint connection; their errors get a hint appended.
	needsConnection bool
	run             runFunc
}

// bound adapts a handler taking a typed args struct.
func bound[A any, PA interface {
	*A
	bind(*argReader)
}](run func(context.Context, API, *A) (*Result, error)) runFunc {
	return func(ctx context.Context, api API, r *argReader) (*Result, error) {
		var a A
		PA(&a).bind(r)
		if err := r.err(); err != nil {
			return nil, &ArgumentError{Err: err}
		}
		return run(ctx, api, &a)
	}
}

// noArgs is for commands without arguments.
type noArgs struct{}

func (*noArgs) bind(*argReader) {}

// Registry dispatches commands by name.
type Registry struct {
	api      API
	logger   *zap.Logger
	commands map[Name]command
}

// NewRegistry builds the full command catalog over api.
func NewRegistry(api API, logger *zap.Logger) *Registry {
	r := &Registry{api: api, logger: logger, commands: map[Name]command{}}
	groups := [][]command{
		generalCommands(),
		intelCommands(),
		alertCommands(),
		snapshotCommands(),
		connectionCommands(),
		labelCommands(),
		eventCommands(),
		processCommands(),
		evidenceCommands(),
		fileCommands(),
	}
	for _, g := range groups {
		for _, c := range g {
			r.commands[c.name] = c
		}
	}
	return r
}

// Names lists the catalog in alphabetical order.
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.commands))
	for n := range r.commands {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Has reports whether name is in the catalog.
func (r *Registry) Has(name Name) bool {
	_, ok := r.commands[name]
	return ok
}

// Run executes one command.
func (r *Registry) Run(ctx context.Context, name Name, args Args) (*Result, error) {
	cmd, ok := r.commands[name]
	if !ok {
		return nil, &UnknownCommandError{Name: string(name)}
	}

	start := time.Now()
	res, err := cmd.run(ctx, r.api, newArgReader(args))
	if err != nil {
		var argErr *ArgumentError
		if cmd.needsConnection && !errors.As(err, &argErr) {
			err = fmt.Errorf("%w%s", err, connectivityHint)
		}
		r.logger.Warn("commands.failed",
			zap.String("command", string(name)),
			zap.Error(err))
		return nil, err
	}

	r.logger.Info("commands.completed",
		zap.String("command", string(name)),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// call runs a structured request and returns the decoded body.
func call(ctx context.Context, api API, method, path string, q url.Values, body any) (tanium.Structured, error) {
	out, err := api.Execute(ctx, tanium.Request{
		Method: method,
		Path:   path,
		Query:  q,
		JSON:   body,
	})
	if err != nil {
		return tanium.Structured{}, err
	}
	s, _ := out.(tanium.Structured)
	return s, nil
}

// query builds url.Values from pairs, skipping empty values.
func query(pairs ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			q.Set(pairs[i], pairs[i+1])
		}
	}
	return q
}

// taskContext flattens a taskInfo object: metadata merged in, id renamed to
// taskId.
func taskContext(taskInfo map[string]any) map[string]any {
	ctx := make(map[string]any, len(taskInfo))
	for k, v := range taskInfo {
		if k == "id" || k == "metadata" {
			continue
		}
		ctx[k] = v
	}
	for k, v := range asMap(taskInfo["metadata"]) {
		ctx[k] = v
	}
	delete(ctx, "id")
	ctx["taskId"] = taskInfo["id"]
	return ctx
}
