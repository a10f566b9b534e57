package commands

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

func newTestRegistry(api API) *Registry {
	return NewRegistry(api, zap.NewNop())
}

// ─── Catalog ──────────────────────────────────────────────────────────────────

func TestRegistry_CatalogIsComplete(t *testing.T) {
	r := newTestRegistry(newFakeAPI(nil))

	all := []Name{
		TestModule, GetSystemStatus, GetTask,
		GetIntelDoc, ListIntelDocs, ListIntelDocLabels, AddIntelDocLabel, RemoveIntelDocLabel,
		CreateIntelDoc, UpdateIntelDoc, DeployIntel, GetIntelDeployStatus,
		ListAlerts, GetAlert, UpdateAlertState,
		CreateSnapshot, DeleteSnapshot, ListSnapshots, DeleteLocalSnapshot,
		ListConnections, CreateConnection, DeleteConnection, CloseConnection,
		ListLabels, GetLabel,
		ListEventsByConnection, GetEventsByProcess,
		GetProcessInfo, GetProcessChildren, GetParentProcess, GetParentProcessTree, GetProcessTree,
		ListEvidence, GetEvidenceProperties, GetEvidence, CreateEvidence, DeleteEvidence,
		ListFileDownloads, GetFileDownloadInfo, RequestFileDownload, DeleteFileDownload,
		ListFilesInDirectory, GetFileInfo, DeleteFileFromHost, GetDownloadedFile,
	}
	for _, n := range all {
		assert.True(t, r.Has(n), "missing %s", n)
	}
	assert.Len(t, r.Names(), len(all))
}

func TestRegistry_NamesSorted(t *testing.T) {
	names := newTestRegistry(newFakeAPI(nil)).Names()
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestRegistry_UnknownCommand(t *testing.T) {
	_, err := newTestRegistry(newFakeAPI(nil)).Run(context.Background(), "tanium-tr-nope", nil)
	var unknown *UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "tanium-tr-nope", unknown.Name)
}

// ─── Errors ───────────────────────────────────────────────────────────────────

func TestRun_MissingArgumentIsArgumentError(t *testing.T) {
	api := newFakeAPI(nil)
	_, err := newTestRegistry(api).Run(context.Background(), CreateSnapshot, Args{})

	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Contains(t, err.Error(), `"connection_id"`)
	assert.NotContains(t, err.Error(), "connection you have specified", "no hint for bad arguments")
	assert.Zero(t, api.count(), "nothing sent")
}

func TestRun_ArgumentErrorsCollected(t *testing.T) {
	_, err := newTestRegistry(newFakeAPI(nil)).Run(context.Background(), ListEventsByConnection,
		Args{"limit": "ten"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"limit"`)
	assert.Contains(t, err.Error(), `"connection_id"`)
	assert.Contains(t, err.Error(), `"type"`)
}

func TestRun_ConnectionCommandsAppendHint(t *testing.T) {
	api := newFakeAPI(map[string]reply{
		"POST " + responseAPI + "/conns/c1/snapshot": {err: &tanium.RequestError{
			StatusCode: http.StatusNotFound, Reason: "Not Found", Message: "no such connection"}},
	})
	_, err := newTestRegistry(api).Run(context.Background(), CreateSnapshot, Args{"connection_id": "c1"})

	require.Error(t, err)
	assert.Equal(t, "no such connection"+connectivityHint, err.Error())
	assert.True(t, tanium.IsNotFound(err), "kind survives the hint")
}

func TestRun_OtherCommandsKeepMessage(t *testing.T) {
	api := newFakeAPI(map[string]reply{
		"GET " + detectAPI + "/labels/9": {err: &tanium.RequestError{
			StatusCode: http.StatusNotFound, Message: "Label not found"}},
	})
	_, err := newTestRegistry(api).Run(context.Background(), GetLabel, Args{"label-id": "9"})
	require.Error(t, err)
	assert.Equal(t, "Label not found", err.Error())
}

func TestTestModule(t *testing.T) {
	api := newFakeAPI(nil)
	res, err := newTestRegistry(api).Run(context.Background(), TestModule, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Readable)

	api.loginErr = &tanium.AuthenticationError{StatusCode: 401, Message: "bad creds"}
	_, err = newTestRegistry(api).Run(context.Background(), TestModule, nil)
	require.Error(t, err)
	assert.True(t, tanium.IsAuthentication(err))
	assert.Contains(t, err.Error(), "please check your credentials")
	assert.True(t, errors.Is(err, api.loginErr))
}

func TestTaskContext(t *testing.T) {
	got := taskContext(map[string]any{
		"id":       "5",
		"status":   "running",
		"metadata": map[string]any{"connection": "c1"},
	})
	assert.Equal(t, map[string]any{"taskId": "5", "status": "running", "connection": "c1"}, got)
}

func TestQuerySkipsEmpty(t *testing.T) {
	q := query("a", "1", "b", "", "c", "x")
	assert.Equal(t, "a=1&c=x", q.Encode())
}
