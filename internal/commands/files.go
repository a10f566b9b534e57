package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
)

const fileDownloadOutput = "Tanium.FileDownload(val.uuid === obj.uuid)"

var (
	fileDownloadHeaders = []string{"path", "evidenceType", "hostname", "processCreationTime", "size"}
	dispositionFilename = regexp.MustCompile(`(?s)filename=(.*)$`)
)

func fileCommands() []command {
	return []command{
		{name: ListFileDownloads, run: bound(listFileDownloads)},
		{name: GetFileDownloadInfo, run: bound(getFileDownloadInfo)},
		{name: RequestFileDownload, needsConnection: true, run: bound(requestFileDownload)},
		{name: DeleteFileDownload, run: bound(deleteFileDownload)},
		{name: ListFilesInDirectory, needsConnection: true, run: bound(listFilesInDirectory)},
		{name: GetFileInfo, needsConnection: true, run: bound(getFileInfo)},
		{name: DeleteFileFromHost, needsConnection: true, run: bound(deleteFileFromHost)},
		{name: GetDownloadedFile, run: bound(getDownloadedFile)},
	}
}

// renameEvidenceType moves evidenceType to evidence_type so camelKey maps
// it back consistently with the other snake_case fields.
func renameEvidenceType(file map[string]any) {
	if v := file["evidenceType"]; !isEmpty(v) {
		file["evidence_type"] = v
		delete(file, "evidenceType")
	}
}

func listFileDownloads(ctx context.Context, api API, a *sortedPage) (*Result, error) {
	q := query("limit", strconv.Itoa(a.Limit), "offset", strconv.Itoa(a.Offset), "sort", a.Sort)
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/filedownload", q, nil)
	if err != nil {
		return nil, err
	}

	files := asList(asMap(res.Value)["fileEvidence"])
	for _, f := range files {
		renameEvidenceType(asMap(f))
	}
	contextData := buildContext(files, camelKey)
	return &Result{
		Readable: markdownTable("File downloads", contextData, fileDownloadHeaders),
		Outputs:  map[string]any{fileDownloadOutput: contextData},
		Raw:      res.Value,
	}, nil
}

type fileIDArgs struct {
	FileID string
}

func (a *fileIDArgs) bind(r *argReader) {
	a.FileID = r.required("file_id")
}

func getFileDownloadInfo(ctx context.Context, api API, a *fileIDArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodGet, responseAPI+"/filedownload/"+a.FileID, nil, nil)
	if err != nil {
		return nil, err
	}

	file := asMap(asMap(res.Value)["evidence"])
	renameEvidenceType(file)
	contextData := buildContext(file, camelKey)
	return &Result{
		Readable: markdownTable("File download", contextData, fileDownloadHeaders),
		Outputs:  map[string]any{fileDownloadOutput: contextData},
		Raw:      res.Value,
	}, nil
}

type filePathArgs struct {
	connArgs
	Path string
}

func (a *filePathArgs) bind(r *argReader) {
	a.connArgs.bind(r)
	a.Path = r.required("path")
}

func requestFileDownload(ctx context.Context, api API, a *filePathArgs) (*Result, error) {
	res, err := call(ctx, api, http.MethodPost, responseAPI+"/conns/"+a.ConnectionID+"/file", nil,
		map[string]any{"path": a.Path})
	if err != nil {
		return nil, err
	}

	readable := fmt.Sprintf("Download request of file %s has been sent successfully.", path.Base(a.Path))
	contextData := map[string]any{}
	if id := gjson.GetBytes(res.Body, "taskInfo.id"); id.Exists() && id.String() != "" {
		readable += fmt.Sprintf(" Task id: %s.", id.String())
		contextData = taskContext(asMap(asMap(res.Value)["taskInfo"]))
	}
	return &Result{
		Readable: readable,
		Outputs: map[string]any{
			"Tanium.FileDownloadTask(val.id === obj.id && val.connection === obj.connection)": contextData,
		},
		Raw: res.Value,
	}, nil
}

func deleteFileDownload(ctx context.Context, api API, a *fileIDArgs) (*Result, error) {
	if _, err := call(ctx, api, http.MethodDelete, responseAPI+"/filedownload/"+a.FileID, nil, nil); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Delete request of file with ID %s has been sent successfully.", a.FileID)}, nil
}

type listFilesArgs struct {
	page
	filePathArgs
}

func (a *listFilesArgs) bind(r *argReader) {
	a.page.bind(r)
	a.filePathArgs.bind(r)
}

func listFilesInDirectory(ctx context.Context, api API, a *listFilesArgs) (*Result, error) {
	p := fmt.Sprintf("%s/conns/%s/file/list/%s", responseAPI, a.ConnectionID, url.PathEscape(a.Path))
	res, err := call(ctx, api, http.MethodGet, p, nil, nil)
	if err != nil {
		return nil, err
	}

	files := paginate(asList(asMap(res.Value)["entries"]), a.Offset, a.Limit)
	for _, f := range files {
		m := asMap(f)
		m["connectionId"] = a.ConnectionID
		m["path"] = a.Path
		convertTimestamps(m, "createdDate", "modifiedDate")
	}
	return &Result{
		Readable: markdownTable(fmt.Sprintf("Files in directory `%s`", a.Path), files, nil),
		Outputs: map[string]any{
			"Tanium.File(val.name === obj.name && val.connection_id === obj.connection_id)": buildContext(files, nil),
		},
		Raw: res.Value,
	}, nil
}

func getFileInfo(ctx context.Context, api API, a *filePathArgs) (*Result, error) {
	p := fmt.Sprintf("%s/conns/%s/file/info/%s", responseAPI, a.ConnectionID, url.PathEscape(a.Path))
	res, err := call(ctx, api, http.MethodGet, p, nil, nil)
	if err != nil {
		return nil, err
	}

	raw := asMap(res.Value)
	info := make(map[string]any)
	for k, v := range asMap(raw["info"]) {
		info[k] = v
	}
	convertTimestamps(info, "createdDate", "modifiedDate")

	contextData := make(map[string]any, len(raw)+len(info))
	for k, v := range raw {
		contextData[k] = v
	}
	contextData["connection_id"] = a.ConnectionID
	if len(info) > 0 {
		for k, v := range info {
			contextData[k] = v
		}
		delete(contextData, "info")
	}
	return &Result{
		Readable: markdownTable(fmt.Sprintf("Information for file `%s`", a.Path), info, nil),
		Outputs: map[string]any{
			"Tanium.File(val.path === obj.path && val.connection_id === obj.connection_id)": contextData,
		},
		Raw: res.Value,
	}, nil
}

// escapeFilePath escapes each segment of p and keeps the separators.
func escapeFilePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func deleteFileFromHost(ctx context.Context, api API, a *filePathArgs) (*Result, error) {
	p := fmt.Sprintf("%s/conns/%s/file/delete/%s", responseAPI, a.ConnectionID, escapeFilePath(a.Path))
	if _, err := call(ctx, api, http.MethodDelete, p, nil, nil); err != nil {
		return nil, err
	}
	return &Result{Readable: fmt.Sprintf("Delete request of file %s from endpoint %s has been sent successfully.",
		a.Path, a.ConnectionID)}, nil
}

// getDownloadedFile fetches the collected file bytes; the name comes from
// the Content-Disposition header.
func getDownloadedFile(ctx context.Context, api API, a *fileIDArgs) (*Result, error) {
	out, err := api.Execute(ctx, tanium.Request{
		Method: http.MethodGet,
		Path:   responseAPI + "/filedownload/data/" + a.FileID,
		Shape:  tanium.ShapeBinary,
	})
	if err != nil {
		return nil, err
	}
	b, _ := out.(tanium.Binary)
	m := dispositionFilename.FindStringSubmatch(b.Disposition)
	if !b.HasDisposition || m == nil {
		return nil, errors.New("downloaded file has no filename in its Content-Disposition header")
	}
	name := strings.Trim(m[1], `"`)
	return &Result{
		Readable: fmt.Sprintf("File %s downloaded.", name),
		File:     &File{Name: name, Content: b.Body},
	}, nil
}
