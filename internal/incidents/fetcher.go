package incidents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tanium-adapter/internal/metrics"
	"github.com/Checker-Finance/tanium-adapter/internal/tanium"
	"github.com/Checker-Finance/tanium-adapter/pkg/model"
)

const (
	alertsPath = "/plugin/products/detect3/api/v1/alerts"
	intelsPath = "/plugin/products/detect3/api/v1/intels/"
)

// API is the part of *tanium.Client the fetcher uses.
type API interface {
	Execute(ctx context.Context, req tanium.Request) (tanium.Outcome, error)
}

// CursorStore persists the fetch position per instance.
type CursorStore interface {
	LoadCursor(ctx context.Context, instance string) (*model.Cursor, error)
	SaveCursor(ctx context.Context, instance string, cursor model.Cursor) error
}

// IncidentLog records every emitted incident.
type IncidentLog interface {
	RecordIncidents(ctx context.Context, instance string, incidents []model.Incident) error
}

// Sink delivers incidents downstream.
type Sink interface {
	PublishIncidents(ctx context.Context, incidents []model.Incident) error
}

type Options struct {
	Instance   string
	States     []string
	FirstFetch time.Duration
	Max        int
	Logger     *zap.Logger
}

// Fetcher turns new Threat Response alerts into incidents. FetchOnce calls
// are serialized so concurrent callers never deliver the same batch twice.
type Fetcher struct {
	mu sync.Mutex

	api     API
	cursors CursorStore
	log     IncidentLog
	sink    Sink

	instance   string
	states     []string
	firstFetch time.Duration
	max        int
	logger     *zap.Logger
	now        func() time.Time
}

// NewFetcher validates the alert states up front. sink and log may be nil.
func NewFetcher(api API, cursors CursorStore, sink Sink, log IncidentLog, opts Options) (*Fetcher, error) {
	states, err := tanium.NormalizeAlertStates(opts.States)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.Max
	if limit <= 0 {
		limit = 50
	}
	return &Fetcher{
		api:        api,
		cursors:    cursors,
		log:        log,
		sink:       sink,
		instance:   opts.Instance,
		states:     states,
		firstFetch: opts.FirstFetch,
		max:        limit,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// FetchOnce pulls alerts newer than the cursor, delivers them and advances
// the cursor. The cursor only moves after the sink accepted the batch.
func (f *Fetcher) FetchOnce(ctx context.Context) ([]model.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	incidents, next, err := f.collect(ctx)
	if err != nil {
		f.logger.Error("incidents.fetch_failed", zap.String("instance", f.instance), zap.Error(err))
		return nil, err
	}

	if f.sink != nil && len(incidents) > 0 {
		if err := f.sink.PublishIncidents(ctx, incidents); err != nil {
			f.logger.Error("incidents.publish_failed",
				zap.String("instance", f.instance),
				zap.Int("count", len(incidents)),
				zap.Error(err))
			return nil, err
		}
	}
	if f.log != nil && len(incidents) > 0 {
		if err := f.log.RecordIncidents(ctx, f.instance, incidents); err != nil {
			f.logger.Warn("incidents.record_failed", zap.Error(err))
		}
	}

	if err := f.cursors.SaveCursor(ctx, f.instance, next); err != nil {
		f.logger.Error("incidents.cursor_save_failed", zap.Error(err))
		return nil, fmt.Errorf("save cursor: %w", err)
	}

	metrics.AddIncidentsFetched(len(incidents))
	f.logger.Info("incidents.fetched",
		zap.String("instance", f.instance),
		zap.Int("count", len(incidents)),
		zap.String("cursor_time", next.Time),
		zap.Int64("cursor_id", next.ID))
	return incidents, nil
}

func (f *Fetcher) collect(ctx context.Context) ([]model.Incident, model.Cursor, error) {
	cursor, err := f.cursors.LoadCursor(ctx, f.instance)
	if err != nil {
		return nil, model.Cursor{}, fmt.Errorf("load cursor: %w", err)
	}
	if cursor == nil {
		cursor = &model.Cursor{Time: f.now().UTC().Add(-f.firstFetch).Format(model.CursorTimeLayout)}
	}
	lastFetch, err := cursor.ParsedTime()
	if err != nil {
		return nil, model.Cursor{}, fmt.Errorf("bad cursor time %q: %w", cursor.Time, err)
	}
	since := lastFetch
	lastID := cursor.ID

	f.logger.Debug("incidents.cursor_loaded",
		zap.Time("last_time", lastFetch),
		zap.Int64("last_id", lastID))

	out, err := f.api.Execute(ctx, tanium.Request{
		Method: http.MethodGet,
		Path:   alertsPath,
		Query:  url.Values{"state": f.states},
	})
	if err != nil {
		return nil, model.Cursor{}, err
	}
	res, _ := out.(tanium.Structured)
	alerts, _ := res.Value.([]any)

	names := map[string]string{}
	var incidents []model.Incident
	for _, a := range alerts {
		alert, ok := a.(map[string]any)
		if !ok {
			continue
		}
		inc, err := f.toIncident(ctx, alert, names)
		if err != nil {
			return nil, model.Cursor{}, err
		}
		occurred, err := time.Parse(time.RFC3339Nano, inc.Occurred)
		if err != nil {
			f.logger.Warn("incidents.bad_timestamp",
				zap.Int64("alert_id", inc.AlertID),
				zap.String("created_at", inc.Occurred))
			continue
		}

		if occurred.After(lastFetch) {
			lastFetch = occurred
		}
		// The alert query has no time filter, so both checks are needed to
		// skip alerts emitted by an earlier run.
		if occurred.After(since) && inc.AlertID > lastID {
			incidents = append(incidents, inc)
			lastID = inc.AlertID
		}
		if len(incidents) >= f.max {
			break
		}
	}

	next := model.Cursor{Time: lastFetch.UTC().Format(model.CursorTimeLayout), ID: lastID}
	return incidents, next, nil
}

// toIncident names the alert after its host and intel doc. names caches
// intel doc lookups for one fetch.
func (f *Fetcher) toIncident(ctx context.Context, alert map[string]any, names map[string]string) (model.Incident, error) {
	if details, ok := alert["details"].(string); ok && details != "" {
		var decoded any
		if err := json.Unmarshal([]byte(details), &decoded); err == nil {
			alert["details"] = decoded
		}
	}

	intelDoc := ""
	if id := stringOf(alert["intelDocId"]); id != "" {
		name, ok := names[id]
		if !ok {
			out, err := f.api.Execute(ctx, tanium.Request{Method: http.MethodGet, Path: intelsPath + id})
			if err != nil {
				return model.Incident{}, fmt.Errorf("intel doc %s: %w", id, err)
			}
			doc, _ := out.(tanium.Structured)
			name = gjson.GetBytes(doc.Body, "name").String()
			names[id] = name
		}
		intelDoc = name
	}

	raw, err := json.Marshal(alert)
	if err != nil {
		return model.Incident{}, err
	}
	alertID, _ := strconv.ParseInt(stringOf(alert["id"]), 10, 64)
	return model.Incident{
		AlertID:  alertID,
		Name:     fmt.Sprintf("%s found %s", stringOf(alert["computerName"]), intelDoc),
		Occurred: stringOf(alert["createdAt"]),
		RawJSON:  raw,
	}, nil
}

func stringOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}
