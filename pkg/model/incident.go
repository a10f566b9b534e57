package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CursorTimeLayout is how the fetch cursor stores its high-water mark.
const CursorTimeLayout = "2006-01-02T15:04:05.000000Z"

// Incident is one Threat Response alert converted for downstream triage.
type Incident struct {
	AlertID  int64           `json:"alert_id"`
	Name     string          `json:"name"`
	Occurred string          `json:"occurred"`
	RawJSON  json.RawMessage `json:"raw_json"`
}

// Cursor is the fetch position: the newest alert time seen and the highest
// alert id already emitted.
type Cursor struct {
	Time string `json:"time"`
	ID   int64  `json:"id"`
}

// ParsedTime returns Time as a time.Time.
func (c Cursor) ParsedTime() (time.Time, error) {
	return time.Parse(CursorTimeLayout, c.Time)
}

// Envelope wraps an event for the message bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Instance      string          `json:"instance"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	EventTypeIncident = "edr.incident.created"
	EnvelopeVersion   = "1.0.0"
)

// NewIncidentEnvelope wraps inc for topic. Incidents of one fetch share
// correlationID.
func NewIncidentEnvelope(inc Incident, instance, topic string, correlationID uuid.UUID) (*Envelope, error) {
	payload, err := json.Marshal(inc)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:            uuid.New(),
		CorrelationID: correlationID,
		Instance:      instance,
		Topic:         topic,
		EventType:     EventTypeIncident,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}, nil
}
