// Package v1 holds the versioned event envelope shared by the API, the worker
// and downstream consumers of drop events.
package v1

import (
	"encoding/json"
	"time"
)

// Envelope wraps every event the service emits. Fields may be added but never
// renamed or removed within v1.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}

// Decode unmarshals Data into target.
func (e Envelope) Decode(target any) error {
	return json.Unmarshal(e.Data, target)
}
