package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeMatchFound EventType = "match.found"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
}

// MatchFoundEvent announces the best predicted posting for a tracked project.
type MatchFoundEvent struct {
	BaseEvent
	Query       models.QueryRecord      `json:"query"`
	Match       MatchedPosting          `json:"match"`
	Candidate   *models.CandidateRecord `json:"candidate,omitempty"`
	Source      string                  `json:"source"`
	SourceLabel string                  `json:"source_label"`
	URL         string                  `json:"url,omitempty"`
}

// MatchedPosting is the scored pair without the embedded candidate.
type MatchedPosting struct {
	CandidateID      int64              `json:"candidate_id"`
	Probability      float64            `json:"probability"`
	MultiPhaseProned bool               `json:"multi_phase_proned"`
	Scores           map[string]float64 `json:"scores"`
}

// NewBaseEvent creates a base event with common fields
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		Timestamp:     time.Now().UTC(),
	}
}
