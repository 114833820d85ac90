// Package events publishes match notifications to the notification collaborator.
package events

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher writes events to the notification topic.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// SourceLookup resolves a candidate source tag to its display record.
type SourceLookup interface {
	GetByName(ctx context.Context, name string) (*models.Source, error)
}

// Emitter turns predicted matches into match.found events.
type Emitter struct {
	publisher Publisher
	sources   SourceLookup
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter. sources may be nil, in which case the raw source
// tag is used as the label.
func NewEmitter(publisher Publisher, sources SourceLookup, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		sources:   sources,
		logger:    logger,
	}
}

// NotifyMatch publishes a match.found event keyed by the query id.
func (e *Emitter) NotifyMatch(ctx context.Context, query models.QueryRecord, top models.ScoredPair) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.NotifyMatch")
	defer span.End()

	event := MatchFoundEvent{
		BaseEvent: NewBaseEvent(EventTypeMatchFound),
		Query:     query,
		Match: MatchedPosting{
			CandidateID:      top.CandidateID,
			Probability:      top.Probability,
			MultiPhaseProned: top.MultiPhaseProned,
			Scores:           top.Scores,
		},
		Candidate: top.Candidate,
	}

	if top.Candidate != nil {
		event.Source = top.Candidate.Source
		event.SourceLabel = top.Candidate.Source
		event.URL = top.Candidate.URL
		e.label(ctx, &event)
	}

	err := e.publisher.Publish(ctx, kafka.Event{
		Type:    string(EventTypeMatchFound),
		Key:     query.ID,
		Payload: event,
	})
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("query_id", query.ID).Error("Failed to emit match.found event")
		return err
	}
	return nil
}

func (e *Emitter) label(ctx context.Context, event *MatchFoundEvent) {
	if e.sources == nil || event.Source == "" {
		return
	}

	src, err := e.sources.GetByName(ctx, event.Source)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("source", event.Source).Warn("Failed to resolve source label")
		return
	}
	if src == nil {
		return
	}

	if src.DisplayName != "" {
		event.SourceLabel = src.DisplayName
	}
	if event.URL == "" {
		event.URL = src.BaseURL
	}
}
