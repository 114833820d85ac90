// Package matching scores tracked projects against certificate postings and decides which
// posting, if any, announces the project.
package matching

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/classifier"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registry"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var ErrNotSingleQuery = errors.New("expected exactly one query record")

// QueryStore is the slice of the query repository the matcher needs.
type QueryStore interface {
	ListOpen(ctx context.Context) ([]models.QueryRecord, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.QueryRecord, error)
	IsClosed(ctx context.Context, id string) (bool, error)
	UpdateWatermark(ctx context.Context, id string, candidateID int64) error
}

type CandidateStore interface {
	ListByPublishDate(ctx context.Context, from, to string) ([]models.CandidateRecord, error)
}

// ModelSource provides the model that currently serves match probabilities.
type ModelSource interface {
	Serving(ctx context.Context) (*classifier.Model, error)
}

// Notifier receives the best predicted match of a query.
type Notifier interface {
	NotifyMatch(ctx context.Context, query models.QueryRecord, top models.ScoredPair) error
}

// Config contains configuration for the matching service.
type Config struct {
	Threshold    float64
	LookbackDays int
}

func DefaultConfig() Config {
	return Config{Threshold: classifier.DefaultThreshold, LookbackDays: 30}
}

// QuerySelection picks the queries of a run. The zero value selects every open query;
// an explicit empty selection matches nothing.
type QuerySelection struct {
	explicit bool
	records  []models.QueryRecord
	ids      []string
}

// OpenQueries selects every query that is not yet closed.
func OpenQueries() QuerySelection { return QuerySelection{} }

// Queries selects exactly the given records.
func Queries(records ...models.QueryRecord) QuerySelection {
	return QuerySelection{explicit: true, records: append([]models.QueryRecord{}, records...)}
}

// QueryIDs selects the stored records with the given ids.
func QueryIDs(ids ...string) QuerySelection {
	return QuerySelection{explicit: true, ids: append([]string{}, ids...)}
}

// CandidateSelection picks the candidate pool. The zero value loads the publish date window.
type CandidateSelection struct {
	explicit bool
	records  []models.CandidateRecord
}

// CandidateWindow loads postings by publish date.
func CandidateWindow() CandidateSelection { return CandidateSelection{} }

// Candidates uses exactly the given records as the pool.
func Candidates(records ...models.CandidateRecord) CandidateSelection {
	return CandidateSelection{explicit: true, records: append([]models.CandidateRecord{}, records...)}
}

// MatchRequest describes one matching run.
type MatchRequest struct {
	Queries    QuerySelection
	Candidates CandidateSelection
	// Since and Until bound the publish date window, YYYY-MM-DD. Since defaults to
	// LookbackDays ago and Until to today.
	Since string
	Until string
	// FullRescan ignores the per-query watermark and scores the whole pool.
	FullRescan bool
	// DryRun scores and ranks without notifying or moving watermarks.
	DryRun bool
}

// QueryOutcome is the result of one query within a run.
type QueryOutcome struct {
	QueryID   string              `json:"query_id"`
	Pairs     []models.ScoredPair `json:"pairs"`
	Top       *models.ScoredPair  `json:"top,omitempty"`
	Notified  bool                `json:"notified"`
	Skipped   string              `json:"skipped,omitempty"`
	Error     string              `json:"error,omitempty"`
	Watermark int64               `json:"watermark"`
}

// MatchResults is the concatenated decision table of a run.
type MatchResults struct {
	RunID       string              `json:"run_id"`
	NothingToDo bool                `json:"nothing_to_do"`
	Since       string              `json:"since"`
	Until       string              `json:"until"`
	Candidates  int                 `json:"candidates"`
	Pairs       []models.ScoredPair `json:"pairs"`
	Outcomes    []QueryOutcome      `json:"outcomes"`
	Matches     int                 `json:"matches"`
	Failed      int                 `json:"failed"`
}

// Service runs matching over tracked projects.
type Service struct {
	log        ectologger.Logger
	queries    QueryStore
	candidates CandidateStore
	models     ModelSource
	notifier   Notifier
	builder    *Builder
	cfg        Config
	now        func() time.Time
}

// NewService creates a new matching service. notifier may be nil.
func NewService(
	log ectologger.Logger,
	queries QueryStore,
	candidates CandidateStore,
	models ModelSource,
	notifier Notifier,
	cfg Config,
) *Service {
	return &Service{
		log:        log,
		queries:    queries,
		candidates: candidates,
		models:     models,
		notifier:   notifier,
		builder:    NewBuilder(),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Match scores every selected query against the candidate pool. Each query is isolated: a
// failure is logged, counted and reported in its outcome while the run continues.
func (s *Service) Match(ctx context.Context, req MatchRequest) (*MatchResults, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.Match")
	defer span.End()

	if fctx.GetRunID(ctx) == "" {
		ctx = fctx.SetRunID(ctx, uuid.NewString())
	}

	start := time.Now()
	results, err := s.match(ctx, req)

	outcome := "completed"
	switch {
	case err != nil:
		outcome = "failed"
	case results.NothingToDo:
		outcome = "nothing_to_do"
	}
	metrics.RecordMatchRun(outcome, time.Since(start).Seconds())
	return results, err
}

// MatchOne runs a single query. Selecting zero or several queries is a caller error.
func (s *Service) MatchOne(ctx context.Context, req MatchRequest) (*QueryOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.MatchOne")
	defer span.End()

	queries, err := s.resolveQueries(ctx, req.Queries)
	if err != nil {
		return nil, err
	}
	if len(queries) != 1 {
		return nil, httperror.WrapError(http.StatusBadRequest, fmt.Errorf("%w, got %d", ErrNotSingleQuery, len(queries)))
	}

	req.Queries = Queries(queries...)
	results, err := s.Match(ctx, req)
	if err != nil {
		return nil, err
	}
	if results.NothingToDo || len(results.Outcomes) == 0 {
		return &QueryOutcome{QueryID: queries[0].ID, Pairs: []models.ScoredPair{}, Skipped: "nothing to do"}, nil
	}
	return &results.Outcomes[0], nil
}

func (s *Service) match(ctx context.Context, req MatchRequest) (*MatchResults, error) {
	since, until := s.window(req)
	runID := fctx.GetRunID(ctx)
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"run_id": runID,
		"since":  since,
		"until":  until,
	})

	results := &MatchResults{RunID: runID, Since: since, Until: until, Pairs: []models.ScoredPair{}, Outcomes: []QueryOutcome{}}

	queries, err := s.resolveQueries(ctx, req.Queries)
	if err != nil {
		log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to load query records")
		metrics.RecordFailure(metrics.CategoryStore, "match")
		return nil, err
	}
	if len(queries) == 0 {
		log.Debug("No queries to match")
		results.NothingToDo = true
		return results, nil
	}

	pool := req.Candidates.records
	if !req.Candidates.explicit {
		pool, err = s.candidates.ListByPublishDate(ctx, since, until)
		if err != nil {
			log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to load candidate records")
			metrics.RecordFailure(metrics.CategoryStore, "match")
			return nil, err
		}
	}
	results.Candidates = len(pool)
	if len(pool) == 0 {
		log.Info("No candidates in window, nothing to do")
		results.NothingToDo = true
		return results, nil
	}

	model, err := s.servingModel(ctx)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"query_count":     len(queries),
		"candidate_count": len(pool),
	}).Info("Matching queries against candidates")

	for _, query := range queries {
		outcome := s.matchQuery(ctx, query, pool, model, req)
		if outcome.Error != "" {
			results.Failed++
		}
		if outcome.Top != nil {
			results.Matches++
		}
		results.Pairs = append(results.Pairs, outcome.Pairs...)
		results.Outcomes = append(results.Outcomes, outcome)
	}

	log.WithFields(map[string]any{
		"pair_count":  len(results.Pairs),
		"match_count": results.Matches,
		"failed":      results.Failed,
	}).Info("Matching run complete")
	return results, nil
}

func (s *Service) resolveQueries(ctx context.Context, sel QuerySelection) ([]models.QueryRecord, error) {
	switch {
	case !sel.explicit:
		return s.queries.ListOpen(ctx)
	case len(sel.ids) > 0:
		return s.queries.ListByIDs(ctx, sel.ids)
	default:
		return sel.records, nil
	}
}

func (s *Service) window(req MatchRequest) (string, string) {
	now := s.now()
	since, until := req.Since, req.Until
	if until == "" {
		until = now.Format(time.DateOnly)
	}
	if since == "" {
		since = now.AddDate(0, 0, -s.cfg.LookbackDays).Format(time.DateOnly)
	}
	return since, until
}

// servingModel loads the serving model and checks it against the features the builder
// produces. A nil model means no model has been adopted yet; pairs are then ranked by
// total_score.
func (s *Service) servingModel(ctx context.Context) (*classifier.Model, error) {
	log := s.log.WithContext(ctx)

	model, err := s.models.Serving(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrSlotEmpty) {
			log.Warn("No serving model, ranking by total score")
			return nil, nil
		}
		log.WithError(err).WithField("category", metrics.CategoryArtifact).Error("Failed to load serving model")
		metrics.RecordFailure(metrics.CategoryArtifact, "match")
		return nil, err
	}

	if err := model.CheckFeatures(FeatureNames()); err != nil {
		log.WithError(err).WithFields(map[string]any{
			"category": metrics.CategoryArtifact,
			"model":    model.Name,
		}).Error("Serving model does not fit the feature pipeline")
		metrics.RecordFailure(metrics.CategoryArtifact, "match")
		return nil, err
	}
	return model, nil
}

func (s *Service) matchQuery(ctx context.Context, query models.QueryRecord, pool []models.CandidateRecord, model *classifier.Model, req MatchRequest) (outcome QueryOutcome) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.matchQuery")
	defer span.End()

	log := s.log.WithContext(ctx).WithField("query_id", query.ID)
	outcome = QueryOutcome{QueryID: query.ID, Pairs: []models.ScoredPair{}, Watermark: query.LastSeenCandidateID}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("category", metrics.CategoryScoring).Errorf("Recovered from scoring panic: %v", r)
			metrics.RecordQuery("failed", 0)
			metrics.RecordFailure(metrics.CategoryScoring, "match")
			outcome = QueryOutcome{QueryID: query.ID, Pairs: []models.ScoredPair{}, Watermark: query.LastSeenCandidateID, Error: fmt.Sprint(r)}
		}
	}()

	var pairs []models.ScoredPair
	watermark := query.LastSeenCandidateID
	if req.FullRescan {
		pairs = s.builder.Build(query, pool)
		for _, c := range pool {
			watermark = max(watermark, c.ID)
		}
	} else {
		pairs, watermark = s.builder.BuildIncremental(query, pool)
	}

	multiPhase := IsMultiPhaseProned(query.City, query.Title)
	for i := range pairs {
		pairs[i].MultiPhaseProned = multiPhase
		prob, err := s.probability(model, pairs[i])
		if err != nil {
			log.WithError(err).WithField("category", metrics.CategoryScoring).Error("Failed to score pair")
			metrics.RecordQuery("failed", len(pairs))
			metrics.RecordFailure(metrics.CategoryScoring, "match")
			outcome.Error = err.Error()
			return outcome
		}
		pairs[i].Probability = prob
		pairs[i].Prediction = classifier.PredictMatch(prob, multiPhase, s.cfg.Threshold)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Probability > pairs[j].Probability
	})
	outcome.Pairs = pairs
	outcome.Watermark = watermark
	metrics.RecordQuery("ok", len(pairs))

	if len(pairs) > 0 && pairs[0].Prediction == 1 {
		top := pairs[0]
		outcome.Top = &top
		metrics.RecordMatch(multiPhase)
		if !req.DryRun {
			outcome.Notified, outcome.Skipped = s.notify(ctx, query, top)
		}
	}

	// an undelivered match must be seen again by the next incremental run
	if outcome.Top != nil && !outcome.Notified && undelivered(outcome.Skipped) {
		watermark = min(watermark, outcome.Top.CandidateID-1)
		outcome.Watermark = watermark
	}

	if !req.DryRun && watermark > query.LastSeenCandidateID {
		if err := s.queries.UpdateWatermark(ctx, query.ID, watermark); err != nil {
			log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to persist watermark")
			metrics.RecordFailure(metrics.CategoryStore, "match")
		}
	}

	log.WithFields(map[string]any{
		"pair_count": len(pairs),
		"matched":    outcome.Top != nil,
		"watermark":  watermark,
	}).Debug("Scored query")
	return outcome
}

const (
	skipClosedUnknown = "closed flag unavailable"
	skipNotifyFailed  = "notify failed"
)

func undelivered(skipped string) bool {
	return skipped == skipClosedUnknown || skipped == skipNotifyFailed
}

func (s *Service) probability(model *classifier.Model, pair models.ScoredPair) (float64, error) {
	if model == nil {
		return pair.Score(TotalScoreFeature), nil
	}
	return model.PredictPair(pair)
}

// notify forwards the top pair unless the query was resolved while the run was scoring.
func (s *Service) notify(ctx context.Context, query models.QueryRecord, top models.ScoredPair) (bool, string) {
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"query_id":     query.ID,
		"candidate_id": top.CandidateID,
		"probability":  top.Probability,
	})

	closed, err := s.queries.IsClosed(ctx, query.ID)
	if err != nil {
		log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to re-read closed flag")
		metrics.RecordFailure(metrics.CategoryStore, "notify")
		return false, skipClosedUnknown
	}
	if closed {
		log.Info("Query resolved during run, skipping notification")
		return false, "closed"
	}

	if s.notifier == nil {
		return false, "no notifier"
	}
	if err := s.notifier.NotifyMatch(ctx, query, top); err != nil {
		log.WithError(err).WithField("category", metrics.CategoryNotify).Error("Failed to send match notification")
		metrics.RecordFailure(metrics.CategoryNotify, "notify")
		return false, skipNotifyFailed
	}

	log.Info("Match found")
	return true, ""
}
