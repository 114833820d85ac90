// Package lifecycle trains challenger models from feedback and promotes them over the incumbent
// only when they miss no known match on held-out data.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/classifier"
	fctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registry"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var (
	ErrNoPositives      = errors.New("no confirmed matches to learn from")
	ErrSingleClass      = errors.New("training set holds a single class")
	ErrNoValidationData = errors.New("no held-out confirmed matches to validate against")
	ErrInvalidConfig    = errors.New("invalid lifecycle config")
)

// FeedbackSource lists confirmed matches, split by the validate flag.
type FeedbackSource interface {
	ListConfirmed(ctx context.Context, validate int) ([]models.FeedbackRecord, error)
}

type QueryLookup interface {
	ListByIDs(ctx context.Context, ids []string) ([]models.QueryRecord, error)
}

type CandidateLookup interface {
	ListByIDs(ctx context.Context, ids []int64) ([]models.CandidateRecord, error)
	ListByPublishDate(ctx context.Context, from, to string) ([]models.CandidateRecord, error)
}

type ResultsLedger interface {
	Append(ctx context.Context, entry models.ResultsEntry) (*models.ResultsEntry, error)
}

// ModelStore is the slot storage models are saved to and promoted within.
type ModelStore interface {
	Save(ctx context.Context, slot string, model *classifier.Model) error
	Load(ctx context.Context, slot string) (*classifier.Model, error)
	Exists(slot string) bool
	Promote(ctx context.Context) error
	ArchiveChallenger(ctx context.Context) (string, error)
}

// Config tunes training and validation.
type Config struct {
	// StaleFrom and StaleTo bound a publish date window of postings known not to match any
	// tracked project. Negatives are drawn from it.
	StaleFrom string
	StaleTo   string
	// MaxNegativesPerQuery caps the stale sample drawn for each confirmed query.
	MaxNegativesPerQuery int
	Oversample           bool
	Folds                int
	ExcludeFeatures      []string
	Threshold            float64
	Seed                 int64
	Fit                  classifier.FitOptions
}

func DefaultConfig() Config {
	return Config{
		StaleFrom:            "2018-01-01",
		StaleTo:              "2018-12-31",
		MaxNegativesPerQuery: 50,
		Oversample:           true,
		Folds:                3,
		ExcludeFeatures:      []string{matching.TotalScoreFeature, matching.OwnerAcronymFeature, matching.ContractorAcronymFeature},
		Threshold:            classifier.DefaultThreshold,
		Seed:                 42,
		Fit:                  classifier.DefaultFitOptions(),
	}
}

// Validate rejects excluded feature names the matching pipeline never produces.
func (c Config) Validate() error {
	for _, name := range c.ExcludeFeatures {
		if !matching.IsFeatureName(name) {
			return fmt.Errorf("%w: cannot exclude unknown feature %q", ErrInvalidConfig, name)
		}
	}
	if c.Folds < 0 {
		return fmt.Errorf("%w: folds must not be negative, got %d", ErrInvalidConfig, c.Folds)
	}
	return nil
}

// TrainingRow is one scored pair with its known label.
type TrainingRow struct {
	Pair  models.ScoredPair
	Label int
}

// TrainingSet holds labelled pairs and the feature names they carry.
type TrainingSet struct {
	Features  []string
	Rows      []TrainingRow
	Positives int
}

type Manager struct {
	cfg        Config
	feedback   FeedbackSource
	queries    QueryLookup
	candidates CandidateLookup
	results    ResultsLedger
	models     ModelStore
	builder    *matching.Builder
	logger     ectologger.Logger
	now        func() time.Time
}

func NewManager(
	cfg Config,
	feedback FeedbackSource,
	queries QueryLookup,
	candidates CandidateLookup,
	results ResultsLedger,
	store ModelStore,
	logger ectologger.Logger,
) *Manager {
	return &Manager{
		cfg:        cfg,
		feedback:   feedback,
		queries:    queries,
		candidates: candidates,
		results:    results,
		models:     store,
		builder:    matching.NewBuilder(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// BuildTrainingSet labels confirmed, non-held-out matches against stale negatives.
func (m *Manager) BuildTrainingSet(ctx context.Context) (*TrainingSet, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Manager.BuildTrainingSet")
	defer span.End()

	return m.buildSet(ctx, 0, rand.New(rand.NewSource(m.cfg.Seed)))
}

func (m *Manager) buildSet(ctx context.Context, validate int, rng *rand.Rand) (*TrainingSet, error) {
	log := m.logger.WithContext(ctx).WithField("validate", validate)

	confirmed, err := m.feedback.ListConfirmed(ctx, validate)
	if err != nil {
		return nil, err
	}
	if len(confirmed) == 0 {
		return nil, ErrNoPositives
	}

	queryIDs := ectolinq.Map(confirmed, func(f models.FeedbackRecord) string { return f.QueryID })
	candidateIDs := ectolinq.Map(confirmed, func(f models.FeedbackRecord) int64 { return f.CandidateID })

	queries, err := m.queries.ListByIDs(ctx, queryIDs)
	if err != nil {
		return nil, err
	}
	truths, err := m.candidates.ListByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, err
	}
	stale, err := m.candidates.ListByPublishDate(ctx, m.cfg.StaleFrom, m.cfg.StaleTo)
	if err != nil {
		return nil, err
	}

	queryByID := make(map[string]models.QueryRecord, len(queries))
	for _, q := range queries {
		queryByID[q.ID] = q
	}
	truthByID := make(map[int64]models.CandidateRecord, len(truths))
	for _, c := range truths {
		truthByID[c.ID] = c
	}

	sampleSize := min(len(confirmed), len(stale))
	if m.cfg.MaxNegativesPerQuery > 0 {
		sampleSize = min(sampleSize, m.cfg.MaxNegativesPerQuery)
	}

	set := &TrainingSet{Features: matching.FeatureNames()}
	skipped := 0
	for _, f := range confirmed {
		query, ok := queryByID[f.QueryID]
		truth, found := truthByID[f.CandidateID]
		if !ok || !found {
			skipped++
			continue
		}

		pool := []models.CandidateRecord{truth}
		for _, i := range rng.Perm(len(stale))[:sampleSize] {
			pool = append(pool, stale[i])
		}

		for _, pair := range m.builder.Build(query, pool) {
			label := 0
			if pair.CandidateID == f.CandidateID {
				label = 1
				set.Positives++
			}
			set.Rows = append(set.Rows, TrainingRow{Pair: pair, Label: label})
		}
	}

	if skipped > 0 {
		log.WithField("skipped", skipped).Warn("Feedback references missing records")
	}
	if set.Positives == 0 {
		return nil, ErrNoPositives
	}

	log.WithFields(map[string]any{
		"rows":      len(set.Rows),
		"positives": set.Positives,
		"stale":     len(stale),
	}).Info("Built labelled set")
	return set, nil
}

// SelectFeatures keeps the score columns a model may train on, in pipeline order.
func SelectFeatures(names, exclude []string) []string {
	return ectolinq.Filter(names, func(name string) bool {
		return matching.HasScoreSuffix(name) && !slices.Contains(exclude, name)
	})
}

// Train fits a challenger on the set and saves it to the challenger slot.
func (m *Manager) Train(ctx context.Context, set *TrainingSet) (*classifier.Model, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Manager.Train")
	defer span.End()

	log := m.logger.WithContext(ctx)
	features := SelectFeatures(set.Features, m.cfg.ExcludeFeatures)

	x := make([][]float64, len(set.Rows))
	y := make([]int, len(set.Rows))
	for i, row := range set.Rows {
		x[i] = row.Pair.Features(features)
		y[i] = row.Label
	}
	if set.Positives == 0 || set.Positives == len(set.Rows) {
		return nil, ErrSingleClass
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	if m.cfg.Folds > 1 {
		summary, err := classifier.CrossValidate(features, x, y, m.cfg.Folds, m.cfg.Threshold, m.cfg.Oversample, m.cfg.Fit, rng)
		if err != nil {
			log.WithError(err).Warn("Skipping cross-validation")
		} else {
			for _, fold := range summary.Folds {
				log.WithFields(map[string]any{
					"fold":      fold.Fold,
					"recall":    fold.Recall,
					"precision": fold.Precision,
					"f1":        fold.F1,
				}).Debug("Cross-validation fold")
			}
			log.WithFields(map[string]any{
				"folds":     len(summary.Folds),
				"recall":    summary.Recall,
				"precision": summary.Precision,
				"f1":        summary.F1,
			}).Info("Cross-validation complete")
		}
	}

	if m.cfg.Oversample {
		x, y = classifier.RandomOversample(x, y, rng)
	}

	name := "challenger-" + m.now().Format("20060102T150405Z")
	model, err := classifier.Fit(name, features, x, y, m.cfg.Fit)
	if err != nil {
		return nil, err
	}

	if err := m.models.Save(ctx, registry.SlotChallenger, model); err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{
		"model":    model.Name,
		"features": features,
		"rows":     len(x),
	}).Info("Trained challenger")
	return model, nil
}

// Decision is the outcome of the promotion gate.
type Decision string

const (
	DecisionPromote Decision = "promote"
	DecisionReject  Decision = "reject"
	DecisionAdopt   Decision = "adopt"
)

// GateDecision promotes a challenger only when it missed no known match.
func GateDecision(confusion classifier.Confusion) Decision {
	if confusion.FalseNegatives == 0 {
		return DecisionPromote
	}
	return DecisionReject
}

// Evaluation is one model's result on the held-out set.
type Evaluation struct {
	Model     string
	Confusion classifier.Confusion
	ProbFloor float64
}

// ValidationReport is the outcome of Validate.
type ValidationReport struct {
	Decision   Decision
	Archive    string
	Challenger Evaluation
	Incumbent  *Evaluation
}

// Validate scores the challenger, and the incumbent when present, on held-out matches and
// stale negatives, then promotes or archives the challenger.
func (m *Manager) Validate(ctx context.Context) (*ValidationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Manager.Validate")
	defer span.End()

	log := m.logger.WithContext(ctx)

	challenger, err := m.models.Load(ctx, registry.SlotChallenger)
	if err != nil {
		return nil, err
	}

	set, err := m.buildSet(ctx, 1, rand.New(rand.NewSource(m.cfg.Seed+1)))
	if errors.Is(err, ErrNoPositives) {
		return nil, ErrNoValidationData
	}
	if err != nil {
		return nil, err
	}

	report := &ValidationReport{}
	report.Challenger, err = m.evaluate(challenger, set)
	if err != nil {
		return nil, err
	}

	hasIncumbent := m.models.Exists(registry.SlotIncumbent)
	if hasIncumbent {
		incumbent, err := m.models.Load(ctx, registry.SlotIncumbent)
		if err != nil {
			log.WithError(err).WithField("category", metrics.CategoryArtifact).Error("Failed to load incumbent for comparison")
		} else if eval, err := m.evaluate(incumbent, set); err != nil {
			log.WithError(err).WithField("category", metrics.CategoryScoring).Error("Failed to score incumbent")
		} else {
			report.Incumbent = &eval
		}
	}

	switch {
	case !hasIncumbent:
		report.Decision = DecisionAdopt
	default:
		report.Decision = GateDecision(report.Challenger.Confusion)
	}
	metrics.RecordGateDecision(string(report.Decision))

	gateLog := log.WithFields(map[string]any{
		"decision":        report.Decision,
		"model":           challenger.Name,
		"true_positives":  report.Challenger.Confusion.TruePositives,
		"false_negatives": report.Challenger.Confusion.FalseNegatives,
		"false_positives": report.Challenger.Confusion.FalsePositives,
		"prob_floor":      report.Challenger.ProbFloor,
	})

	if report.Decision == DecisionReject {
		report.Archive, err = m.models.ArchiveChallenger(ctx)
		if err != nil {
			return nil, err
		}
		gateLog.WithField("category", metrics.CategoryGate).Warn("Challenger missed confirmed matches, archived")
	} else {
		if err := m.models.Promote(ctx); err != nil {
			return nil, err
		}
		gateLog.Info("Challenger installed as incumbent")
	}

	m.recordResults(ctx, report)
	return report, nil
}

func (m *Manager) evaluate(model *classifier.Model, set *TrainingSet) (Evaluation, error) {
	eval := Evaluation{Model: model.Name, ProbFloor: 0}
	predictions := make([]int, len(set.Rows))
	labels := make([]int, len(set.Rows))
	floor := -1.0

	for i, row := range set.Rows {
		prob, err := model.PredictPair(row.Pair)
		if err != nil {
			return eval, fmt.Errorf("score %s: %w", model.Name, err)
		}
		predictions[i] = classifier.PredictMatch(prob, false, m.cfg.Threshold)
		labels[i] = row.Label
		if predictions[i] == 1 && row.Label == 1 && (floor < 0 || prob < floor) {
			floor = prob
		}
	}

	eval.Confusion = classifier.NewConfusion(predictions, labels)
	if floor >= 0 {
		eval.ProbFloor = floor
	}
	return eval, nil
}

func (m *Manager) recordResults(ctx context.Context, report *ValidationReport) {
	runDate := m.now().Format(time.DateOnly)
	entries := []models.ResultsEntry{resultsEntry(runDate, registry.SlotChallenger, report.Challenger, report.Decision != DecisionReject)}
	if report.Incumbent != nil {
		entries = append(entries, resultsEntry(runDate, registry.SlotIncumbent, *report.Incumbent, false))
	}

	for _, entry := range entries {
		if _, err := m.results.Append(ctx, entry); err != nil {
			m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"category":   metrics.CategoryStore,
				"model_slot": entry.ModelSlot,
			}).Error("Failed to append lifecycle result")
			metrics.RecordFailure(metrics.CategoryStore, "results")
		}
	}
}

func resultsEntry(runDate, slot string, eval Evaluation, promoted bool) models.ResultsEntry {
	return models.ResultsEntry{
		RunDate:        runDate,
		ModelSlot:      slot,
		ModelName:      eval.Model,
		TruePositives:  eval.Confusion.TruePositives,
		FalsePositives: eval.Confusion.FalsePositives,
		FalseNegatives: eval.Confusion.FalseNegatives,
		TrueNegatives:  eval.Confusion.TrueNegatives,
		Recall:         eval.Confusion.Recall(),
		Precision:      eval.Confusion.Precision(),
		ProbFloor:      eval.ProbFloor,
		Promoted:       promoted,
	}
}

// RunReport summarizes one lifecycle run. Stages that failed are listed in Skipped.
type RunReport struct {
	RunID        string
	TrainingRows int
	Challenger   string
	Validation   *ValidationReport
	Skipped      []string
	Adopted      bool
}

// Run builds, trains and validates. Each stage fails soft: the failure is logged and the
// stages that depend on it are skipped. The serving model is never left undefined: without
// an incumbent, a freshly trained challenger is adopted even when validation cannot run.
func (m *Manager) Run(ctx context.Context) (*RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.Manager.Run")
	defer span.End()

	runID := uuid.NewString()
	ctx = fctx.SetRunID(ctx, runID)
	log := m.logger.WithContext(ctx).WithField("run_id", runID)
	report := &RunReport{RunID: runID}

	set, err := m.BuildTrainingSet(ctx)
	if err != nil {
		m.stageFailed(ctx, report, "build", categoryFor(err), err)
		report.Skipped = append(report.Skipped, "train", "validate")
		return report, nil
	}
	metrics.RecordLifecycleStage("build", "ok")
	report.TrainingRows = len(set.Rows)

	model, err := m.Train(ctx, set)
	if err != nil {
		m.stageFailed(ctx, report, "train", categoryFor(err), err)
		report.Skipped = append(report.Skipped, "validate")
		return report, nil
	}
	metrics.RecordLifecycleStage("train", "ok")
	report.Challenger = model.Name

	validation, err := m.Validate(ctx)
	if err != nil {
		m.stageFailed(ctx, report, "validate", categoryFor(err), err)
		if !m.models.Exists(registry.SlotIncumbent) {
			if err := m.models.Promote(ctx); err != nil {
				log.WithError(err).WithField("category", metrics.CategoryArtifact).Error("Failed to adopt challenger")
				return report, err
			}
			report.Adopted = true
			log.WithField("model", model.Name).Warn("Adopted unvalidated challenger, no incumbent to serve")
		}
		return report, nil
	}
	metrics.RecordLifecycleStage("validate", "ok")
	report.Validation = validation

	log.WithFields(map[string]any{
		"challenger": report.Challenger,
		"decision":   validation.Decision,
		"rows":       report.TrainingRows,
	}).Info("Lifecycle run complete")
	return report, nil
}

func (m *Manager) stageFailed(ctx context.Context, report *RunReport, stage, category string, err error) {
	report.Skipped = append(report.Skipped, stage)
	metrics.RecordLifecycleStage(stage, "failed")
	metrics.RecordFailure(category, stage)
	m.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"category": category,
		"stage":    stage,
	}).Error("Lifecycle stage failed")
}

func categoryFor(err error) string {
	switch {
	case errors.Is(err, registry.ErrSlotEmpty), errors.Is(err, classifier.ErrFeatureMismatch):
		return metrics.CategoryArtifact
	case errors.Is(err, ErrNoPositives), errors.Is(err, ErrSingleClass), errors.Is(err, ErrNoValidationData),
		errors.Is(err, classifier.ErrNoTrainingData):
		return metrics.CategoryScoring
	default:
		return metrics.CategoryStore
	}
}
