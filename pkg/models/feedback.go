package models

const (
	FeedbackSourceFeedback = "feedback"
	FeedbackSourceInput    = "input"
)

// FeedbackRecord is a human-confirmed or human-denied match outcome.
// Unique per (QueryID, CandidateID); the latest write wins.
type FeedbackRecord struct {
	QueryID     string `json:"query_id" db:"query_id" validate:"required"`
	CandidateID int64  `json:"candidate_id" db:"candidate_id" validate:"required,gt=0"`
	GroundTruth int    `json:"ground_truth" db:"ground_truth" validate:"oneof=0 1"`
	MultiPhase  int    `json:"multi_phase" db:"multi_phase" validate:"oneof=0 1"`
	Validate    int    `json:"validate" db:"validate" validate:"oneof=0 1"`
	Source      string `json:"source" db:"source" validate:"omitempty,oneof=feedback input"`
	LogDate     string `json:"log_date" db:"log_date" validate:"omitempty,datetime=2006-01-02"`
}
