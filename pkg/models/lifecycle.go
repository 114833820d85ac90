package models

// ResultsEntry is one append-only row of the lifecycle results ledger.
type ResultsEntry struct {
	ID             string  `json:"id" db:"id"`
	RunDate        string  `json:"run_date" db:"run_date"`
	ModelSlot      string  `json:"model_slot" db:"model_slot"`
	ModelName      string  `json:"model_name" db:"model_name"`
	TruePositives  int     `json:"true_positives" db:"true_positives"`
	FalsePositives int     `json:"false_positives" db:"false_positives"`
	FalseNegatives int     `json:"false_negatives" db:"false_negatives"`
	TrueNegatives  int     `json:"true_negatives" db:"true_negatives"`
	Recall         float64 `json:"recall" db:"recall_score"`
	Precision      float64 `json:"precision" db:"precision_score"`
	ProbFloor      float64 `json:"prob_floor" db:"prob_floor"`
	Promoted       bool    `json:"promoted" db:"promoted"`
	CreatedAt      string  `json:"created_at" db:"created_at"`
}

// Source maps a candidate source tag to its display name.
type Source struct {
	Name        string `json:"name" db:"name"`
	DisplayName string `json:"display_name" db:"display_name"`
	BaseURL     string `json:"base_url" db:"base_url"`
}
