package models

// QueryRecord is one tracked project awaiting a matching public certificate.
type QueryRecord struct {
	ID                  string   `json:"id" db:"id"`
	JobNumber           string   `json:"job_number" db:"job_number"`
	City                string   `json:"city" db:"city"`
	Address             string   `json:"address" db:"address"`
	Title               string   `json:"title" db:"title"`
	Owner               string   `json:"owner" db:"owner"`
	Contractor          string   `json:"contractor" db:"contractor"`
	Certifier           string   `json:"certifier" db:"certifier"`
	SubmittedDate       string   `json:"submitted_date" db:"submitted_date"`
	Latitude            *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude           *float64 `json:"longitude,omitempty" db:"longitude"`
	Closed              bool     `json:"closed" db:"closed"`
	LastSeenCandidateID int64    `json:"last_seen_candidate_id" db:"last_seen_candidate_id"`
}

// Location returns the record's coordinates, nil when either is missing.
func (q QueryRecord) Location() *Coordinates {
	return newCoordinates(q.Latitude, q.Longitude)
}

// CreateQueryRecordRequest is the intake shape for a new tracked project.
type CreateQueryRecordRequest struct {
	ID            string   `json:"id" validate:"required"`
	JobNumber     string   `json:"job_number"`
	City          string   `json:"city" validate:"required"`
	Address       string   `json:"address"`
	Title         string   `json:"title" validate:"required"`
	Owner         string   `json:"owner"`
	Contractor    string   `json:"contractor"`
	Certifier     string   `json:"certifier"`
	SubmittedDate string   `json:"submitted_date" validate:"omitempty,datetime=2006-01-02"`
	Latitude      *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

func (r CreateQueryRecordRequest) ToRecord() QueryRecord {
	return QueryRecord{
		ID:            r.ID,
		JobNumber:     r.JobNumber,
		City:          r.City,
		Address:       r.Address,
		Title:         r.Title,
		Owner:         r.Owner,
		Contractor:    r.Contractor,
		Certifier:     r.Certifier,
		SubmittedDate: r.SubmittedDate,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
	}
}
