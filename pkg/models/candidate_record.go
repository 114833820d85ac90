package models

// CandidateRecord is one externally sourced certificate posting. Ids increase monotonically.
type CandidateRecord struct {
	ID          int64    `json:"id" db:"id"`
	PublishDate string   `json:"publish_date" db:"publish_date"`
	JobNumber   string   `json:"job_number" db:"job_number"`
	City        string   `json:"city" db:"city"`
	Address     string   `json:"address" db:"address"`
	Title       string   `json:"title" db:"title"`
	Owner       string   `json:"owner" db:"owner"`
	Contractor  string   `json:"contractor" db:"contractor"`
	Certifier   string   `json:"certifier" db:"certifier"`
	Latitude    *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude   *float64 `json:"longitude,omitempty" db:"longitude"`
	Source      string   `json:"source" db:"source"`
	URL         string   `json:"url" db:"url"`
}

func (c CandidateRecord) Location() *Coordinates {
	return newCoordinates(c.Latitude, c.Longitude)
}

// CandidatePosting is the scraper's message shape on the candidate intake topic.
type CandidatePosting struct {
	ID          int64    `json:"id" validate:"required,gt=0"`
	PublishDate string   `json:"publish_date" validate:"required"`
	JobNumber   string   `json:"job_number"`
	City        string   `json:"city"`
	Address     string   `json:"address"`
	Title       string   `json:"title"`
	Owner       string   `json:"owner"`
	Contractor  string   `json:"contractor"`
	Certifier   string   `json:"certifier"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Source      string   `json:"source" validate:"required"`
	URL         string   `json:"url"`
}

// Coordinates is a lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func newCoordinates(lat, lng *float64) *Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	return &Coordinates{Lat: *lat, Lng: *lng}
}

// ToRecord converts a posting into the stored record shape.
func (p CandidatePosting) ToRecord() CandidateRecord {
	return CandidateRecord{
		ID:          p.ID,
		PublishDate: p.PublishDate,
		JobNumber:   p.JobNumber,
		City:        p.City,
		Address:     p.Address,
		Title:       p.Title,
		Owner:       p.Owner,
		Contractor:  p.Contractor,
		Certifier:   p.Certifier,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		Source:      p.Source,
		URL:         p.URL,
	}
}
