package models

// NormalizedRecord is the canonical attribute view shared by query and candidate records.
type NormalizedRecord struct {
	JobNumber          string       `json:"job_number"`
	City               string       `json:"city"`
	StreetNumber       string       `json:"street_number"`
	StreetName         string       `json:"street_name"`
	Title              string       `json:"title"`
	Owner              string       `json:"owner"`
	Contractor         string       `json:"contractor"`
	Certifier          string       `json:"certifier"`
	OwnerAcronyms      []string     `json:"owner_acronyms,omitempty"`
	ContractorAcronyms []string     `json:"contractor_acronyms,omitempty"`
	OwnerInitials      string       `json:"owner_initials,omitempty"`
	ContractorInitials string       `json:"contractor_initials,omitempty"`
	Location           *Coordinates `json:"location,omitempty"`
}

// Attribute returns the canonical value for one of the matcher's attribute names.
func (r NormalizedRecord) Attribute(name string) string {
	switch name {
	case "contractor":
		return r.Contractor
	case "street_name":
		return r.StreetName
	case "street_number":
		return r.StreetNumber
	case "title":
		return r.Title
	case "city":
		return r.City
	case "owner":
		return r.Owner
	case "certifier":
		return r.Certifier
	case "job_number":
		return r.JobNumber
	default:
		return ""
	}
}
