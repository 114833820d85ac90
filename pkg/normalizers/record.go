package normalizers

import "github.com/Ramsey-B/fern/pkg/models"

// FieldChains names the registered normalizers applied, in order, to each record field.
var FieldChains = map[string][]string{
	"job_number":    {"trim", "job_number"},
	"city":          {"collapse_whitespace", "city"},
	"street_number": {"collapse_whitespace", "street_number"},
	"street_name":   {"collapse_whitespace", "street_name"},
	"title":         {"collapse_whitespace", "title"},
	"company":       {"collapse_whitespace", "company"},
}

type rawFields struct {
	jobNumber, city, address, title, owner, contractor, certifier string
	location                                                      *models.Coordinates
}

// NormalizeQuery builds the canonical view of a tracked project.
func NormalizeQuery(q models.QueryRecord) models.NormalizedRecord {
	return normalizeFields(rawFields{
		jobNumber:  q.JobNumber,
		city:       q.City,
		address:    q.Address,
		title:      q.Title,
		owner:      q.Owner,
		contractor: q.Contractor,
		certifier:  q.Certifier,
		location:   q.Location(),
	})
}

// NormalizeCandidate builds the canonical view of a certificate posting.
func NormalizeCandidate(c models.CandidateRecord) models.NormalizedRecord {
	return normalizeFields(rawFields{
		jobNumber:  c.JobNumber,
		city:       c.City,
		address:    c.Address,
		title:      c.Title,
		owner:      c.Owner,
		contractor: c.Contractor,
		certifier:  c.Certifier,
		location:   c.Location(),
	})
}

func normalizeFields(f rawFields) models.NormalizedRecord {
	field := func(value, chain string) string {
		return ApplyChain(value, FieldChains[chain]...)
	}

	return models.NormalizedRecord{
		JobNumber:          field(f.jobNumber, "job_number"),
		City:               field(f.city, "city"),
		StreetNumber:       field(f.address, "street_number"),
		StreetName:         field(f.address, "street_name"),
		Title:              field(f.title, "title"),
		Owner:              field(f.owner, "company"),
		Contractor:         field(f.contractor, "company"),
		Certifier:          field(f.certifier, "company"),
		OwnerAcronyms:      Acronyms(f.owner),
		ContractorAcronyms: Acronyms(f.contractor),
		OwnerInitials:      Initials(f.owner),
		ContractorInitials: Initials(f.contractor),
		Location:           f.location,
	}
}
