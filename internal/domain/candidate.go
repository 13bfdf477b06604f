package domain

// NameQuery is one uploaded author name awaiting disambiguation.
type NameQuery struct {
	FirstName string
	LastName  string

	// ORCID is searched first when present; a name search follows
	// unless the ORCID matches already fill the candidate cap.
	ORCID string
}

// CandidateProfile is a snapshot of one OpenAlex author profile offered
// for disambiguation. No publications are fetched at this stage.
type CandidateProfile struct {
	// ID is the short OpenAlex author ID (e.g. "A5023888391").
	ID string

	DisplayName string

	// ORCID is the bare ORCID, without the orcid.org prefix.
	ORCID string

	// WorksCount is the profile's total work count.
	WorksCount int

	// Affiliations holds "Name (CC)" strings: up to three historical
	// affiliations followed by up to two last-known institutions.
	Affiliations []string

	// Topics holds up to five top topic names.
	Topics []string
}

// CandidateSet pairs an input name with the profiles found for it.
type CandidateSet struct {
	Query      NameQuery
	Candidates []CandidateProfile

	// Err records a resolution failure for this name; other names are
	// unaffected.
	Err error
}
