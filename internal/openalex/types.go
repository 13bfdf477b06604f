// Package openalex provides a rate-limited client for the OpenAlex API.
//
// OpenAlex is a free, open catalog of scholarly works, authors and
// institutions. This package covers the two endpoint families the
// retriever consumes: cursor-paginated works queries and author
// search/detail lookups.
//
// API documentation: https://docs.openalex.org/
package openalex

import (
	"encoding/json"
	"errors"
)

// CursorStart is the sentinel cursor for the first page of a works
// query.
const CursorStart = "*"

// WorksResponse is the top-level response from the works endpoint.
type WorksResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta contains result counts and the continuation cursor. NextCursor
// is empty or null when no further pages exist.
type Meta struct {
	Count      int    `json:"count"`
	PerPage    int    `json:"per_page"`
	NextCursor string `json:"next_cursor"`
}

// Work is one scholarly work record. Raw holds the decoded JSON object
// for dotted-path field lookups beyond the typed surface.
type Work struct {
	ID              string `json:"id"`
	DOI             string `json:"doi"`
	DisplayName     string `json:"display_name"`
	PublicationYear int    `json:"publication_year"`
	PublicationDate string `json:"publication_date"`
	Type            string `json:"type"`
	Language        string `json:"language"`
	CitedByCount    int    `json:"cited_by_count"`

	Authorships                 []Authorship     `json:"authorships"`
	AbstractInvertedIndex       map[string][]int `json:"abstract_inverted_index"`
	CorrespondingAuthorIDs      []string         `json:"corresponding_author_ids"`
	CorrespondingInstitutionIDs []string         `json:"corresponding_institution_ids"`
	CountsByYear                []YearCount      `json:"counts_by_year"`
	Topics                      []Topic          `json:"topics"`
	PrimaryTopic                *Topic           `json:"primary_topic"`
	Concepts                    []Concept        `json:"concepts"`
	SDGs                        []Topic          `json:"sustainable_development_goals"`
	Grants                      []Grant          `json:"grants"`
	Datasets                    []string         `json:"datasets"`

	// Raw is the full decoded record, populated by UnmarshalJSON.
	Raw map[string]any `json:"-"`
}

// UnmarshalJSON decodes both the typed fields and the raw object. A
// wrong-typed field in one record is left at its zero value instead of
// failing the page it arrived on; only structurally invalid JSON is an
// error.
func (w *Work) UnmarshalJSON(data []byte) error {
	type alias Work
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return err
		}
	}
	*w = Work(a)

	if err := json.Unmarshal(data, &w.Raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return err
		}
		w.Raw = nil
	}
	return nil
}

// Authorship is one (author, institutions, position) association within
// a work.
type Authorship struct {
	AuthorPosition         string        `json:"author_position"`
	Author                 AuthorRef     `json:"author"`
	Institutions           []Institution `json:"institutions"`
	RawAffiliationStrings  []string      `json:"raw_affiliation_strings"`
	IsCorresponding        bool          `json:"is_corresponding"`
	CountriesDistinctCount int           `json:"countries_distinct_count"`
}

// AuthorRef identifies the author within an authorship.
type AuthorRef struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	ORCID       string `json:"orcid"`
}

// Institution is one institution attached to an authorship.
type Institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	CountryCode string `json:"country_code"`
}

// YearCount is one entry of a citation-by-year series.
type YearCount struct {
	Year         int `json:"year"`
	CitedByCount int `json:"cited_by_count"`
}

// Topic is a scored topic, SDG or primary-topic entry.
type Topic struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
}

// Concept is a scored concept with its hierarchy level.
type Concept struct {
	DisplayName string  `json:"display_name"`
	Score       float64 `json:"score"`
	Level       int     `json:"level"`
}

// Grant is one funding acknowledgement on a work.
type Grant struct {
	FunderDisplayName string `json:"funder_display_name"`
	AwardID           string `json:"award_id"`
}

// AuthorsResponse is the top-level response from the authors endpoint.
type AuthorsResponse struct {
	Meta    Meta     `json:"meta"`
	Results []Author `json:"results"`
}

// Author is one author profile from the authors endpoint.
type Author struct {
	ID                    string        `json:"id"`
	DisplayName           string        `json:"display_name"`
	ORCID                 string        `json:"orcid"`
	WorksCount            int           `json:"works_count"`
	CitedByCount          int           `json:"cited_by_count"`
	Affiliations          []Affiliation `json:"affiliations"`
	LastKnownInstitutions []Institution `json:"last_known_institutions"`
	Topics                []Topic       `json:"topics"`
}

// Affiliation is one historical institution association on an author
// profile.
type Affiliation struct {
	Institution Institution `json:"institution"`
	Years       []int       `json:"years"`
}
