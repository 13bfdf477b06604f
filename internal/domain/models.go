// Package domain provides the core data model for OpenAlex retrieval runs.
package domain

import (
	"sort"
	"strings"
)

// EntityKind distinguishes the two kinds of entities a retrieval can be
// scoped to.
type EntityKind string

const (
	EntityKindInstitution EntityKind = "institution"
	EntityKindAuthor      EntityKind = "author"
)

// LanguageFilter restricts retrieved works by language.
type LanguageFilter string

const (
	LanguageAll         LanguageFilter = "all"
	LanguageEnglishOnly LanguageFilter = "english_only"
)

// EntityReference identifies one selected institution or author for the
// duration of a retrieval run. Identity is the OpenAlex ID.
type EntityReference struct {
	// Kind selects the works filter predicate (institution vs author).
	Kind EntityKind `validate:"required,oneof=institution author"`

	// ID is the OpenAlex identifier, with or without the
	// https://openalex.org/ prefix (e.g. "I27837315" or the full URL).
	ID string `validate:"required"`

	// Label is the display label stamped into the provenance columns.
	Label string `validate:"required"`

	// AvgWorksPerYear is an optional size hint used by callers to
	// estimate result volume. Zero means unknown.
	AvgWorksPerYear float64
}

// RetrievalConfig holds the read-only settings for one retrieval run.
type RetrievalConfig struct {
	// StartYear and EndYear bound publication_year (inclusive).
	StartYear int `validate:"required,min=1000"`
	EndYear   int `validate:"required,gtefield=StartYear"`

	// DocTypes is the set of OpenAlex work types to fetch. Empty means
	// a single unfiltered stream per entity.
	DocTypes []string

	// Language optionally restricts works to English.
	Language LanguageFilter `validate:"omitempty,oneof=all english_only"`

	// Fields is the ordered list of metadata fields to project into
	// each row. Empty falls back to DefaultFields.
	Fields []string

	// RequestsPerSecond is the shared, global request pace.
	RequestsPerSecond float64 `validate:"required,gt=0"`

	// MaxConcurrentStreams bounds doc-type streams within one entity.
	MaxConcurrentStreams int `validate:"required,min=1"`

	// MaxConcurrentEntities bounds entity-level fetch tasks.
	MaxConcurrentEntities int `validate:"required,min=1"`

	// PageSize is the OpenAlex per_page value.
	PageSize int `validate:"required,oneof=50 100 200"`
}

// DefaultFields is the default projection used when no field list is
// configured.
var DefaultFields = []string{
	"id", "doi", "display_name", "publication_year", "type",
	"cited_by_count", "publication_date",
}

// ProjectedRow is one flat row produced from a single (work, entity)
// pair. The same work fetched via two entities yields two rows; the
// merge stage reduces them.
type ProjectedRow struct {
	// ID is the work identifier with the openalex.org prefix stripped.
	ID string

	// Fields maps each selected field name to its formatted value.
	Fields map[string]string

	// InstitutionsExtracted carries the entity label on the
	// institution path, "" on the author path.
	InstitutionsExtracted string

	// AuthorsExtracted carries the entity label on the author path.
	AuthorsExtracted string

	// PositionExtracted is First/Middle/Last/Not found on the author
	// path, "" on the institution path.
	PositionExtracted string
}

// MergedRow is one row per distinct work, with multi-entity attribution
// combined across all contributing projected rows.
type MergedRow struct {
	ID     string
	Fields map[string]string

	// InstitutionsExtracted is the sorted deduplicated pipe-joined
	// union of institution labels.
	InstitutionsExtracted string

	// AuthorsExtracted is the sorted deduplicated pipe-joined union of
	// author labels; PositionExtracted is pipe-joined in the same
	// order, so position i corresponds to author i.
	AuthorsExtracted  string
	PositionExtracted string
}

// provenanceSeparator joins multi-valued provenance columns.
const provenanceSeparator = " | "

// MergeRows groups projected rows by work identity and combines
// attribution. Institutions are unioned; each author label keeps the
// first non-empty position seen for it. Non-provenance fields come from
// the first row seen for each work. Output order is unspecified.
func MergeRows(rows []ProjectedRow) []MergedRow {
	type group struct {
		first        ProjectedRow
		institutions map[string]struct{}
		positions    map[string]string
		order        int
	}

	groups := make(map[string]*group)
	var ids []string

	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		g, ok := groups[row.ID]
		if !ok {
			g = &group{
				first:        row,
				institutions: make(map[string]struct{}),
				positions:    make(map[string]string),
			}
			groups[row.ID] = g
			ids = append(ids, row.ID)
		}

		if inst := strings.TrimSpace(row.InstitutionsExtracted); inst != "" {
			g.institutions[inst] = struct{}{}
		}
		if author := strings.TrimSpace(row.AuthorsExtracted); author != "" {
			pos := strings.TrimSpace(row.PositionExtracted)
			if existing, ok := g.positions[author]; !ok || existing == "" {
				g.positions[author] = pos
			}
		}
	}

	merged := make([]MergedRow, 0, len(groups))
	for _, id := range ids {
		g := groups[id]

		institutions := make([]string, 0, len(g.institutions))
		for inst := range g.institutions {
			institutions = append(institutions, inst)
		}
		sort.Strings(institutions)

		authors := make([]string, 0, len(g.positions))
		for author := range g.positions {
			authors = append(authors, author)
		}
		sort.Strings(authors)

		positions := make([]string, len(authors))
		for i, author := range authors {
			positions[i] = g.positions[author]
		}

		merged = append(merged, MergedRow{
			ID:                    id,
			Fields:                g.first.Fields,
			InstitutionsExtracted: strings.Join(institutions, provenanceSeparator),
			AuthorsExtracted:      strings.Join(authors, provenanceSeparator),
			PositionExtracted:     strings.Join(positions, provenanceSeparator),
		})
	}
	return merged
}
