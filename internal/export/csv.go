// Package export materializes merged rows as a delimited tabular file.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
)

// DisplayLabels maps field names to the column headers used in the
// export artifact. Fields without an entry keep their raw name.
var DisplayLabels = map[string]string{
	"id":                      "OpenAlex ID",
	"doi":                     "DOI",
	"display_name":            "Title",
	"publication_year":        "Publication Year",
	"publication_date":        "Publication Date",
	"language":                "Language",
	"type":                    "Publication Type",
	"abstract_inverted_index": "Abstract",
	"has_fulltext":            "Full Text Available",
	"is_retracted":            "Is Retracted",

	"open_access.is_oa":     "Is OA",
	"open_access.oa_status": "OA Status",
	"apc_paid.value_usd":    "Paid APC in USD",

	"primary_location.source.display_name":           "Source",
	"primary_location.source.type":                   "Source Type",
	"primary_location.source.issn":                   "ISSN",
	"primary_location.source.host_organization_name": "Publisher",
	"primary_location.pdf_url":                       "PDF",
	"primary_location.license":                       "License",

	"authorships":                   "Authors",
	"institutions":                  "Institutions",
	"raw_affiliation_strings":       "Raw Affiliations",
	"corresponding_author_ids":      "Corresponding Author IDs",
	"corresponding_institution_ids": "Corresponding Institution IDs",

	"cited_by_count":                "Citation Count",
	"counts_by_year":                "Citations by Year",
	"topics":                        "Topics",
	"primary_topic_and_score":       "Primary Topic",
	"concepts":                      "Concepts",
	"sustainable_development_goals": "SDGs",
	"grants":                        "Grants",
	"datasets":                      "Datasets",

	"biblio.volume":     "Volume",
	"biblio.issue":      "Issue",
	"biblio.first_page": "First Page",
	"biblio.last_page":  "Last Page",
}

// Provenance column headers appended after the selected fields.
const (
	institutionsHeader = "Institutions Extracted"
	authorsHeader      = "Authors Extracted"
	positionHeader     = "Author Position"
)

// Columns returns the export column order for a field selection: id
// first, then the remaining selected fields in first-seen order with
// repeats dropped, then the three provenance columns.
func Columns(fields []string) []string {
	columns := []string{"id"}
	seen := map[string]struct{}{"id": {}}
	for _, field := range fields {
		if _, ok := seen[field]; ok {
			continue
		}
		seen[field] = struct{}{}
		columns = append(columns, field)
	}
	return columns
}

// Headers returns the display labels for the given columns plus the
// provenance headers.
func Headers(columns []string) []string {
	headers := make([]string, 0, len(columns)+3)
	for _, column := range columns {
		if label, ok := DisplayLabels[column]; ok {
			headers = append(headers, label)
		} else {
			headers = append(headers, column)
		}
	}
	return append(headers, institutionsHeader, authorsHeader, positionHeader)
}

// WriteCSV writes merged rows as CSV: one row per distinct work,
// columns per Columns/Headers.
func WriteCSV(w io.Writer, rows []domain.MergedRow, fields []string) error {
	if len(fields) == 0 {
		fields = domain.DefaultFields
	}
	columns := Columns(fields)

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers(columns)); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, 0, len(columns)+3)
	for _, row := range rows {
		record = record[:0]
		for _, column := range columns {
			if column == "id" {
				record = append(record, row.ID)
				continue
			}
			record = append(record, row.Fields[column])
		}
		record = append(record, row.InstitutionsExtracted, row.AuthorsExtracted, row.PositionExtracted)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %s: %w", row.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
