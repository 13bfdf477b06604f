package retrieve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

// fieldErrorPlaceholder replaces a single field's value when its
// formatter fails; the rest of the row is unaffected.
const fieldErrorPlaceholder = "[field processing error]"

// FieldFormatter turns one work into the formatted value for one field.
type FieldFormatter func(w *openalex.Work) string

// fieldRegistry maps field names with dedicated formatting to their
// formatter. Any other field name is resolved as a dotted path into the
// raw record. New fields are added here, not in dispatch logic.
var fieldRegistry = map[string]FieldFormatter{
	"id": func(w *openalex.Work) string {
		return openalex.StripIDPrefix(w.ID)
	},
	"doi": func(w *openalex.Work) string {
		return openalex.StripDOIPrefix(w.DOI)
	},
	"display_name": func(w *openalex.Work) string {
		return CleanText(w.DisplayName)
	},
	"abstract_inverted_index": func(w *openalex.Work) string {
		return FormatAbstract(w.AbstractInvertedIndex)
	},
	"authorships": func(w *openalex.Work) string {
		return FormatAuthors(w.Authorships)
	},
	"institutions": func(w *openalex.Work) string {
		return FormatInstitutions(w.Authorships)
	},
	"raw_affiliation_strings": func(w *openalex.Work) string {
		return FormatRawAffiliations(w.Authorships)
	},
	"primary_topic_and_score": func(w *openalex.Work) string {
		if w.PrimaryTopic == nil || w.PrimaryTopic.DisplayName == "" {
			return ""
		}
		return fmt.Sprintf("%s ; %.4f", w.PrimaryTopic.DisplayName, w.PrimaryTopic.Score)
	},
	"primary_location.source.issn": func(w *openalex.Work) string {
		return joinNestedList(w.Raw, "primary_location.source.issn", ",")
	},
	"corresponding_author_ids": func(w *openalex.Work) string {
		return joinIDs(w.CorrespondingAuthorIDs)
	},
	"corresponding_institution_ids": func(w *openalex.Work) string {
		return joinIDs(w.CorrespondingInstitutionIDs)
	},
	"counts_by_year": func(w *openalex.Work) string {
		return FormatCountsByYear(w.CountsByYear)
	},
	"topics": func(w *openalex.Work) string {
		return FormatTopics(w.Topics)
	},
	"concepts": func(w *openalex.Work) string {
		return FormatConcepts(w.Concepts)
	},
	"sustainable_development_goals": func(w *openalex.Work) string {
		return FormatSDGs(w.SDGs)
	},
	"grants": func(w *openalex.Work) string {
		return FormatGrants(w.Grants)
	},
	"datasets": func(w *openalex.Work) string {
		return strings.Join(w.Datasets, ", ")
	},
}

// RegisteredFields returns the sorted names of fields with dedicated
// formatters.
func RegisteredFields() []string {
	fields := make([]string, 0, len(fieldRegistry))
	for name := range fieldRegistry {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}

// Project maps one raw work plus the selected field list into a flat
// row stamped with the triggering entity's identity. On the author path
// it also records the author's position in the work's author list. It
// never panics and does not mutate the work; a failing formatter
// degrades that single field to a placeholder.
func Project(work *openalex.Work, entity domain.EntityReference, fields []string) domain.ProjectedRow {
	row := domain.ProjectedRow{
		ID:     openalex.StripIDPrefix(work.ID),
		Fields: make(map[string]string, len(fields)),
	}

	switch entity.Kind {
	case domain.EntityKindAuthor:
		row.AuthorsExtracted = entity.Label
		row.PositionExtracted = AuthorPosition(work.Authorships, entity.ID)
	default:
		row.InstitutionsExtracted = entity.Label
	}

	for _, field := range fields {
		row.Fields[field] = safeFieldValue(work, field)
	}
	return row
}

// safeFieldValue formats one field, catching panics at single-field
// granularity.
func safeFieldValue(work *openalex.Work, field string) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = fieldErrorPlaceholder
		}
	}()

	if formatter, ok := fieldRegistry[field]; ok {
		return formatter(work)
	}
	return stringifyNested(nestedValue(work.Raw, field))
}

// nestedValue descends a dotted key path through the decoded record,
// returning nil if any segment is absent or not an object.
func nestedValue(data map[string]any, path string) any {
	if len(data) == 0 || path == "" {
		return nil
	}

	var value any = data
	for _, key := range strings.Split(path, ".") {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		value = obj[key]
		if value == nil {
			return nil
		}
	}
	return value
}

// stringifyNested converts a nested-lookup result to its flat string
// form. Strings are cleaned, scalars stringified, nil becomes "".
func stringifyNested(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return CleanText(v)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return CleanText(fmt.Sprint(v))
	}
}

// joinNestedList joins a nested string-list value with the given
// separator.
func joinNestedList(data map[string]any, path, sep string) string {
	list, ok := nestedValue(data, path).([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

// joinIDs pipe-joins identifiers with their URL prefix stripped.
func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = openalex.StripIDPrefix(id)
	}
	return strings.Join(parts, listSeparator)
}
