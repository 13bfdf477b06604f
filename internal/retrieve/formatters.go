// Package retrieve implements the retrieval pipeline: field
// formatting, record projection, per-entity cursor fetching and
// cross-entity aggregation.
package retrieve

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

const listSeparator = " | "

// unknownValue substitutes missing display names, types and country
// codes in formatted output.
const unknownValue = "Unknown"

// CleanText strips control and line-break characters, collapses
// whitespace runs to a single space and trims the ends. It is
// idempotent and returns "" for empty input.
func CleanText(s string) string {
	if s == "" {
		return s
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r <= 0x1f, r >= 0x7f && r <= 0x9f:
			return ' '
		case r == '\u2028', r == '\u2029':
			return ' '
		default:
			return r
		}
	}, s)
	return strings.Join(strings.Fields(cleaned), " ")
}

// FormatAbstract reconstructs an abstract from OpenAlex's inverted
// index: each word maps to the token positions where it occurs. Words
// are emitted in ascending position order with a single sort, so large
// abstracts stay linear-logarithmic.
func FormatAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	total := 0
	for _, positions := range invertedIndex {
		total += len(positions)
	}
	if total == 0 {
		return ""
	}

	pairs := make([]posWord, 0, total)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].pos < pairs[j].pos
	})

	var builder strings.Builder
	builder.Grow(total * 7)
	for i, pair := range pairs {
		if i > 0 {
			builder.WriteByte(' ')
		}
		builder.WriteString(pair.word)
	}
	return CleanText(builder.String())
}

// FormatAuthors renders the author list, appending " (corresponding)"
// to corresponding authors.
func FormatAuthors(authorships []openalex.Authorship) string {
	if len(authorships) == 0 {
		return ""
	}

	authors := make([]string, 0, len(authorships))
	for _, authorship := range authorships {
		name := strings.TrimSpace(authorship.Author.DisplayName)
		if name == "" {
			name = unknownValue
		}
		if authorship.IsCorresponding {
			name += " (corresponding)"
		}
		authors = append(authors, name)
	}
	return strings.Join(authors, listSeparator)
}

// FormatInstitutions renders every institution across all authorships
// as "Name ; Type ; CountryCode (id)", deduplicated by identifier with
// the first occurrence winning.
func FormatInstitutions(authorships []openalex.Authorship) string {
	if len(authorships) == 0 {
		return ""
	}

	seen := make(map[string]struct{})
	var institutions []string

	for _, authorship := range authorships {
		for _, inst := range authorship.Institutions {
			if inst.ID == "" {
				continue
			}
			if _, ok := seen[inst.ID]; ok {
				continue
			}
			seen[inst.ID] = struct{}{}

			name := orUnknown(inst.DisplayName)
			instType := orUnknown(inst.Type)
			country := orUnknown(inst.CountryCode)
			institutions = append(institutions,
				fmt.Sprintf("%s ; %s ; %s (%s)", name, instType, country, openalex.StripIDPrefix(inst.ID)))
		}
	}
	return strings.Join(institutions, listSeparator)
}

// FormatRawAffiliations collects all raw affiliation strings across
// authorships, cleans and NFC-normalizes each, then joins the sorted
// deduplicated set.
func FormatRawAffiliations(authorships []openalex.Authorship) string {
	if len(authorships) == 0 {
		return ""
	}

	set := make(map[string]struct{})
	for _, authorship := range authorships {
		for _, affiliation := range authorship.RawAffiliationStrings {
			cleaned := CleanText(strings.TrimSpace(affiliation))
			if cleaned == "" {
				continue
			}
			set[norm.NFC.String(cleaned)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return ""
	}

	affiliations := make([]string, 0, len(set))
	for affiliation := range set {
		affiliations = append(affiliations, affiliation)
	}
	sort.Strings(affiliations)
	return strings.Join(affiliations, listSeparator)
}

// FormatCountsByYear renders citation counts as "count (year)" sorted
// by year descending.
func FormatCountsByYear(counts []openalex.YearCount) string {
	if len(counts) == 0 {
		return ""
	}

	sorted := make([]openalex.YearCount, len(counts))
	copy(sorted, counts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Year > sorted[j].Year
	})

	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = fmt.Sprintf("%d (%d)", c.CitedByCount, c.Year)
	}
	return strings.Join(parts, listSeparator)
}

// FormatTopics renders scored topics as "name ; score" with four
// decimal places.
func FormatTopics(topics []openalex.Topic) string {
	return formatScored(topics, 4)
}

// FormatSDGs renders sustainable development goals as "name ; score"
// with two decimal places.
func FormatSDGs(sdgs []openalex.Topic) string {
	return formatScored(sdgs, 2)
}

func formatScored(entries []openalex.Topic, decimals int) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, len(entries))
	for i, entry := range entries {
		parts[i] = fmt.Sprintf("%s ; %.*f", orUnknown(entry.DisplayName), decimals, entry.Score)
	}
	return strings.Join(parts, listSeparator)
}

// FormatConcepts renders concepts as "name ; score (level N)", grouped
// by ascending level, keeping input order within each level.
func FormatConcepts(concepts []openalex.Concept) string {
	if len(concepts) == 0 {
		return ""
	}

	byLevel := make(map[int][]string)
	var levels []int
	for _, concept := range concepts {
		if _, ok := byLevel[concept.Level]; !ok {
			levels = append(levels, concept.Level)
		}
		byLevel[concept.Level] = append(byLevel[concept.Level],
			fmt.Sprintf("%s ; %.4f (level %d)", orUnknown(concept.DisplayName), concept.Score, concept.Level))
	}
	sort.Ints(levels)

	var parts []string
	for _, level := range levels {
		parts = append(parts, byLevel[level]...)
	}
	return strings.Join(parts, listSeparator)
}

// FormatGrants renders grants as "funder (award_id)", or the bare
// funder name when no award id is present, joined with ", ".
func FormatGrants(grants []openalex.Grant) string {
	if len(grants) == 0 {
		return ""
	}

	parts := make([]string, len(grants))
	for i, grant := range grants {
		funder := orUnknown(grant.FunderDisplayName)
		if grant.AwardID != "" {
			parts[i] = fmt.Sprintf("%s (%s)", funder, grant.AwardID)
		} else {
			parts[i] = funder
		}
	}
	return strings.Join(parts, ", ")
}

// Author position values produced by AuthorPosition.
const (
	PositionFirst    = "First"
	PositionMiddle   = "Middle"
	PositionLast     = "Last"
	PositionNotFound = "Not found"
)

// AuthorPosition locates the author with the given OpenAlex ID in a
// work's authorship list (suffix match against the normalized id) and
// classifies the match by index.
func AuthorPosition(authorships []openalex.Authorship, authorID string) string {
	target := strings.ToLower(openalex.StripIDPrefix(authorID))
	if target == "" {
		return PositionNotFound
	}

	for i, authorship := range authorships {
		id := strings.ToLower(authorship.Author.ID)
		if !strings.HasSuffix(id, target) {
			continue
		}
		switch i {
		case 0:
			return PositionFirst
		case len(authorships) - 1:
			return PositionLast
		default:
			return PositionMiddle
		}
	}
	return PositionNotFound
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}
