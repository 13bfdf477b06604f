// Package resolve searches OpenAlex author profiles for uploaded names
// so a user can disambiguate before committing to an entity selection.
// No publications are fetched at this stage.
package resolve

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

const (
	// candidateCap bounds the candidates returned per name.
	candidateCap = 20

	// nameSearchLimit bounds how many name-search matches get a detail
	// fetch.
	nameSearchLimit = 10

	defaultWorkers = 3
)

// Resolver fetches candidate author profiles for uploaded names. Names
// are independent queries, resolved by a bounded worker pool.
type Resolver struct {
	client  *openalex.Client
	logger  zerolog.Logger
	workers int
}

// NewResolver creates a resolver. workers bounds concurrent name
// lookups; values below one fall back to the default of three.
func NewResolver(client *openalex.Client, logger zerolog.Logger, workers int) *Resolver {
	if workers < 1 {
		workers = defaultWorkers
	}
	return &Resolver{
		client:  client,
		logger:  logger,
		workers: workers,
	}
}

// Resolve fetches candidates for every query concurrently. The result
// slice is index-aligned with the input; a failing query records its
// error in its CandidateSet without affecting the others.
func (r *Resolver) Resolve(ctx context.Context, queries []domain.NameQuery) []domain.CandidateSet {
	sets := make([]domain.CandidateSet, len(queries))

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query domain.NameQuery) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			candidates, err := r.ResolveOne(ctx, query)
			sets[i] = domain.CandidateSet{Query: query, Candidates: candidates, Err: err}
		}(i, query)
	}
	wg.Wait()
	return sets
}

// ResolveOne fetches candidate profiles for one name. When an ORCID is
// present its matches are resolved first; the name search runs after it
// to catch profiles the ORCID filter misses, and is skipped entirely
// once the cap is reached. Candidates are deduplicated by id and capped
// at twenty, keeping the API's own relevance ranking.
func (r *Resolver) ResolveOne(ctx context.Context, query domain.NameQuery) ([]domain.CandidateProfile, error) {
	seen := make(map[string]struct{})
	var candidates []domain.CandidateProfile

	add := func(matches []openalex.Author) error {
		for _, match := range matches {
			if len(candidates) >= candidateCap {
				return nil
			}
			id := openalex.StripIDPrefix(match.ID)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}

			author, err := r.client.GetAuthor(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn().Err(err).Str("author_id", id).
					Msg("skipping candidate, detail fetch failed")
				continue
			}
			seen[id] = struct{}{}
			candidates = append(candidates, profileFrom(author))
		}
		return nil
	}

	if orcid := strings.TrimSpace(query.ORCID); orcid != "" {
		matches, err := r.client.SearchAuthorsByORCID(ctx, orcid)
		if err != nil {
			return nil, err
		}
		if err := add(matches); err != nil {
			return candidates, err
		}
		if len(candidates) >= candidateCap {
			return candidates, nil
		}
	}

	matches, err := r.client.SearchAuthorsByName(ctx, query.FirstName, query.LastName)
	if err != nil {
		// ORCID matches already gathered are still useful.
		return candidates, err
	}
	if len(matches) > nameSearchLimit {
		matches = matches[:nameSearchLimit]
	}
	if err := add(matches); err != nil {
		return candidates, err
	}
	return candidates, nil
}

// profileFrom condenses an author record into a candidate profile: up
// to three historical affiliations, up to two last-known institutions
// not already listed, and up to five topic names.
func profileFrom(author *openalex.Author) domain.CandidateProfile {
	var affiliations []string
	for _, affiliation := range author.Affiliations {
		if len(affiliations) >= 3 {
			break
		}
		if s := institutionLabel(affiliation.Institution); s != "" {
			affiliations = append(affiliations, s)
		}
	}
	lastKnown := 0
	for _, inst := range author.LastKnownInstitutions {
		if lastKnown >= 2 {
			break
		}
		s := institutionLabel(inst)
		if s == "" || contains(affiliations, s) {
			continue
		}
		affiliations = append(affiliations, s)
		lastKnown++
	}

	var topics []string
	for _, topic := range author.Topics {
		if len(topics) >= 5 {
			break
		}
		if topic.DisplayName != "" {
			topics = append(topics, topic.DisplayName)
		}
	}

	return domain.CandidateProfile{
		ID:           openalex.StripIDPrefix(author.ID),
		DisplayName:  author.DisplayName,
		ORCID:        openalex.StripORCIDPrefix(author.ORCID),
		WorksCount:   author.WorksCount,
		Affiliations: affiliations,
		Topics:       topics,
	}
}

func institutionLabel(inst openalex.Institution) string {
	if inst.DisplayName == "" {
		return ""
	}
	return inst.DisplayName + " (" + inst.CountryCode + ")"
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
