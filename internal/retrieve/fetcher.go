package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/observability"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

// Fetcher drives cursor-paginated works queries for one entity,
// optionally fanned out across document types. It owns one client (and
// connection pool); only the rate limiter inside the client is shared
// with other fetchers.
type Fetcher struct {
	client  *openalex.Client
	logger  zerolog.Logger
	metrics *observability.Metrics

	// report delivers progress events; nil disables reporting. It must
	// be safe to call from this fetcher's stream goroutines.
	report func(ProgressEvent)
}

// NewFetcher creates a fetcher around the given client. Metrics and
// report may be nil.
func NewFetcher(client *openalex.Client, logger zerolog.Logger, metrics *observability.Metrics, report func(ProgressEvent)) *Fetcher {
	return &Fetcher{
		client:  client,
		logger:  logger,
		metrics: metrics,
		report:  report,
	}
}

// BuildFilter constructs the works filter expression for one entity and
// an optional document type.
func BuildFilter(entity domain.EntityReference, cfg domain.RetrievalConfig, docType string) string {
	id := openalex.NormalizeEntityID(entity.ID)

	var parts []string
	if entity.Kind == domain.EntityKindAuthor {
		parts = append(parts, "authorships.author.id:"+id)
	} else {
		parts = append(parts, "authorships.institutions.id:"+id)
	}
	parts = append(parts, fmt.Sprintf("publication_year:%d-%d", cfg.StartYear, cfg.EndYear))

	if cfg.Language == domain.LanguageEnglishOnly {
		parts = append(parts, "language:en")
	}
	if docType != "" {
		parts = append(parts, "type:"+docType)
	}
	return strings.Join(parts, ",")
}

// FetchEntity produces the complete projected row set for one entity.
// A non-empty document-type set runs one stream per type with bounded
// concurrency; stream results are concatenated and deduplicated by work
// id, first occurrence winning. Stream failures keep partial results;
// the joined stream errors are returned alongside whatever was fetched.
func (f *Fetcher) FetchEntity(ctx context.Context, entity domain.EntityReference, cfg domain.RetrievalConfig) ([]domain.ProjectedRow, error) {
	streams := cfg.DocTypes
	if len(streams) == 0 {
		streams = []string{""}
	}

	workers := cfg.MaxConcurrentStreams
	if workers > len(streams) {
		workers = len(streams)
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]domain.ProjectedRow, len(streams))
	streamErrs := make([]error, len(streams))

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i, docType := range streams {
		wg.Add(1)
		go func(i int, docType string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i], streamErrs[i] = f.fetchStream(ctx, entity, cfg, docType)
		}(i, docType)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var rows []domain.ProjectedRow
	for _, streamRows := range results {
		for _, row := range streamRows {
			if row.ID == "" {
				continue
			}
			if _, ok := seen[row.ID]; ok {
				continue
			}
			seen[row.ID] = struct{}{}
			rows = append(rows, row)
		}
	}
	return rows, errors.Join(streamErrs...)
}

// fetchStream runs one cursor-paginated stream, projecting each page as
// it arrives. A page failure after the client's own retries stops the
// stream and keeps the rows fetched so far.
func (f *Fetcher) fetchStream(ctx context.Context, entity domain.EntityReference, cfg domain.RetrievalConfig, docType string) ([]domain.ProjectedRow, error) {
	filter := BuildFilter(entity, cfg, docType)
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = domain.DefaultFields
	}

	logger := observability.WithEntityContext(f.logger, entity.ID, entity.Label)
	if docType != "" {
		logger = logger.With().Str("doc_type", docType).Logger()
	}

	var rows []domain.ProjectedRow
	cursor := openalex.CursorStart

	for cursor != "" {
		works, nextCursor, err := f.client.WorksPage(ctx, filter, cfg.PageSize, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return rows, ctx.Err()
			}
			logger.Warn().Err(err).Int("rows", len(rows)).
				Msg("works stream stopped, keeping partial results")
			return rows, err
		}

		for i := range works {
			rows = append(rows, Project(&works[i], entity, fields))
		}

		if f.metrics != nil {
			f.metrics.PagesFetched.Inc()
			f.metrics.RowsProjected.Add(float64(len(works)))
		}
		if f.report != nil {
			f.report(ProgressEvent{
				Kind:        ProgressPageFetched,
				EntityID:    entity.ID,
				EntityLabel: entity.Label,
				DocType:     docType,
				PageRows:    len(works),
			})
		}

		cursor = nextCursor
	}

	logger.Debug().Int("rows", len(rows)).Msg("works stream complete")
	return rows, nil
}
