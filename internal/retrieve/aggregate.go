package retrieve

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/observability"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

// progressBuffer bounds the in-flight progress events between worker
// tasks and the single consumer goroutine.
const progressBuffer = 64

// Options configures a retrieval run.
type Options struct {
	// Client is the base API client configuration. Each entity task
	// gets its own client built from it.
	Client openalex.Config

	// Logger receives run and entity lifecycle logs.
	Logger zerolog.Logger

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Progress, when set, is invoked for every progress event by a
	// single consumer goroutine; it is never called concurrently.
	Progress func(ProgressEvent)
}

// Result is the outcome of one retrieval run.
type Result struct {
	// RunID identifies the run in logs and progress events.
	RunID string

	// Rows holds one merged row per distinct work.
	Rows []domain.MergedRow

	// Failures lists entities whose fetch failed, fully or partially.
	// Rows already fetched by a failing entity are still merged.
	Failures []*domain.EntityError

	// RowsBeforeMerge counts projected rows across all entities before
	// deduplication.
	RowsBeforeMerge int
}

// Aggregate fetches works for every selected entity concurrently,
// bounded by cfg.MaxConcurrentEntities, then merges the projected rows
// by work identity. One entity's failure never aborts the others. The
// only error returned is a validation error, raised before any network
// activity.
func Aggregate(ctx context.Context, entities []domain.EntityReference, cfg domain.RetrievalConfig, opts Options) (*Result, error) {
	if err := domain.ValidateRun(entities, cfg); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := observability.WithRunContext(opts.Logger, runID)
	limiter := openalex.NewRateLimiter(cfg.RequestsPerSecond)

	events := make(chan ProgressEvent, progressBuffer)
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		for event := range events {
			event.RunID = runID
			if opts.Progress != nil {
				opts.Progress(event)
			}
		}
	}()
	report := func(event ProgressEvent) {
		events <- event
	}

	type entityResult struct {
		entity domain.EntityReference
		rows   []domain.ProjectedRow
		err    error
	}

	workers := cfg.MaxConcurrentEntities
	if workers > len(entities) {
		workers = len(entities)
	}

	results := make([]entityResult, len(entities))
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	logger.Info().Int("entities", len(entities)).Int("workers", workers).
		Msg("retrieval run starting")

	for i, entity := range entities {
		wg.Add(1)
		go func(i int, entity domain.EntityReference) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			report(ProgressEvent{Kind: ProgressEntityStarted, EntityID: entity.ID, EntityLabel: entity.Label})

			client := openalex.NewClient(opts.Client, limiter, logger, opts.Metrics)
			fetcher := NewFetcher(client, logger, opts.Metrics, report)
			rows, err := fetcher.FetchEntity(ctx, entity, cfg)
			results[i] = entityResult{entity: entity, rows: rows, err: err}

			kind := ProgressEntityDone
			if err != nil {
				kind = ProgressEntityFailed
			}
			report(ProgressEvent{Kind: kind, EntityID: entity.ID, EntityLabel: entity.Label, EntityRows: len(rows)})
		}(i, entity)
	}
	wg.Wait()
	close(events)
	consumerWG.Wait()

	var projected []domain.ProjectedRow
	var failures []*domain.EntityError
	for _, res := range results {
		projected = append(projected, res.rows...)
		if res.err != nil {
			failures = append(failures, &domain.EntityError{Entity: res.entity, Cause: res.err})
			if opts.Metrics != nil {
				opts.Metrics.EntitiesFailed.Inc()
			}
			logger.Warn().Err(res.err).Str("entity_label", res.entity.Label).
				Int("partial_rows", len(res.rows)).Msg("entity fetch failed")
		}
	}

	merged := domain.MergeRows(projected)
	if opts.Metrics != nil {
		opts.Metrics.RowsMerged.Add(float64(len(merged)))
	}

	logger.Info().
		Int("rows_before_merge", len(projected)).
		Int("rows_merged", len(merged)).
		Int("entities_failed", len(failures)).
		Msg("retrieval run complete")

	return &Result{
		RunID:           runID,
		Rows:            merged,
		Failures:        failures,
		RowsBeforeMerge: len(projected),
	}, nil
}
