// Package main provides the command-line entry point for the OpenAlex
// retriever: it reads a selection of entities, fetches and merges their
// works, and writes the tabular export.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dorothee-siris/openalex-retriever/internal/config"
	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/export"
	"github.com/dorothee-siris/openalex-retriever/internal/observability"
	"github.com/dorothee-siris/openalex-retriever/internal/retrieve"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	entitiesPath := flag.String("entities", "", "CSV of selected entities: kind,id,label")
	outPath := flag.String("out", "publications.csv", "output CSV path")
	flag.Parse()

	if *entitiesPath == "" {
		return fmt.Errorf("-entities is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "retriever").Logger()

	entities, err := readEntities(*entitiesPath)
	if err != nil {
		return fmt.Errorf("read entities: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, "openalex_retriever")
	runCfg := cfg.RetrievalDefaults()

	result, err := retrieve.Aggregate(ctx, entities, runCfg, retrieve.Options{
		Client:  cfg.ClientConfig(),
		Logger:  logger,
		Metrics: metrics,
		Progress: func(event retrieve.ProgressEvent) {
			if event.Kind == retrieve.ProgressEntityDone {
				logger.Info().
					Str("entity_label", event.EntityLabel).
					Int("rows", event.EntityRows).
					Msg("entity complete")
			}
		},
	})
	if err != nil {
		return err
	}

	out, err := os.Create(*outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if err := export.WriteCSV(out, result.Rows, runCfg.Fields); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	for _, failure := range result.Failures {
		logger.Warn().Err(failure).Msg("entity finished with errors")
	}
	logger.Info().
		Str("run_id", result.RunID).
		Str("output", *outPath).
		Int("works", len(result.Rows)).
		Int("duplicates_removed", result.RowsBeforeMerge-len(result.Rows)).
		Int("entities_failed", len(result.Failures)).
		Msg("export written")
	return nil
}

// readEntities parses a selection CSV with kind,id,label records. A
// header row is skipped when present.
func readEntities(path string) ([]domain.EntityReference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 3

	var entities []domain.EntityReference
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		kind := domain.EntityKind(strings.ToLower(strings.TrimSpace(record[0])))
		if kind != domain.EntityKindInstitution && kind != domain.EntityKindAuthor {
			// Header row or junk line.
			continue
		}
		entities = append(entities, domain.EntityReference{
			Kind:  kind,
			ID:    strings.TrimSpace(record[1]),
			Label: strings.TrimSpace(record[2]),
		})
	}
	if len(entities) == 0 {
		return nil, fmt.Errorf("no entities in %s", path)
	}
	return entities, nil
}
