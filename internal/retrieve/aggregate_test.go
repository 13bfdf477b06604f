package retrieve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/openalex"
)

func testOptions(baseURL string, progress func(ProgressEvent)) Options {
	return Options{
		Client:   openalex.Config{BaseURL: baseURL, Mailto: "test@example.org"},
		Logger:   zerolog.Nop(),
		Progress: progress,
	}
}

func TestAggregateMergesSharedWork(t *testing.T) {
	// Both institutions return W1; only the first also returns W2.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		switch {
		case strings.Contains(filter, "authorships.institutions.id:i1"):
			json.NewEncoder(w).Encode(worksPage([]string{"W1", "W2"}, ""))
		case strings.Contains(filter, "authorships.institutions.id:i2"):
			json.NewEncoder(w).Encode(worksPage([]string{"W1"}, ""))
		default:
			t.Errorf("unexpected filter %q", filter)
		}
	}))
	defer server.Close()

	entities := []domain.EntityReference{
		{Kind: domain.EntityKindInstitution, ID: "I1", Label: "Uni Beta"},
		{Kind: domain.EntityKindInstitution, ID: "I2", Label: "Uni Alpha"},
	}

	result, err := Aggregate(context.Background(), entities, testRetrievalConfig(), testOptions(server.URL, nil))
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.RowsBeforeMerge)
	assert.Empty(t, result.Failures)
	require.Len(t, result.Rows, 2, "one merged row per distinct work")

	byID := make(map[string]domain.MergedRow, len(result.Rows))
	for _, row := range result.Rows {
		byID[row.ID] = row
	}

	assert.Equal(t, "Uni Alpha | Uni Beta", byID["W1"].InstitutionsExtracted,
		"labels of both contributing entities, sorted")
	assert.Equal(t, "Uni Beta", byID["W2"].InstitutionsExtracted)
}

func TestAggregateAuthorPositionsStayAligned(t *testing.T) {
	work := `{
		"results": [{
			"id": "https://openalex.org/W1",
			"authorships": [
				{"author": {"id": "https://openalex.org/A1", "display_name": "Zoe"}},
				{"author": {"id": "https://openalex.org/A2", "display_name": "Amir"}}
			]
		}],
		"meta": {"count": 1, "next_cursor": null}
	}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(work))
	}))
	defer server.Close()

	entities := []domain.EntityReference{
		{Kind: domain.EntityKindAuthor, ID: "A1", Label: "Zoe"},
		{Kind: domain.EntityKindAuthor, ID: "A2", Label: "Amir"},
	}

	result, err := Aggregate(context.Background(), entities, testRetrievalConfig(), testOptions(server.URL, nil))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, "Amir | Zoe", row.AuthorsExtracted)
	assert.Equal(t, "Last | First", row.PositionExtracted,
		"position i corresponds to author i")
	assert.Empty(t, row.InstitutionsExtracted)
}

func TestAggregateIsolatesEntityFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("filter"), "authorships.institutions.id:i2") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(worksPage([]string{"W1"}, ""))
	}))
	defer server.Close()

	entities := []domain.EntityReference{
		{Kind: domain.EntityKindInstitution, ID: "I1", Label: "Healthy"},
		{Kind: domain.EntityKindInstitution, ID: "I2", Label: "Broken"},
	}

	result, err := Aggregate(context.Background(), entities, testRetrievalConfig(), testOptions(server.URL, nil))
	require.NoError(t, err, "entity failures are reported, not returned")

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Broken", result.Failures[0].Entity.Label)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "W1", result.Rows[0].ID)
}

func TestAggregateRejectsInvalidRunBeforeNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an invalid run")
	}))
	defer server.Close()

	t.Run("no entities", func(t *testing.T) {
		_, err := Aggregate(context.Background(), nil, testRetrievalConfig(), testOptions(server.URL, nil))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("end year before start year", func(t *testing.T) {
		cfg := testRetrievalConfig()
		cfg.EndYear = cfg.StartYear - 1
		entities := []domain.EntityReference{{Kind: domain.EntityKindInstitution, ID: "I1", Label: "X"}}
		_, err := Aggregate(context.Background(), entities, cfg, testOptions(server.URL, nil))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("invalid page size", func(t *testing.T) {
		cfg := testRetrievalConfig()
		cfg.PageSize = 123
		entities := []domain.EntityReference{{Kind: domain.EntityKindInstitution, ID: "I1", Label: "X"}}
		_, err := Aggregate(context.Background(), entities, cfg, testOptions(server.URL, nil))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestAggregateProgressEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(worksPage([]string{"W1"}, ""))
	}))
	defer server.Close()

	entities := []domain.EntityReference{
		{Kind: domain.EntityKindInstitution, ID: "I1", Label: "A"},
		{Kind: domain.EntityKindInstitution, ID: "I2", Label: "B"},
	}

	// The callback mutates shared state without locking; correctness
	// depends on the single-consumer delivery guarantee.
	var events []ProgressEvent
	inFlight := 0
	maxInFlight := 0
	var mu sync.Mutex
	progress := func(event ProgressEvent) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		events = append(events, event)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	result, err := Aggregate(context.Background(), entities, testRetrievalConfig(), testOptions(server.URL, progress))
	require.NoError(t, err)

	assert.Equal(t, 1, maxInFlight, "progress callback is never invoked concurrently")

	kinds := make(map[ProgressKind]int)
	for _, event := range events {
		assert.Equal(t, result.RunID, event.RunID, "every event carries the run id")
		kinds[event.Kind]++
	}
	assert.Equal(t, 2, kinds[ProgressEntityStarted])
	assert.Equal(t, 2, kinds[ProgressPageFetched])
	assert.Equal(t, 2, kinds[ProgressEntityDone])
	assert.Zero(t, kinds[ProgressEntityFailed])
}

func TestAggregateMixedEntityKinds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(worksPage([]string{"W1"}, ""))
	}))
	defer server.Close()

	entities := []domain.EntityReference{
		{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"},
		{Kind: domain.EntityKindAuthor, ID: "A1", Label: "Ada"},
	}

	result, err := Aggregate(context.Background(), entities, testRetrievalConfig(), testOptions(server.URL, nil))
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	row := result.Rows[0]
	assert.Equal(t, "MIT", row.InstitutionsExtracted)
	assert.Equal(t, "Ada", row.AuthorsExtracted)
	assert.Equal(t, "Not found", row.PositionExtracted,
		"author absent from the work's author list")
}
