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

func testRetrievalConfig() domain.RetrievalConfig {
	return domain.RetrievalConfig{
		StartYear:             2020,
		EndYear:               2023,
		Language:              domain.LanguageAll,
		Fields:                []string{"id", "display_name"},
		RequestsPerSecond:     1000,
		MaxConcurrentStreams:  3,
		MaxConcurrentEntities: 2,
		PageSize:              50,
	}
}

func newTestFetcher(t *testing.T, baseURL string, report func(ProgressEvent)) *Fetcher {
	t.Helper()
	client := openalex.NewClient(openalex.Config{
		BaseURL: baseURL,
		Mailto:  "test@example.org",
	}, openalex.NewRateLimiter(1000), zerolog.Nop(), nil)
	return NewFetcher(client, zerolog.Nop(), nil, report)
}

func worksPage(ids []string, nextCursor string) openalex.WorksResponse {
	works := make([]openalex.Work, len(ids))
	for i, id := range ids {
		works[i] = openalex.Work{ID: "https://openalex.org/" + id, DisplayName: "Work " + id}
	}
	return openalex.WorksResponse{
		Results: works,
		Meta:    openalex.Meta{Count: len(ids), NextCursor: nextCursor},
	}
}

func TestBuildFilter(t *testing.T) {
	cfg := testRetrievalConfig()

	t.Run("institution", func(t *testing.T) {
		entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "https://openalex.org/I123", Label: "MIT"}
		assert.Equal(t, "authorships.institutions.id:i123,publication_year:2020-2023", BuildFilter(entity, cfg, ""))
	})

	t.Run("author", func(t *testing.T) {
		entity := domain.EntityReference{Kind: domain.EntityKindAuthor, ID: "A55", Label: "Ada"}
		assert.Equal(t, "authorships.author.id:a55,publication_year:2020-2023", BuildFilter(entity, cfg, ""))
	})

	t.Run("english only appends language predicate", func(t *testing.T) {
		english := cfg
		english.Language = domain.LanguageEnglishOnly
		entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "X"}
		assert.Equal(t, "authorships.institutions.id:i1,publication_year:2020-2023,language:en",
			BuildFilter(entity, english, ""))
	})

	t.Run("doc type appends type predicate", func(t *testing.T) {
		entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "X"}
		assert.Equal(t, "authorships.institutions.id:i1,publication_year:2020-2023,type:article",
			BuildFilter(entity, cfg, "article"))
	})
}

func TestFetchEntityFollowsCursor(t *testing.T) {
	pages := map[string]openalex.WorksResponse{
		openalex.CursorStart: worksPage([]string{"W1", "W2"}, "c2"),
		"c2":                 worksPage([]string{"W3", "W4"}, "c3"),
		"c3":                 worksPage([]string{"W5"}, ""),
	}

	var mu sync.Mutex
	var cursorsSeen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		mu.Lock()
		cursorsSeen = append(cursorsSeen, cursor)
		mu.Unlock()

		page, ok := pages[cursor]
		if !ok {
			t.Errorf("unexpected cursor %q", cursor)
			page = worksPage(nil, "")
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	rows, err := fetcher.FetchEntity(context.Background(), entity, testRetrievalConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{openalex.CursorStart, "c2", "c3"}, cursorsSeen)
	require.Len(t, rows, 5)
	assert.Equal(t, "W1", rows[0].ID)
	assert.Equal(t, "W5", rows[4].ID)
	assert.Equal(t, "MIT", rows[0].InstitutionsExtracted)
}

func TestFetchEntityDocTypeFanOut(t *testing.T) {
	// W2 appears under both types and must survive exactly once.
	byType := map[string][]string{
		"article":      {"W1", "W2"},
		"book":         {"W2", "W3"},
		"dissertation": {},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		for docType, ids := range byType {
			if strings.Contains(filter, "type:"+docType) {
				json.NewEncoder(w).Encode(worksPage(ids, ""))
				return
			}
		}
		t.Errorf("no type predicate in filter %q", filter)
	}))
	defer server.Close()

	cfg := testRetrievalConfig()
	cfg.DocTypes = []string{"article", "book", "dissertation"}

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	rows, err := fetcher.FetchEntity(context.Background(), entity, cfg)
	require.NoError(t, err)

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	assert.ElementsMatch(t, []string{"W1", "W2", "W3"}, ids)
}

func TestFetchEntityKeepsPartialResultsOnStreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("filter")
		if strings.Contains(filter, "type:book") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(worksPage([]string{"W1"}, ""))
	}))
	defer server.Close()

	cfg := testRetrievalConfig()
	cfg.DocTypes = []string{"article", "book"}

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	rows, err := fetcher.FetchEntity(context.Background(), entity, cfg)
	require.Error(t, err)
	require.Len(t, rows, 1, "surviving stream's rows are kept")
	assert.Equal(t, "W1", rows[0].ID)
}

func TestFetchEntityMidStreamFailureKeepsEarlierPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == openalex.CursorStart {
			json.NewEncoder(w).Encode(worksPage([]string{"W1", "W2"}, "c2"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	rows, err := fetcher.FetchEntity(context.Background(), entity, testRetrievalConfig())
	require.Error(t, err)
	assert.Len(t, rows, 2)
}

func TestFetchEntityKeepsPageWithCorruptField(t *testing.T) {
	// W2's abstract index arrives with the wrong type; W1 and the rest
	// of W2 must survive, with the corrupt field degraded to empty.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"results": [
				{"id": "https://openalex.org/W1", "display_name": "Good Work"},
				{"id": "https://openalex.org/W2", "display_name": "Odd Work", "abstract_inverted_index": "oops"}
			],
			"meta": {"count": 2, "next_cursor": null}
		}`))
	}))
	defer server.Close()

	cfg := testRetrievalConfig()
	cfg.Fields = []string{"id", "display_name", "abstract_inverted_index"}

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	rows, err := fetcher.FetchEntity(context.Background(), entity, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "W1", rows[0].ID)
	assert.Equal(t, "Good Work", rows[0].Fields["display_name"])
	assert.Equal(t, "W2", rows[1].ID)
	assert.Equal(t, "Odd Work", rows[1].Fields["display_name"])
	assert.Equal(t, "", rows[1].Fields["abstract_inverted_index"])
}

func TestFetchEntityReportsPageProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(worksPage([]string{"W1", "W2", "W3"}, ""))
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []ProgressEvent
	fetcher := newTestFetcher(t, server.URL, func(event ProgressEvent) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	_, err := fetcher.FetchEntity(context.Background(), entity, testRetrievalConfig())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, ProgressPageFetched, events[0].Kind)
	assert.Equal(t, "I1", events[0].EntityID)
	assert.Equal(t, 3, events[0].PageRows)
}

func TestFetchEntityStopsOnCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(worksPage([]string{"W1"}, "more"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := newTestFetcher(t, server.URL, nil)
	entity := domain.EntityReference{Kind: domain.EntityKindInstitution, ID: "I1", Label: "MIT"}

	_, err := fetcher.FetchEntity(ctx, entity, testRetrievalConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
