package openalex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
	"github.com/dorothee-siris/openalex-retriever/internal/observability"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultUserAgent identifies the retriever to the API.
	DefaultUserAgent = "openalex-retriever/1.0"

	// idPrefix is the URL prefix on OpenAlex identifiers.
	idPrefix = "https://openalex.org/"

	// doiPrefix is the URL prefix OpenAlex uses for DOIs.
	doiPrefix = "https://doi.org/"

	// orcidPrefix is the URL prefix on ORCID identifiers.
	orcidPrefix = "https://orcid.org/"

	// responseBodyLimit caps decoded response bodies at 50MB.
	responseBodyLimit = 50 << 20
)

// Config holds configuration for one OpenAlex client.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Mailto is the contact address sent with every request for polite
	// pool access. A fixed configuration value, not user input.
	Mailto string

	// UserAgent is the User-Agent header value.
	UserAgent string

	// Timeout is the per-attempt HTTP timeout. Defaults to 30s.
	Timeout time.Duration

	// MaxAttempts bounds request attempts on 429s and transport
	// errors, the first attempt included. Defaults to 5.
	MaxAttempts int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
		if c.Mailto != "" {
			c.UserAgent = DefaultUserAgent + " (mailto:" + c.Mailto + ")"
		}
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
}

// Client talks to the OpenAlex API. Each entity-level task gets its own
// Client (and connection pool); the rate limiter is the only state
// shared between clients. A Client is safe to hand to one worker at a
// time.
type Client struct {
	config  Config
	http    *http.Client
	limiter *RateLimiter
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewClient creates a client that paces all requests through the given
// shared limiter. Metrics may be nil.
func NewClient(cfg Config, limiter *RateLimiter, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// WorksPage fetches one page of a cursor-paginated works query. The
// first call passes CursorStart; subsequent calls pass the returned
// cursor. An empty returned cursor means the stream is exhausted.
func (c *Client) WorksPage(ctx context.Context, filter string, perPage int, cursor string) ([]Work, string, error) {
	params := url.Values{
		"filter":   {filter},
		"per_page": {strconv.Itoa(perPage)},
		"cursor":   {cursor},
	}

	var page WorksResponse
	if err := c.getJSON(ctx, "/works", params, &page); err != nil {
		return nil, "", err
	}
	return page.Results, page.Meta.NextCursor, nil
}

// SearchAuthorsByName queries the authors endpoint with a free-text
// name search, ranked by the API's own relevance.
func (c *Client) SearchAuthorsByName(ctx context.Context, firstName, lastName string) ([]Author, error) {
	params := url.Values{
		"search": {strings.TrimSpace(firstName + " " + lastName)},
	}

	var resp AuthorsResponse
	if err := c.getJSON(ctx, "/authors", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SearchAuthorsByORCID queries the authors endpoint filtered by ORCID.
func (c *Client) SearchAuthorsByORCID(ctx context.Context, orcid string) ([]Author, error) {
	params := url.Values{
		"filter": {"orcid:" + StripORCIDPrefix(orcid)},
	}

	var resp AuthorsResponse
	if err := c.getJSON(ctx, "/authors", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// GetAuthor fetches one author profile by its OpenAlex ID, with or
// without the URL prefix.
func (c *Client) GetAuthor(ctx context.Context, id string) (*Author, error) {
	var author Author
	err := c.getJSON(ctx, "/authors/"+StripIDPrefix(id), url.Values{}, &author)
	if err != nil {
		return nil, err
	}
	return &author, nil
}

// getJSON performs a GET and decodes a 200 response into target. A 404
// maps to domain.ErrNotFound; other non-200 statuses become an
// ExternalAPIError with the raw status.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, target any) error {
	resp, err := c.get(ctx, endpoint, params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return &domain.ExternalAPIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "not found",
			Cause:      domain.ErrNotFound,
		}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if c.metrics != nil {
			c.metrics.APIRequestsFailed.WithLabelValues(endpoint).Inc()
		}
		return &domain.ExternalAPIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyLimit)).Decode(target); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

// StripIDPrefix removes the openalex.org URL prefix from an identifier.
func StripIDPrefix(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(id, idPrefix))
}

// StripDOIPrefix removes the doi.org URL prefix from a DOI.
func StripDOIPrefix(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, doiPrefix)
	return strings.TrimPrefix(doi, "http://doi.org/")
}

// StripORCIDPrefix removes the orcid.org URL prefix from an ORCID.
func StripORCIDPrefix(orcid string) string {
	return strings.TrimSpace(strings.TrimPrefix(orcid, orcidPrefix))
}

// NormalizeEntityID prepares a selected entity's identifier for use in
// a works filter predicate: URL prefix stripped, lowercased.
func NormalizeEntityID(id string) string {
	return strings.ToLower(StripIDPrefix(id))
}
