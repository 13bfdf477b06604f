package openalex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dorothee-siris/openalex-retriever/internal/domain"
)

// retryBaseDelay is the base duration for exponential backoff on 429s
// and transport errors. The delay doubles each attempt and is capped at
// maxRetryDelay. Tests override this to avoid real sleeps.
var retryBaseDelay = 2 * time.Second

const (
	// defaultMaxAttempts bounds request attempts, the first included.
	defaultMaxAttempts = 5

	maxRetryDelay = 16 * time.Second

	defaultTimeout = 30 * time.Second
)

// get issues a rate-limited GET against the given endpoint path. Every
// attempt, retries included, first waits on the shared limiter. HTTP
// 429 and transport errors are retried with exponential backoff; any
// other status is returned to the caller as-is. After exhausting
// attempts the error wraps domain.ErrRetriesExhausted.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	if c.config.Mailto != "" {
		params.Set("mailto", c.config.Mailto)
	}
	reqURL := c.config.BaseURL + endpoint + "?" + params.Encode()

	delay := retryBaseDelay
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)

		start := time.Now()
		if c.metrics != nil {
			c.metrics.APIRequestsTotal.WithLabelValues(endpoint).Inc()
		}
		resp, err := c.http.Do(req)
		if c.metrics != nil {
			c.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
		} else if resp.StatusCode == http.StatusTooManyRequests {
			if c.metrics != nil {
				c.metrics.APIRateLimited.Inc()
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server returned status %d: %w", resp.StatusCode, domain.ErrRateLimited)
		} else {
			// Success or a non-retryable status; the caller decides.
			return resp, nil
		}

		if attempt == c.config.MaxAttempts {
			break
		}

		if c.metrics != nil {
			c.metrics.APIRetries.Inc()
		}
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying OpenAlex request")

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}

	if c.metrics != nil {
		c.metrics.APIRequestsFailed.WithLabelValues(endpoint).Inc()
	}
	return nil, &domain.ExternalAPIError{
		Endpoint: endpoint,
		Message:  fmt.Sprintf("gave up after %d attempts: %v", c.config.MaxAttempts, lastErr),
		Cause:    domain.ErrRetriesExhausted,
	}
}

// sleepCtx waits for the given duration or until the context is
// canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
