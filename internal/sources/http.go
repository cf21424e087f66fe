package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	folioerrors "github.com/lepinkainen/folio/internal/errors"
)

// ErrNotFound is returned by GetJSON for a 404 response. Providers treat it as
// an empty, successful result.
var ErrNotFound = errors.New("not found")

// GetJSON performs a GET request and decodes a JSON body into target.
// Transport failures and non-2xx statuses come back as *Error, decode
// failures as Malformed.
func GetJSON(ctx context.Context, client HTTPDoer, source, endpoint string, header http.Header, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return NewError(source, Unavailable, fmt.Errorf("creating request: %w", err))
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Classify(source, fmt.Errorf("API request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return NewError(source, Unavailable,
			folioerrors.NewRateLimitErrorWithRetry(source+" API request limit reached", retryAfter(resp.Header)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewError(source, Unavailable,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Classify(source, ctxErr)
		}
		return NewError(source, Malformed, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

// Ping issues a GET against endpoint and expects a 2xx or 404 response.
func Ping(ctx context.Context, client HTTPDoer, source, endpoint string, header http.Header) error {
	var discard json.RawMessage
	err := GetJSON(ctx, client, source, endpoint, header, &discard)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
