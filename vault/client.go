package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the FAF API root.
	DefaultBaseURL = "https://api.faforever.com"

	// MaxPageSize is the largest page the API accepts.
	MaxPageSize = 100

	defaultMinRequestDelay = 100 * time.Millisecond
	defaultMaxRetries      = 5
	defaultInitialBackoff  = time.Second
	defaultTimeout         = 30 * time.Second

	userAgent = "fafmaps/1.0"
)

// ErrAPI is wrapped by all API request failures.
var ErrAPI = errors.New("api request failed")

// StatusError is an API response with a non-retryable error status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: HTTP %d from %s", ErrAPI, e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error { return ErrAPI }

// MapRecord is one map from the vault listing.
type MapRecord struct {
	ID          string
	DisplayName string
	MapSize     int
	MaxPlayers  int
	Ranked      bool
	DownloadURL string
	Version     string
}

// MapPage is one page of a map listing.
type MapPage struct {
	Maps         []MapRecord
	TotalRecords int
	TotalPages   int
	Page         int
}

// ListFilter narrows a map listing. Zero values leave the corresponding
// dimension unfiltered.
type ListFilter struct {
	MinSize    int   // minimum map size in game units
	MaxSize    int   // maximum map size in game units
	MaxPlayers int   // exact player count
	Ranked     *bool // ranked status
}

// ClientParams configure a Client. Zero values select the FAF defaults.
type ClientParams struct {
	BaseURL         string
	MinRequestDelay time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	HTTPClient      *http.Client
	Auth            *AuthClient // optional, nil for anonymous requests
	Logger          *slog.Logger
}

// Client queries the FAF map vault. It paces requests, retries transient
// failures with exponential backoff and attaches OAuth2 tokens when an
// AuthClient is configured. It is safe for concurrent use; the minimum
// request delay applies across all goroutines sharing the client.
type Client struct {
	baseURL         string
	minRequestDelay time.Duration
	maxRetries      int
	initialBackoff  time.Duration
	httpClient      *http.Client
	auth            *AuthClient
	logger          *slog.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

func NewClient(params ClientParams) *Client {
	if params.BaseURL == "" {
		params.BaseURL = DefaultBaseURL
	}
	if params.MinRequestDelay == 0 {
		params.MinRequestDelay = defaultMinRequestDelay
	}
	if params.MaxRetries == 0 {
		params.MaxRetries = defaultMaxRetries
	}
	if params.InitialBackoff == 0 {
		params.InitialBackoff = defaultInitialBackoff
	}
	if params.HTTPClient == nil {
		params.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if params.Logger == nil {
		params.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL:         trimTrailingSlash(params.BaseURL),
		minRequestDelay: params.MinRequestDelay,
		maxRetries:      params.MaxRetries,
		initialBackoff:  params.InitialBackoff,
		httpClient:      params.HTTPClient,
		auth:            params.Auth,
		logger:          params.Logger,
	}
}

// ListMaps fetches one page of the vault map listing. Pages are 1-indexed
// and pageSize must be between 1 and MaxPageSize.
func (c *Client) ListMaps(ctx context.Context, page, pageSize int, filter ListFilter) (*MapPage, error) {
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d, got %d", MaxPageSize, pageSize)
	}
	if page < 1 {
		return nil, fmt.Errorf("page must be at least 1, got %d", page)
	}

	params := url.Values{
		"page[size]":   {strconv.Itoa(pageSize)},
		"page[number]": {strconv.Itoa(page)},
	}
	addFilterParams(params, filter)

	var doc apiDocument
	if err := c.getJSON(ctx, c.baseURL+"/data/map", params, &doc); err != nil {
		return nil, err
	}

	maps := make([]MapRecord, 0, len(doc.Data))
	for _, resource := range doc.Data {
		maps = append(maps, MapRecord{
			ID:          resource.ID,
			DisplayName: resource.Attributes.DisplayName,
			MapSize:     resource.Attributes.MapSize,
			MaxPlayers:  resource.Attributes.MaxPlayers,
			Ranked:      resource.Attributes.Ranked,
			DownloadURL: resource.Attributes.DownloadURL,
			Version:     resource.Attributes.Version,
		})
	}

	result := &MapPage{
		Maps:         maps,
		TotalRecords: doc.Meta.Page.TotalRecords,
		TotalPages:   doc.Meta.Page.TotalPages,
		Page:         page,
	}
	if result.TotalRecords == 0 {
		result.TotalRecords = len(maps)
	}
	if result.TotalPages == 0 {
		result.TotalPages = 1
	}
	return result, nil
}

// VisitMaps walks all pages matching the filter and calls visit for every
// map. A non-nil error from visit stops the walk and is returned. maxPages
// limits how many pages are fetched; 0 fetches all of them.
func (c *Client) VisitMaps(ctx context.Context, pageSize int, filter ListFilter, maxPages int, visit func(MapRecord) error) error {
	for page := 1; ; page++ {
		result, err := c.ListMaps(ctx, page, pageSize, filter)
		if err != nil {
			return err
		}
		for _, record := range result.Maps {
			if err := visit(record); err != nil {
				return err
			}
		}
		if maxPages > 0 && page >= maxPages {
			return nil
		}
		if page >= result.TotalPages {
			return nil
		}
	}
}

// ResolveDownloadURL looks up a map by display name and returns its download
// URL.
func (c *Client) ResolveDownloadURL(ctx context.Context, displayName string) (string, error) {
	params := url.Values{
		"filter[displayName]": {"==" + displayName},
	}

	var doc apiDocument
	if err := c.getJSON(ctx, c.baseURL+"/data/map", params, &doc); err != nil {
		return "", err
	}
	if len(doc.Data) == 0 {
		return "", fmt.Errorf("%w: map %q not found", ErrAPI, displayName)
	}
	downloadURL := doc.Data[0].Attributes.DownloadURL
	if downloadURL == "" {
		return "", fmt.Errorf("%w: map %q has no download URL", ErrAPI, displayName)
	}
	return downloadURL, nil
}

func addFilterParams(params url.Values, filter ListFilter) {
	switch {
	case filter.MinSize > 0 && filter.MaxSize > 0:
		params.Set("filter[mapSize]", fmt.Sprintf("=ge=%d;=le=%d", filter.MinSize, filter.MaxSize))
	case filter.MinSize > 0:
		params.Set("filter[mapSize]", fmt.Sprintf("=ge=%d", filter.MinSize))
	case filter.MaxSize > 0:
		params.Set("filter[mapSize]", fmt.Sprintf("=le=%d", filter.MaxSize))
	}
	if filter.MaxPlayers > 0 {
		params.Set("filter[maxPlayers]", fmt.Sprintf("==%d", filter.MaxPlayers))
	}
	if filter.Ranked != nil {
		params.Set("filter[ranked]", strconv.FormatBool(*filter.Ranked))
	}
}

// getJSON performs a paced GET with retries and decodes the response body.
func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if err := c.paceRequest(ctx); err != nil {
		return err
	}

	requestURL := rawURL + "?" + params.Encode()
	backoff := c.initialBackoff
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying api request", "url", rawURL, "attempt", attempt, "backoff", backoff)
			if err := sleepContext(ctx, backoff); err != nil {
				return err
			}
			backoff *= 2
		}

		retryAfter, err := c.doRequest(ctx, requestURL, out)
		c.markRequest()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errRetryable) {
			return err
		}
		if retryAfter > 0 {
			backoff = retryAfter
		}
		lastErr = err
	}
	return fmt.Errorf("%w: giving up after %d attempts: %w", ErrAPI, c.maxRetries, lastErr)
}

// errRetryable marks transient failures inside the retry loop.
var errRetryable = errors.New("retryable")

func (c *Client) doRequest(ctx context.Context, requestURL string, out any) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrAPI, err)
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("User-Agent", userAgent)

	if c.auth != nil {
		token, err := c.auth.Token(ctx)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", token.AuthorizationHeader())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("%w: invalid response body: %w", ErrAPI, err)
		}
		return 0, nil
	case isRetryableStatus(resp.StatusCode):
		var retryAfter time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return retryAfter, fmt.Errorf("%w: HTTP %d", errRetryable, resp.StatusCode)
	default:
		return 0, &StatusError{StatusCode: resp.StatusCode, URL: requestURL}
	}
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// paceRequest enforces the minimum delay between consecutive requests.
func (c *Client) paceRequest(ctx context.Context) error {
	c.mu.Lock()
	last := c.lastRequest
	c.mu.Unlock()

	if last.IsZero() {
		return nil
	}
	elapsed := time.Since(last)
	if elapsed >= c.minRequestDelay {
		return nil
	}
	return sleepContext(ctx, c.minRequestDelay-elapsed)
}

func (c *Client) markRequest() {
	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// JSON:API wire format for /data/map responses.
type apiDocument struct {
	Data []apiResource `json:"data"`
	Meta struct {
		Page struct {
			TotalRecords int `json:"totalRecords"`
			TotalPages   int `json:"totalPages"`
		} `json:"page"`
	} `json:"meta"`
}

type apiResource struct {
	ID         string `json:"id"`
	Attributes struct {
		DisplayName string `json:"displayName"`
		MapSize     int    `json:"mapSize"`
		MaxPlayers  int    `json:"maxPlayers"`
		Ranked      bool   `json:"ranked"`
		DownloadURL string `json:"downloadUrl"`
		Version     string `json:"version"`
	} `json:"attributes"`
}
