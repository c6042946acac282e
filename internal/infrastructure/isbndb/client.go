package isbndb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"bookcatalog-backend/internal/config"
	"bookcatalog-backend/internal/domains/book/model"
	"bookcatalog-backend/internal/infrastructure/metrics"
	"bookcatalog-backend/pkg/cache"
)

// =====================================================
// ISBNDB CLIENT
// =====================================================

const (
	endpointBulk       = "/books"
	endpointBook       = "/book"
	endpointAuthor     = "/author"
	endpointPublisher  = "/publisher"
	endpointAuthors    = "/authors"
	endpointPublishers = "/publishers"
)

// errNotFound marks a 404 from the provider, which is never retried
var errNotFound = errors.New("isbndb: not found")

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client talks to the ISBNdb v2 API. Calls are sequential: bulk chunks are
// separated by BatchDelay and every request waits on the rate limiter.
type Client struct {
	cfg        config.ISBNdbConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache
	sleep      SleepFunc
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache caches single-book lookups and entity discovery for CacheTTL
func WithCache(ch cache.Cache) Option {
	return func(c *Client) { c.cache = ch }
}

func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func NewClient(cfg config.ISBNdbConfig, opts ...Option) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =====================================================
// BULK FETCH
// =====================================================

type bulkRequest struct {
	ISBNs []string `json:"isbns"`
}

type bulkResponse struct {
	Total     int               `json:"total"`
	Requested int               `json:"requested"`
	Data      []model.RawRecord `json:"data"`
}

// FetchBulk returns one entry per input identifier, in input order, nil where
// the provider had no record. A failed chunk yields nils for that chunk only.
func (c *Client) FetchBulk(ctx context.Context, isbns []string) []*model.RawRecord {
	results := make([]*model.RawRecord, len(isbns))
	if len(isbns) == 0 {
		return results
	}

	for start := 0; start < len(isbns); start += c.cfg.BatchSize {
		if start > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				log.Warn().Err(err).Int("offset", start).Msg("Bulk fetch interrupted")
				return results
			}
		}

		end := start + c.cfg.BatchSize
		if end > len(isbns) {
			end = len(isbns)
		}
		chunk := isbns[start:end]

		records, err := c.postBulk(ctx, chunk)
		if err != nil {
			log.Error().
				Err(err).
				Int("offset", start).
				Int("size", len(chunk)).
				Msg("ISBNdb bulk chunk failed")
			continue
		}

		index := make(map[string]*model.RawRecord, len(records)*2)
		for i := range records {
			rec := &records[i]
			for _, key := range rec.Keys() {
				if _, taken := index[key]; !taken {
					index[key] = rec
				}
			}
		}

		for i, id := range chunk {
			for _, key := range model.ISBNVariants(model.NormalizeISBN(id)) {
				if rec, ok := index[key]; ok {
					results[start+i] = rec
					break
				}
			}
		}

		log.Debug().
			Int("requested", len(chunk)).
			Int("received", len(records)).
			Msg("ISBNdb bulk chunk fetched")
	}

	return results
}

func (c *Client) postBulk(ctx context.Context, chunk []string) ([]model.RawRecord, error) {
	body, err := json.Marshal(bulkRequest{ISBNs: chunk})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var out bulkResponse
	if err := c.do(ctx, http.MethodPost, endpointBulk, c.cfg.BaseURL+endpointBulk, body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// =====================================================
// SINGLE FETCH WITH BACKOFF
// =====================================================

type bookResponse struct {
	Book *model.RawRecord `json:"book"`
}

// FetchOne looks up a single ISBN. Rate limiting, server errors and transport
// failures are retried up to maxRetries times, waiting initialDelay*2^attempt
// between tries. Returns nil when the book does not exist or retries run out.
func (c *Client) FetchOne(ctx context.Context, isbn string, maxRetries int, initialDelay time.Duration) *model.RawRecord {
	isbn = model.NormalizeISBN(isbn)
	if isbn == "" {
		return nil
	}

	cacheKey := "isbndb:book:" + isbn
	if c.cache != nil {
		var cached model.RawRecord
		if found, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return &cached
		}
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		var out bookResponse
		err := c.do(ctx, http.MethodGet, endpointBook, c.cfg.BaseURL+endpointBook+"/"+url.PathEscape(isbn), nil, &out)
		if err == nil {
			if out.Book == nil {
				return nil
			}
			if c.cache != nil {
				if cerr := c.cache.Set(ctx, cacheKey, out.Book, c.cfg.CacheTTL); cerr != nil {
					log.Warn().Err(cerr).Str("isbn", isbn).Msg("Failed to cache ISBNdb record")
				}
			}
			return out.Book
		}

		if !isRetryable(err) {
			if !errors.Is(err, errNotFound) {
				log.Warn().Err(err).Str("isbn", isbn).Msg("ISBNdb lookup failed")
			}
			return nil
		}
		if attempt == maxRetries {
			log.Warn().Err(err).Str("isbn", isbn).Int("attempts", attempt+1).Msg("ISBNdb lookup gave up")
			break
		}

		delay := initialDelay * time.Duration(1<<uint(attempt))
		metrics.IncProviderRetry(endpointBook)
		log.Debug().Err(err).Str("isbn", isbn).Dur("delay", delay).Int("attempt", attempt+1).Msg("Retrying ISBNdb lookup")

		if serr := c.sleep(ctx, delay); serr != nil {
			return nil
		}
	}

	return nil
}

// =====================================================
// ENTITY DISCOVERY AND SEARCH
// =====================================================

// The author endpoint returns "author" as a plain name next to "books";
// some publisher responses nest the list under "publisher" instead.
type entityBooksResponse struct {
	Books     []model.RawRecord `json:"books"`
	Author    json.RawMessage   `json:"author"`
	Publisher json.RawMessage   `json:"publisher"`
}

type nestedBooks struct {
	Books []json.RawMessage `json:"books"`
}

// BooksByAuthor returns the ISBNs of one page of an author's books
func (c *Client) BooksByAuthor(ctx context.Context, name string, page, pageSize int) ([]string, error) {
	return c.entityBooks(ctx, endpointAuthor, name, page, pageSize)
}

// BooksByPublisher returns the ISBNs of one page of a publisher's books
func (c *Client) BooksByPublisher(ctx context.Context, name string, page, pageSize int) ([]string, error) {
	return c.entityBooks(ctx, endpointPublisher, name, page, pageSize)
}

// DiscoverISBNs pages through an author's or publisher's books until the
// provider runs dry or limit identifiers have been collected.
func (c *Client) DiscoverISBNs(ctx context.Context, kind model.EntityKind, name string, limit int) ([]string, error) {
	var fetch func(context.Context, string, int, int) ([]string, error)
	switch kind {
	case model.EntityAuthor:
		fetch = c.BooksByAuthor
	case model.EntityPublisher:
		fetch = c.BooksByPublisher
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidEntityKind, kind)
	}

	cacheKey := fmt.Sprintf("isbndb:%s:%s:%d", kind, name, limit)
	if c.cache != nil {
		var cached []string
		if found, err := c.cache.Get(ctx, cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}

	const pageSize = 100
	seen := make(map[string]struct{})
	var isbns []string

	for page := 1; len(isbns) < limit; page++ {
		if page > 1 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}

		batch, err := fetch(ctx, name, page, pageSize)
		if err != nil {
			if page > 1 {
				log.Warn().Err(err).Int("page", page).Str("name", name).Msg("Stopping discovery after page error")
				break
			}
			return nil, err
		}

		for _, isbn := range batch {
			if _, ok := seen[isbn]; ok {
				continue
			}
			seen[isbn] = struct{}{}
			isbns = append(isbns, isbn)
			if len(isbns) == limit {
				break
			}
		}

		if len(batch) < pageSize {
			break
		}
	}

	if c.cache != nil && len(isbns) > 0 {
		if err := c.cache.Set(ctx, cacheKey, isbns, c.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Failed to cache discovered ISBNs")
		}
	}
	return isbns, nil
}

func (c *Client) entityBooks(ctx context.Context, endpoint, name string, page, pageSize int) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	target := fmt.Sprintf("%s%s/%s?%s", c.cfg.BaseURL, endpoint, url.PathEscape(name), q.Encode())

	var out entityBooksResponse
	if err := c.do(ctx, http.MethodGet, endpoint, target, nil, &out); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}

	books := out.Books
	if len(books) == 0 {
		for _, raw := range []json.RawMessage{out.Author, out.Publisher} {
			var nested nestedBooks
			if len(raw) > 0 && raw[0] == '{' && json.Unmarshal(raw, &nested) == nil {
				books = decodeNested(nested.Books)
				break
			}
		}
	}

	isbns := make([]string, 0, len(books))
	for i := range books {
		if keys := books[i].Keys(); len(keys) > 0 {
			isbns = append(isbns, keys[0])
		}
	}
	return isbns, nil
}

// decodeNested accepts nested book lists given either as objects or as bare ISBN strings
func decodeNested(items []json.RawMessage) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(items))
	for _, item := range items {
		var rec model.RawRecord
		if err := json.Unmarshal(item, &rec); err == nil {
			out = append(out, rec)
			continue
		}
		var isbn string
		if err := json.Unmarshal(item, &isbn); err == nil {
			out = append(out, model.RawRecord{ISBN13: isbn})
		}
	}
	return out
}

type searchResponse struct {
	Total      int      `json:"total"`
	Authors    []string `json:"authors"`
	Publishers []string `json:"publishers"`
}

// SearchNames runs the provider's author or publisher name search
func (c *Client) SearchNames(ctx context.Context, kind model.EntityKind, query string, page, pageSize int) ([]string, error) {
	var endpoint string
	switch kind {
	case model.EntityAuthor:
		endpoint = endpointAuthors
	case model.EntityPublisher:
		endpoint = endpointPublishers
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrInvalidEntityKind, kind)
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	target := fmt.Sprintf("%s%s/%s?%s", c.cfg.BaseURL, endpoint, url.PathEscape(strings.TrimSpace(query)), q.Encode())

	var out searchResponse
	if err := c.do(ctx, http.MethodGet, endpoint, target, nil, &out); err != nil {
		if errors.Is(err, errNotFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", model.ErrProviderUnavailable, err)
	}

	if kind == model.EntityAuthor {
		return out.Authors, nil
	}
	return out.Publishers, nil
}

// =====================================================
// TRANSPORT
// =====================================================

// statusError is a non-2xx provider response
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("isbndb: status %d: %s", e.Status, e.Body)
}

func isRetryable(err error) bool {
	if errors.Is(err, errNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Status == http.StatusTooManyRequests || se.Status >= 500
	}
	// transport and decode failures
	return true
}

func (c *Client) do(ctx context.Context, method, endpoint, target string, body []byte, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncProviderRequest(endpoint, "error")
		return fmt.Errorf("failed to call ISBNdb: %w", err)
	}
	defer resp.Body.Close()

	metrics.IncProviderRequest(endpoint, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode ISBNdb response: %w", err)
	}
	return nil
}
