package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteStore is the HTTP client for the external record store.
type RemoteStore struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// RemoteConfig holds remote store client settings.
type RemoteConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// NewRemoteStore creates an HTTP record store client.
func NewRemoteStore(cfg RemoteConfig, logger *zap.Logger) (*RemoteStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &RemoteStore{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rateLimit), burst),
		logger:     logger,
	}, nil
}

// Create stores a new record.
func (s *RemoteStore) Create(ctx context.Context, rec Record) (Record, error) {
	var created Record
	if err := s.do(ctx, http.MethodPost, "/api/v1/records", rec, &created); err != nil {
		return Record{}, err
	}
	return created, nil
}

// Get returns a record by id.
func (s *RemoteStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	if err := s.do(ctx, http.MethodGet, "/api/v1/records/"+url.PathEscape(id), nil, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Update overwrites a record by id.
func (s *RemoteStore) Update(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return &ValidationError{Code: "missing_id", Message: "record id required for update"}
	}
	return s.do(ctx, http.MethodPut, "/api/v1/records/"+url.PathEscape(rec.ID), rec, nil)
}

// FindByKey looks a record up by idempotency key.
func (s *RemoteStore) FindByKey(ctx context.Context, idempotencyKey string) (Record, bool, error) {
	var recs []Record
	path := "/api/v1/records?key=" + url.QueryEscape(idempotencyKey)
	if err := s.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return Record{}, false, err
	}
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	return recs[0], true, nil
}

// Query lists records in a collection, excluding soft-deleted ones.
func (s *RemoteStore) Query(ctx context.Context, collection string, limit int) ([]Record, error) {
	var recs []Record
	path := "/api/v1/records?collection=" + url.QueryEscape(collection) +
		"&limit=" + strconv.Itoa(limit)
	if err := s.do(ctx, http.MethodGet, path, nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// do performs one HTTP call and maps the outcome onto the error taxonomy:
// reachability and 5xx/429 responses are transient, 4xx terminal.
func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &ValidationError{Code: "marshal", Message: err.Error()}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return &ValidationError{Code: "bad_request", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
		return nil

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		s.logger.Debug("record store returned retryable status",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
		)
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ValidationError{
			Code:    "status_" + strconv.Itoa(resp.StatusCode),
			Message: string(msg),
		}
	}
}

// Ensure RemoteStore implements RecordStore.
var _ RecordStore = (*RemoteStore)(nil)
