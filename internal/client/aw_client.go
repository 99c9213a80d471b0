package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/models"

	"go.uber.org/zap"
)

// Client handles communication with the local ActivityWatch-compatible
// tracking service. It performs no retries; transient failures surface to
// the caller as errors.
type Client struct {
	baseURL    string
	eventLimit int
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a new tracking service client
func New(cfg config.TrackerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		eventLimit: cfg.EventLimit,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		logger: logger,
	}
}

// ListBuckets returns the identifiers of all event streams known to the
// tracking service. The listing may be a JSON array whose entries are bare
// string ids or objects carrying an "id" field, or an object keyed by id;
// all forms are accepted.
func (c *Client) ListBuckets() ([]string, error) {
	// The bucket listing endpoint requires the trailing slash
	reqURL := c.baseURL + "/buckets/"

	body, err := c.get(reqURL)
	if err != nil {
		return nil, err
	}

	var entries []any
	if err := json.Unmarshal(body, &entries); err == nil {
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			switch v := entry.(type) {
			case string:
				ids = append(ids, v)
			case map[string]any:
				if id, ok := v["id"].(string); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids, nil
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, fmt.Errorf("failed to parse bucket listing: %w", err)
	}
	ids := make([]string, 0, len(keyed))
	for id := range keyed {
		ids = append(ids, id)
	}
	return ids, nil
}

// GetEvents returns the raw events of one bucket within [start, end).
// Bounds are sent as RFC 3339 timestamps in the local time zone; the limit
// is a fixed ceiling large enough for a full day of window and input events.
func (c *Client) GetEvents(bucketID string, start, end time.Time) ([]models.RawEvent, error) {
	params := url.Values{}
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", end.Format(time.RFC3339))
	params.Set("limit", fmt.Sprintf("%d", c.eventLimit))

	reqURL := fmt.Sprintf("%s/buckets/%s/events?%s", c.baseURL, url.PathEscape(bucketID), params.Encode())

	body, err := c.get(reqURL)
	if err != nil {
		return nil, err
	}

	var events []models.RawEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events for bucket %s: %w", bucketID, err)
	}

	c.logger.Debug("Fetched events",
		zap.String("bucket_id", bucketID),
		zap.Int("event_count", len(events)),
	)

	return events, nil
}

// get issues a GET request and returns the body, mapping non-2xx responses
// to RemoteServiceError
func (c *Client) get(reqURL string) ([]byte, error) {
	resp, err := c.httpClient.Get(reqURL)
	if err != nil {
		return nil, fmt.Errorf("request to tracking service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Tracking service error",
			zap.String("url", reqURL),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil, &RemoteServiceError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	return body, nil
}

// RemoteServiceError is returned when the tracking service answers with a
// non-success status
type RemoteServiceError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("tracking service returned status %d for %s", e.StatusCode, e.URL)
}
