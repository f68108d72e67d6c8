package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPSource is the Source implementation backed by the provider's REST
// event API.
type HTTPSource struct {
	baseURL   string
	apiKey    string
	pageLimit int
	client    *http.Client
}

// NewHTTPSource creates an event source client with bounded transport
// timeouts.
func NewHTTPSource(cfg Config) *HTTPSource {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 15
	}
	timeoutDuration := time.Duration(timeout) * time.Second

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeoutDuration,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeoutDuration,
		ResponseHeaderTimeout: timeoutDuration,
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}

	return &HTTPSource{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.ApiKey,
		pageLimit: pageLimit,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeoutDuration,
		},
	}
}

type eventsResponse struct {
	Events []Event `json:"events"`
}

// GetEvents fetches events matching the filter from the provider API.
func (s *HTTPSource) GetEvents(ctx context.Context, filter Filter) ([]Event, error) {
	q := url.Values{}
	if filter.ResourceType != "" {
		q.Set("resource_type", filter.ResourceType)
	}
	if !filter.Since.IsZero() {
		q.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = s.pageLimit
	}
	q.Set("limit", strconv.Itoa(limit))

	endpoint := fmt.Sprintf("%s/v1/events?%s", s.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build events request: %w", err)
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("event API returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode events response: %w", err)
	}
	return parsed.Events, nil
}

// EmitEvent posts a synthetic event to the provider's event queue.
func (s *HTTPSource) EmitEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	endpoint := s.baseURL + "/v1/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build emit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("event API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (s *HTTPSource) authorize(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
