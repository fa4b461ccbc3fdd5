package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPTransport posts tasks to an executor service, one endpoint per queue.
// For deployments without a broker: the executor accepts the task over HTTP
// and later reports the outcome through the result endpoint.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPTransport(baseURL string, timeout time.Duration, requestsPerSecond int) (*HTTPTransport, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("executor url is required for http transport")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 20
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}, nil
}

func (t *HTTPTransport) Submit(ctx context.Context, req SubmitRequest) error {
	payload, err := json.Marshal(newWireMessage(req))
	if err != nil {
		return fmt.Errorf("failed to encode task message: %w", err)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	url := fmt.Sprintf("%s/queues/%s/tasks", t.baseURL, req.Queue)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if retryableStatus(resp.StatusCode) {
		return fmt.Errorf("%w: executor returned %d", ErrUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("executor rejected task: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (t *HTTPTransport) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build ping request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: executor health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// 429 and 5xx mean the executor is unhealthy, not that this task is bad.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}
