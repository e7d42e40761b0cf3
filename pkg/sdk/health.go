package fedcat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Health fetches the node health. A degraded or failing node still returns
// its status; only transport and decoding problems are errors.
func (c *Client) Health(ctx context.Context) (status HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		// The server answers 503 with the same body when unhealthy.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
			return HealthStatus{Status: "error"}, nil
		}
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return HealthStatus{}, fmt.Errorf("fedcat: decode health: %w", err)
	}
	return status, nil
}

// Ping reports an error unless the node is healthy or degraded.
func (c *Client) Ping(ctx context.Context) error {
	status, err := c.Health(ctx)
	if err != nil {
		return err
	}
	if status.Status == "error" {
		return errors.New("fedcat: node unhealthy")
	}
	return nil
}
