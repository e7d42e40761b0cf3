package fedcat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultUserAgent = "fedcat-go"
	maxStreamLine    = 4 << 20
)

// Client talks to one fedcat node over HTTP.
type Client struct {
	base      *url.URL
	http      *http.Client
	apiKey    string
	userAgent string
	obs       *observer
}

// New creates a client for the node at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: defaultTimeout, userAgent: defaultUserAgent}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("fedcat: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fedcat: base url must be http or https, got %q", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{base: u, http: hc, apiKey: cfg.apiKey, userAgent: cfg.userAgent, obs: obs}, nil
}

// Query runs a federated query and waits for the whole page.
func (c *Client) Query(ctx context.Context, req QueryRequest) (resp *QueryResponse, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query", start, err) }()

	httpResp, err := c.do(ctx, http.MethodPost, "/query", req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var out QueryResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fedcat: decode query response: %w", err)
	}
	return &out, nil
}

// QueryStream runs a federated query and calls fn for every record as it
// arrives. A non-nil error from fn stops reading and is returned.
func (c *Client) QueryStream(
	ctx context.Context, req QueryRequest, fn func(Record) error,
) (summary StreamSummary, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query_stream", start, err) }()

	httpResp, err := c.do(ctx, http.MethodPost, "/query/stream", req)
	if err != nil {
		return StreamSummary{}, err
	}
	defer httpResp.Body.Close()

	sc := bufio.NewScanner(httpResp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var l StreamLine
		if err := json.Unmarshal(line, &l); err != nil {
			return StreamSummary{}, fmt.Errorf("fedcat: decode stream line: %w", err)
		}
		switch {
		case l.Summary != nil:
			return *l.Summary, nil
		case l.Record != nil:
			if err := fn(*l.Record); err != nil {
				return StreamSummary{}, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return StreamSummary{}, fmt.Errorf("fedcat: read stream: %w", err)
	}
	return StreamSummary{}, errors.New("fedcat: stream ended without summary")
}

// Sources lists the sources registered on the node.
func (c *Client) Sources(ctx context.Context) (sources []SourceInfo, err error) {
	start := time.Now()
	defer func() { c.obs.observe("sources", start, err) }()

	httpResp, err := c.do(ctx, http.MethodGet, "/sources", nil)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var out SourceList
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("fedcat: decode sources: %w", err)
	}
	return out.Sources, nil
}

// do sends one request and returns the response for 2xx statuses.
// Other statuses are decoded into an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("fedcat: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("fedcat: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fedcat: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, decodeError(resp)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode)}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}
	var body ErrorBody
	if json.Unmarshal(raw, &body) == nil && body.Code != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
