package fedcat

import "time"

// Sort orders results by a field. Order is "asc" or "desc"; empty picks the field's natural order.
type Sort struct {
	Field string `json:"field"`
	Order string `json:"order,omitempty"`
}

// QueryRequest is the body of POST /query and POST /query/stream.
type QueryRequest struct {
	Text       string            `json:"text,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Start      int               `json:"start,omitempty"`
	PageSize   int               `json:"page_size,omitempty"`
	Sort       *Sort             `json:"sort,omitempty"`
	CountTotal bool              `json:"count_total,omitempty"`
	TimeoutMs  int64             `json:"timeout_ms,omitempty"`
	Enterprise bool              `json:"enterprise,omitempty"`
	Sources    []string          `json:"sources,omitempty"`
	// Properties are passed to server plugins. The server sets "subject" and
	// "groups" from the API key; values sent here for them are dropped.
	Properties map[string]any    `json:"properties,omitempty"`
}

// Record is one matched catalog record.
type Record struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Title      string            `json:"title,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Relevance  float64           `json:"relevance"`
	Distance   *float64          `json:"distance,omitempty"`
	Modified   *time.Time        `json:"modified,omitempty"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	RequestID string   `json:"request_id"`
	Hits      int64    `json:"hits"`
	Results   []Record `json:"results"`
}

// StreamSummary is the last line of a streamed query.
type StreamSummary struct {
	RequestID string `json:"request_id"`
	Hits      int64  `json:"hits"`
	Records   int    `json:"records"`
}

// StreamLine is one NDJSON line of POST /query/stream: a record or the closing summary.
type StreamLine struct {
	Record  *Record        `json:"record,omitempty"`
	Summary *StreamSummary `json:"summary,omitempty"`
}

// SourceInfo describes a registered source.
type SourceInfo struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Remote bool     `json:"remote"`
	Groups []string `json:"groups,omitempty"`
}

// SourceList is the body returned by GET /sources.
type SourceList struct {
	Sources []SourceInfo `json:"sources"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"` // "ok", "degraded", "error"
	Checks map[string]string `json:"checks"` // component → "ok"/"error"
}

// ErrorBody is the JSON error envelope returned with non-2xx statuses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
