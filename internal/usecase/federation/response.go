package federation

import (
	"context"
	"maps"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/stream"
)

// Response is the caller's handle on a federated query. Records keep arriving
// after Federate returns; Take blocks until the next one is ready.
type Response struct {
	request    query.Request
	reader     stream.Reader
	properties map[string]any
}

// NewResponse wraps a stream reader.
func NewResponse(req query.Request, reader stream.Reader) *Response {
	return &Response{request: req, reader: reader}
}

// Request returns the normalized request the response answers.
func (r *Response) Request() query.Request { return r.request }

// Reader returns the underlying stream reader.
func (r *Response) Reader() stream.Reader { return r.reader }

// WithReader returns a copy reading from a different stream. Post-query
// plugins use it to decorate the record flow.
func (r *Response) WithReader(reader stream.Reader) *Response {
	return &Response{request: r.request, reader: reader, properties: maps.Clone(r.properties)}
}

// WithProperty returns a copy with one response property set.
func (r *Response) WithProperty(key string, value any) *Response {
	props := maps.Clone(r.properties)
	if props == nil {
		props = make(map[string]any, 1)
	}
	props[key] = value
	return &Response{request: r.request, reader: r.reader, properties: props}
}

// Property returns a response property.
func (r *Response) Property(key string) (any, bool) {
	v, ok := r.properties[key]
	return v, ok
}

// Take blocks until a record is available or the stream is closed and drained.
func (r *Response) Take() (result.Result, bool) { return r.reader.Take() }

// TakeContext is Take bounded by ctx.
func (r *Response) TakeContext(ctx context.Context) (result.Result, bool, error) {
	return r.reader.TakeContext(ctx)
}

// HasMore reports whether more records can be taken.
func (r *Response) HasMore() bool { return r.reader.HasMore() }

// Hits returns the total hit count; final once Done is closed.
func (r *Response) Hits() int64 { return r.reader.Hits() }

// Done is closed when population of the response finishes.
func (r *Response) Done() <-chan struct{} { return r.reader.Done() }
