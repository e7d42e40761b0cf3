package federation

import (
	"context"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/executor"
)

// Source is one backing catalog. Any error it returns means "this source failed".
type Source interface {
	ID() string
	Query(ctx context.Context, req query.Request) (result.Response, error)
}

// PreQueryPlugin transforms the request sent to one source before dispatch.
// Returning an error wrapping domain.ErrStopProcessing aborts the federated query.
type PreQueryPlugin interface {
	Process(ctx context.Context, src Source, req query.Request) (query.Request, error)
}

// PostQueryPlugin transforms the response handed back to the caller.
// Returning an error wrapping domain.ErrStopProcessing aborts the federated query.
type PostQueryPlugin interface {
	Process(ctx context.Context, resp *Response) (*Response, error)
}

// PreQueryFunc adapts a function to PreQueryPlugin.
type PreQueryFunc func(ctx context.Context, src Source, req query.Request) (query.Request, error)

// Process implements PreQueryPlugin.
func (f PreQueryFunc) Process(ctx context.Context, src Source, req query.Request) (query.Request, error) {
	return f(ctx, src, req)
}

// PostQueryFunc adapts a function to PostQueryPlugin.
type PostQueryFunc func(ctx context.Context, resp *Response) (*Response, error)

// Process implements PostQueryPlugin.
func (f PostQueryFunc) Process(ctx context.Context, resp *Response) (*Response, error) {
	return f(ctx, resp)
}

// Executor runs per-source query tasks. It is owned by the host, not by the service.
type Executor = executor.Submitter
