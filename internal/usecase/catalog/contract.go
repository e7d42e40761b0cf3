package catalog

import (
	"context"

	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Federator runs a federated query over a resolved source list.
type Federator interface {
	Federate(ctx context.Context, sources []federation.Source, req query.Request) (*federation.Response, error)
}
