package catalog

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
)

// Entry is a registered source plus the metadata shown by the catalog listing.
type Entry struct {
	Source federation.Source
	Kind   string
	Remote bool
	Groups []string
}

// Info describes a registered source.
type Info struct {
	ID     string
	Kind   string
	Remote bool
	Groups []string
}

// Service owns the source registry and resolves which sources a request reaches.
type Service struct {
	fed     Federator
	entries []Entry
	byID    map[string]int
	logger  *zap.Logger
}

// New creates a catalog with no sources.
func New(fed Federator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{fed: fed, byID: make(map[string]int), logger: logger}
}

// Register adds a source. IDs must be unique and non-empty.
func (s *Service) Register(e Entry) error {
	if e.Source == nil {
		return fmt.Errorf("%w: nil source", domain.ErrInvalidConfig)
	}
	id := e.Source.ID()
	if id == "" {
		return fmt.Errorf("%w: source id is required", domain.ErrInvalidConfig)
	}
	if _, dup := s.byID[id]; dup {
		return fmt.Errorf("%w: duplicate source id %q", domain.ErrInvalidConfig, id)
	}
	e.Groups = slices.Clone(e.Groups)
	s.byID[id] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// List returns registered sources in registration order.
func (s *Service) List() []Info {
	out := make([]Info, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Info{
			ID:     e.Source.ID(),
			Kind:   e.Kind,
			Remote: e.Remote,
			Groups: slices.Clone(e.Groups),
		})
	}
	return out
}

// Sources returns every registered source.
func (s *Service) Sources() []federation.Source {
	out := make([]federation.Source, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Source)
	}
	return out
}

// Select resolves the sources a request targets: every source for an
// enterprise query, the named ones when IDs are given, local sources otherwise.
func (s *Service) Select(req query.Request) ([]federation.Source, error) {
	switch ids := req.SourceIDs(); {
	case req.Enterprise():
		return s.Sources(), nil
	case len(ids) > 0:
		out := make([]federation.Source, 0, len(ids))
		for _, id := range ids {
			i, ok := s.byID[id]
			if !ok {
				return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSource, id)
			}
			out = append(out, s.entries[i].Source)
		}
		return out, nil
	default:
		out := make([]federation.Source, 0, len(s.entries))
		for _, e := range s.entries {
			if !e.Remote {
				out = append(out, e.Source)
			}
		}
		return out, nil
	}
}

// Query selects sources for req and federates it.
func (s *Service) Query(ctx context.Context, req query.Request) (*federation.Response, error) {
	sources, err := s.Select(req)
	if err != nil {
		return nil, err
	}
	logpkg.FromContextOr(ctx, s.logger).Debug("sources selected",
		zap.String("query_id", req.ID()),
		zap.Bool("enterprise", req.Enterprise()),
		zap.Int("sources", len(sources)),
	)
	resp, err := s.fed.Federate(ctx, sources, req)
	if err != nil {
		return nil, fmt.Errorf("federate: %w", err)
	}
	return resp, nil
}
