package chi

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	logpkg "github.com/kailas-cloud/fedcat/internal/logger"
	cataloguc "github.com/kailas-cloud/fedcat/internal/usecase/catalog"
	healthuc "github.com/kailas-cloud/fedcat/internal/usecase/health"
	fedcat "github.com/kailas-cloud/fedcat/pkg/sdk"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxBodyBytes bounds a query request body.
const maxBodyBytes = 1 << 20

// Error codes returned in fedcat.ErrorBody.
const (
	codeBadRequest       = "bad_request"
	codeUnauthorized     = "unauthorized"
	codeAborted          = "processing_aborted"
	codeSourceNotFound   = "source_not_found"
	codeUnsupportedQuery = "unsupported_query"
	codeInternal         = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Paging bounds applied to incoming queries.
type Paging struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Server serves the catalog HTTP API.
type Server struct {
	catalog       *cataloguc.Service
	health        *healthuc.Service
	paging        Paging
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	catalog *cataloguc.Service,
	health *healthuc.Service,
	paging Paging,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog: catalog,
		health:  health,
		paging:  paging,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrProcessingAborted, http.StatusForbidden, codeAborted),
		sentinelHandler(domain.ErrUnknownSource, http.StatusNotFound, codeSourceNotFound),
		sentinelHandler(domain.ErrUnsupportedQuery, http.StatusUnprocessableEntity, codeUnsupportedQuery),
	}
	return s
}

// Register mounts the API routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/query", s.Query)
	r.Post("/query/stream", s.QueryStream)
	r.Get("/sources", s.ListSources)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Query handles POST /query. It waits for the federated query to finish and
// returns the whole page.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.catalog.Query(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	records := make([]fedcat.Record, 0, req.Query().PageSize())
	for {
		rec, more, err := resp.TakeContext(r.Context())
		if err != nil {
			logpkg.FromContextOr(r.Context(), s.logger).Info("client gone before query finished",
				zap.String("query_id", req.ID()), zap.Error(err))
			return
		}
		if !more {
			break
		}
		records = append(records, recordToWire(&rec))
	}

	writeJSON(w, http.StatusOK, fedcat.QueryResponse{
		RequestID: req.ID(),
		Hits:      resp.Hits(),
		Results:   records,
	})
}

// QueryStream handles POST /query/stream. Records are written as NDJSON lines
// as soon as they leave the result stream; a summary line closes the body.
func (s *Server) QueryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := s.catalog.Query(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	n := 0
	for {
		rec, more, err := resp.TakeContext(r.Context())
		if err != nil {
			return
		}
		if !more {
			break
		}
		wire := recordToWire(&rec)
		if err := enc.Encode(fedcat.StreamLine{Record: &wire}); err != nil {
			return
		}
		_ = rc.Flush()
		n++
	}

	_ = enc.Encode(fedcat.StreamLine{Summary: &fedcat.StreamSummary{
		RequestID: req.ID(),
		Hits:      resp.Hits(),
		Records:   n,
	}})
	_ = rc.Flush()
}

// ListSources handles GET /sources.
func (s *Server) ListSources(w http.ResponseWriter, _ *http.Request) {
	infos := s.catalog.List()
	out := make([]fedcat.SourceInfo, len(infos))
	for i, info := range infos {
		out[i] = fedcat.SourceInfo{
			ID:     info.ID,
			Kind:   info.Kind,
			Remote: info.Remote,
			Groups: info.Groups,
		}
	}
	writeJSON(w, http.StatusOK, fedcat.SourceList{Sources: out})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, fedcat.HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodeRequest reads and validates the body. On failure it writes the error and returns false.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (query.Request, bool) {
	var body fedcat.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return query.Request{}, false
	}

	req, err := s.requestFromWire(r.Context(), body)
	if err != nil {
		s.handleDomainError(w, r, err)
		return query.Request{}, false
	}
	return req, true
}

// requestFromWire builds a domain request. Absent page sizes take the default;
// oversized ones are capped. Subject and groups come from the authenticated
// caller only.
func (s *Server) requestFromWire(ctx context.Context, body fedcat.QueryRequest) (query.Request, error) {
	if body.PageSize < 0 {
		return query.Request{}, fmt.Errorf("%w: page_size must not be negative", domain.ErrInvalidQuery)
	}
	if body.TimeoutMs < 0 {
		return query.Request{}, fmt.Errorf("%w: timeout_ms must not be negative", domain.ErrInvalidQuery)
	}
	pageSize := body.PageSize
	if pageSize == 0 {
		pageSize = s.paging.DefaultPageSize
	}
	if s.paging.MaxPageSize > 0 && pageSize > s.paging.MaxPageSize {
		pageSize = s.paging.MaxPageSize
	}

	var sort query.Sort
	if body.Sort != nil {
		sort = query.Sort{Field: body.Sort.Field, Order: query.Order(body.Sort.Order)}
	}

	q, err := query.New(
		query.Criteria{Text: body.Text, Attributes: body.Attributes},
		body.Start, pageSize, sort, body.CountTotal,
		time.Duration(body.TimeoutMs)*time.Millisecond,
	)
	if err != nil {
		return query.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return query.NewRequest(q, body.Enterprise, body.Sources, callerProperties(ctx, body.Properties)), nil
}

// callerProperties replaces any identity claimed in the body with the caller's.
func callerProperties(ctx context.Context, props map[string]any) map[string]any {
	props = maps.Clone(props)
	delete(props, query.PropSubject)
	delete(props, query.PropGroups)

	caller, ok := CallerFromContext(ctx)
	if !ok {
		return props
	}
	if props == nil {
		props = make(map[string]any, 2)
	}
	if caller.Subject != "" {
		props[query.PropSubject] = caller.Subject
	}
	if len(caller.Groups) > 0 {
		props[query.PropGroups] = slices.Clone(caller.Groups)
	}
	return props
}

func recordToWire(r *result.Result) fedcat.Record {
	rec := fedcat.Record{
		ID:         r.ID(),
		Source:     r.SourceID(),
		Title:      r.Title(),
		Attributes: r.Attributes(),
		Relevance:  r.Relevance(),
	}
	if d, ok := r.Distance(); ok {
		rec.Distance = &d
	}
	if m := r.Modified(); !m.IsZero() {
		m = m.UTC()
		rec.Modified = &m
	}
	return rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, fedcat.ErrorBody{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message without exposing internals.
// Invalid queries echo the validation detail since it only describes the caller's input.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidQuery) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrProcessingAborted,
		domain.ErrUnknownSource,
		domain.ErrUnsupportedQuery,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

