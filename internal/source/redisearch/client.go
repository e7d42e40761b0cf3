// Package redisearch is a catalog source over a RediSearch/valkey-search
// index of hashes, queried with FT.SEARCH through rueidis.
package redisearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/fedcat/internal/domain"
)

// Default hash fields holding record metadata.
const (
	DefaultTitleField    = "title"
	DefaultModifiedField = "modified"
)

// Config holds connection and index parameters.
type Config struct {
	ID       string
	Addrs    []string
	Username string
	Password string
	DB       int

	Index         string
	KeyPrefix     string
	TitleField    string
	ModifiedField string
}

// Source implements a catalog source via rueidis for Redis 8+ and valkey-search.
type Source struct {
	id            string
	client        rueidis.Client
	index         string
	keyPrefix     string
	titleField    string
	modifiedField string
}

// New connects a RediSearch source.
func New(cfg Config) (*Source, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("%w: redisearch source %s: addrs is required", domain.ErrInvalidConfig, cfg.ID)
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("%w: redisearch source %s: index is required", domain.ErrInvalidConfig, cfg.ID)
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return NewWithClient(cfg, client), nil
}

// NewWithClient wraps an existing rueidis client.
func NewWithClient(cfg Config, c rueidis.Client) *Source {
	s := &Source{
		id:            cfg.ID,
		client:        c,
		index:         cfg.Index,
		keyPrefix:     cfg.KeyPrefix,
		titleField:    cfg.TitleField,
		modifiedField: cfg.ModifiedField,
	}
	if s.titleField == "" {
		s.titleField = DefaultTitleField
	}
	if s.modifiedField == "" {
		s.modifiedField = DefaultModifiedField
	}
	return s
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Ping checks connectivity.
func (s *Source) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (s *Source) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the server responds or timeout expires.
func (s *Source) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", s.id, ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// isUnknownIndex reports a server error about a missing index.
func isUnknownIndex(err error) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	msg := strings.ToLower(re.Error())
	return strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index")
}
