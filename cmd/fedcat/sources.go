package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedcat/internal/config"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
	"github.com/kailas-cloud/fedcat/internal/source/memory"
	"github.com/kailas-cloud/fedcat/internal/source/ratelimit"
	"github.com/kailas-cloud/fedcat/internal/source/redisearch"
	"github.com/kailas-cloud/fedcat/internal/source/remote"
	s3src "github.com/kailas-cloud/fedcat/internal/source/s3"
	"github.com/kailas-cloud/fedcat/internal/source/sqlite"
	"github.com/kailas-cloud/fedcat/internal/usecase/federation"
	"github.com/kailas-cloud/fedcat/internal/version"
	fedcat "github.com/kailas-cloud/fedcat/pkg/sdk"
)

// builtSource is a connector ready for registration.
type builtSource struct {
	source federation.Source
	pinger source.Pinger // nil when the connector cannot be pinged
	closer io.Closer     // nil when nothing needs closing
	remote bool
}

// closerFunc adapts a func to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// buildSource creates the connector for one configured source and applies its rate limit.
func buildSource(ctx context.Context, sc config.SourceConfig, logger *zap.Logger) (builtSource, error) {
	var (
		b   builtSource
		err error
	)
	switch sc.Kind {
	case config.KindMemory:
		b.source = memory.New(sc.ID, memoryRecords(sc.Memory.Records)...)

	case config.KindSQLite:
		var src *sqlite.Source
		src, err = sqlite.Open(sc.ID, sc.SQLite.Path)
		if err == nil {
			b.source, b.pinger, b.closer = src, src, src
		}

	case config.KindRediSearch:
		var src *redisearch.Source
		src, err = redisearch.New(redisearch.Config{
			ID:            sc.ID,
			Addrs:         sc.RediSearch.Addrs,
			Username:      sc.RediSearch.Username,
			Password:      sc.RediSearch.Password,
			DB:            sc.RediSearch.DB,
			Index:         sc.RediSearch.Index,
			KeyPrefix:     sc.RediSearch.KeyPrefix,
			TitleField:    sc.RediSearch.TitleField,
			ModifiedField: sc.RediSearch.ModifiedField,
		})
		if err != nil {
			break
		}
		readiness := time.Duration(sc.RediSearch.ReadinessTimeout) * time.Second
		if werr := src.WaitForReady(ctx, readiness); werr != nil {
			// Keep the source: failures only reduce federated results and show up in /health.
			logger.Warn("RediSearch source not ready", zap.String("source_id", sc.ID), zap.Error(werr))
		}
		b.source, b.pinger = src, src
		b.closer = closerFunc(func() error { src.Close(); return nil })

	case config.KindRemote:
		opts := []fedcat.Option{
			fedcat.WithUserAgent("fedcat-peer/" + version.Version),
			fedcat.WithPrometheus(prometheus.DefaultRegisterer),
		}
		if sc.Remote.APIKey != "" {
			opts = append(opts, fedcat.WithAPIKey(sc.Remote.APIKey))
		}
		if sc.Remote.TimeoutMs > 0 {
			opts = append(opts, fedcat.WithTimeout(time.Duration(sc.Remote.TimeoutMs)*time.Millisecond))
		}
		var src *remote.Source
		src, err = remote.Dial(sc.ID, sc.Remote.URL, opts...)
		if err == nil {
			src = src.WithMaxPageSize(sc.Remote.MaxPageSize)
			b.source, b.pinger, b.remote = src, src, true
		}

	case config.KindS3:
		client, cerr := s3src.NewClient(ctx, s3src.ClientConfig{
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			UsePathStyle:    sc.S3.UsePathStyle,
			AccessKeyID:     sc.S3.AccessKeyID,
			SecretAccessKey: sc.S3.SecretAccessKey,
		})
		if cerr != nil {
			err = cerr
			break
		}
		var src *s3src.Source
		src, err = s3src.New(client, s3src.Config{
			ID:         sc.ID,
			Bucket:     sc.S3.Bucket,
			Prefix:     sc.S3.Prefix,
			MaxObjects: sc.S3.MaxObjects,
		})
		if err == nil {
			b.source, b.pinger = src, src
		}

	default:
		err = fmt.Errorf("unknown source kind %q", sc.Kind)
	}
	if err != nil {
		return builtSource{}, fmt.Errorf("source %s: %w", sc.ID, err)
	}

	b.source = ratelimit.Wrap(b.source, ratelimit.Config{
		RequestsPerSecond: sc.RateLimit.RequestsPerSecond,
		Burst:             sc.RateLimit.Burst,
	})
	return b, nil
}

func memoryRecords(rcs []config.RecordConfig) []result.Result {
	out := make([]result.Result, 0, len(rcs))
	for _, rc := range rcs {
		r := result.New(rc.ID, "", rc.Title, rc.Attributes, 0)
		if !rc.Modified.IsZero() {
			r = r.WithModified(rc.Modified)
		}
		out = append(out, r)
	}
	return out
}
