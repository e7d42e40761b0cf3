// Package s3 is a catalog source over object metadata in an S3-compatible bucket.
//
// Every object under the configured prefix is one record: the relative key
// is its ID, the base name its title, and size, etag, storage class and
// directory are attributes. Text criteria match the key.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
)

// DefaultMaxObjects bounds how many keys one query lists.
const DefaultMaxObjects = 10000

// Attribute names set on every record.
const (
	AttrKey          = "key"
	AttrDir          = "dir"
	AttrSize         = "size"
	AttrETag         = "etag"
	AttrStorageClass = "storage_class"
)

// API defines the subset of the S3 client interface used by the source.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Config holds the bucket to expose.
type Config struct {
	ID     string
	Bucket string

	// Prefix limits the source to keys below it. A trailing slash is added if missing.
	Prefix string

	// MaxObjects caps the listing per query. Default: DefaultMaxObjects.
	MaxObjects int
}

// Source answers queries by listing bucket keys.
type Source struct {
	id         string
	client     API
	bucket     string
	prefix     string
	maxObjects int
}

// New creates an S3 source over a pre-configured client.
func New(client API, cfg Config) (*Source, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: s3 source %s: client is required", domain.ErrInvalidConfig, cfg.ID)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 source %s: bucket is required", domain.ErrInvalidConfig, cfg.ID)
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	maxObjects := cfg.MaxObjects
	if maxObjects <= 0 {
		maxObjects = DefaultMaxObjects
	}

	return &Source{
		id:         cfg.ID,
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     prefix,
		maxObjects: maxObjects,
	}, nil
}

// ID returns the source identifier.
func (s *Source) ID() string { return s.id }

// Ping checks the bucket exists and is reachable.
func (s *Source) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return s.wrap("head bucket", err)
	}
	return nil
}

// Query lists keys, filters them by the criteria and pages the matches.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	q := req.Query()
	if q.Sort().Field == "distance" {
		return result.Response{}, fmt.Errorf("%w: s3 source %s cannot sort by distance", domain.ErrUnsupportedQuery, s.id)
	}

	objects, err := s.list(ctx)
	if err != nil {
		return result.Response{}, err
	}

	filters := q.Criteria().Attributes
	matched := make([]result.Result, 0, len(objects))
	for _, obj := range objects {
		r := s.toResult(obj)
		if !source.MatchText(q.Text(), r.ID()) {
			continue
		}
		if !source.MatchAttributes(filters, r.Attributes()) {
			continue
		}
		matched = append(matched, r)
	}

	cmp := result.ForSort(q.Sort())
	slices.SortStableFunc(matched, func(a, b result.Result) int { return cmp(&a, &b) })

	from, to := source.Window(len(matched), q.Start(), q.PageSize())
	return result.Response{Results: matched[from:to], Hits: int64(len(matched))}, nil
}

// list pages through ListObjectsV2 until the listing ends or maxObjects is reached.
func (s *Source) list(ctx context.Context) ([]types.Object, error) {
	var (
		objects []types.Object
		token   *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, s.wrap("list objects", err)
		}

		for _, obj := range out.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			objects = append(objects, obj)
			if len(objects) >= s.maxObjects {
				return objects, nil
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			return objects, nil
		}
		token = out.NextContinuationToken
	}
}

func (s *Source) toResult(obj types.Object) result.Result {
	key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
	attrs := map[string]string{
		AttrKey:  key,
		AttrDir:  path.Dir(key),
		AttrSize: strconv.FormatInt(aws.ToInt64(obj.Size), 10),
	}
	if obj.ETag != nil {
		attrs[AttrETag] = strings.Trim(*obj.ETag, `"`)
	}
	if obj.StorageClass != "" {
		attrs[AttrStorageClass] = string(obj.StorageClass)
	}

	r := result.New(key, s.id, path.Base(key), attrs, 1)
	if obj.LastModified != nil {
		r = r.WithModified(obj.LastModified.UTC())
	}
	return r
}

// wrap marks missing buckets and denied access as the source being unavailable.
func (s *Source) wrap(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: s3 %s bucket %s: %w", domain.ErrSourceUnavailable, op, s.bucket, err)
	}
	return fmt.Errorf("s3: %s: %w", op, err)
}

func isUnavailable(err error) bool {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound", "AccessDenied", "Forbidden", "403", "404":
			return true
		}
	}
	return false
}
