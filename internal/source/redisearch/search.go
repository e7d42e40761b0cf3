package redisearch

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/fedcat/internal/domain"
	"github.com/kailas-cloud/fedcat/internal/domain/query"
	"github.com/kailas-cloud/fedcat/internal/domain/result"
	"github.com/kailas-cloud/fedcat/internal/source"
)

// maxUnboundedPage caps an unbounded page; FT.SEARCH always needs a LIMIT.
const maxUnboundedPage = 10000

// Query translates the request into FT.SEARCH and maps matched hashes to records.
func (s *Source) Query(ctx context.Context, req query.Request) (result.Response, error) {
	q := req.Query()

	args, err := s.buildArgs(q)
	if err != nil {
		return result.Response{}, err
	}

	cmd := s.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := s.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return result.Response{}, fmt.Errorf("%w: index %s: %w", domain.ErrSourceUnavailable, s.index, err)
		}
		return result.Response{}, fmt.Errorf("FT.SEARCH: %w", err)
	}

	return s.parseResult(raw)
}

func (s *Source) buildArgs(q query.Query) ([]string, error) {
	limit := q.PageSize()
	if limit == 0 {
		limit = maxUnboundedPage
	}

	args := []string{s.index, buildQuery(q.Criteria()), "WITHSCORES"}

	sortArgs, err := s.sortArgs(q.Sort())
	if err != nil {
		return nil, err
	}
	args = append(args, sortArgs...)

	args = append(args,
		"LIMIT", strconv.Itoa(q.Start()-1), strconv.Itoa(limit),
		"DIALECT", "2",
	)
	return args, nil
}

// sortArgs maps the query sort onto SORTBY. Relevance is the native order.
func (s *Source) sortArgs(sort query.Sort) ([]string, error) {
	dir := "ASC"
	if sort.Order == query.Descending {
		dir = "DESC"
	}
	switch sort.Field {
	case "", "relevance":
		return nil, nil
	case "distance":
		return nil, fmt.Errorf("%w: redisearch source %s cannot sort by distance", domain.ErrUnsupportedQuery, s.id)
	case "title":
		return []string{"SORTBY", s.titleField, dir}, nil
	case "modified":
		return []string{"SORTBY", s.modifiedField, dir}, nil
	default:
		return []string{"SORTBY", sort.Field, dir}, nil
	}
}

// buildQuery renders criteria as a DIALECT 2 query: escaped terms plus tag filters.
func buildQuery(c query.Criteria) string {
	var parts []string

	text := strings.TrimSpace(c.Text)
	if text != "" && text != source.MatchAll {
		for _, word := range strings.Fields(text) {
			parts = append(parts, escapeQuery(word))
		}
	}

	names := make([]string, 0, len(c.Attributes))
	for name := range c.Attributes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		parts = append(parts, buildTagFilter(name, c.Attributes[name]))
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// --- Result parsing ---

func (s *Source) parseResult(raw []rueidis.RedisMessage) (result.Response, error) {
	if len(raw) == 0 {
		return result.Response{}, nil
	}

	total, err := raw[0].AsInt64()
	if err != nil {
		return result.Response{}, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return result.Response{}, nil
	}

	out := make([]result.Result, 0, (len(raw)-1)/3)
	// 3-stride: [total, key1, score1, fields1, key2, score2, fields2, ...]
	for i := 1; i+2 < len(raw); i += 3 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}

		scoreStr, err := raw[i+1].ToString()
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(scoreStr, 64)
		if err != nil {
			continue
		}

		fields, err := raw[i+2].ToArray()
		if err != nil {
			continue
		}

		out = append(out, s.toResult(key, score, parseFieldPairs(fields)))
	}

	return result.Response{Results: out, Hits: total}, nil
}

func (s *Source) toResult(key string, score float64, fields map[string]string) result.Result {
	title := fields[s.titleField]
	modified := parseModified(fields[s.modifiedField])
	delete(fields, s.titleField)
	delete(fields, s.modifiedField)

	r := result.New(strings.TrimPrefix(key, s.keyPrefix), s.id, title, fields, score)
	if !modified.IsZero() {
		r = r.WithModified(modified)
	}
	return r
}

// parseModified accepts unix milliseconds or RFC 3339.
func parseModified(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseFieldPairs(fields []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(fields)/2)
	for j := 0; j+1 < len(fields); j += 2 {
		name, err := fields[j].ToString()
		if err != nil {
			continue
		}
		value, err := fields[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// --- Query helpers ---

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)
