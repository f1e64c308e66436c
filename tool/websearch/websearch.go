// Package websearch provides a tool.Searcher backed by the Google Custom
// Search JSON API.
package websearch

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/tool"
)

// DefaultNum is the number of results requested per query.
const DefaultNum = 5

// Options configures a Searcher.
type Options struct {
	// Num is the number of results per query (1-10).
	Num int64
	// ClientOptions are passed to the customsearch service.
	ClientOptions []option.ClientOption
	Logger        logging.Logger
}

// Searcher implements tool.Searcher on a programmable search engine.
type Searcher struct {
	svc      *customsearch.Service
	engineID string
	num      int64
	logger   logging.Logger
}

var _ tool.Searcher = (*Searcher)(nil)

// New creates a Searcher for the search engine engineID. An empty apiKey
// leaves authentication to the client options.
func New(ctx context.Context, apiKey, engineID string, optFns ...func(o *Options)) (*Searcher, error) {
	if engineID == "" {
		return nil, errors.New("websearch: engine id is required")
	}

	opts := Options{
		Num:    DefaultNum,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Num < 1 || opts.Num > 10 {
		return nil, fmt.Errorf("websearch: num must be between 1 and 10, got %d", opts.Num)
	}

	clientOpts := opts.ClientOptions
	if apiKey != "" {
		clientOpts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	}

	svc, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("websearch: create service: %w", err)
	}

	return &Searcher{svc: svc, engineID: engineID, num: opts.Num, logger: opts.Logger}, nil
}

// Search implements tool.Searcher.
func (s *Searcher) Search(ctx context.Context, query string) ([]tool.SearchResult, error) {
	res, err := s.svc.Cse.List().Cx(s.engineID).Q(query).Num(s.num).Context(ctx).Do()
	if err != nil {
		s.logger.Warn("websearch.search.failed", "query", query, "error", err.Error())
		return nil, fmt.Errorf("websearch: %w", err)
	}

	results := make([]tool.SearchResult, 0, len(res.Items))
	for _, item := range res.Items {
		if item == nil {
			continue
		}
		results = append(results, tool.SearchResult{
			Title:   item.Title,
			URL:     item.Link,
			Snippet: item.Snippet,
		})
	}

	s.logger.Debug("websearch.search.completed", "query", query, "results", len(results))

	return results, nil
}
