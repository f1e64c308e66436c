// Package webfetch provides a tool.Fetcher that downloads a page over HTTP
// and extracts its readable text with goquery.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hupe1980/agentengine/logging"
	"github.com/hupe1980/agentengine/tool"
)

// DefaultMaxBytes caps the body size read per page.
const DefaultMaxBytes = 2 << 20

// DefaultMaxTextLength caps the extracted text handed to the model.
const DefaultMaxTextLength = 20000

// Options configures a Fetcher.
type Options struct {
	HTTPClient    *http.Client
	UserAgent     string
	MaxBytes      int64
	MaxTextLength int
	Logger        logging.Logger
}

// Fetcher implements tool.Fetcher.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	maxBytes      int64
	maxTextLength int
	logger        logging.Logger
}

var _ tool.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher.
func New(optFns ...func(o *Options)) *Fetcher {
	opts := Options{
		HTTPClient:    http.DefaultClient,
		UserAgent:     "agentengine-webfetch/1.0",
		MaxBytes:      DefaultMaxBytes,
		MaxTextLength: DefaultMaxTextLength,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Fetcher{
		client:        opts.HTTPClient,
		userAgent:     opts.UserAgent,
		maxBytes:      opts.MaxBytes,
		maxTextLength: opts.MaxTextLength,
		logger:        opts.Logger,
	}
}

// Fetch implements tool.Fetcher. Only absolute http and https URLs are accepted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*tool.Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("webfetch: invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("webfetch: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webfetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webfetch: %s returned %d %s", rawURL, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body := io.LimitReader(resp.Body, f.maxBytes)

	page := &tool.Page{URL: rawURL}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("webfetch: read body: %w", err)
		}
		page.Text = f.truncate(strings.TrimSpace(string(raw)))
		f.logger.Debug("webfetch.fetch.completed", "url", rawURL, "content_type", ct, "bytes", len(page.Text))
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("webfetch: parse html: %w", err)
	}

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.Text = f.truncate(extractText(doc))

	f.logger.Debug("webfetch.fetch.completed", "url", rawURL, "title", page.Title, "bytes", len(page.Text))

	return page, nil
}

func (f *Fetcher) truncate(s string) string {
	if f.maxTextLength > 0 && len(s) > f.maxTextLength {
		return s[:f.maxTextLength]
	}
	return s
}

// extractText returns the visible body text, one block per line.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, svg, head").Remove()

	var lines []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are collected at the innermost level.
		if s.Find("p, li, pre, blockquote, td, th").Length() > 0 {
			return
		}
		if text := collapseSpace(s.Text()); text != "" {
			lines = append(lines, text)
		}
	})

	if len(lines) == 0 {
		return collapseSpace(doc.Find("body").Text())
	}

	return strings.Join(lines, "\n")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
