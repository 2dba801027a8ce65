// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package digest collects news headlines and formats them into a Telegram
// message.
package digest

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.astrophena.name/tgdigest/internal/api/newsapi"
	"go.astrophena.name/tgdigest/internal/logger"
	"go.astrophena.name/tgdigest/internal/request"
	"go.astrophena.name/tgdigest/internal/source"
	"go.astrophena.name/tgdigest/internal/util/set"
	"go.astrophena.name/tgdigest/internal/version"

	"github.com/mmcdole/gofeed"
)

// Placeholder is used instead of headlines when nothing was fetched.
const Placeholder = "No news headlines found."

// DefaultCap is the default maximum number of headlines in a digest.
const DefaultCap = 5

// SourceResult records the outcome of fetching a single source.
type SourceResult struct {
	Source   string `json:"source"`
	Provider string `json:"provider,omitempty"`
	RSS      string `json:"rss,omitempty"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

// Batch is a collected set of headlines ready for formatting.
type Batch struct {
	Headlines []string       `json:"headlines"`
	Results   []SourceResult `json:"results"`
}

// Fetcher collects headlines from news sources.
type Fetcher struct {
	Client     *newsapi.Client // used for NewsAPI sources
	HTTPClient *http.Client    // used for RSS sources; request.DefaultClient if nil
	Logf       logger.Logf     // log.Printf if nil

	fp *gofeed.Parser
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.Logf != nil {
		f.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (f *Fetcher) httpc() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return request.DefaultClient
}

// Fetch collects up to limit headlines from the given sources, in order.
// Sources are fetched one by one; a failing source is logged and recorded in
// the returned batch, but doesn't fail the whole fetch. Duplicate headlines
// are dropped, keeping the first occurrence. If nothing was fetched, the
// batch contains a single placeholder headline.
func (f *Fetcher) Fetch(ctx context.Context, sources []*source.Source, limit int) *Batch {
	if limit <= 0 {
		limit = DefaultCap
	}

	b := new(Batch)
	seen := set.New[string](limit)

	for _, src := range sources {
		if len(b.Headlines) >= limit {
			break
		}

		res := SourceResult{Source: src.ID, Provider: src.Provider, RSS: src.RSS}

		articles, err := f.fetchSource(ctx, src, limit)
		if err != nil {
			f.logf("Fetching %q failed: %v", src.ID, err)
			res.Error = err.Error()
			b.Results = append(b.Results, res)
			continue
		}

		for _, a := range articles {
			if len(b.Headlines) >= limit {
				break
			}
			if a.Title == "" || !src.Allowed(f.logf, a) {
				continue
			}
			if seen.Add(a.Title) {
				b.Headlines = append(b.Headlines, a.Title)
				res.Count++
			}
		}

		b.Results = append(b.Results, res)
	}

	if len(b.Headlines) == 0 {
		b.Headlines = append(b.Headlines, Placeholder)
	}

	return b
}

func (f *Fetcher) fetchSource(ctx context.Context, src *source.Source, limit int) ([]source.Article, error) {
	if src.RSS != "" {
		return f.fetchRSS(ctx, src.RSS)
	}
	return f.fetchNewsAPI(ctx, src.Provider, limit)
}

func (f *Fetcher) fetchNewsAPI(ctx context.Context, provider string, limit int) ([]source.Article, error) {
	fetched, err := f.Client.TopHeadlines(ctx, provider, limit)
	if err != nil {
		return nil, err
	}
	var articles []source.Article
	for _, a := range fetched {
		articles = append(articles, source.Article{
			Title:       a.Title,
			URL:         a.URL,
			Description: a.Description,
		})
	}
	return articles, nil
}

func (f *Fetcher) fetchRSS(ctx context.Context, url string) ([]source.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	res, err := f.httpc().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		const readLimit = 16384
		body, err := io.ReadAll(io.LimitReader(res.Body, readLimit))
		if err != nil {
			body = []byte("unable to read body")
		}
		return nil, fmt.Errorf("want 200, got %d: %s", res.StatusCode, body)
	}

	if f.fp == nil {
		f.fp = gofeed.NewParser()
	}
	feed, err := f.fp.Parse(res.Body)
	if err != nil {
		return nil, err
	}

	var articles []source.Article
	for _, item := range feed.Items {
		articles = append(articles, source.Article{
			Title:       item.Title,
			URL:         item.Link,
			Description: item.Description,
		})
	}
	return articles, nil
}

// Format renders a batch into a Telegram message in Markdown format. The
// optional label is included in the header, marking, for example, manually
// triggered digests. The date comes from asOf.
func Format(b *Batch, label string, asOf time.Time) string {
	var sb strings.Builder

	sb.WriteString("*📰 AI News Headlines ")
	if label != "" {
		sb.WriteString("(" + label + ") ")
	}
	sb.WriteString("(" + asOf.Format("2006-01-02") + ") 📰*\n\n")

	for i, h := range b.Headlines {
		fmt.Fprintf(&sb, "%d. %s\n\n", i+1, h)
	}

	return sb.String()
}
