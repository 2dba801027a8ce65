// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package newsapi provides a very minimal client for interacting with NewsAPI.
//
// See https://newsapi.org/docs for the API documentation.
package newsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.astrophena.name/tgdigest/internal/request"
	"go.astrophena.name/tgdigest/internal/version"
)

const apiURL = "https://newsapi.org/v2"

// Client holds configuration for interacting with NewsAPI.
type Client struct {
	// APIKey is the API key used for authentication.
	APIKey string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// Source identifies a news publisher on NewsAPI.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Article is a single article returned by NewsAPI.
type Article struct {
	Source      Source    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// topHeadlinesResponse defines the structure of the response received from the
// top-headlines endpoint.
type topHeadlinesResponse struct {
	Status       string    `json:"status"`
	Code         string    `json:"code"`
	Message      string    `json:"message"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

// RawRequest sends a raw request to NewsAPI.
func RawRequest[Response any](ctx context.Context, c *Client, method, path string) (Response, error) {
	return request.Make[Response](ctx, request.Params{
		Method: method,
		URL:    apiURL + path,
		Headers: map[string]string{
			"User-Agent": version.UserAgent(),
		},
		HTTPClient: c.HTTPClient,
		Scrubber:   c.Scrubber,
	})
}

// TopHeadlines returns live top headlines for a single source, at most pageSize
// of them.
func (c *Client) TopHeadlines(ctx context.Context, source string, pageSize int) ([]Article, error) {
	if source == "" {
		return nil, errors.New("source shouldn't be empty")
	}
	q := url.Values{
		"apiKey":   {c.APIKey},
		"sources":  {source},
		"pageSize": {strconv.Itoa(pageSize)},
		"language": {"en"},
	}
	resp, err := RawRequest[topHeadlinesResponse](ctx, c, http.MethodGet, "/top-headlines?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi: %s: %s", resp.Code, resp.Message)
	}
	return resp.Articles, nil
}
