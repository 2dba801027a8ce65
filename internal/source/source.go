// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package source maps human-friendly news source names to the places they
// are fetched from.
//
// A source is either a NewsAPI publisher (identified by a provider id) or an
// RSS feed (identified by a URL). A fixed set of NewsAPI sources is built in.
// Additional sources, or overrides of the built-in ones, can be declared in a
// Starlark config file:
//
//	sources = [
//	    source(id = "hn", rss = "https://news.ycombinator.com/rss"),
//	    source(id = "wired", provider = "wired"),
//	    source(
//	        id = "bbc-news",
//	        block_rule = lambda article: "Sport" in article.title,
//	    ),
//	]
//
// The optional keep_rule and block_rule functions receive an article (a
// struct with title, url and description fields) and return a bool. Block
// rules drop matching articles, keep rules drop everything else.
package source

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.astrophena.name/tgdigest/internal/logger"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Article is a single fetched article as seen by filter rules.
type Article struct {
	Title       string
	URL         string
	Description string
}

// Source describes a single news source.
type Source struct {
	ID        string             // human-friendly name, e.g. "timesofindia"
	Provider  string             // NewsAPI source id, e.g. "the-times-of-india"
	RSS       string             // RSS feed URL; takes precedence over Provider
	BlockRule *starlark.Function // optional, drops matching articles
	KeepRule  *starlark.Function // optional, drops articles it doesn't match
}

func (s *Source) String() string        { return fmt.Sprintf("<source id=%q>", s.ID) }
func (s *Source) Type() string          { return "source" }
func (s *Source) Freeze()               {} // immutable
func (s *Source) Truth() starlark.Bool  { return starlark.Bool(s.ID != "") }
func (s *Source) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", s.Type()) }

func sourceBuiltin(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("unexpected positional arguments")
	}
	s := new(Source)
	if err := starlark.UnpackArgs("source", args, kwargs,
		"id", &s.ID,
		"provider?", &s.Provider,
		"rss?", &s.RSS,
		"block_rule?", &s.BlockRule,
		"keep_rule?", &s.KeepRule,
	); err != nil {
		return nil, err
	}
	return s, nil
}

var builtin = map[string]string{
	"timesofindia":  "the-times-of-india",
	"ndtv":          "ndtv",
	"indianexpress": "the-indian-express",
	"bbc-news":      "bbc-news",
	"cnn":           "cnn",
	"reuters":       "reuters",
}

// Registry holds the known news sources.
type Registry struct {
	sources map[string]*Source
}

// Builtin returns a registry containing only the built-in sources.
func Builtin() *Registry {
	r := &Registry{sources: make(map[string]*Source, len(builtin))}
	for id, provider := range builtin {
		r.sources[id] = &Source{ID: id, Provider: provider}
	}
	return r
}

// Parse extends the registry with sources declared in a Starlark config file.
// Declared sources override built-in ones with the same id. A source without
// an RSS URL or an explicit provider uses its id as the provider id.
func (r *Registry) Parse(logf logger.Logf, name string, src []byte) error {
	globals, err := starlark.ExecFileOptions(
		&syntax.FileOptions{
			TopLevelControl: true,
		},
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { logf("%s", msg) },
		},
		name,
		src,
		starlark.StringDict{
			"source": starlark.NewBuiltin("source", sourceBuiltin),
		},
	)
	if err != nil {
		return err
	}

	list, ok := globals["sources"].(*starlark.List)
	if !ok {
		return errors.New("sources must be defined and be a list")
	}

	iter := list.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		s, ok := elem.(*Source)
		if !ok {
			continue
		}
		if s.RSS == "" && s.Provider == "" {
			s.Provider = s.ID
		}
		r.sources[s.ID] = s
	}

	return nil
}

// Lookup returns the source with the given id.
func (r *Registry) Lookup(id string) (*Source, bool) {
	s, ok := r.sources[id]
	return s, ok
}

// Resolve maps ids to sources, silently skipping unknown ones.
func (r *Registry) Resolve(ids []string) []*Source {
	var sources []*Source
	for _, id := range ids {
		if s, ok := r.sources[id]; ok {
			sources = append(sources, s)
		}
	}
	return sources
}

// IDs returns all registered source ids in sorted order.
func (r *Registry) IDs() []string {
	return slices.Sorted(maps.Keys(r.sources))
}

// Allowed reports whether an article passes the source's block and keep
// rules. Sources without rules allow everything.
func (s *Source) Allowed(logf logger.Logf, a Article) bool {
	if s.BlockRule != nil && s.applyRule(logf, s.BlockRule, a) {
		return false
	}
	if s.KeepRule != nil && !s.applyRule(logf, s.KeepRule, a) {
		return false
	}
	return true
}

func (s *Source) applyRule(logf logger.Logf, rule *starlark.Function, a Article) bool {
	val, err := starlark.Call(
		&starlark.Thread{
			Print: func(_ *starlark.Thread, msg string) { logf("%s", msg) },
		},
		rule,
		starlark.Tuple{starlarkstruct.FromStringDict(
			starlarkstruct.Default,
			starlark.StringDict{
				"title":       starlark.String(a.Title),
				"url":         starlark.String(a.URL),
				"description": starlark.String(a.Description),
			},
		)},
		[]starlark.Tuple{},
	)
	if err != nil {
		logf("Applying rule of source %q for article %q: %v", s.ID, a.Title, err)
		return false
	}

	ret, ok := val.(starlark.Bool)
	if !ok {
		logf("Rule of source %q returned non-boolean value for article %q.", s.ID, a.Title)
		return false
	}
	return bool(ret)
}
