// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Tgdigest delivers a daily digest of news headlines to a Telegram chat.

It fetches top headlines from NewsAPI (https://newsapi.org) and RSS feeds,
drops duplicates, formats them into a single Markdown message and sends it
through a Telegram bot, either once a day at a configured time or on demand.

# Usage

	$ tgdigest [flags...]

# Configuration

Tgdigest reads a YAML config file passed with the -config flag:

	listen: "localhost:3000"
	news_api_key: "..."
	telegram_token: "..."
	telegram_chat_id: "123456789"
	sources:
	  - bbc-news
	  - cnn
	send_time: "08:00"
	activate: true
	cap: 5

Every key can be overridden with a TGDIGEST_-prefixed environment variable,
for example TGDIGEST_NEWS_API_KEY or TGDIGEST_SEND_TIME. TGDIGEST_SOURCES
takes a comma-separated list of source ids.

Setting gemini_api_key (or TGDIGEST_GEMINI_API_KEY) appends a short
Gemini-generated summary to each digest.

# News sources

A source id is either one of the built-in NewsAPI sources (timesofindia,
ndtv, indianexpress, bbc-news, cnn, reuters) or a source declared in a
Starlark file pointed to by the sources_file key:

	sources = [
	    source(id = "hn", rss = "https://news.ycombinator.com/rss"),
	    source(id = "wired", provider = "wired"),
	]

See the documentation of the internal/source package for the full list of
source() arguments, including per-source filter rules.

# Admin API

The settings can be inspected and changed while tgdigest is running:

	GET  /api/settings   current settings, secrets redacted
	PUT  /api/settings   save settings; arms or disarms the daily schedule
	POST /api/send       send a test digest now
	GET  /api/stats      last delivery outcome and counters
	GET  /api/logs       last 50 log lines

Saving settings with "activate": true schedules a daily delivery at
send_time; saving with "activate": false clears the schedule. A scheduled
delivery uses the settings captured at save time.

If admin_token is set, PUT /api/settings and POST /api/send require an
Authorization: Bearer header with that token, and /debug/ pages are hidden
without it.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/tgdigest/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
