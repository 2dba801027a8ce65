// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"go.astrophena.name/tgdigest/internal/api/newsapi"
	"go.astrophena.name/tgdigest/internal/cli"
	"go.astrophena.name/tgdigest/internal/config"
	"go.astrophena.name/tgdigest/internal/digest"
	"go.astrophena.name/tgdigest/internal/httplogger"
	"go.astrophena.name/tgdigest/internal/logger"
	"go.astrophena.name/tgdigest/internal/request"
	"go.astrophena.name/tgdigest/internal/schedule"
	"go.astrophena.name/tgdigest/internal/source"
	"go.astrophena.name/tgdigest/internal/summary"
	"go.astrophena.name/tgdigest/internal/telegram"
	"go.astrophena.name/tgdigest/internal/util/syncx"
	"go.astrophena.name/tgdigest/internal/web"
)

func main() { cli.Main(new(engine)) }

func (e *engine) Flags(fs *flag.FlagSet) {
	fs.StringVar(&e.configPath, "config", "", "Path to the `config file` in YAML format.")
	fs.BoolVar(&e.verbose, "verbose", false, "Log outgoing HTTP requests.")
}

func (e *engine) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	e.stderr = env.Stderr

	if err := e.init.Get(func() error {
		return e.doInit()
	}); err != nil {
		return err
	}

	// Used in tests.
	if e.noServerStart {
		return nil
	}

	go func() {
		if err := e.scheduler.Start(ctx); err != nil {
			e.logf("Scheduler failed to start: %v", err)
		}
	}()

	return web.ListenAndServe(ctx, e.web)
}

type engine struct {
	init syncx.Lazy[error] // main initialization

	// flags
	configPath string
	verbose    bool

	// initialized by doInit
	adminToken string
	logStream  logger.Streamer
	logf       logger.Logf
	mux        *http.ServeMux
	registry   *source.Registry
	scheduler  *schedule.Scheduler
	state      *syncx.Protected[*state]
	web        *web.ListenAndServeConfig

	// configuration, read-only after initialization
	httpc  *http.Client
	stderr io.Writer

	// for tests
	noServerStart bool
	now           func() time.Time
	ready         func() // see web.ListenAndServeConfig.Ready
}

// state is the mutable part of the engine.
type state struct {
	settings config.Settings
	stats    runStats
}

// runStats records digest delivery outcomes.
type runStats struct {
	LastRun       time.Time             `json:"last_run"`
	LastLabel     string                `json:"last_label,omitempty"`
	LastHeadlines int                   `json:"last_headlines"`
	LastResults   []digest.SourceResult `json:"last_results,omitempty"`
	LastSent      bool                  `json:"last_sent"`
	LastError     string                `json:"last_error,omitempty"`
	TotalRuns     int                   `json:"total_runs"`
	TotalSent     int                   `json:"total_sent"`
}

const (
	logLineLimit = 300
	logTailLimit = 50

	// labelTest marks manually triggered digests.
	labelTest = "Test"
)

func (e *engine) doInit() error {
	if e.stderr == nil {
		e.stderr = os.Stderr
	}

	e.logStream = logger.NewStreamer(logLineLimit)
	e.logf = log.New(io.MultiWriter(e.stderr, &timestampWriter{e.logStream}), "", 0).Printf

	if e.httpc == nil {
		e.httpc = request.DefaultClient
	}
	if e.verbose {
		t := e.httpc.Transport
		if t == nil {
			t = http.DefaultTransport
		}
		e.httpc = &http.Client{
			Timeout:   e.httpc.Timeout,
			Transport: httplogger.New(t, e.logf),
		}
	}

	s, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.adminToken = s.AdminToken

	e.registry = source.Builtin()
	if s.SourcesFile != "" {
		src, err := os.ReadFile(s.SourcesFile)
		if err != nil {
			return fmt.Errorf("reading sources file: %w", err)
		}
		if err := e.registry.Parse(e.logf, s.SourcesFile, src); err != nil {
			return fmt.Errorf("loading sources file %q: %w", s.SourcesFile, err)
		}
	}

	e.scheduler = schedule.New(e.logf, e.now)
	e.state = syncx.Protect(&state{settings: s})

	if s.Activate {
		if err := e.applySettings(s); err != nil {
			return err
		}
	}

	e.initRoutes()
	e.web = &web.ListenAndServeConfig{
		Addr:       s.Listen,
		Mux:        e.mux,
		Logf:       e.logf,
		Debuggable: true,
		DebugAuth:  e.authorized,
		Ready:      e.ready,
	}

	return nil
}

// applySettings validates s, stores it and arms or disarms the scheduler.
// The armed job captures a snapshot of s; later settings changes don't
// affect it until the next save.
func (e *engine) applySettings(s config.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	at, err := schedule.ParseTimeOfDay(s.SendTime)
	if err != nil {
		return err
	}

	snap := s.Clone()
	e.state.Access(func(st *state) {
		st.settings = snap
	})

	if !s.Activate {
		e.scheduler.Disarm()
		return nil
	}
	e.scheduler.Arm(at, e.digestJob(snap))
	return nil
}

func (e *engine) currentSettings() config.Settings {
	var s config.Settings
	e.state.RAccess(func(st *state) {
		s = st.settings.Clone()
	})
	return s
}

// digestJob returns the scheduled delivery job for the given settings
// snapshot.
func (e *engine) digestJob(s config.Settings) schedule.Job {
	return func(ctx context.Context) {
		if _, err := e.deliver(ctx, s, ""); err != nil {
			e.logf("Background send failed: %v", err)
			return
		}
		e.logf("Background send succeeded.")
	}
}

// deliver fetches headlines, formats the digest and sends it to Telegram.
// Fetch and send units are built from s, so concurrent settings changes
// don't affect a delivery in flight.
func (e *engine) deliver(ctx context.Context, s config.Settings, label string) (*digest.Batch, error) {
	scrub := scrubber(s)

	f := &digest.Fetcher{
		Client: &newsapi.Client{
			APIKey:     s.NewsAPIKey,
			HTTPClient: e.httpc,
			Scrubber:   scrub,
		},
		HTTPClient: e.httpc,
		Logf:       e.logf,
	}
	batch := f.Fetch(ctx, e.registry.Resolve(s.Sources), s.Cap)

	text := digest.Format(batch, label, e.timeNow())
	if s.GeminiAPIKey != "" && batch.Headlines[0] != digest.Placeholder {
		sum, err := (&summary.Summarizer{APIKey: s.GeminiAPIKey}).Summarize(ctx, batch.Headlines)
		if err != nil {
			e.logf("Summarizing digest failed: %v", err)
		} else {
			text += "*Summary:* " + sum + "\n"
		}
	}

	tg := &telegram.Client{
		Token:      s.TelegramToken,
		HTTPClient: e.httpc,
		Logf:       e.logf,
		Scrubber:   scrub,
	}
	err := tg.Send(ctx, s.TelegramChatID, text)
	e.recordRun(batch, label, err)
	return batch, err
}

func (e *engine) recordRun(b *digest.Batch, label string, err error) {
	e.state.Access(func(st *state) {
		st.stats.LastRun = e.timeNow()
		st.stats.LastLabel = label
		st.stats.LastHeadlines = len(b.Headlines)
		st.stats.LastResults = b.Results
		st.stats.LastSent = err == nil
		st.stats.LastError = ""
		if err != nil {
			st.stats.LastError = err.Error()
		}
		st.stats.TotalRuns++
		if err == nil {
			st.stats.TotalSent++
		}
	})
}

func (e *engine) timeNow() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// authorized reports whether r carries the admin token. Everything is
// allowed when no token is configured.
func (e *engine) authorized(r *http.Request) bool {
	if e.adminToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && token == e.adminToken
}

func scrubber(s config.Settings) *strings.Replacer {
	var pairs []string
	for _, secret := range []string{
		s.NewsAPIKey,
		s.TelegramToken,
		s.GeminiAPIKey,
		s.AdminToken,
	} {
		if secret != "" {
			pairs = append(pairs, secret, "[EXPUNGED]")
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return strings.NewReplacer(pairs...)
}

// timestampWriter is an io.Writer that prefixes each line with the current date and time.
type timestampWriter struct {
	w io.Writer
}

func (tw *timestampWriter) Write(p []byte) (n int, err error) {
	lines := bytes.SplitAfter(p, []byte{'\n'})

	for _, line := range lines {
		if len(line) > 0 {
			timestamp := time.Now().Format(time.DateTime + "\t")
			_, err := tw.w.Write([]byte(timestamp))
			if err != nil {
				return n, err
			}
			nn, err := tw.w.Write(line)
			n += nn
			if err != nil {
				return n, err
			}
		}
	}

	return n, nil
}
