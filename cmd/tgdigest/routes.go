// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.astrophena.name/tgdigest/internal/config"
	"go.astrophena.name/tgdigest/internal/digest"
	"go.astrophena.name/tgdigest/internal/web"
)

func (e *engine) initRoutes() {
	e.mux = http.NewServeMux()

	e.mux.HandleFunc("/", e.handleRoot)

	// Settings.
	e.mux.HandleFunc("GET /api/settings", e.handleSettings)
	e.mux.HandleFunc("PUT /api/settings", e.protected(e.handleSaveSettings))

	// Manual test send.
	e.mux.HandleFunc("POST /api/send", e.protected(e.handleSend))

	// Delivery stats and log tail.
	e.mux.HandleFunc("GET /api/stats", e.handleStats)
	e.mux.HandleFunc("GET /api/logs", func(w http.ResponseWriter, r *http.Request) {
		web.RespondJSON(w, e.logStream.Tail(logTailLimit))
	})

	// Health check.
	health := web.Health(e.mux)
	health.RegisterFunc("scheduler", func() (string, bool) {
		if at, armed := e.scheduler.Armed(); armed {
			return "armed at " + at.String(), true
		}
		return "disarmed", true
	})

	// Debug routes.
	dbg := web.Debugger(e.mux)
	dbg.KVFunc("Schedule", func() any {
		if at, armed := e.scheduler.Armed(); armed {
			return fmt.Sprintf("daily at %s", at)
		}
		return "disarmed"
	})
	dbg.KVFunc("Sources", func() any {
		return strings.Join(e.currentSettings().Sources, ", ")
	})
	dbg.KVFunc("Last delivery", func() any {
		var st runStats
		e.state.RAccess(func(s *state) { st = s.stats })
		if st.LastRun.IsZero() {
			return "never"
		}
		outcome := "sent"
		if !st.LastSent {
			outcome = "failed"
		}
		return fmt.Sprintf("%s (%s)", st.LastRun.Format("2006-01-02 15:04:05"), outcome)
	})
	dbg.Handle("log", "Logs", e.logStream)
}

func (e *engine) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		web.RespondError(w, r, web.ErrNotFound)
		return
	}
	http.Redirect(w, r, "/debug/", http.StatusFound)
}

// protected wraps mutating handlers with the admin token check. The web
// server middleware only guards /debug/, so API routes do it themselves.
func (e *engine) protected(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !e.authorized(r) {
			web.RespondJSONError(w, r, web.ErrUnauthorized)
			return
		}
		h(w, r)
	}
}

func (e *engine) handleSettings(w http.ResponseWriter, r *http.Request) {
	web.RespondJSON(w, e.currentSettings().Redact())
}

// handleSaveSettings replaces the current settings with the request body and
// arms or disarms the scheduler accordingly. Secrets left redacted in the
// body keep their stored values, so a read-modify-write of the settings API
// response works as expected.
func (e *engine) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	cur := e.currentSettings()

	s := cur.Clone()
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}
	s = s.Merge(cur)

	if err := e.applySettings(s); err != nil {
		if errors.Is(err, config.ErrInvalidSettings) {
			err = fmt.Errorf("%w: %v", web.ErrBadRequest, err)
		}
		web.RespondJSONError(w, r, err)
		return
	}

	_, armed := e.scheduler.Armed()
	web.RespondJSON(w, saveResponse{
		Settings: s.Redact(),
		Armed:    armed,
	})
}

type saveResponse struct {
	Settings config.Settings `json:"settings"`
	Armed    bool            `json:"armed"`
}

type sendRequest struct {
	// Sources overrides the configured source selection for this send.
	Sources []string `json:"sources"`
	// Cap overrides the configured headline cap for this send.
	Cap int `json:"cap"`
}

type sendResponse struct {
	Sent      bool                  `json:"sent"`
	Headlines []string              `json:"headlines"`
	Results   []digest.SourceResult `json:"results,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// handleSend performs a synchronous test delivery with the current settings,
// optionally overridden by the request body. It runs independently of the
// scheduled job; the two may interleave.
func (e *engine) handleSend(w http.ResponseWriter, r *http.Request) {
	s := e.currentSettings()

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}
	if len(req.Sources) > 0 {
		s.Sources = req.Sources
	}
	if req.Cap > 0 {
		s.Cap = req.Cap
	}

	if err := s.Validate(); err != nil {
		web.RespondJSONError(w, r, fmt.Errorf("%w: %v", web.ErrBadRequest, err))
		return
	}

	batch, err := e.deliver(r.Context(), s, labelTest)
	resp := sendResponse{
		Sent:      err == nil,
		Headlines: batch.Headlines,
		Results:   batch.Results,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	web.RespondJSON(w, resp)
}

func (e *engine) handleStats(w http.ResponseWriter, r *http.Request) {
	var st runStats
	e.state.RAccess(func(s *state) { st = s.stats })
	web.RespondJSON(w, st)
}
