// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/tgdigest/internal/cli"
	"go.astrophena.name/tgdigest/internal/config"
	"go.astrophena.name/tgdigest/internal/digest"
	"go.astrophena.name/tgdigest/internal/schedule"
	"go.astrophena.name/tgdigest/internal/testutil"
)

// Typical Telegram Bot API token, copied from docs.
const tgToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

const newsKey = "newsapi-test-key"

const testConfig = `
news_api_key: "` + newsKey + `"
telegram_token: "` + tgToken + `"
telegram_chat_id: "123456789"
sources:
  - bbc-news
  - cnn
send_time: "08:00"
activate: true
cap: 5
`

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

const (
	topHeadlines = "GET newsapi.org/v2/top-headlines"
	sendTelegram = "POST api.telegram.org/{token}/sendMessage"
)

type mux struct {
	mux          *http.ServeMux
	headlines    map[string][]string // source id → titles
	sentMessages []url.Values
}

func testMux(t *testing.T, overrides map[string]http.HandlerFunc) *mux {
	m := &mux{
		mux: http.NewServeMux(),
		headlines: map[string][]string{
			"bbc-news": {"A", "B", "A"},
			"cnn":      {"C"},
		},
	}
	m.mux.HandleFunc(topHeadlines, orHandler(overrides[topHeadlines], func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.URL.Query().Get("apiKey"), newsKey)
		testutil.AssertEqual(t, r.URL.Query().Get("language"), "en")
		type article struct {
			Title string `json:"title"`
		}
		var articles []article
		for _, title := range m.headlines[r.URL.Query().Get("sources")] {
			articles = append(articles, article{Title: title})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"articles": articles,
		})
	}))
	m.mux.HandleFunc(sendTelegram, orHandler(overrides[sendTelegram], func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, strings.TrimPrefix(r.PathValue("token"), "bot"), tgToken)
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		m.sentMessages = append(m.sentMessages, r.PostForm)
		w.Write([]byte(`{"ok": true}`))
	}))
	for pat, h := range overrides {
		if pat == topHeadlines || pat == sendTelegram {
			continue
		}
		m.mux.HandleFunc(pat, h)
	}
	return m
}

func orHandler(hh ...http.HandlerFunc) http.HandlerFunc {
	for _, h := range hh {
		if h != nil {
			return h
		}
	}
	return nil
}

var testTime = time.Date(2025, time.January, 15, 7, 0, 0, 0, time.UTC)

func testEngine(t *testing.T, m *mux, cfg string) *engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	e := &engine{
		noServerStart: true,
		now:           func() time.Time { return testTime },
		httpc: &http.Client{
			Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				w := httptest.NewRecorder()
				m.mux.ServeHTTP(w, r)
				return w.Result(), nil
			}),
		},
	}

	env := &cli.Env{
		Args:   []string{"-config", path},
		Getenv: func(string) string { return "" },
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
	}
	if err := cli.Run(cli.WithEnv(t.Context(), env), e); err != nil {
		t.Fatalf("engine failed to start: %v", err)
	}

	return e
}

func call(t *testing.T, e *engine, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	r := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	r = r.WithContext(cli.WithEnv(t.Context(), &cli.Env{
		Getenv: func(string) string { return "" },
		Stdout: io.Discard,
		Stderr: io.Discard,
	}))

	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, r)
	return w
}

func TestRunArmsSchedulerFromConfig(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	at, armed := e.scheduler.Armed()
	testutil.AssertEqual(t, armed, true)
	testutil.AssertEqual(t, at, schedule.TimeOfDay{Hour: 8})
}

func TestRunInactiveConfigStaysDisarmed(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), strings.ReplaceAll(testConfig, "activate: true", "activate: false"))

	_, armed := e.scheduler.Armed()
	testutil.AssertEqual(t, armed, false)
}

func TestGetSettingsRedactsSecrets(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/api/settings", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	s := testutil.UnmarshalJSON[config.Settings](t, w.Body.Bytes())
	testutil.AssertEqual(t, s.NewsAPIKey, config.Redacted)
	testutil.AssertEqual(t, s.TelegramToken, config.Redacted)
	if strings.Contains(w.Body.String(), tgToken) {
		t.Fatalf("settings response contains the bot token: %s", w.Body)
	}
}

func TestSaveSettingsDisarms(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/api/settings", nil, nil)
	s := testutil.UnmarshalJSON[config.Settings](t, w.Body.Bytes())
	s.Activate = false

	w = call(t, e, http.MethodPut, "/api/settings", marshal(t, s), nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	resp := testutil.UnmarshalJSON[saveResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.Armed, false)

	_, armed := e.scheduler.Armed()
	testutil.AssertEqual(t, armed, false)
}

func TestSaveSettingsReplacesSchedule(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/api/settings", nil, nil)
	s := testutil.UnmarshalJSON[config.Settings](t, w.Body.Bytes())
	s.SendTime = "09:30"

	w = call(t, e, http.MethodPut, "/api/settings", marshal(t, s), nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	at, armed := e.scheduler.Armed()
	testutil.AssertEqual(t, armed, true)
	testutil.AssertEqual(t, at, schedule.TimeOfDay{Hour: 9, Minute: 30})
}

// Saving back a response of GET /api/settings, redacted secrets included,
// must keep the stored secrets.
func TestSaveSettingsKeepsRedactedSecrets(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/api/settings", nil, nil)
	s := testutil.UnmarshalJSON[config.Settings](t, w.Body.Bytes())

	w = call(t, e, http.MethodPut, "/api/settings", marshal(t, s), nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	cur := e.currentSettings()
	testutil.AssertEqual(t, cur.NewsAPIKey, newsKey)
	testutil.AssertEqual(t, cur.TelegramToken, tgToken)
}

func TestSaveSettingsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty sources":  `{"sources": []}`,
		"bad chat id":    `{"telegram_chat_id": "@username"}`,
		"bad send time":  `{"send_time": "25:00"}`,
		"negative cap":   `{"cap": -1}`,
		"malformed body": `{`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			e := testEngine(t, testMux(t, nil), testConfig)

			w := call(t, e, http.MethodPut, "/api/settings", strings.NewReader(body), nil)
			testutil.AssertEqual(t, w.Code, http.StatusBadRequest)

			// A rejected save must not touch the schedule.
			at, armed := e.scheduler.Armed()
			testutil.AssertEqual(t, armed, true)
			testutil.AssertEqual(t, at, schedule.TimeOfDay{Hour: 8})
		})
	}
}

func TestSendNow(t *testing.T) {
	t.Parallel()

	m := testMux(t, nil)
	e := testEngine(t, m, testConfig)

	w := call(t, e, http.MethodPost, "/api/send", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	resp := testutil.UnmarshalJSON[sendResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.Sent, true)
	testutil.AssertEqual(t, resp.Headlines, []string{"A", "B", "C"})

	testutil.AssertEqual(t, len(m.sentMessages), 1)
	msg := m.sentMessages[0]
	testutil.AssertEqual(t, msg.Get("chat_id"), "123456789")
	testutil.AssertEqual(t, msg.Get("parse_mode"), "Markdown")

	text := msg.Get("text")
	for _, want := range []string{"(Test)", "(2025-01-15)", "1. A", "2. B", "3. C"} {
		if !strings.Contains(text, want) {
			t.Errorf("message text %q doesn't contain %q", text, want)
		}
	}
}

func TestSendNowPlaceholder(t *testing.T) {
	t.Parallel()

	m := testMux(t, map[string]http.HandlerFunc{
		topHeadlines: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	e := testEngine(t, m, testConfig)

	w := call(t, e, http.MethodPost, "/api/send", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	resp := testutil.UnmarshalJSON[sendResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.Sent, true)
	testutil.AssertEqual(t, resp.Headlines, []string{digest.Placeholder})

	testutil.AssertEqual(t, len(m.sentMessages), 1)
	if text := m.sentMessages[0].Get("text"); !strings.Contains(text, "1. No news headlines found.") {
		t.Errorf("message text %q doesn't contain placeholder line", text)
	}
}

func TestSendNowSourceOverride(t *testing.T) {
	t.Parallel()

	m := testMux(t, nil)
	e := testEngine(t, m, testConfig)

	w := call(t, e, http.MethodPost, "/api/send", strings.NewReader(`{"sources": ["cnn"], "cap": 1}`), nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	resp := testutil.UnmarshalJSON[sendResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.Headlines, []string{"C"})
}

func TestSendNowTelegramFailure(t *testing.T) {
	t.Parallel()

	m := testMux(t, map[string]http.HandlerFunc{
		sendTelegram: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
	})
	e := testEngine(t, m, testConfig)

	w := call(t, e, http.MethodPost, "/api/send", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	resp := testutil.UnmarshalJSON[sendResponse](t, w.Body.Bytes())
	testutil.AssertEqual(t, resp.Sent, false)
	if resp.Error == "" {
		t.Error("want non-empty error in response")
	}

	var st runStats
	e.state.RAccess(func(s *state) { st = s.stats })
	testutil.AssertEqual(t, st.LastSent, false)
	testutil.AssertEqual(t, st.TotalRuns, 1)
	testutil.AssertEqual(t, st.TotalSent, 0)
}

func TestScheduledDelivery(t *testing.T) {
	t.Parallel()

	m := testMux(t, nil)
	e := testEngine(t, m, testConfig)

	fire := time.Date(2025, time.January, 15, 8, 0, 30, 0, time.UTC)

	e.scheduler.Tick(t.Context(), fire)
	testutil.AssertEqual(t, len(m.sentMessages), 1)

	// Same minute, another tick: must not fire again.
	e.scheduler.Tick(t.Context(), fire.Add(10*time.Second))
	testutil.AssertEqual(t, len(m.sentMessages), 1)

	// Next day: fires again.
	e.scheduler.Tick(t.Context(), fire.AddDate(0, 0, 1))
	testutil.AssertEqual(t, len(m.sentMessages), 2)

	// Scheduled sends are not test sends.
	if text := m.sentMessages[0].Get("text"); strings.Contains(text, "(Test)") {
		t.Errorf("scheduled message %q carries the test label", text)
	}

	var st runStats
	e.state.RAccess(func(s *state) { st = s.stats })
	testutil.AssertEqual(t, st.TotalRuns, 2)
	testutil.AssertEqual(t, st.TotalSent, 2)
}

func TestAdminToken(t *testing.T) {
	t.Parallel()

	m := testMux(t, nil)
	e := testEngine(t, m, testConfig+`admin_token: "hunter2"`)

	cases := map[string]struct {
		headers  map[string]string
		wantCode int
	}{
		"no token":    {nil, http.StatusUnauthorized},
		"wrong token": {map[string]string{"Authorization": "Bearer wrong"}, http.StatusUnauthorized},
		"valid token": {map[string]string{"Authorization": "Bearer hunter2"}, http.StatusOK},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := call(t, e, http.MethodPost, "/api/send", nil, tc.headers)
			testutil.AssertEqual(t, w.Code, tc.wantCode)
		})
	}

	// Read-only routes stay open.
	w := call(t, e, http.MethodGet, "/api/settings", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
}

func TestStats(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/api/stats", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	st := testutil.UnmarshalJSON[runStats](t, w.Body.Bytes())
	testutil.AssertEqual(t, st.TotalRuns, 0)

	call(t, e, http.MethodPost, "/api/send", nil, nil)

	w = call(t, e, http.MethodGet, "/api/stats", nil, nil)
	st = testutil.UnmarshalJSON[runStats](t, w.Body.Bytes())
	testutil.AssertEqual(t, st.TotalRuns, 1)
	testutil.AssertEqual(t, st.LastSent, true)
	testutil.AssertEqual(t, st.LastLabel, labelTest)
	testutil.AssertEqual(t, st.LastHeadlines, 3)
}

func TestLogs(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	call(t, e, http.MethodPost, "/api/send", nil, nil)

	w := call(t, e, http.MethodGet, "/api/logs", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)

	lines := testutil.UnmarshalJSON[[]string](t, w.Body.Bytes())
	if len(lines) == 0 {
		t.Fatal("want at least one log line")
	}
	var found bool
	for _, line := range lines {
		if strings.Contains(line, "Sent message to chat 123456789.") {
			found = true
		}
	}
	if !found {
		t.Errorf("no log line records the send outcome: %q", lines)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := testEngine(t, testMux(t, nil), testConfig)

	w := call(t, e, http.MethodGet, "/health", nil, nil)
	testutil.AssertEqual(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "armed at 08:00") {
		t.Errorf("health response %q doesn't report the schedule", w.Body)
	}
}

func marshal(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return strings.NewReader(string(b))
}
