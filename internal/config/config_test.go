// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.astrophena.name/tgdigest/internal/testutil"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	s := Default()
	testutil.AssertEqual(t, s.Listen, "localhost:3000")
	testutil.AssertEqual(t, s.SendTime, "08:00")
	testutil.AssertEqual(t, s.Cap, 5)
	testutil.AssertEqual(t, s.Activate, false)
	testutil.AssertEqual(t, s.Sources, []string{
		"bbc-news", "cnn", "indianexpress", "ndtv", "reuters", "timesofindia",
	})
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
listen: "localhost:8080"
news_api_key: "newskey"
telegram_token: "123:abc"
telegram_chat_id: "123456"
sources:
  - timesofindia
  - bbc-news
send_time: "21:30"
activate: true
`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, s.Listen, "localhost:8080")
	testutil.AssertEqual(t, s.NewsAPIKey, "newskey")
	testutil.AssertEqual(t, s.TelegramToken, "123:abc")
	testutil.AssertEqual(t, s.TelegramChatID, "123456")
	testutil.AssertEqual(t, s.Sources, []string{"timesofindia", "bbc-news"})
	testutil.AssertEqual(t, s.SendTime, "21:30")
	testutil.AssertEqual(t, s.Activate, true)
	// Unset keys keep their defaults.
	testutil.AssertEqual(t, s.Cap, 5)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml")); err == nil {
		t.Fatal("want error, got nil")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TGDIGEST_NEWS_API_KEY", "fromenv")
	t.Setenv("TGDIGEST_SOURCES", "bbc-news, cnn")
	t.Setenv("TGDIGEST_CAP", "7")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(`
news_api_key: "fromfile"
sources:
  - timesofindia
`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, s.NewsAPIKey, "fromenv")
	testutil.AssertEqual(t, s.Sources, []string{"bbc-news", "cnn"})
	testutil.AssertEqual(t, s.Cap, 7)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("TGDIGEST_TELEGRAM_TOKEN", "123:abc")

	s, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, s.TelegramToken, "123:abc")
	testutil.AssertEqual(t, s.SendTime, "08:00")
}

func valid() Settings {
	s := Default()
	s.NewsAPIKey = "newskey"
	s.TelegramToken = "123:abc"
	s.TelegramChatID = "123456"
	s.Sources = []string{"bbc-news"}
	return s
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		mutate  func(s *Settings)
		wantErr string // empty means valid
	}{
		"valid": {
			mutate: func(s *Settings) {},
		},
		"missing NewsAPI key": {
			mutate:  func(s *Settings) { s.NewsAPIKey = "" },
			wantErr: "missing NewsAPI key",
		},
		"missing Telegram token": {
			mutate:  func(s *Settings) { s.TelegramToken = "" },
			wantErr: "missing Telegram bot token",
		},
		"missing chat ID": {
			mutate:  func(s *Settings) { s.TelegramChatID = "" },
			wantErr: "missing or invalid Telegram chat ID",
		},
		"non-numeric chat ID": {
			mutate:  func(s *Settings) { s.TelegramChatID = "@channel" },
			wantErr: "missing or invalid Telegram chat ID",
		},
		"chat ID with spaces is fine": {
			mutate: func(s *Settings) { s.TelegramChatID = " 123456 " },
		},
		"no sources": {
			mutate:  func(s *Settings) { s.Sources = nil },
			wantErr: "select at least one news source",
		},
		"bad send time": {
			mutate:  func(s *Settings) { s.SendTime = "25:99" },
			wantErr: "invalid time of day",
		},
		"zero cap": {
			mutate:  func(s *Settings) { s.Cap = 0 },
			wantErr: "cap must be positive",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid()
			tc.mutate(&s)

			err := s.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if err == nil {
				t.Fatal("want error, got nil")
			}
			if !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("error %v should wrap ErrInvalidSettings", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %q", tc.wantErr, err)
			}
		})
	}
}

func TestRedactMerge(t *testing.T) {
	t.Parallel()

	cur := valid()
	cur.GeminiAPIKey = "geminikey"
	cur.AdminToken = "admintoken"

	red := cur.Redact()
	testutil.AssertEqual(t, red.NewsAPIKey, Redacted)
	testutil.AssertEqual(t, red.TelegramToken, Redacted)
	testutil.AssertEqual(t, red.GeminiAPIKey, Redacted)
	testutil.AssertEqual(t, red.AdminToken, Redacted)
	// Non-secrets pass through.
	testutil.AssertEqual(t, red.TelegramChatID, cur.TelegramChatID)
	// The original is untouched.
	testutil.AssertEqual(t, cur.NewsAPIKey, "newskey")

	// An update built from a redacted response keeps the stored secrets.
	upd := red.Merge(cur)
	testutil.AssertEqual(t, upd.NewsAPIKey, "newskey")
	testutil.AssertEqual(t, upd.TelegramToken, "123:abc")
	testutil.AssertEqual(t, upd.GeminiAPIKey, "geminikey")

	// Unset secrets are not redacted.
	var empty Settings
	testutil.AssertEqual(t, empty.Redact().NewsAPIKey, "")
}

func TestClone(t *testing.T) {
	t.Parallel()

	s := valid()
	c := s.Clone()
	c.Sources[0] = "changed"
	testutil.AssertEqual(t, s.Sources[0], "bbc-news")
}
