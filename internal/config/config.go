// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads and validates tgdigest settings.
//
// Settings come from an optional YAML config file, overridden by
// TGDIGEST_-prefixed environment variables (for example, TGDIGEST_NEWS_API_KEY
// overrides news_api_key). The sources list is comma-separated when set from
// the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.astrophena.name/tgdigest/internal/digest"
	"go.astrophena.name/tgdigest/internal/schedule"
	"go.astrophena.name/tgdigest/internal/source"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ErrInvalidSettings is returned, wrapped, by [Settings.Validate].
var ErrInvalidSettings = errors.New("invalid settings")

// Redacted replaces secret values in API responses.
const Redacted = "[redacted]"

// Settings holds the tgdigest configuration.
//
// Fields with a json tag can be read and updated through the settings API;
// the remaining ones are fixed for the lifetime of the process.
type Settings struct {
	// Listen is the network address to listen on.
	Listen string `koanf:"listen" json:"-"`
	// AdminToken guards mutating API routes and debug pages. No token, no
	// guard.
	AdminToken string `koanf:"admin_token" json:"-"`
	// SourcesFile is a path to an optional Starlark file declaring additional
	// news sources.
	SourcesFile string `koanf:"sources_file" json:"-"`

	// NewsAPIKey is the NewsAPI key.
	NewsAPIKey string `koanf:"news_api_key" json:"news_api_key"`
	// TelegramToken is the Telegram Bot API token.
	TelegramToken string `koanf:"telegram_token" json:"telegram_token"`
	// TelegramChatID is the Telegram chat to deliver digests to. Digits only.
	TelegramChatID string `koanf:"telegram_chat_id" json:"telegram_chat_id"`
	// GeminiAPIKey is an optional Gemini API key. If set, a summary is
	// appended to each digest.
	GeminiAPIKey string `koanf:"gemini_api_key" json:"gemini_api_key"`
	// Sources are ids of news sources to fetch headlines from.
	Sources []string `koanf:"sources" json:"sources"`
	// SendTime is the daily delivery time in HH:MM format.
	SendTime string `koanf:"send_time" json:"send_time"`
	// Activate enables scheduled delivery.
	Activate bool `koanf:"activate" json:"activate"`
	// Cap is the maximum number of headlines in a digest.
	Cap int `koanf:"cap" json:"cap"`
}

// Default returns settings with default values applied. The default source
// selection is all built-in sources.
func Default() Settings {
	return Settings{
		Listen:   "localhost:3000",
		Sources:  source.Builtin().IDs(),
		SendTime: "08:00",
		Cap:      digest.DefaultCap,
	}
}

// Load reads settings from the YAML config file at path (skipped if path is
// empty) and applies environment variable overrides.
func Load(path string) (Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("loading config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("TGDIGEST_", ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, "TGDIGEST_"))
		if key == "sources" {
			var sources []string
			for _, s := range strings.Split(value, ",") {
				if s = strings.TrimSpace(s); s != "" {
					sources = append(sources, s)
				}
			}
			return key, sources
		}
		return key, value
	}), nil); err != nil {
		return Settings{}, err
	}

	s := Default()
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that the settings are complete enough to fetch and deliver
// a digest. All errors wrap [ErrInvalidSettings].
func (s Settings) Validate() error {
	if s.NewsAPIKey == "" {
		return fmt.Errorf("%w: missing NewsAPI key", ErrInvalidSettings)
	}
	if s.TelegramToken == "" {
		return fmt.Errorf("%w: missing Telegram bot token", ErrInvalidSettings)
	}
	if !validChatID(s.TelegramChatID) {
		return fmt.Errorf("%w: missing or invalid Telegram chat ID", ErrInvalidSettings)
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("%w: select at least one news source", ErrInvalidSettings)
	}
	if _, err := schedule.ParseTimeOfDay(s.SendTime); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.Cap <= 0 {
		return fmt.Errorf("%w: cap must be positive", ErrInvalidSettings)
	}
	return nil
}

// Telegram chat IDs consist only of digits.
func validChatID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Clone returns a copy of s that shares no state with it.
func (s Settings) Clone() Settings {
	s.Sources = slices.Clone(s.Sources)
	return s
}

// Redact returns a copy of s with secrets replaced by [Redacted]. Unset
// secrets stay empty.
func (s Settings) Redact() Settings {
	for _, secret := range []*string{&s.NewsAPIKey, &s.TelegramToken, &s.GeminiAPIKey, &s.AdminToken} {
		if *secret != "" {
			*secret = Redacted
		}
	}
	return s
}

// Merge returns a copy of s with secrets equal to [Redacted] replaced by
// values from cur, so that updates built from redacted API responses keep
// the stored secrets.
func (s Settings) Merge(cur Settings) Settings {
	if s.NewsAPIKey == Redacted {
		s.NewsAPIKey = cur.NewsAPIKey
	}
	if s.TelegramToken == Redacted {
		s.TelegramToken = cur.TelegramToken
	}
	if s.GeminiAPIKey == Redacted {
		s.GeminiAPIKey = cur.GeminiAPIKey
	}
	return s
}
