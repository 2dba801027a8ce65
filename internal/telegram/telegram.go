// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package telegram implements sending messages through the Telegram Bot API.
package telegram

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"go.astrophena.name/tgdigest/internal/logger"
	"go.astrophena.name/tgdigest/internal/request"
	"go.astrophena.name/tgdigest/internal/version"
)

const apiURL = "https://api.telegram.org"

// Client holds configuration for interacting with the Telegram Bot API.
type Client struct {
	// Token is the bot token used for authentication.
	Token string
	// HTTPClient is an optional HTTP client to use for requests. Defaults to
	// request.DefaultClient.
	HTTPClient *http.Client
	// Logf is an optional logger. Defaults to log.Printf.
	Logf logger.Logf
	// Scrubber is an optional strings.Replacer that scrubs unwanted data from
	// error messages.
	Scrubber *strings.Replacer
}

// Send delivers text to the chat using the sendMessage method of the Bot API,
// with Markdown formatting enabled.
//
// A send is considered successful only if the API responds with HTTP 200.
// There is a single attempt, no retries. Every call writes exactly one log
// line recording the outcome.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	form := url.Values{
		"chat_id":    {chatID},
		"text":       {text},
		"parse_mode": {"Markdown"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/bot"+c.Token+"/sendMessage", strings.NewReader(form.Encode()))
	if err != nil {
		return c.fail(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", version.UserAgent())

	httpc := request.DefaultClient
	if c.HTTPClient != nil {
		httpc = c.HTTPClient
	}

	res, err := httpc.Do(req)
	if err != nil {
		return c.fail(err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return c.fail(err)
	}
	if res.StatusCode != http.StatusOK {
		return c.fail(&request.StatusError{StatusCode: res.StatusCode, Body: b})
	}

	c.logf("Sent message to chat %s.", chatID)
	return nil
}

func (c *Client) fail(err error) error {
	if c.Scrubber != nil {
		err = &scrubbedError{err, c.Scrubber}
	}
	c.logf("Sending message failed: %v", err)
	return err
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// scrubbedError wraps an error, scrubbing the bot token from its message.
// Transport errors embed the request URL, which contains the token.
type scrubbedError struct {
	err      error
	scrubber *strings.Replacer
}

func (se *scrubbedError) Error() string { return se.scrubber.Replace(se.err.Error()) }
func (se *scrubbedError) Unwrap() error { return se.err }
