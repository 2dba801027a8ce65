// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.astrophena.name/tgdigest/internal/cli"
	"go.astrophena.name/tgdigest/internal/request"
	"go.astrophena.name/tgdigest/internal/version"
)

func main() { cli.Main(cli.AppFunc(run)) }

var errNotSent = errors.New("digest not sent")

type sendResponse struct {
	Sent      bool     `json:"sent"`
	Headlines []string `json:"headlines"`
	Error     string   `json:"error"`
}

func run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	if len(env.Args) > 1 {
		return fmt.Errorf("%w: expected at most one argument: tgdigest URL", cli.ErrInvalidArgs)
	}
	url := "http://localhost:3000"
	if len(env.Args) == 1 {
		url = strings.TrimSuffix(env.Args[0], "/")
	}

	headers := map[string]string{
		"User-Agent": version.UserAgent(),
	}
	if token := env.Getenv("TGDIGEST_ADMIN_TOKEN"); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	resp, err := request.Make[sendResponse](ctx, request.Params{
		Method:  http.MethodPost,
		URL:     url + "/api/send",
		Headers: headers,
	})
	if err != nil {
		return err
	}
	if !resp.Sent {
		return fmt.Errorf("%w: %s", errNotSent, resp.Error)
	}

	fmt.Fprintf(env.Stdout, "Sent a digest with %d headlines.\n", len(resp.Headlines))
	return nil
}
