// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Digestnow asks a running tgdigest to send a news digest immediately.

# Usage

	$ digestnow [tgdigest URL]

The URL defaults to http://localhost:3000. If the tgdigest instance is
configured with an admin token, pass it in the TGDIGEST_ADMIN_TOKEN
environment variable:

	$ TGDIGEST_ADMIN_TOKEN=... digestnow https://digest.example.com
*/
package main

import (
	_ "embed"

	"go.astrophena.name/tgdigest/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
