// Copyright (c) 2021 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package web

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestDebugger(t *testing.T) {
	mux := http.NewServeMux()

	dbg1 := Debugger(mux)
	if dbg1 == nil {
		t.Fatal("didn't get a debugger from mux")
	}

	dbg2 := Debugger(mux)
	if dbg2 != dbg1 {
		t.Fatal("Debugger returned different debuggers for the same mux")
	}
}

func TestDebuggerKV(t *testing.T) {
	mux := http.NewServeMux()
	dbg := Debugger(mux)
	dbg.KV("Headlines sent", 42)
	dbg.KV("Chat", "123456789")
	state := "disarmed"
	dbg.KVFunc("Schedule", func() any { return state })

	body := getDebug(t, mux)
	for _, want := range []string{"Headlines sent", "42", "Chat", "123456789", "Schedule", "disarmed"} {
		if !strings.Contains(body, want) {
			t.Errorf("want %q in output, not found", want)
		}
	}

	state = "daily at 08:00"
	body = getDebug(t, mux)
	for _, want := range []string{"Schedule", "daily at 08:00"} {
		if !strings.Contains(body, want) {
			t.Errorf("want %q in output, not found", want)
		}
	}
}

func TestDebuggerLink(t *testing.T) {
	mux := http.NewServeMux()
	dbg := Debugger(mux)
	dbg.Link("https://newsapi.org", "NewsAPI")

	body := getDebug(t, mux)
	for _, want := range []string{"https://newsapi.org", "NewsAPI"} {
		if !strings.Contains(body, want) {
			t.Errorf("want %q in output, not found", want)
		}
	}
}

func TestDebuggerHandle(t *testing.T) {
	mux := http.NewServeMux()
	dbg := Debugger(mux)
	dbg.Handle("send", "Send digest", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "Digest sent.")
	}))

	body := getDebug(t, mux)
	for _, want := range []string{"/debug/send", "Send digest"} {
		if !strings.Contains(body, want) {
			t.Errorf("want %q in output, not found", want)
		}
	}

	body = send(t, mux, http.MethodGet, "/debug/send", http.StatusOK)
	want := "Digest sent."
	if !strings.Contains(body, want) {
		t.Errorf("want %q in output, not found", want)
	}
}

func getDebug(t *testing.T, mux *http.ServeMux) string {
	return send(t, mux, http.MethodGet, "/debug/", http.StatusOK)
}
