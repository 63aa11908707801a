package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/djsydney04/wrapshot/internal/config"
	"github.com/djsydney04/wrapshot/internal/extract"
	"github.com/djsydney04/wrapshot/internal/scenes"
)

type cannedCompleter struct{ resp string }

func (c cannedCompleter) Complete(ctx context.Context, req extract.Request) (string, error) {
	return c.resp, nil
}

const kitchenScene = `{"scenes": [{"scene_number": "1", "int_ext": "INT", "set_name": "Kitchen",
	"time_of_day": "DAY", "page_eighths": 11, "characters": ["MARY", "JOE"], "start_page": 1, "end_page": 2}]}`

type cliEnv struct {
	dir    string
	db     string
	script string
}

func setupCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("WRAPSHOT_CONFIG", filepath.Join(dir, "missing.toml"))
	t.Setenv("WRAPSHOT_DB", "")

	script := filepath.Join(dir, "pilot.fountain")
	body := "Title: Pilot\n\nINT. KITCHEN - DAY\n\nMary cooks.\n\nEXT. ROOF - NIGHT\n\nJoe watches."
	if err := os.WriteFile(script, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cliEnv{dir: dir, db: filepath.Join(dir, "cli.db"), script: script}
}

func (e *cliEnv) run(t *testing.T, completer extract.Completer, args ...string) (string, error) {
	t.Helper()
	ctx := newCommandContext()
	ctx.newCompleter = func(config.Config) (extract.Completer, error) { return completer, nil }

	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunShowAndJobs(t *testing.T) {
	env := setupCLIEnv(t)
	fake := cannedCompleter{resp: kitchenScene}

	out, err := env.run(t, fake, "run", env.script, "--document-id", "pilot")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"COMPLETE", "Kitchen", "1 3/8", "1-2", "MARY, JOE"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}

	out, err = env.run(t, fake, "show", "pilot", "--json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var result scenes.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode show output: %v\n%s", err, out)
	}
	if result.TotalScenes != 1 || result.Scenes[0].SetName != "Kitchen" {
		t.Errorf("unexpected result: %+v", result)
	}

	out, err = env.run(t, fake, "jobs", "pilot")
	if err != nil {
		t.Fatalf("jobs failed: %v", err)
	}
	if !strings.Contains(out, "COMPLETE") {
		t.Errorf("jobs output missing status:\n%s", out)
	}

	out, err = env.run(t, fake, "jobs", "nobody")
	if err != nil || !strings.Contains(out, "No jobs for nobody") {
		t.Errorf("unexpected empty listing %q (%v)", out, err)
	}
}

func TestRunFailedBreakdownReturnsError(t *testing.T) {
	env := setupCLIEnv(t)

	out, err := env.run(t, cannedCompleter{resp: `{"scenes": []}`}, "run", env.script, "--document-id", "empty")
	if err == nil {
		t.Fatal("expected an error for a breakdown with no scenes")
	}
	if !strings.Contains(err.Error(), "breakdown failed") || !strings.Contains(out, "FAILED") {
		t.Errorf("unexpected error %v with output:\n%s", err, out)
	}
}

func TestRunRejectsUnsupportedFile(t *testing.T) {
	env := setupCLIEnv(t)
	path := filepath.Join(env.dir, "budget.xlsx")
	if err := os.WriteFile(path, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := env.run(t, cannedCompleter{}, "run", path); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported extension error, got %v", err)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	env := setupCLIEnv(t)
	if _, err := env.run(t, cannedCompleter{}, "status", "missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
}

func TestSweepNothingStale(t *testing.T) {
	env := setupCLIEnv(t)
	out, err := env.run(t, cannedCompleter{}, "sweep")
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if !strings.HasPrefix(out, "Cancelled 0 stale job(s)") {
		t.Errorf("unexpected sweep output %q", out)
	}
}

func TestFormatEighths(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0/8"},
		{3, "3/8"},
		{8, "1"},
		{11, "1 3/8"},
		{24, "3"},
	}
	for _, tt := range tests {
		if got := formatEighths(tt.in); got != tt.want {
			t.Errorf("formatEighths(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPageRange(t *testing.T) {
	tests := []struct {
		start, end int
		want       string
	}{
		{0, 0, "-"},
		{4, 0, "4"},
		{4, 4, "4"},
		{4, 6, "4-6"},
	}
	for _, tt := range tests {
		if got := pageRange(tt.start, tt.end); got != tt.want {
			t.Errorf("pageRange(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestRenderTableShape(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"x"}, {"y", "z"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "╭") || !strings.Contains(out, "x") || !strings.Contains(out, "z") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("expected empty output without headers")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(&bytes.Buffer{}) {
		t.Error("buffers are never terminals")
	}
}
