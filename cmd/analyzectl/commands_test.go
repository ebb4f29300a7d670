package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"show", "analyze", "reanalyze", "stuck", "mcp"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %q, got %v (err=%v)", name, cmd, err)
		}
	}
}

func TestStuckCommandFlagDefaults(t *testing.T) {
	root := newRootCommand()
	cmd, _, err := root.Find([]string{"stuck"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got := cmd.Flags().Lookup("older-than").DefValue; got != "30m0s" {
		t.Fatalf("unexpected --older-than default %q", got)
	}
	if got := cmd.Flags().Lookup("limit").DefValue; got != "100" {
		t.Fatalf("unexpected --limit default %q", got)
	}
	if got := cmd.Flags().Lookup("requeue").DefValue; got != "false" {
		t.Fatalf("unexpected --requeue default %q", got)
	}
}

func TestShowRequiresDocumentID(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"show"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "accepts 1 arg") {
		t.Fatalf("expected argument error, got %v", err)
	}
}

func TestWriteStuckTable(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	docs := []domain.Document{
		{ID: "doc-1", Filename: "a.pdf", AnalysisStatus: domain.AnalysisPending, UpdatedAt: now.Add(-90 * time.Minute)},
	}

	var out bytes.Buffer
	if err := writeStuckTable(&out, docs, now); err != nil {
		t.Fatalf("writeStuckTable() error = %v", err)
	}
	rendered := out.String()
	if !strings.Contains(rendered, "╭") || !strings.Contains(rendered, "FILENAME") {
		t.Fatalf("expected a bordered table with a header:\n%s", rendered)
	}
	var row string
	for _, line := range strings.Split(rendered, "\n") {
		if strings.Contains(line, "doc-1") {
			row = line
		}
	}
	fields := strings.Fields(strings.ReplaceAll(row, "│", " "))
	if len(fields) != 4 || fields[0] != "doc-1" || fields[1] != "a.pdf" || fields[3] != "1h30m0s" {
		t.Fatalf("unexpected row %q", row)
	}

	out.Reset()
	if err := writeStuckTable(&out, nil, now); err != nil {
		t.Fatalf("writeStuckTable() error = %v", err)
	}
	if strings.TrimSpace(out.String()) != "no stuck documents" {
		t.Fatalf("unexpected empty output %q", out.String())
	}
}
