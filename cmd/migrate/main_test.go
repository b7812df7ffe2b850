package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	cases := []struct {
		args    []string
		wantCmd string
		wantErr bool
	}{
		{args: nil, wantCmd: "up"},
		{args: []string{"-cmd", "status"}, wantCmd: "status"},
		{args: []string{"-cmd", "create"}, wantErr: true},
		{args: []string{"-cmd", "create", "-name", "add_payout_index"}, wantCmd: "create"},
		{args: []string{"-cmd", "version"}, wantErr: true},
		{args: []string{"-cmd", "version", "-version", "20240101000000"}, wantCmd: "version"},
		{args: []string{"-cmd", "redo"}, wantErr: true},
	}
	for _, tc := range cases {
		opts, err := parseArgs(tc.args)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseArgs(%v) expected error", tc.args)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseArgs(%v): %v", tc.args, err)
		}
		if opts.cmd != tc.wantCmd {
			t.Fatalf("parseArgs(%v) cmd = %q, want %q", tc.args, opts.cmd, tc.wantCmd)
		}
	}
}

func TestRunValidatesEmbeddedMigrations(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"-cmd", "validate"}, &out); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	if !strings.Contains(out.String(), "migrations ok") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunCreateWritesFile(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := run([]string{"-cmd", "create", "-dir", dir, "-name", "add_payout_index"}, &out); err != nil {
		t.Fatalf("create: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), "_add_payout_index.sql") {
		t.Fatalf("unexpected files %v", entries)
	}
	if !strings.Contains(out.String(), filepath.Join(dir, entries[0].Name())) {
		t.Fatalf("output %q does not name the new file", out.String())
	}
}
