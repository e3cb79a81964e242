package main

import (
	"strings"
	"testing"
)

// executeArgs runs a fresh root command with args and returns stdout and any error.
// Cobra's usage and error output is suppressed so test output stays clean.
func executeArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out strings.Builder
	root.SetOut(&out)
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return out.String(), err
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "import requires a file", args: []string{"import"}, wantErr: "accepts 1 arg"},
		{name: "import rejects two files", args: []string{"import", "a.csv", "b.csv"}, wantErr: "accepts 1 arg"},
		{name: "user add requires an email", args: []string{"user", "add"}, wantErr: "accepts 1 arg"},
		{name: "migrate takes no args", args: []string{"migrate", "now"}, wantErr: "unknown command"},
		{name: "serve takes no args", args: []string{"serve", "now"}, wantErr: "unknown command"},
		{name: "export-audit rejects unknown action", args: []string{"export-audit", "--action", "PURGE"}, wantErr: "--action"},
		{name: "export-audit rejects bad since", args: []string{"export-audit", "--since", "yesterday"}, wantErr: "--since"},
		{name: "unknown flag", args: []string{"import", "--bogus", "a.csv"}, wantErr: "unknown flag"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executeArgs(t, tc.args...)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %q", tc.wantErr, err.Error())
			}
		})
	}
}

func TestVersionFlag(t *testing.T) {
	out, err := executeArgs(t, "--version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "bookvault version ") {
		t.Errorf("unexpected version output: %q", out)
	}
}

func TestExportAuditFlags_Filters(t *testing.T) {
	f := exportAuditFlags{
		userID: 7,
		action: "export",
		table:  "books",
		since:  "2024-03-01",
		until:  "2024-03-31",
	}

	got, err := f.filters()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.UserID == nil || *got.UserID != 7 {
		t.Errorf("user id: got %v, want 7", got.UserID)
	}
	if got.Action != "EXPORT" {
		t.Errorf("action: got %q, want EXPORT", got.Action)
	}
	if got.TableName != "books" {
		t.Errorf("table: got %q, want books", got.TableName)
	}
	if got.StartDate == nil || got.StartDate.Format("2006-01-02T15:04:05") != "2024-03-01T00:00:00" {
		t.Errorf("since: got %v", got.StartDate)
	}
	if got.EndDate == nil || got.EndDate.Format("2006-01-02T15:04:05") != "2024-03-31T23:59:59" {
		t.Errorf("until must cover the whole day, got %v", got.EndDate)
	}
}

func TestExportAuditFlags_Empty(t *testing.T) {
	got, err := exportAuditFlags{}.filters()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != nil || got.Action != "" || got.StartDate != nil || got.EndDate != nil {
		t.Errorf("expected zero filters, got %+v", got)
	}
}
