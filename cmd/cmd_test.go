package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmehdipour/vm-relay/internal/config"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	return rootCmd.Execute()
}

func TestRunFailsFastWithoutCredentials(t *testing.T) {
	for _, name := range []string{"RC_CLIENT_ID", "RC_CLIENT_SECRET", "RC_JWT", "RC_EXTENSION_ID", "DISCORD_WEBHOOK_URL"} {
		t.Setenv(name, "")
	}

	var cerr *config.ConfigError
	if err := execute(t, "run"); !errors.As(err, &cerr) {
		t.Fatalf("run = %v, want *config.ConfigError", err)
	}
	if cerr.Key != "RC_CLIENT_ID" {
		t.Errorf("Key = %q, want %q", cerr.Key, "RC_CLIENT_ID")
	}
}

func TestMigrateAndHistoryOnSQLite(t *testing.T) {
	t.Setenv("VMRELAY_JOURNAL_DRIVER", "sqlite")
	t.Setenv("VMRELAY_JOURNAL_DSN", filepath.Join(t.TempDir(), "journal.db"))

	if err := execute(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// a second run is a no-op
	if err := execute(t, "migrate"); err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if err := execute(t, "history", "--limit", "5"); err != nil {
		t.Fatalf("history: %v", err)
	}
}

func TestHistoryWithoutJournal(t *testing.T) {
	t.Setenv("VMRELAY_JOURNAL_DRIVER", "")

	var cerr *config.ConfigError
	if err := execute(t, "history"); !errors.As(err, &cerr) || cerr.Key != "journal.driver" {
		t.Fatalf("history = %v, want ConfigError for journal.driver", err)
	}
}

func TestDash(t *testing.T) {
	if got := dash(""); got != "-" {
		t.Errorf("dash(\"\") = %q, want %q", got, "-")
	}
	if got := dash("Alice"); got != "Alice" {
		t.Errorf("dash(%q) = %q, want %q", "Alice", got, "Alice")
	}
}
