package cli

import (
	"os"
	"testing"
	"time"
)

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("from", "")
	if err != nil || got != nil {
		t.Fatalf("empty flag should be unset, got %v, %v", got, err)
	}

	got, err = parseTimeFlag("from", "2025-03-01")
	if err != nil {
		t.Fatalf("date only: %v", err)
	}
	if !got.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %s", got)
	}

	got, err = parseTimeFlag("to", "2025-03-01T12:30:00Z")
	if err != nil || got.Hour() != 12 {
		t.Fatalf("rfc3339: %v, %v", got, err)
	}

	if _, err := parseTimeFlag("to", "yesterday"); err == nil {
		t.Fatal("expected error for unparseable value")
	}
}

func TestLoadEnvFileIgnoresMissingFile(t *testing.T) {
	if err := loadEnvFile(t.TempDir() + "/missing.env"); err != nil {
		t.Fatalf("missing dotenv file should be ignored: %v", err)
	}
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := t.TempDir() + "/.env"
	if err := os.WriteFile(path, []byte("FEETRACKER_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FEETRACKER_TEST_KEY", "from-env")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("FEETRACKER_TEST_KEY"); got != "from-env" {
		t.Fatalf("existing variable overridden: %q", got)
	}
}
