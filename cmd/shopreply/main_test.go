package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "# comment\nSHOPREPLY_TEST_A=hello\n\nSHOPREPLY_TEST_B = spaced \nNOT_AN_ASSIGNMENT\n=no-key\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	t.Setenv("SHOPREPLY_TEST_A", "")
	os.Unsetenv("SHOPREPLY_TEST_A")
	t.Setenv("SHOPREPLY_TEST_B", "preexisting")

	loadDotEnv(path)

	if got := os.Getenv("SHOPREPLY_TEST_A"); got != "hello" {
		t.Errorf("SHOPREPLY_TEST_A = %q", got)
	}
	// Existing env always wins over the file.
	if got := os.Getenv("SHOPREPLY_TEST_B"); got != "preexisting" {
		t.Errorf("SHOPREPLY_TEST_B = %q", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	// Must be a silent no-op.
	loadDotEnv(filepath.Join(t.TempDir(), "absent.env"))
}
