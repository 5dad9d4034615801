package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluedeke/go-provcheck/pkg/provision"
)

func runConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		Format:      provision.DefaultFormat,
		Identities:  t.TempDir(),
		ProfileDirs: []string{t.TempDir()},
		NoColor:     true,
	}
}

func TestRun_UnknownProfile(t *testing.T) {
	cfg := runConfig(t)
	cfg.Paths = []string{"missing-uuid"}

	var stdout, stderr bytes.Buffer
	code, err := run(cfg, strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	if stdout.Len() != 0 {
		t.Errorf("Expected no output, got %q", stdout.String())
	}
	if got, want := stderr.String(), "ERROR: no provisioning profile found for \"missing-uuid\"\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestRun_NoInstalledProfiles(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code, err := run(runConfig(t), strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if code != 0 || stdout.Len() != 0 || stderr.Len() != 0 {
		t.Errorf("Expected a silent success, got code %d, stdout %q, stderr %q", code, stdout.String(), stderr.String())
	}
}

func TestRun_MissingIdentities(t *testing.T) {
	cfg := runConfig(t)
	cfg.Identities = filepath.Join(t.TempDir(), "missing")

	var stdout, stderr bytes.Buffer
	_, err := run(cfg, strings.NewReader(""), &stdout, &stderr)
	if err == nil {
		t.Fatal("Expected run to fail without an identity directory")
	}
	if !provision.IsFatal(err) {
		t.Errorf("Expected a fatal identity error, got %v", err)
	}
}
