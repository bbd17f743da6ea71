package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"examforge/gatekeeper/pkg/cli"
)

func runPolicies(t *testing.T, format string) string {
	t.Helper()
	withFlags(t, "", format)

	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)

	if err := listPolicies(cmd, nil); err != nil {
		t.Fatalf("listPolicies() error = %v", err)
	}
	return buf.String()
}

func TestListPolicies_Text(t *testing.T) {
	out := runPolicies(t, string(cli.FormatText))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 8 {
		t.Fatalf("Expected header and 7 policies, got %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "NAME") {
		t.Errorf("Header = %q", lines[0])
	}

	fields := strings.Fields(lines[2])
	want := []string{"auth", "15", "15m", "1h"}
	if strings.Join(fields, " ") != strings.Join(want, " ") {
		t.Errorf("auth row = %v, want %v", fields, want)
	}

	fields = strings.Fields(lines[1])
	want = []string{"api", "300", "1m", "-"}
	if strings.Join(fields, " ") != strings.Join(want, " ") {
		t.Errorf("api row = %v, want %v", fields, want)
	}
}

func TestListPolicies_JSON(t *testing.T) {
	out := runPolicies(t, string(cli.FormatJSON))

	var policies []policyView
	if err := json.Unmarshal([]byte(out), &policies); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if len(policies) != 7 {
		t.Fatalf("Expected 7 policies, got %d", len(policies))
	}

	byName := make(map[string]policyView, len(policies))
	for _, p := range policies {
		byName[p.Name] = p
	}
	if got := byName["batch"]; got.Limit != 20 || got.WindowSeconds != 86400 || got.BlockSeconds != 0 {
		t.Errorf("batch = %+v", got)
	}
	if got := byName["auth"]; got.BlockSeconds != 3600 {
		t.Errorf("auth block = %d, want 3600", got.BlockSeconds)
	}
}

func TestListPolicies_BadFormat(t *testing.T) {
	withFlags(t, "", "yaml")

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	if err := listPolicies(cmd, nil); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
