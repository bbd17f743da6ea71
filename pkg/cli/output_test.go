package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type testTable struct {
	header []string
	rows   [][]string
}

func (t testTable) Header() []string { return t.header }
func (t testTable) Rows() [][]string { return t.rows }

func TestTextFormatter_Table(t *testing.T) {
	formatter := &TextFormatter{}
	buf := &bytes.Buffer{}

	table := testTable{
		header: []string{"NAME", "LIMIT"},
		rows: [][]string{
			{"auth", "15"},
			{"live_session", "30"},
		},
	}

	if err := formatter.FormatTo(buf, table); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if lines[0] != "NAME          LIMIT" {
		t.Errorf("Header = %q", lines[0])
	}
	if lines[1] != "auth          15" {
		t.Errorf("Row = %q", lines[1])
	}
}

func TestTextFormatter_Plain(t *testing.T) {
	formatter := &TextFormatter{}
	buf := &bytes.Buffer{}

	if err := formatter.FormatTo(buf, "test message"); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if buf.String() != "test message\n" {
		t.Errorf("FormatTo() = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	formatter := &JSONFormatter{Indent: true}
	buf := &bytes.Buffer{}

	data := struct {
		Key    string `json:"key"`
		Points int64  `json:"points"`
	}{Key: "auth:1.2.3.4", Points: 3}

	if err := formatter.FormatTo(buf, data); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if decoded["key"] != "auth:1.2.3.4" {
		t.Errorf("key = %v", decoded["key"])
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("Expected indented output")
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format    OutputFormat
		wantType  string
		wantError bool
	}{
		{format: FormatText, wantType: "*cli.TextFormatter"},
		{format: "", wantType: "*cli.TextFormatter"},
		{format: FormatJSON, wantType: "*cli.JSONFormatter"},
		{format: "csv", wantError: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			formatter, err := NewFormatter(tt.format)
			if (err != nil) != tt.wantError {
				t.Fatalf("NewFormatter() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			switch formatter.(type) {
			case *TextFormatter:
				if tt.wantType != "*cli.TextFormatter" {
					t.Errorf("Got text formatter, want %s", tt.wantType)
				}
			case *JSONFormatter:
				if tt.wantType != "*cli.JSONFormatter" {
					t.Errorf("Got JSON formatter, want %s", tt.wantType)
				}
			}
		})
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(2_000_000); got != "2,000,000" {
		t.Errorf("FormatCount() = %q", got)
	}
	if got := FormatCount(15); got != "15" {
		t.Errorf("FormatCount() = %q", got)
	}
}

func TestFormatExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := FormatExpiry(now.Add(4*time.Minute), now); got != "4 minutes from now" {
		t.Errorf("FormatExpiry(future) = %q", got)
	}
	if got := FormatExpiry(now.Add(-2*time.Hour), now); got != "2 hours ago" {
		t.Errorf("FormatExpiry(past) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{d: 24 * time.Hour, want: "24h"},
		{d: 15 * time.Minute, want: "15m"},
		{d: 90 * time.Second, want: "1m30s"},
		{d: 0, want: "0s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
