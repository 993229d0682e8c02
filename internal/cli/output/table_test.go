package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

type sessionRow struct {
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	ExpiresAt *time.Time `json:"expires_at"`
	UserAgent string     `json:"user_agent" table:"wide"`
	Current   bool       `json:"current"`
	internal  string
}

func TestTableFormatter_Table(t *testing.T) {
	table := &Table{Headers: []string{"NAME", "VALUE"}}
	table.AddRow("key1", "value1")

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "NAME") || !strings.HasPrefix(lines[1], "key1") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, *table); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.Contains(buf.String(), "NAME") {
		t.Error("NoHeaders still printed the header")
	}
}

func TestTableFormatter_Slice(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	rows := []sessionRow{
		{SessionID: "amss-1", UserID: "amus-1", ExpiresAt: &exp, UserAgent: "curl", Current: true},
		{SessionID: "amss-2", UserID: "amus-1"},
	}

	tests := []struct {
		name        string
		wide        bool
		wantHeaders string
	}{
		{"narrow", false, "SESSION_ID  USER_ID  EXPIRES_AT           CURRENT"},
		{"wide", true, "SESSION_ID  USER_ID  EXPIRES_AT           USER_AGENT  CURRENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := (&TableFormatter{Wide: tt.wide}).Format(&buf, rows); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
			if len(lines) != 3 {
				t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
			}
			if got := strings.TrimSpace(lines[0]); got != tt.wantHeaders {
				t.Errorf("headers = %q, want %q", got, tt.wantHeaders)
			}
			if !strings.Contains(lines[1], "2026-01-02 03:04:05") || !strings.Contains(lines[1], "yes") {
				t.Errorf("row 1 = %q", lines[1])
			}
			if !strings.Contains(lines[2], "-") || !strings.Contains(lines[2], "no") {
				t.Errorf("row 2 = %q", lines[2])
			}
		})
	}
}

func TestTableFormatter_PointerSliceAndStruct(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, []*sessionRow{{SessionID: "amss-9"}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "amss-9") {
		t.Errorf("pointer slice output missing row:\n%s", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, &sessionRow{SessionID: "amss-7"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "FIELD") || !strings.Contains(out, "session_id") || !strings.Contains(out, "amss-7") {
		t.Errorf("struct output:\n%s", out)
	}
	if strings.Contains(out, "internal") || strings.Contains(out, "user_agent") {
		t.Errorf("struct output shows hidden fields:\n%s", out)
	}
}

func TestTableFormatter_MapAndFallback(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, map[string]int{"invalidated": 3}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "invalidated") || !strings.Contains(buf.String(), "3") {
		t.Errorf("map output:\n%s", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("fallback output = %q, want JSON 42", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("nil: err=%v output=%q", err, buf.String())
	}
}

func TestTableFormatter_StringSlice(t *testing.T) {
	var buf bytes.Buffer
	codes := []string{"ABCDE-FGHIJ", "KLMNO-PQRST"}
	if err := (&TableFormatter{}).Format(&buf, codes); err != nil {
		t.Fatal(err)
	}
	want := "VALUE\nABCDE-FGHIJ\nKLMNO-PQRST\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestFormatValue(t *testing.T) {
	var nilTime *time.Time
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "hello", "hello"},
		{"empty string", "", "-"},
		{"int", 42, "42"},
		{"bool", false, "no"},
		{"nil pointer", nilTime, "-"},
		{"zero time", time.Time{}, "-"},
		{"strings", []string{"a", "b"}, "a,b"},
		{"ints", []int{1, 2, 3}, "[3 items]"},
		{"empty slice", []int{}, "-"},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(reflect.ValueOf(tt.in)); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
