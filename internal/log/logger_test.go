package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_JSONCarriesComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentHTTP, Output: &buf})

	logger.Info("hello", FieldUserID, "u1")
	logger.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	if strings.Count(lines[0], `"component"`) != 1 {
		t.Errorf("component repeated: %s", lines[0])
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rec[FieldComponent] != ComponentHTTP || rec[FieldUserID] != "u1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(Config{Format: "json", Component: ComponentApp, Output: &buf}).With(FieldRequestID, "req_1")
	child := parent.WithComponent(ComponentAuth)

	child.Info("child")
	parent.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for i, want := range []string{ComponentAuth, ComponentApp} {
		if strings.Count(lines[i], `"component"`) != 1 {
			t.Errorf("component repeated: %s", lines[i])
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &rec); err != nil {
			t.Fatal(err)
		}
		if rec[FieldComponent] != want || rec[FieldRequestID] != "req_1" {
			t.Errorf("line %d = %v, want component %s and request id", i, rec, want)
		}
	}
	if child.Component() != ComponentAuth {
		t.Errorf("Component() = %q", child.Component())
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("expected fallback logger without a context logger")
	}

	logger := New(Config{Component: ComponentWorker, Output: &bytes.Buffer{}})
	var seen *Logger
	h := Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != logger {
		t.Errorf("FromContext returned %v, want the middleware logger", seen)
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithUser("u1").
		WithExpense("e1", "12.50", "Food").
		WithError(nil).
		WithHTTPResponse(404, 3)

	if _, ok := f[FieldError]; ok {
		t.Error("nil error must not add a field")
	}
	if f[FieldSuccess] != false || f[FieldExpenseID] != "e1" {
		t.Errorf("unexpected fields: %v", f)
	}
	if got := len(f.ToSlice()); got != len(f)*2 {
		t.Errorf("ToSlice len = %d, want %d", got, len(f)*2)
	}
}
