package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/YuminosukeSato/streamlm/pkg/errors"
)

func TestToLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range cases {
		if got := ToLogLevel(name); got != want {
			t.Errorf("ToLogLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestToLogLevel_InvalidPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid level")
		}
	}()
	ToLogLevel("verbose")
}

func TestErrFmtHandler_AddsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	err := errors.New("boom")
	logger.Error("estimation failed", ErrAttr(err), slog.String(UnitIDKey, "u1"))

	var record map[string]any
	if jsonErr := json.Unmarshal(buf.Bytes(), &record); jsonErr != nil {
		t.Fatalf("output is not JSON: %v", jsonErr)
	}
	if record[ErrAttrKey] == nil {
		t.Error("error attribute missing")
	}
	if record[StacktraceAttrKey] == nil {
		t.Error("stacktrace attribute missing for cockroachdb error")
	}
	if record[UnitIDKey] != "u1" {
		t.Errorf("unit id attribute missing: %v", record)
	}
}
