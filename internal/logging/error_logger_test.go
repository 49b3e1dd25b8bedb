package logging

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trebuchet-org/treb-runner/internal/domain"
)

func TestErrorLogger_Report(t *testing.T) {
	var buf bytes.Buffer
	l := NewErrorLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	cause := fmt.Errorf("start container: %w", errors.New("port is already allocated"))
	record := l.Report("node-fork", domain.KindContainerStartFailed, "failed to start node", cause, map[string]any{"port": 8545})

	require.NotNil(t, record)
	assert.Equal(t, fixed, record.Timestamp)
	assert.Equal(t, "node-fork", record.Component)
	assert.Equal(t, domain.KindContainerStartFailed, record.Kind)
	require.NotNil(t, record.Cause)
	assert.Equal(t, "*errors.errorString", record.Cause.Type)
	assert.Contains(t, record.Cause.Message, "port is already allocated")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "error_type=container_start_failed")
	assert.Contains(t, out, "port=8545")
}

func TestErrorLogger_ReportWithoutCause(t *testing.T) {
	var buf bytes.Buffer
	l := NewErrorLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	record := l.Report("sandbox", domain.KindReadinessTimeout, "not ready", nil, nil)
	assert.Nil(t, record.Cause)
	assert.Contains(t, buf.String(), "not ready")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
