package progress

import (
	"bytes"
	"context"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/trebuchet-org/treb-runner/internal/usecase"
)

func TestSpinnerProgressReporter_StageSummaries(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	r := newSpinnerProgressReporter(&buf)
	ctx := context.Background()

	r.OnProgress(ctx, usecase.ProgressEvent{Stage: "image", Message: "Resolving foundry image"})
	r.OnProgress(ctx, usecase.ProgressEvent{Stage: "deploy", Message: "Deploying to local"})
	r.Info("✅ Using cached deployment")
	r.Done()

	out := buf.String()
	assert.Contains(t, out, "✓ Resolving foundry image (")
	assert.Contains(t, out, "✓ Deploying to local (")
	assert.Contains(t, out, "✅ Using cached deployment")
}

func TestSpinnerProgressReporter_DoneWithoutStages(t *testing.T) {
	var buf bytes.Buffer
	r := newSpinnerProgressReporter(&buf)
	r.Done()
	assert.Empty(t, buf.String())
}
