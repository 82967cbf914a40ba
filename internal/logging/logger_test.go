package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)

	logger.Info("started %s", "listener")
	logger.Warn("slow response")
	logger.Error("connection refused")

	out := buf.String()
	assert.Contains(t, out, "✓ started listener")
	assert.Contains(t, out, "⚠ slow response")
	assert.Contains(t, out, "✗ connection refused")
}

func TestDebugGatedByFlag(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, false)
	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger = NewWithWriter(&buf, true)
	logger.Debug("visible")
	assert.Contains(t, buf.String(), "[DEBUG] visible")
}

func TestSecretRedactsInFormatting(t *testing.T) {
	t.Parallel()

	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
	assert.NotContains(t, fmt.Sprintf("value is %s", s), "hunter2")
}

func TestRedact(t *testing.T) {
	t.Parallel()

	out := Redact("token=abcd1234 other=ok", []string{"abcd1234"})
	assert.Equal(t, "token=[REDACTED] other=ok", out)

	// Short values stay as-is to avoid mangling unrelated text.
	out = Redact("pin is 12", []string{"12"})
	assert.Equal(t, "pin is 12", out)

	out = Redact("nothing secret here", []string{""})
	assert.Equal(t, "nothing secret here", out)
}
