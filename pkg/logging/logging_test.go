package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAndLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelWarn, &buf)

	Debug("scheduler", "dispatched case %s", "a.cpus=1")
	Info("scheduler", "ready queue drained")
	require.Empty(t, buf.String(), "debug/info below the configured level must not be written")

	Warn("resourcepool", "gpu type has zero free slots")
	assert.Contains(t, buf.String(), "gpu type has zero free slots")
	assert.Contains(t, buf.String(), "subsystem=resourcepool")
}

func TestErrorIncludesErrAttribute(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	Error("batch", errors.New("job lost"), "batch %s failed to submit", "b1")
	out := buf.String()
	assert.Contains(t, out, "batch b1 failed to submit")
	assert.Contains(t, out, "error=\"job lost\"")
}

func TestRecentRingBuffer(t *testing.T) {
	var buf bytes.Buffer
	Init(LevelDebug, &buf)

	for i := 0; i < 5; i++ {
		Info("catalog", "case %d transitioned", i)
	}

	recent := Recent(3)
	require.Len(t, recent, 3)
	assert.True(t, strings.Contains(recent[2].Message, "case 4 transitioned"))
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}
