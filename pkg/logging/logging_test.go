package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWriterFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWriter(&buf, "warn")
	require.NoError(t, err)

	log.Info("run started")
	log.Warn("run faulted", zap.String("kind", "DivisionByZero"))
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "run started")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "run faulted")
	assert.Contains(t, out, `{"kind": "DivisionByZero"}`)
}

func TestBadLevel(t *testing.T) {
	_, err := New("chatty")
	assert.Error(t, err)

	_, err = NewWriter(&bytes.Buffer{}, "chatty")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zap.DebugLevel))
}
