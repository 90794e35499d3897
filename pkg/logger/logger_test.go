package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core)).With("component", "detector")

	l.Info("epoch archived", "epoch", uint64(233))
	l.Debug("tracked", "keys", 2)

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "epoch archived", first.Message)
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, "detector", first.ContextMap()["component"])
	assert.Equal(t, uint64(233), first.ContextMap()["epoch"])
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	SetDefault(New(zap.New(core)))
	Default().Warn("watermark lagging")

	assert.Equal(t, 1, logs.Len())

	// nil is ignored
	SetDefault(nil)
	assert.NotNil(t, Default())
}

func TestProductionRejectsUnknownLevel(t *testing.T) {
	_, err := Production("loud")
	assert.Error(t, err)

	l, err := Production("warn")
	require.NoError(t, err)
	assert.NotNil(t, l)
}
