package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type columnError struct{ column string }

func (e *columnError) Error() string { return "bad column " + e.column }

func TestTestLogger(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Debug("debug message", "key1", "value1", "number", 42)
	logger.Info("info message", OperationKey, OperationFit)
	logger.Warn("warning message")
	logger.Error("error message", fmt.Errorf("test error"), ColumnKey, "x")

	require.NotEmpty(t, buffer.String())
	assert.True(t, logger.ContainsMessage("debug message"))
	assert.True(t, logger.ContainsMessage("warning message"))
	assert.True(t, logger.ContainsField("key1", "value1"))
	assert.True(t, logger.ContainsField("number", 42.0))
	assert.True(t, logger.ContainsField(ErrAttrKey, "test error"))
	assert.True(t, logger.ContainsField(ColumnKey, "x"))

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	logger.Clear()
	assert.Empty(t, buffer.String())
}

func TestTestLoggerLevelsAndWith(t *testing.T) {
	logger, _ := NewTestLogger(LevelWarn)
	child := logger.With(ModelNameKey, "NaiveBayes", EstimatorIDKey, "abc")

	child.Info("dropped")
	child.Warn("kept", SamplesKey, 3)

	assert.False(t, logger.ContainsMessage("dropped"))
	assert.True(t, logger.ContainsField(ModelNameKey, "NaiveBayes"))
	assert.True(t, logger.ContainsField(SamplesKey, 3.0))
	assert.False(t, child.Enabled(context.Background(), LevelInfo))
	assert.True(t, child.Enabled(context.Background(), LevelError))
}

func TestTestLoggerProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)
	provider.GetLogger().Info("provider message")
	provider.GetLoggerWithName("pmml").Info("named message")

	out := buffer.String()
	assert.Contains(t, out, "provider message")
	assert.Contains(t, out, `"ml.component":"pmml"`)

	provider.SetLevel(LevelError)
	provider.GetLogger().Info("suppressed")
	assert.NotContains(t, buffer.String(), "suppressed")
}

func TestZerologProvider(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(&buf, LevelInfo)

	logger := provider.GetLoggerWithName("linear").With(ModelNameKey, "LinearRegression")
	logger.Debug("hidden")
	logger.Info("Training completed", SamplesKey, 5, FeaturesKey, 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Training completed", entry["message"])
	assert.Equal(t, "linear", entry[ComponentKey])
	assert.Equal(t, "LinearRegression", entry[ModelNameKey])
	assert.Equal(t, 5.0, entry[SamplesKey])

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))

	provider.SetLevel(LevelDebug)
	assert.True(t, provider.GetLogger().Enabled(context.Background(), LevelDebug))
}

func TestZerologProviderErrors(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(&buf, LevelDebug)

	err := errors.WithStack(&columnError{column: "x"})
	provider.GetLogger().Error("failed", err, OperationKey, OperationPredict)

	out := buf.String()
	assert.Contains(t, out, `"error":"bad column x"`)
	assert.Contains(t, out, `"ml.operation":"predict"`)
}

func TestGlobalProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)
	SetProvider(provider)
	defer SetProvider(NewZerologProvider(&bytes.Buffer{}, LevelWarn))

	GetLoggerWithName("eps").Info("global message")
	assert.Contains(t, buffer.String(), "global message")

	SetLevel(LevelError)
	GetLogger().Info("not written")
	assert.NotContains(t, buffer.String(), "not written")
}

func TestToLogLevel(t *testing.T) {
	for in, want := range map[string]Level{"debug": LevelDebug, "info": LevelInfo, "warn": LevelWarn, "error": LevelError} {
		got, err := ToLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEqual(t, "UNKNOWN", got.String())
	}
	_, err := ToLogLevel("verbose")
	assert.Error(t, err)
}
