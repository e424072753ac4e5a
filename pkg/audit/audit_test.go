package audit

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved() (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewLogger(zap.New(core)), logs
}

// dump renders every observed entry so tests can grep the whole stream.
func dump(logs *observer.ObservedLogs) string {
	var b strings.Builder
	for _, e := range logs.All() {
		b.WriteString(e.Message)
		for k, v := range e.ContextMap() {
			fmt.Fprintf(&b, " %s=%v", k, v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
	assert.NotEmpty(t, logger.SessionID())

	// Two loggers never share a session.
	assert.NotEqual(t, logger.SessionID(), Nop().SessionID())
}

func TestLogSuccessRedactsSensitiveFields(t *testing.T) {
	logger, logs := newObserved()

	logger.LogSuccess(OpAdd,
		String("device_name", "Router"),
		String("owner", "Alice"),
		String("secret_type", "mac"),
		String("mac_address", "00:11:22:33:44:55"),
		String("secret_value", "supersecret"),
		String("id", AutoID),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "DB TRANSACTION: add_secret", entry.Message)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "Router", ctx["device_name"])
	assert.Equal(t, "Alice", ctx["owner"])
	assert.Equal(t, Redacted, ctx["mac_address"])
	assert.Equal(t, Redacted, ctx["secret_value"])
	assert.Equal(t, "auto", ctx["id"])

	out := dump(logs)
	assert.NotContains(t, out, "00:11:22:33:44:55")
	assert.NotContains(t, out, "supersecret")
}

func TestLogErrorScrubsErrorText(t *testing.T) {
	logger, logs := newObserved()

	err := errors.New("constraint failed near 'supersecret'")
	logger.LogError(OpAdd, err,
		String("device_name", "Router"),
		String("secret_value", "supersecret"),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "DB TRANSACTION ERROR: add_secret", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "constraint failed near '[REDACTED]'", entry.ContextMap()["error"])
	assert.NotContains(t, dump(logs), "supersecret")
}

func TestUpdatesRedactsSensitiveValues(t *testing.T) {
	logger, logs := newObserved()

	logger.LogSuccess(OpUpdate, Int64("id", 7), Updates(map[string]string{
		"owner":        "Bob",
		"secret_value": "hunter22",
		"mac_address":  "aa:bb:cc:dd:ee:ff",
		"notes":        "rotated from hunter22",
	}))

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, int64(7), ctx["id"])

	updates, ok := ctx["updates"].(map[string]string)
	require.True(t, ok, "updates should be logged as a map")
	assert.Equal(t, "Bob", updates["owner"])
	assert.Equal(t, Redacted, updates["secret_value"])
	assert.Equal(t, Redacted, updates["mac_address"])
	assert.Equal(t, "rotated from [REDACTED]", updates["notes"])
}

func TestSecretFieldAlwaysRedacted(t *testing.T) {
	logger, logs := newObserved()

	logger.LogSuccess(OpVaultPassphrase, Secret("value", "pw"), String("source", "environment"))

	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, Redacted, ctx["value"])
	assert.Equal(t, "environment", ctx["source"])
	assert.Equal(t, "VAULT: vault_passphrase", logs.All()[0].Message)
}

func TestCategories(t *testing.T) {
	tests := []struct {
		op     string
		failed bool
		want   string
	}{
		{OpAdd, false, "DB TRANSACTION: add_secret"},
		{OpDelete, true, "DB TRANSACTION ERROR: delete_secret"},
		{OpVaultEncrypt, false, "VAULT: vault_encrypt"},
		{OpVaultDecrypt, true, "VAULT ERROR: vault_decrypt"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			logger, logs := newObserved()
			if tt.failed {
				logger.LogError(tt.op, errors.New("boom"))
			} else {
				logger.LogSuccess(tt.op)
			}
			assert.Equal(t, tt.want, logs.All()[0].Message)
		})
	}
}

func TestLogAction(t *testing.T) {
	logger, logs := newObserved()
	logger.LogAction(OpImport, String("path", "records.json"))

	entry := logs.All()[0]
	assert.Equal(t, "UI ACTION: import_json", entry.Message)
	assert.Equal(t, "records.json", entry.ContextMap()["path"])
	assert.Equal(t, logger.SessionID(), entry.ContextMap()["session"])
}

func TestLogErrorScrubsLongestValueFirst(t *testing.T) {
	logger, logs := newObserved()

	logger.LogError(OpAdd, errors.New("key abcd and abcdef, short ab stays"),
		String("secret_value", "abcd"),
		String("mac_address", "abcdef"),
		String("passphrase", "ab"),
	)

	assert.Equal(t, "key [REDACTED] and [REDACTED], short ab stays", logs.All()[0].ContextMap()["error"])
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive("mac_address"))
	assert.True(t, IsSensitive("SECRET_VALUE"))
	assert.True(t, IsSensitive("passphrase"))
	assert.False(t, IsSensitive("owner"))
	assert.False(t, IsSensitive("device_name"))
}

func TestNewZapLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	zl, err := NewZapLogger(SinkConfig{Debug: true, Console: &buf})
	require.NoError(t, err)

	logger := NewLogger(zl)
	logger.LogSuccess(OpAdd, String("device_name", "Router"), String("secret_value", "supersecret"))
	require.NoError(t, zl.Sync())

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "DB TRANSACTION: add_secret")
	assert.Contains(t, out, "Router")
	assert.Contains(t, out, Redacted)
	assert.NotContains(t, out, "supersecret")
}

func TestNewZapLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stordb.log")
	zl, err := NewZapLogger(SinkConfig{File: path})
	require.NoError(t, err)

	logger := NewLogger(zl)
	logger.LogSuccess(OpDelete, Int64("id", 3))
	_ = zl.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DB TRANSACTION: delete_secret")
	assert.Regexp(t, `"id":\s?3`, string(data))
}
