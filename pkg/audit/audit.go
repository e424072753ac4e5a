// Package audit provides the redacting audit trail for stordb.
//
// Every mutating store operation and every vault encrypt/decrypt passes
// through a Logger. Sensitive field values (MAC address, secret value,
// passphrases) are replaced with the Redacted marker before an entry reaches
// the sink.
package audit

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Redacted replaces sensitive values in every audit entry.
const Redacted = "[REDACTED]"

// AutoID is logged in place of a record id that has not been assigned yet.
const AutoID = "auto"

// Operation names for audit logging
const (
	// Store operations
	OpInit   = "init_db"
	OpAdd    = "add_secret"
	OpUpdate = "update_secret"
	OpDelete = "delete_secret"
	OpClear  = "clear_secrets"
	OpLookup = "lookup"

	// Codec operations
	OpImport     = "import_json"
	OpImportDB   = "import_db_from_json"
	OpImportItem = "import_json_record"
	OpExport     = "export_db_to_json"

	// Vault operations
	OpVaultEncrypt    = "vault_encrypt"
	OpVaultDecrypt    = "vault_decrypt"
	OpVaultPassphrase = "vault_passphrase"

	// File operations
	OpBackup  = "backup_db"
	OpRestore = "restore_db"
)

// Entry categories used as the message prefix
const (
	CategoryDB         = "DB TRANSACTION"
	CategoryDBError    = "DB TRANSACTION ERROR"
	CategoryVault      = "VAULT"
	CategoryVaultError = "VAULT ERROR"
	CategoryUI         = "UI ACTION"
)

// Sink receives finished audit entries. *zap.Logger satisfies it.
type Sink interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Logger writes redacted audit entries to a Sink.
type Logger struct {
	sink      Sink
	sessionID string
}

// NewLogger creates a Logger writing to sink. A nil sink discards entries.
func NewLogger(sink Sink) *Logger {
	if sink == nil {
		sink = zap.NewNop()
	}
	return &Logger{
		sink:      sink,
		sessionID: uuid.NewString(),
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewLogger(nil)
}

// SessionID returns the id attached to every entry from this Logger.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op string, fields ...Field) {
	l.sink.Info(message(categoryFor(op, false), op), l.encode(fields, nil)...)
}

// LogError records a failed operation. The error text is scrubbed of any
// sensitive value carried by fields.
func (l *Logger) LogError(op string, err error, fields ...Field) {
	l.sink.Error(message(categoryFor(op, true), op), l.encode(fields, err)...)
}

// LogAction records a user-facing request before it runs.
func (l *Logger) LogAction(op string, fields ...Field) {
	l.sink.Info(message(CategoryUI, op), l.encode(fields, nil)...)
}

func (l *Logger) encode(fields []Field, err error) []zap.Field {
	secrets := collectSecrets(fields)

	out := make([]zap.Field, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, f.zap(secrets))
	}
	if err != nil {
		out = append(out, zap.String("error", scrub(err.Error(), secrets)))
	}
	out = append(out, zap.String("session", l.sessionID))
	return out
}

func message(category, op string) string {
	return fmt.Sprintf("%s: %s", category, op)
}

func categoryFor(op string, failed bool) string {
	switch op {
	case OpVaultEncrypt, OpVaultDecrypt, OpVaultPassphrase:
		if failed {
			return CategoryVaultError
		}
		return CategoryVault
	default:
		if failed {
			return CategoryDBError
		}
		return CategoryDB
	}
}
