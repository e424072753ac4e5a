package audit

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// minScrubLength is the shortest sensitive value scrubbed out of free text.
// Shorter values would mangle ordinary words in messages.
const minScrubLength = 4

// sensitiveFields are always logged as Redacted.
var sensitiveFields = map[string]bool{
	"mac_address":  true,
	"secret_value": true,
	"passphrase":   true,
	"password":     true,
}

// IsSensitive reports whether values of the named field are redacted.
func IsSensitive(name string) bool {
	return sensitiveFields[strings.ToLower(name)]
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt
	kindUpdates
)

// Field is one key/value pair in an audit entry. Values are kept raw until
// the entry is encoded so redaction happens in one place.
type Field struct {
	Key     string
	kind    fieldKind
	str     string
	num     int64
	updates map[string]string
	secret  bool
}

// String returns a string field. Sensitive keys are redacted.
func String(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value, secret: IsSensitive(key)}
}

// Secret returns a string field that is redacted regardless of its key.
func Secret(key, value string) Field {
	return Field{Key: key, kind: kindString, str: value, secret: true}
}

// Int64 returns an integer field.
func Int64(key string, value int64) Field {
	return Field{Key: key, kind: kindInt, num: value}
}

// Int returns an integer field.
func Int(key string, value int) Field {
	return Int64(key, int64(value))
}

// Updates returns a field describing a set of column changes. Values of
// sensitive columns are redacted, the rest are logged verbatim.
func Updates(changes map[string]string) Field {
	return Field{Key: "updates", kind: kindUpdates, updates: changes}
}

func (f Field) zap(secrets []string) zap.Field {
	switch f.kind {
	case kindInt:
		return zap.Int64(f.Key, f.num)
	case kindUpdates:
		masked := make(map[string]string, len(f.updates))
		for k, v := range f.updates {
			if IsSensitive(k) {
				masked[k] = Redacted
			} else {
				masked[k] = scrub(v, secrets)
			}
		}
		return zap.Any(f.Key, masked)
	default:
		if f.secret {
			return zap.String(f.Key, Redacted)
		}
		return zap.String(f.Key, scrub(f.str, secrets))
	}
}

// collectSecrets gathers the raw sensitive values of an entry, longest first.
func collectSecrets(fields []Field) []string {
	var secrets []string
	add := func(v string) {
		if len(v) >= minScrubLength {
			secrets = append(secrets, v)
		}
	}
	for _, f := range fields {
		switch {
		case f.kind == kindString && f.secret:
			add(f.str)
		case f.kind == kindUpdates:
			for k, v := range f.updates {
				if IsSensitive(k) {
					add(v)
				}
			}
		}
	}
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	return secrets
}

func scrub(text string, secrets []string) string {
	for _, s := range secrets {
		text = strings.ReplaceAll(text, s, Redacted)
	}
	return text
}
