package store

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// DefaultSecretType is used when a record is added without a type.
const DefaultSecretType = "mac"

// Record is one row of the secrets table.
type Record struct {
	bun.BaseModel `bun:"table:secrets"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	MACAddress  string `bun:"mac_address" json:"mac_address"`
	DeviceName  string `bun:"device_name" json:"device_name"`
	Owner       string `bun:"owner" json:"owner"`
	Notes       string `bun:"notes" json:"notes"`
	SecretType  string `bun:"secret_type" json:"secret_type"`
	SecretValue string `bun:"secret_value" json:"secret_value"`
}

// NewRecord holds the caller-supplied attributes of a record to add.
type NewRecord struct {
	MACAddress  string
	DeviceName  string
	Owner       string
	Notes       string
	SecretType  string
	SecretValue string
}

func (n NewRecord) row() *Record {
	secretType := n.SecretType
	if secretType == "" {
		secretType = DefaultSecretType
	}
	return &Record{
		MACAddress:  n.MACAddress,
		DeviceName:  n.DeviceName,
		Owner:       n.Owner,
		Notes:       n.Notes,
		SecretType:  secretType,
		SecretValue: n.SecretValue,
	}
}

// validate checks required attributes in MAC, device name, owner order.
func (n NewRecord) validate() error {
	switch {
	case n.MACAddress == "":
		return validation(string(FieldMACAddress), ErrMissingMAC)
	case n.DeviceName == "":
		return validation(string(FieldDeviceName), ErrMissingDeviceName)
	case n.Owner == "":
		return validation(string(FieldOwner), ErrMissingOwner)
	}
	return nil
}

// Field is a column of the secrets table.
type Field string

// Columns of the secrets table, in table order.
const (
	FieldID          Field = "id"
	FieldMACAddress  Field = "mac_address"
	FieldDeviceName  Field = "device_name"
	FieldOwner       Field = "owner"
	FieldNotes       Field = "notes"
	FieldSecretType  Field = "secret_type"
	FieldSecretValue Field = "secret_value"
)

// Fields lists every column in table order.
var Fields = []Field{
	FieldID,
	FieldMACAddress,
	FieldDeviceName,
	FieldOwner,
	FieldNotes,
	FieldSecretType,
	FieldSecretValue,
}

// ParseField checks name against the column allow-list. Query builders only
// ever see a Field returned from here.
func ParseField(name string) (Field, error) {
	for _, f := range Fields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", &ValidationError{
		Field: name,
		Index: -1,
		Msg:   fmt.Sprintf("store: unknown field %q (allowed: %s)", name, allowedNames()),
		Err:   ErrUnknownField,
	}
}

// Updatable reports whether f may be changed by Update.
func (f Field) Updatable() bool {
	return f != FieldID
}

func allowedNames() string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
