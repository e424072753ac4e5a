package backup

import "errors"

// Backup/Restore errors
var (
	// ErrDatabaseNotFound indicates there is no store file to back up.
	ErrDatabaseNotFound = errors.New("backup: database file not found")

	// ErrBackupNotFound indicates the restore source does not exist.
	ErrBackupNotFound = errors.New("backup: backup file not found")

	// ErrNotSQLite indicates the restore source is not a SQLite database.
	ErrNotSQLite = errors.New("backup: file is not a SQLite database")

	// ErrSameFile indicates source and destination are the same file.
	ErrSameFile = errors.New("backup: source and destination are the same file")

	// ErrInsufficientSpace indicates the destination volume is too full.
	ErrInsufficientSpace = errors.New("backup: insufficient disk space")
)
