// Package backup copies the store file to and from backup locations.
package backup

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vrwmiller/stordb/pkg/audit"
)

// Constants
const (
	FileMode = 0600

	// TimestampLayout names default backups, e.g. stordb.sqlite3.backup_20240101_120000.
	TimestampLayout = "20060102_150405"

	// MinFreeBytes is kept free on the destination beyond the copy itself.
	MinFreeBytes = 1024 * 1024
)

// sqliteMagic starts every SQLite 3 database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// BackupOptions configures a backup.
type BackupOptions struct {
	// Dest is the backup path. Empty selects DefaultBackupPath.
	Dest string
	// Now is the clock used for the default name.
	Now func() time.Time
	// Audit receives the backup entry.
	Audit *audit.Logger
}

// RestoreOptions configures a restore.
type RestoreOptions struct {
	// Audit receives the restore entry.
	Audit *audit.Logger
}

// DefaultBackupPath returns dbPath with a timestamp suffix.
func DefaultBackupPath(dbPath string, t time.Time) string {
	return fmt.Sprintf("%s.backup_%s", dbPath, t.Format(TimestampLayout))
}

// Backup copies the store file at dbPath and returns the backup path.
func Backup(dbPath string, opts BackupOptions) (string, error) {
	logger := opts.Audit
	if logger == nil {
		logger = audit.Nop()
	}

	dest := opts.Dest
	if dest == "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		dest = DefaultBackupPath(dbPath, now())
	}

	fields := []audit.Field{audit.String("source", dbPath), audit.String("dest", dest)}
	if err := backup(dbPath, dest); err != nil {
		logger.LogError(audit.OpBackup, err, fields...)
		return "", err
	}

	logger.LogSuccess(audit.OpBackup, fields...)
	return dest, nil
}

func backup(dbPath, dest string) error {
	info, err := os.Stat(dbPath)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrDatabaseNotFound
	}
	if err != nil {
		return fmt.Errorf("backup: failed to stat database: %w", err)
	}

	if err := checkDiskSpace(filepath.Dir(dest), uint64(info.Size())); err != nil {
		return err
	}
	return copyFile(dbPath, dest)
}

// Restore copies the backup at src over the store file at dbPath.
func Restore(src, dbPath string, opts RestoreOptions) error {
	logger := opts.Audit
	if logger == nil {
		logger = audit.Nop()
	}

	fields := []audit.Field{audit.String("source", src), audit.String("dest", dbPath)}
	if err := restore(src, dbPath); err != nil {
		logger.LogError(audit.OpRestore, err, fields...)
		return err
	}

	logger.LogSuccess(audit.OpRestore, fields...)
	return nil
}

func restore(src, dbPath string) error {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return ErrBackupNotFound
	}
	if err := verifySQLite(src); err != nil {
		return err
	}
	return copyFile(src, dbPath)
}

func verifySQLite(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("backup: failed to open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	if _, err := io.ReadFull(f, header); err != nil || !bytes.Equal(header, sqliteMagic) {
		return ErrNotSQLite
	}
	return nil
}

// copyFile copies src to dst with FileMode, keeping the source mtime.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("backup: failed to stat %s: %w", src, err)
	}
	if dstInfo, err := os.Stat(dst); err == nil && os.SameFile(srcInfo, dstInfo) {
		return ErrSameFile
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("backup: failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileMode)
	if err != nil {
		return fmt.Errorf("backup: failed to create %s: %w", dst, err)
	}
	if err := out.Chmod(FileMode); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: failed to chmod %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: failed to copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return fmt.Errorf("backup: failed to sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("backup: failed to close %s: %w", dst, err)
	}

	return os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime())
}
