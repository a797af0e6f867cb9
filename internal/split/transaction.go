package split

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBackupExists is returned when a split is attempted while a previous
// backup file is still present, which means an earlier run never reached
// commit or rollback.
var ErrBackupExists = errors.New("split: backup file already exists")

// transaction guards the destructive part of a split. begin copies the
// original aside; commit discards the copy; rollback restores it. Once
// begun, a transaction must end in exactly one of the two.
type transaction struct {
	originalPath string
	backupPath   string

	// cleanupErr records a failed backup removal after a successful
	// restore. The original is intact in that case; only the backup
	// lingers.
	cleanupErr error
}

// beginTransaction backs the original file up to a sibling path before any
// destructive step. The backup is the sole recovery mechanism for
// everything that follows.
func beginTransaction(originalPath string) (*transaction, error) {
	backupPath := backupPathFor(originalPath)

	if _, err := os.Stat(backupPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, backupPath)
	}

	if err := copyFile(originalPath, backupPath); err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}

	return &transaction{
		originalPath: originalPath,
		backupPath:   backupPath,
	}, nil
}

// commit finalizes the split. The backup is deleted unless the caller
// asked for it to be kept.
func (tx *transaction) commit(keepBackup bool) error {
	if keepBackup {
		return nil
	}
	if err := os.Remove(tx.backupPath); err != nil {
		return fmt.Errorf("remove backup: %w", err)
	}
	return nil
}

// rollback restores the original file from the backup and deletes the
// backup. The error it returns means the restore copy itself failed and
// the original's on-disk state is unknown. A backup removal failure
// after a successful restore lands in cleanupErr instead; the original
// is whole and only the backup file lingers.
func (tx *transaction) rollback() error {
	if err := copyFile(tx.backupPath, tx.originalPath); err != nil {
		return fmt.Errorf("restore original from backup: %w", err)
	}
	if err := os.Remove(tx.backupPath); err != nil {
		tx.cleanupErr = fmt.Errorf("remove backup after restore: %w", err)
	}
	return nil
}

// backupPathFor returns the sibling backup path: <name>_original<ext>.
func backupPathFor(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_original" + ext
}

// copyFile streams src into dst. Recordings can run to gigabytes, so the
// copy never buffers the whole file in memory.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths are provided by trusted internal code
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy data: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
