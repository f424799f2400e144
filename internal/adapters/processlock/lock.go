// Package processlock guards single-process ownership of the scheduler with
// a file lock plus a Postgres advisory lock. The file lock stops a second
// process on the same host; the advisory lock stops one on another host
// sharing the database.
package processlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// Advisory lock key pair for the scheduler. Two int4 keys so unrelated
// tooling using single-key locks cannot collide with it.
const (
	advisoryKeyMajor = 217728
	advisoryKeyMinor = 12173
)

// ErrHeldElsewhere reports that another live process owns the scheduler.
var ErrHeldElsewhere = errors.New("scheduler lock held by another process")

// Options groups dependencies for Lock.
type Options struct {
	DB     *sql.DB      // Required: advisory lock connection source
	Path   string       // Required: file lock path
	Logger *slog.Logger // Optional: structured logger
}

// Lock holds both halves of the scheduler ownership lock.
type Lock struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	file *os.File
	conn *sql.Conn
}

// New constructs an unacquired Lock.
func New(opts Options) (*Lock, error) {
	if opts.DB == nil {
		return nil, errors.New("DB is required")
	}
	if opts.Path == "" {
		return nil, errors.New("lock path is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "process_lock")
	}
	return &Lock{db: opts.DB, path: opts.Path, logger: logger}, nil
}

// Acquire takes both locks without blocking. ErrHeldElsewhere means another
// process owns the scheduler and this one should skip starting it. An
// advisory lock failure for infrastructure reasons is logged and tolerated;
// the file lock alone still protects the common single-host deployment.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := l.acquireFile(); err != nil {
		return err
	}

	if err := l.acquireAdvisory(ctx); err != nil {
		if errors.Is(err, ErrHeldElsewhere) {
			l.releaseFile()
			return err
		}
		if l.logger != nil {
			l.logger.Warn("advisory lock unavailable, proceeding on file lock only",
				"error", err)
		}
	}
	return nil
}

func (l *Lock) acquireFile() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file %s: %w", l.path, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrHeldElsewhere
		}
		return fmt.Errorf("flock %s: %w", l.path, err)
	}

	// Leave the pid behind for operators inspecting the lock file.
	_ = file.Truncate(0)
	_, _ = fmt.Fprintf(file, "%d\n", os.Getpid())

	l.file = file
	return nil
}

// acquireAdvisory takes the session-scoped advisory lock on a dedicated
// pooled connection, which must stay open for as long as the lock is held.
func (l *Lock) acquireAdvisory(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn for advisory lock: %w", err)
	}

	var acquired bool
	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1, $2)`,
		advisoryKeyMajor, advisoryKeyMinor).Scan(&acquired)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		_ = conn.Close()
		return ErrHeldElsewhere
	}

	l.conn = conn
	return nil
}

// Release drops both locks. Safe to call on a partially acquired lock.
func (l *Lock) Release(ctx context.Context) {
	if l.conn != nil {
		_, err := l.conn.ExecContext(ctx,
			`SELECT pg_advisory_unlock($1, $2)`, advisoryKeyMajor, advisoryKeyMinor)
		if err != nil && l.logger != nil {
			l.logger.Warn("advisory unlock failed", "error", err)
		}
		_ = l.conn.Close()
		l.conn = nil
	}
	l.releaseFile()
}

func (l *Lock) releaseFile() {
	if l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil && l.logger != nil {
		l.logger.Warn("flock release failed", "error", err)
	}
	_ = l.file.Close()
	l.file = nil
}
