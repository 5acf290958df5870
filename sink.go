package gdpull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/shogo82148/go-retry"
)

// Sink is the destination files are written to.
type Sink interface {
	// Prepare makes the destination ready. It is called once per pull,
	// before any Drive API call.
	Prepare(ctx context.Context) error
	// Write stores body under name. A failed or interrupted write never
	// leaves a complete-looking object under name.
	Write(ctx context.Context, name string, body io.Reader, contentType string) (*WriteResult, error)
	// Verify reports a *WriteVerificationError when name is missing.
	Verify(ctx context.Context, name string) error
	// Release undoes what Prepare acquired.
	Release() error
	// String returns a human readable location of the destination.
	String() string
}

// WriteResult contains the result of a Sink write.
type WriteResult struct {
	Location string
	Size     int64
}

const (
	lockFileName   = ".gdpull.lock"
	partialPattern = ".gdpull-*.partial"
)

// LocalSink writes files into a local directory.
type LocalSink struct {
	dir        string
	lock       *flock.Flock
	lockPolicy retry.Policy
}

// NewLocalSink creates a LocalSink for dir. Nothing touches the disk until Prepare.
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{
		dir: filepath.Clean(dir),
		lockPolicy: retry.Policy{
			MinDelay: 100 * time.Millisecond,
			MaxDelay: 1 * time.Second,
			MaxCount: 10,
			Jitter:   35 * time.Millisecond,
		},
	}
}

func (s *LocalSink) String() string {
	return s.dir
}

// Prepare creates the parent directory and the destination directory, then
// takes the destination lock.
func (s *LocalSink) Prepare(ctx context.Context) error {
	if abs, err := filepath.Abs(s.dir); err == nil {
		slog.DebugContext(ctx, "prepare local destination", "path", s.dir, "abs_path", abs)
	}
	if parent := filepath.Dir(s.dir); parent != "" {
		if _, err := os.Stat(parent); errors.Is(err, fs.ErrNotExist) {
			slog.InfoContext(ctx, "parent directory does not exist, creating", "path", parent)
		}
		if err := os.MkdirAll(parent, 0755); err != nil {
			return &DestinationError{Path: parent, Err: fmt.Errorf("create parent directory: %w", err)}
		}
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &DestinationError{Path: s.dir, Err: fmt.Errorf("create directory: %w", err)}
	}
	if err := s.acquire(ctx); err != nil {
		return &DestinationError{Path: s.dir, Err: err}
	}
	slog.InfoContext(ctx, "target directory ready", "path", s.dir)
	return nil
}

func (s *LocalSink) acquire(ctx context.Context) error {
	lockFile := filepath.Join(s.dir, lockFileName)
	s.lock = flock.New(lockFile)
	retrier := s.lockPolicy.Start(ctx)
	var err error
	var locked bool
	for retrier.Continue() {
		slog.DebugContext(ctx, "try destination lock", "lock_file", lockFile)
		locked, err = s.lock.TryLock()
		if err != nil {
			slog.DebugContext(ctx, "get destination lock failed", "error", err)
			continue
		}
		if locked {
			slog.DebugContext(ctx, "get destination lock success")
			return nil
		}
	}
	if err == nil {
		err = errors.New("locked by another process")
	}
	return fmt.Errorf("cannot get lock %s: %w", lockFile, err)
}

// Release releases the destination lock. The lock file itself is left in place.
func (s *LocalSink) Release() error {
	if s.lock == nil {
		return nil
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", s.lock.Path(), err)
	}
	return nil
}

// Path returns the local path of name.
func (s *LocalSink) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Write streams body into a uniquely named partial file and renames it over name.
func (s *LocalSink) Write(ctx context.Context, name string, body io.Reader, _ string) (*WriteResult, error) {
	target := s.Path(name)
	fp, err := os.CreateTemp(s.dir, partialPattern)
	if err != nil {
		return nil, fmt.Errorf("create partial file for %s: %w", target, err)
	}
	partial := fp.Name()
	n, err := io.Copy(fp, body)
	if err != nil {
		fp.Close()
		os.Remove(partial)
		return nil, fmt.Errorf("write %s: %w", partial, err)
	}
	if err := fp.Chmod(0644); err != nil {
		fp.Close()
		os.Remove(partial)
		return nil, fmt.Errorf("chmod %s: %w", partial, err)
	}
	if err := fp.Close(); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("close %s: %w", partial, err)
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return nil, fmt.Errorf("rename %s: %w", partial, err)
	}
	slog.DebugContext(ctx, "file written", "path", target, "size", n)
	return &WriteResult{Location: target, Size: n}, nil
}

// Verify checks that name exists as a regular file.
func (s *LocalSink) Verify(_ context.Context, name string) error {
	target := s.Path(name)
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return &WriteVerificationError{Path: target}
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", target)
	}
	return nil
}
