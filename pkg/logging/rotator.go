// Package logging provides the log file pipeline: a daily rotating writer,
// a slog handler that writes the `[date][time]: message` line format, an
// in-memory ring of recent records and a fan-out handler.
package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const dateLayout = "2006-01-02"

// ErrRotatorClosed is returned by writes after Close.
var ErrRotatorClosed = errors.New("log rotator is closed")

// RotatorOptions tunes a Rotator.
type RotatorOptions struct {
	// MaxAgeDays removes rotated files older than this many days. Zero keeps everything.
	MaxAgeDays int
	UTC        bool
	Now        func() time.Time
}

// Rotator is an io.Writer that appends to a fixed active file and moves it
// aside once per day. The rotated file is compressed to <base>-<date>.log.gz.
type Rotator struct {
	path       string
	dir        string
	base       string
	maxAgeDays int
	utc        bool
	now        func() time.Time

	mu     sync.Mutex
	file   *os.File
	day    string
	closed bool
}

// NewRotator opens (or creates) the active log file at path.
func NewRotator(path string, opts RotatorOptions) (*Rotator, error) {
	if path == "" {
		return nil, errors.New("log path is empty")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	r := &Rotator{
		path:       path,
		dir:        dir,
		base:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		maxAgeDays: opts.MaxAgeDays,
		utc:        opts.UTC,
		now:        opts.Now,
	}

	// a file left over from an earlier day is rotated on the first write
	r.day = r.today()
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		r.day = r.dayOf(info.ModTime())
	}
	if err := r.openLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write appends p to the active file, rotating first if the day changed.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrRotatorClosed
	}
	if today := r.today(); today != r.day {
		if err := r.rotateLocked(today); err != nil {
			// keep logging into the current file
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}
	if r.file == nil {
		if err := r.openLocked(); err != nil {
			return 0, err
		}
	}
	return r.file.Write(p)
}

// CurrentFile returns the active log path.
func (r *Rotator) CurrentFile() string {
	return r.path
}

// Close closes the active file. Further writes fail.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// LogFiles lists the active file and every rotated file, sorted by name.
func (r *Rotator) LogFiles() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, r.base+"-*.log*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return append(matches, r.path), nil
}

// CleanupOldLogs removes rotated files last modified more than maxDays ago.
func (r *Rotator) CleanupOldLogs(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("maxDays must be positive, got %d", maxDays)
	}
	cutoff := r.now().AddDate(0, 0, -maxDays)

	files, err := r.LogFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		if f == r.path {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(f); err != nil {
				return fmt.Errorf("remove %s: %w", f, err)
			}
			slog.Debug("Removed old log file", "path", f)
		}
	}
	return nil
}

func (r *Rotator) rotateLocked(today string) error {
	rotated := filepath.Join(r.dir, fmt.Sprintf("%s-%s.log", r.base, r.day))
	closeErr := r.file.Close()
	r.file = nil
	r.day = today

	var renameErr error
	if closeErr == nil {
		renameErr = os.Rename(r.path, rotated)
	}
	if err := r.openLocked(); err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	if renameErr != nil {
		return renameErr
	}
	if err := compressFile(rotated); err != nil {
		return err
	}
	if r.maxAgeDays > 0 {
		return r.CleanupOldLogs(r.maxAgeDays)
	}
	return nil
}

func (r *Rotator) openLocked() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	r.file = f
	return nil
}

func (r *Rotator) today() string {
	return r.dayOf(r.now())
}

func (r *Rotator) dayOf(t time.Time) string {
	if r.utc {
		t = t.UTC()
	}
	return t.Format(dateLayout)
}

// compressFile gzips src to src.gz and removes src.
func compressFile(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(src + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		out.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}
