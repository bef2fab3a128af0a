package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// Output targets.
const (
	TargetStdout = "-"
	TargetAuto   = "auto"
)

// ErrOutputLocked means another process holds the output file.
var ErrOutputLocked = errors.New("output file is locked by another process")

// CacheDir returns $HOME/.cache, where auto outputs and side channels live.
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".cache"), nil
}

// Output is an open sample stream.
type Output struct {
	*Writer
	Path string
	file *os.File
}

// OpenOutput resolves target to a stream: "-" writes to stdout, "auto" to
// $HOME/.cache/<prefix>, anything else is a file path. Files are opened for
// append under an exclusive advisory lock.
func OpenOutput(target, prefix string, format Format, stdout io.Writer) (*Output, error) {
	if target == "" || target == TargetStdout {
		return &Output{Writer: NewWriter(stdout, format), Path: TargetStdout}, nil
	}

	path := target
	if target == TargetAuto {
		dir, err := CacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, prefix)
	}

	f, err := openLocked(path)
	if err != nil {
		return nil, err
	}
	return &Output{Writer: NewWriter(f, format), Path: path, file: f}, nil
}

// Close releases the lock and closes the file. Closing stdout is a no-op.
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

func openLocked(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	if err := flock(f, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrOutputLocked, path)
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return f, nil
}

func flock(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if !errors.Is(err, syscall.EINTR) {
			return err
		}
	}
}

// Files appends side-channel lines to <Dir>/<Prefix>_<suffix>.
type Files struct {
	Dir    string
	Prefix string
}

// Path returns the file a suffix maps to.
func (f Files) Path(suffix string) string {
	return filepath.Join(f.Dir, f.Prefix+"_"+suffix)
}

// Append writes line and a newline. The file is opened, locked and closed
// on every call since side channels are written rarely.
func (f Files) Append(suffix, line string) error {
	path := f.Path(suffix)
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := flock(file, unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock %s: %w", path, err)
	}
	defer flock(file, unix.LOCK_UN)

	_, err = io.WriteString(file, line+"\n")
	return err
}
