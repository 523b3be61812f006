// Package sandbox confines all generated-project file access to a single root directory.
//
// Every path handed to a Store is interpreted relative to the root and rejected if it
// escapes it. The Store is backed by a go-billy filesystem: the OS in production,
// memfs in tests. The OS filesystem is bound to the root, so symlinks found under
// it are resolved inside the root as well.
//
// A Store holds no locks. It is used from the single pipeline goroutine; parallel
// coding agents would need a per-file mutex around Write.
package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"codegen/pkg/logx"
	"codegen/pkg/metrics"
)

// WrotePrefix prefixes the confirmation returned by Write.
const WrotePrefix = "WROTE:"

const tempPrefix = ".codegen-tmp-"

// Sandbox operation names used for metrics.
const (
	OpResolve = "resolve"
	OpRead    = "read"
	OpWrite   = "write"
	OpList    = "list"
)

// Store is the sandboxed file store rooted at one absolute directory.
type Store struct {
	root     string
	fs       billy.Filesystem
	osBacked bool
	recorder metrics.Recorder
	logger   *logx.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithFilesystem replaces the OS filesystem with fsys, whose root stands for the sandbox root.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(s *Store) {
		s.fs = fsys
		s.osBacked = false
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// New creates a store rooted at root, made absolute and cleaned.
// The directory does not need to exist yet; see EnsureRootExists.
func New(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("sandbox root cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root %s: %w", root, err)
	}
	abs = filepath.Clean(abs)

	s := &Store{
		root:     abs,
		fs:       osfs.New(abs, osfs.WithBoundOS()),
		osBacked: true,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("sandbox"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute sandbox root.
func (s *Store) Root() string {
	return s.root
}

// EnsureRootExists creates the root directory if needed. It is idempotent.
func (s *Store) EnsureRootExists() error {
	if !s.osBacked {
		return nil
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create project root %s: %w", s.root, err)
	}
	return nil
}

// Resolve maps rel to an absolute path inside the root. Absolute inputs and paths
// that escape the root yield *OutOfSandboxError.
func (s *Store) Resolve(rel string) (string, error) {
	abs, err := s.resolve(rel)
	s.record(OpResolve, err)
	return abs, err
}

func (s *Store) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", &OutOfSandboxError{Path: rel, Root: s.root}
	}
	joined := filepath.Clean(filepath.Join(s.root, rel))
	prefix := s.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	if joined != s.root && !strings.HasPrefix(joined, prefix) {
		return "", &OutOfSandboxError{Path: rel, Root: s.root}
	}
	return joined, nil
}

// fsPath converts a resolved absolute path to the slash path the billy filesystem expects.
func (s *Store) fsPath(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." {
		return "."
	}
	return filepath.ToSlash(rel)
}

// Read returns the content of rel. A missing file reads as "".
func (s *Store) Read(rel string) (string, error) {
	content, err := s.read(rel)
	s.record(OpRead, err)
	return content, err
}

func (s *Store) read(rel string) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	name := s.fsPath(abs)

	info, err := s.fs.Stat(name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
		s.logger.Debug("read %s: not found", name)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", abs, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", abs)
	}

	data, err := util.ReadFile(s.fs, name)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", abs, err)
	}
	s.logger.Debug("read %s: %d bytes", name, len(data))
	return string(data), nil
}

// Write replaces the full content of rel, creating parent directories. The content is
// written to a temporary file in the same directory and renamed into place.
// It returns WrotePrefix followed by the absolute path.
func (s *Store) Write(rel, content string) (string, error) {
	abs, err := s.write(rel, content)
	s.record(OpWrite, err)
	if err != nil {
		return "", err
	}
	return WrotePrefix + abs, nil
}

func (s *Store) write(rel, content string) (string, error) {
	abs, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if abs == s.root {
		return "", fmt.Errorf("cannot write to the project root itself")
	}
	name := s.fsPath(abs)
	dir := path.Dir(name)

	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory for %s: %w", abs, err)
		}
	}

	tmp, err := util.TempFile(s.fs, dir, tempPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", abs, err)
	}
	// Bound filesystems report the temp file by its OS path; go back to a root-relative name.
	tmpName := path.Join(dir, path.Base(filepath.ToSlash(tmp.Name())))

	if _, err := tmp.Write([]byte(content)); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to write %s: %w", abs, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file for %s: %w", abs, err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		_ = s.fs.Remove(tmpName)
		return "", fmt.Errorf("failed to replace %s: %w", abs, err)
	}

	s.logger.Debug("wrote %s: %d bytes", name, len(content))
	return abs, nil
}

// List returns every regular file under dir as root-relative slash paths, sorted.
// A missing or non-directory dir yields *NotADirectoryError.
func (s *Store) List(dir string) ([]string, error) {
	files, err := s.list(dir)
	s.record(OpList, err)
	return files, err
}

func (s *Store) list(dir string) ([]string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	name := s.fsPath(abs)

	if name != "." {
		info, err := s.fs.Stat(name)
		if err != nil || !info.IsDir() {
			return nil, &NotADirectoryError{Path: abs}
		}
	} else if s.osBacked {
		info, err := os.Stat(s.root)
		if err != nil || !info.IsDir() {
			return nil, &NotADirectoryError{Path: abs}
		}
	}

	var files []string
	walkErr := util.Walk(s.fs, name, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(path.Base(p), tempPrefix) {
			return nil
		}
		files = append(files, path.Clean(filepath.ToSlash(p)))
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to list %s: %w", abs, walkErr)
	}

	sort.Strings(files)
	s.logger.Debug("list %s: %d files", name, len(files))
	return files, nil
}

func (s *Store) record(op string, err error) {
	result := metrics.StatusSuccess
	if err != nil {
		result = metrics.StatusError
	}
	s.recorder.IncSandboxOp(op, result)
}
