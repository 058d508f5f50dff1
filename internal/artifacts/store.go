// Package artifacts lays out the files produced for a generation on disk and
// optionally mirrors them to object storage.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/extractor"
	"github.com/tildaslashalef/unitforge/internal/loggy"
	"github.com/tildaslashalef/unitforge/internal/ulid"
)

var (
	// ErrNotFound is returned for missing generation directories or files
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidPath is returned for ids or paths that would escape the artifact root
	ErrInvalidPath = errors.New("invalid artifact path")
)

// Directory and file names inside a generation directory
const (
	ScriptsDir   = "test_scripts"
	ResultsDir   = "test_results"
	ReportDir    = "coverage_report"
	ScriptFile   = "test_script.c"
	RunnerFile   = "test_runner.c"
	MakefileName = "Makefile"
)

// File describes one stored artifact
type File struct {
	Path    string    `json:"path"` // Slash separated, relative to the generation directory
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Mirror receives a copy of every written artifact
type Mirror interface {
	Upload(ctx context.Context, name string, r io.Reader, contentType string) error
}

// Store writes and reads artifacts below a root directory
type Store struct {
	root   string
	mirror Mirror
	logger *loggy.Logger
}

// NewStore creates root if needed. mirror may be nil.
func NewStore(root string, mirror Mirror, logger *loggy.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &Store{root: root, mirror: mirror, logger: logger}, nil
}

// Root returns the artifact root directory
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory for a generation id without creating it
func (s *Store) Dir(id string) (string, error) {
	if !ulid.ValidateWithPrefix(id, ulid.PrefixGeneration) {
		return "", fmt.Errorf("%w: generation id %q", ErrInvalidPath, id)
	}
	return filepath.Join(s.root, id), nil
}

// ScriptsPath returns the test_scripts directory of a generation
func (s *Store) ScriptsPath(id string) (string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ScriptsDir), nil
}

// ReportPath returns where the coverage HTML report of a generation goes
func (s *Store) ReportPath(id string) (string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ResultsDir, ReportDir), nil
}

// Remove deletes the local directory of a generation. Mirrored copies are left alone.
func (s *Store) Remove(id string) error {
	dir, err := s.Dir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing artifacts of %s: %w", id, err)
	}
	return nil
}

// WriteScripts writes the test script, runner, Makefile and one test_NNN.c per
// distinct per-case test code that differs from the shared script.
func (s *Store) WriteScripts(ctx context.Context, id string, result extractor.ExtractionResult) ([]File, error) {
	dir, err := s.ScriptsPath(id)
	if err != nil {
		return nil, err
	}

	script := result.TestScript()
	contents := []struct {
		name string
		data string
	}{
		{ScriptFile, script},
		{RunnerFile, result.TestRunnerScript},
		{MakefileName, result.MakefileContent},
	}

	seen := map[string]bool{script: true, "": true}
	n := 0
	for _, tc := range result.TestCases {
		if seen[tc.TestCode] {
			continue
		}
		seen[tc.TestCode] = true
		n++
		contents = append(contents, struct {
			name string
			data string
		}{fmt.Sprintf("test_%03d.c", n), tc.TestCode})
	}

	files := make([]File, 0, len(contents))
	for _, c := range contents {
		f, err := s.write(ctx, id, filepath.Join(dir, c.name), []byte(c.data), "text/plain; charset=utf-8")
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	s.logger.Info("Wrote test scripts", "generation_id", id, "files", len(files))
	return files, nil
}

// WriteResults writes test_cases.csv and test_cases.xlsx
func (s *Store) WriteResults(ctx context.Context, id string, cases []extractor.TestCase) ([]File, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}

	var files []File
	for _, format := range []export.Format{export.FormatCSV, export.FormatXLSX} {
		var buf bytes.Buffer
		if err := export.Write(&buf, format, cases); err != nil {
			return nil, fmt.Errorf("rendering %s: %w", format, err)
		}
		f, err := s.write(ctx, id, filepath.Join(dir, ResultsDir, format.Filename()), buf.Bytes(), format.ContentType())
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// MirrorTree uploads every file below rel, such as a coverage report written by the runner
func (s *Store) MirrorTree(ctx context.Context, id, rel string) error {
	if s.mirror == nil {
		return nil
	}
	root, err := s.Resolve(id, rel)
	if err != nil {
		return err
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		s.mirrorFile(ctx, id, path, data, contentTypeFor(path))
		return nil
	})
}

// List returns every file of a generation, sorted by path
func (s *Store) List(id string) ([]File, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	files := []File{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Resolve maps a slash separated path inside a generation to a filesystem path.
// Absolute paths and paths leaving the generation directory are rejected.
func (s *Store) Resolve(id, rel string) (string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return "", err
	}

	rel = strings.TrimPrefix(rel, "/")
	if rel == "" || strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(dir, clean), nil
}

// Open opens a stored file for reading
func (s *Store) Open(id, rel string) (*os.File, fs.FileInfo, error) {
	path, err := s.Resolve(id, rel)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, rel)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening artifact: %w", err)
	}
	return f, info, nil
}

func (s *Store) write(ctx context.Context, id, path string, data []byte, contentType string) (File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return File{}, fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return File{}, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}

	s.mirrorFile(ctx, id, path, data, contentType)

	dir, _ := s.Dir(id)
	rel, _ := filepath.Rel(dir, path)
	return File{Path: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()}, nil
}

// mirrorFile copies one file to the mirror. Mirror failures are logged, never returned.
func (s *Store) mirrorFile(ctx context.Context, id, path string, data []byte, contentType string) {
	if s.mirror == nil {
		return
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return
	}
	name := filepath.ToSlash(rel)
	if err := s.mirror.Upload(ctx, name, bytes.NewReader(data), contentType); err != nil {
		s.logger.Warn("Artifact mirror upload failed", "generation_id", id, "object", name, "error", err)
	}
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".png":
		return "image/png"
	case ".csv":
		return export.FormatCSV.ContentType()
	case ".xlsx":
		return export.FormatXLSX.ContentType()
	default:
		return "text/plain; charset=utf-8"
	}
}
