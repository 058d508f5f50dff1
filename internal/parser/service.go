package parser

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tildaslashalef/unitforge/internal/loggy"
)

var (
	// ErrDuplicateFile is returned when two uploads share a base name
	ErrDuplicateFile = errors.New("duplicate file name")

	// ErrFileTooLarge is returned when an upload exceeds the per-file limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoFiles is returned when an upload batch is empty
	ErrNoFiles = errors.New("no files uploaded")
)

// DefaultMaxFileBytes is the per-file cap applied when none is configured
const DefaultMaxFileBytes = 2 << 20

// Upload is one named input stream, such as a multipart part or a local file
type Upload struct {
	Name   string
	Reader io.Reader
}

// Service turns raw uploads into classified source files
type Service struct {
	logger           *loggy.Logger
	languageDetector *LanguageDetector
	maxFileBytes     int64
}

// NewService creates a new parser service
func NewService(logger *loggy.Logger, maxFileBytes int64) *Service {
	if maxFileBytes <= 0 {
		maxFileBytes = DefaultMaxFileBytes
	}
	return &Service{
		logger:           logger,
		languageDetector: NewLanguageDetector(logger),
		maxFileBytes:     maxFileBytes,
	}
}

// ReadUploads reads and classifies every upload, keeping input order.
// The first failing file aborts the batch.
func (s *Service) ReadUploads(uploads []Upload) ([]SourceFile, error) {
	if len(uploads) == 0 {
		return nil, ErrNoFiles
	}

	files := make([]SourceFile, 0, len(uploads))
	seen := make(map[string]bool, len(uploads))
	for _, u := range uploads {
		data, err := io.ReadAll(io.LimitReader(u.Reader, s.maxFileBytes+1))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", u.Name, err)
		}
		if int64(len(data)) > s.maxFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, u.Name, s.maxFileBytes)
		}

		f, err := s.languageDetector.Classify(u.Name, data)
		if err != nil {
			return nil, err
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFile, f.Name)
		}
		seen[f.Name] = true

		s.logger.Debug("Accepted upload", "file", f.Name, "kind", f.Kind, "language", f.Language, "size", f.Size)
		files = append(files, f)
	}
	return files, nil
}

// ReadPaths reads local files, used by the CLI
func (s *Service) ReadPaths(paths []string) ([]SourceFile, error) {
	uploads := make([]Upload, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll(uploads)
			return nil, fmt.Errorf("opening %s: %w", p, err)
		}
		uploads = append(uploads, Upload{Name: p, Reader: f})
	}
	defer closeAll(uploads)

	return s.ReadUploads(uploads)
}

func closeAll(uploads []Upload) {
	for _, u := range uploads {
		if c, ok := u.Reader.(io.Closer); ok {
			c.Close()
		}
	}
}
