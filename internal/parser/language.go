// Package parser classifies uploaded files as C or C++ sources and headers
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"github.com/tildaslashalef/unitforge/internal/loggy"
)

var (
	// ErrUnsupportedFile is returned for files that are not C or C++ sources or headers
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrEmptyFile is returned for zero-length uploads
	ErrEmptyFile = errors.New("file is empty")
)

// Language names reported for accepted files
const (
	LanguageC   = "C"
	LanguageCPP = "C++"
)

// Kind tells implementation files from headers
type Kind string

const (
	KindSource Kind = "source"
	KindHeader Kind = "header"
)

// SourceFile is one accepted upload
type SourceFile struct {
	Name     string `json:"name"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
	Kind     Kind   `json:"kind"`
	Language string `json:"language"`
}

type extInfo struct {
	kind     Kind
	language string
}

// langFilePatterns maps accepted extensions to their kind and default language
var langFilePatterns = map[string]extInfo{
	".c":   {KindSource, LanguageC},
	".h":   {KindHeader, LanguageC},
	".cpp": {KindSource, LanguageCPP},
	".cc":  {KindSource, LanguageCPP},
	".cxx": {KindSource, LanguageCPP},
	".hpp": {KindHeader, LanguageCPP},
	".hh":  {KindHeader, LanguageCPP},
	".hxx": {KindHeader, LanguageCPP},
}

// SupportedExtensions returns the accepted extensions, sorted
func SupportedExtensions() []string {
	exts := make([]string, 0, len(langFilePatterns))
	for ext := range langFilePatterns {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// LanguageDetector detects the language of uploaded files
type LanguageDetector struct {
	logger *loggy.Logger
}

// NewLanguageDetector creates a new language detector
func NewLanguageDetector(logger *loggy.Logger) *LanguageDetector {
	return &LanguageDetector{
		logger: logger,
	}
}

// Classify validates one upload and returns it as a SourceFile.
// The name is reduced to its base name so callers never see client paths.
func (d *LanguageDetector) Classify(name string, content []byte) (SourceFile, error) {
	// Browsers on Windows may send backslash separated paths
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return SourceFile{}, fmt.Errorf("%w: missing file name", ErrUnsupportedFile)
	}

	info, ok := langFilePatterns[strings.ToLower(filepath.Ext(base))]
	if !ok {
		return SourceFile{}, fmt.Errorf("%w: %s (accepted: %s)", ErrUnsupportedFile, base, strings.Join(SupportedExtensions(), " "))
	}
	if len(content) == 0 {
		return SourceFile{}, fmt.Errorf("%w: %s", ErrEmptyFile, base)
	}
	if enry.IsBinary(content) || !utf8.Valid(content) {
		return SourceFile{}, fmt.Errorf("%w: %s is not a text file", ErrUnsupportedFile, base)
	}

	return SourceFile{
		Name:     base,
		Content:  string(content),
		Size:     len(content),
		Kind:     info.kind,
		Language: d.detectLanguage(base, content, info.language),
	}, nil
}

// detectLanguage asks enry and keeps its answer only when it is C or C++.
// Headers are ambiguous to enry, which may report Objective-C for a .h file.
func (d *LanguageDetector) detectLanguage(name string, content []byte, fallback string) string {
	language := enry.GetLanguage(name, content)
	switch language {
	case LanguageC, LanguageCPP:
		return language
	default:
		d.logger.Debug("Falling back to extension language", "file", name, "detected", language, "language", fallback)
		return fallback
	}
}

// IsHeader reports whether name has a header extension
func IsHeader(name string) bool {
	info, ok := langFilePatterns[strings.ToLower(filepath.Ext(name))]
	return ok && info.kind == KindHeader
}

// Split partitions files by kind, preserving order
func Split(files []SourceFile) (sources, headers []SourceFile) {
	for _, f := range files {
		if f.Kind == KindHeader {
			headers = append(headers, f)
			continue
		}
		sources = append(sources, f)
	}
	return sources, headers
}
