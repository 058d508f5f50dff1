package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tildaslashalef/unitforge/internal/export"
	"github.com/tildaslashalef/unitforge/internal/generation"
	"github.com/tildaslashalef/unitforge/internal/parser"
	"github.com/tildaslashalef/unitforge/internal/runner"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// upload classifies multipart files sent under the "files" field
func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			abortWithError(c, err)
			return
		}
		abortWithError(c, fmt.Errorf("%w: expected multipart form with files: %w", errValidation, err))
		return
	}

	headers := form.File["files"]
	uploads := make([]parser.Upload, 0, len(headers))
	defer func() {
		for _, u := range uploads {
			if closer, ok := u.Reader.(io.Closer); ok {
				closer.Close()
			}
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			abortWithError(c, fmt.Errorf("opening %s: %w", fh.Filename, err))
			return
		}
		uploads = append(uploads, parser.Upload{Name: fh.Filename, Reader: f})
	}

	files, err := s.uploads.ReadUploads(uploads)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]UploadedFile, len(files))
	for i, f := range files {
		out[i] = UploadedFile{
			Filename: f.Name,
			Content:  f.Content,
			Size:     f.Size,
			Kind:     string(f.Kind),
			Language: f.Language,
		}
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

func (s *Server) generate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			abortWithError(c, err)
			return
		}
		abortWithError(c, fmt.Errorf("%w: %w", errValidation, err))
		return
	}
	if err := validateRequest(&req); err != nil {
		abortWithError(c, err)
		return
	}

	uploads := make([]parser.Upload, len(req.Files))
	for i, f := range req.Files {
		uploads[i] = parser.Upload{Name: f.Filename, Reader: strings.NewReader(f.Content)}
	}
	files, err := s.uploads.ReadUploads(uploads)
	if err != nil {
		abortWithError(c, err)
		return
	}

	gen, err := s.generations.Generate(c.Request.Context(), files, req.Model)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gen)
}

func (s *Server) listGenerations(c *gin.Context) {
	limit, err := queryInt(c, "limit", generation.DefaultListLimit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		abortWithError(c, err)
		return
	}

	gens, err := s.generations.List(c.Request.Context(), limit, offset)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generations": gens, "count": len(gens)})
}

func (s *Server) getGeneration(c *gin.Context) {
	gen, err := s.generations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gen)
}

func (s *Server) exportGeneration(c *gin.Context) {
	format, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	// Rendered into memory so a failure can still produce a JSON error
	var buf bytes.Buffer
	if err := s.generations.Export(c.Request.Context(), c.Param("id"), format, &buf); err != nil {
		abortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(format.Filename()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) writeScripts(c *gin.Context) {
	files, err := s.generations.WriteScripts(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) runTests(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, fmt.Errorf("%w: %w", errValidation, err))
			return
		}
	}
	if err := validateRequest(&req); err != nil {
		abortWithError(c, err)
		return
	}

	opts := generation.RunOptions{
		Timeout:  time.Duration(req.TimeoutSeconds) * time.Second,
		Coverage: req.Coverage == nil || *req.Coverage,
	}

	run, err := s.generations.Run(c.Request.Context(), c.Param("id"), opts)
	if errors.Is(err, runner.ErrTimeout) && run != nil {
		c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
			"error":      err.Error(),
			"request_id": c.GetString(requestIDKey),
			"run":        run,
		})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) listRuns(c *gin.Context) {
	runs, err := s.generations.Runs(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) listFiles(c *gin.Context) {
	files, err := s.generations.Files(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (s *Server) downloadFile(c *gin.Context) {
	rel := c.Param("path")
	f, info, err := s.generations.OpenFile(c.Request.Context(), c.Param("id"), rel)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(path.Ext(rel))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, f, map[string]string{
		"Content-Disposition": attachment(path.Base(rel)),
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errValidation, key)
	}
	return n, nil
}

func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
