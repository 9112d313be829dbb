package server

import (
	_ "embed"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mgpai22/vaani/internal/audio"
	"github.com/mgpai22/vaani/internal/pipeline"
	"github.com/mgpai22/vaani/internal/subtitle"
)

//go:embed static/index.html
var indexHTML []byte

// runView is the JSON shape of a run.
type runView struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	*pipeline.Report
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "runs": s.runs.len()})
}

func (s *Server) handleCreateRun(c *gin.Context) {
	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	file, err := c.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"audio\" is required"})
		return
	}

	if !audio.IsMediaFile(file.Filename) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{
			"error": "unsupported file type: " + filepath.Ext(file.Filename),
		})
		return
	}

	rep, err := s.runner.NewRun()
	if err != nil {
		s.logger.Errorw("Failed to create run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create run"})
		return
	}

	input := filepath.Join(rep.WorkDir, "input"+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, input); err != nil {
		s.removeWorkDir(rep.WorkDir)
		s.logger.Errorw("Failed to save upload", "run_id", rep.RunID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	s.logger.Infow("Run accepted",
		"run_id", rep.RunID,
		"filename", file.Filename,
		"size", file.Size,
	)
	s.start(rep, input)

	c.JSON(http.StatusAccepted, gin.H{"run_id": rep.RunID, "status": stateRunning})
}

func (s *Server) handleGetRun(c *gin.Context) {
	rep, state, runErr, ok := s.runs.snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, runView{Status: state, Error: runErr, Report: rep})
}

func (s *Server) handleDeleteRun(c *gin.Context) {
	e, ok := s.runs.remove(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if e != nil {
		s.removeWorkDir(e.workDir)
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClip(c *gin.Context) {
	rep, _, _, ok := s.runs.snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "clip index must be a number"})
		return
	}

	for _, clip := range rep.Clips {
		if clip.Index == index && clip.Path != "" {
			c.Header("Content-Type", "audio/mpeg")
			c.File(clip.Path)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "clip not found"})
}

func (s *Server) handleCaptions(c *gin.Context) {
	rep, _, _, ok := s.runs.snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	format, err := subtitle.ParseFormat(c.DefaultQuery("format", string(subtitle.FormatVTT)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	style, err := subtitle.ParseCueStyle(c.Query("style"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if rep.Transcript == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "transcript not ready"})
		return
	}

	writer, err := subtitle.NewWriter(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := subtitle.NewDefaultGenerator().Generate(style, rep.Clips, rep.Transcript.Words)
	c.Header("Content-Type", subtitle.ContentType(format))
	c.Header("Content-Disposition", `inline; filename="`+rep.RunID+subtitle.ExtensionFor(format)+`"`)
	c.Status(http.StatusOK)
	if err := writer.Write(c.Writer, sub); err != nil {
		s.logger.Warnw("Failed to write captions", "run_id", rep.RunID, "error", err)
	}
}
