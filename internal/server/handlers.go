package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/jobs"
	"github.com/joseph-ayodele/docufill/internal/repository"
)

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := repository.HealthCheck(ctx, s.db); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleSubmit accepts a multipart submission: the document under "file",
// the target schema JSON under "target_schema", an optional "category"
// hint and an optional form template JSON under "template".
func (s *Server) handleSubmit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		s.badRequest(c, "missing file part")
		return
	}
	format := constants.MapExtToFormat(filepath.Ext(fileHeader.Filename))
	if format == "" {
		s.badRequest(c, "unsupported file extension: "+filepath.Ext(fileHeader.Filename))
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		s.internalError(c, err)
		return
	}
	defer f.Close()
	doc, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	if err != nil {
		s.internalError(c, err)
		return
	}
	if int64(len(doc)) > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": true, "message": "document exceeds upload limit"})
		return
	}

	target := []byte(c.PostForm("target_schema"))
	if len(target) == 0 {
		s.badRequest(c, "missing target_schema")
		return
	}
	var template []byte
	if t := c.PostForm("template"); t != "" {
		template = []byte(t)
	}

	resp, err := s.jobs.Submit(c.Request.Context(), jobs.SubmitRequest{
		Document: doc,
		Format:   format,
		Category: constants.Category(c.PostForm("category")),
		Target:   target,
		Template: template,
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidInput) {
			s.badRequest(c, err.Error())
			return
		}
		s.internalError(c, err)
		return
	}

	status := http.StatusAccepted
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (s *Server) handleGetResult(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	res, err := s.jobs.GetResult(c.Request.Context(), id)
	if err != nil {
		s.notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleGetAudit(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	entries, err := s.jobs.GetAudit(c.Request.Context(), id)
	if err != nil {
		s.notFoundOrInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "events": entries})
}

// handleGetArtifact streams the filled form workbook.
func (s *Server) handleGetArtifact(c *gin.Context) {
	id, ok := s.jobID(c)
	if !ok {
		return
	}
	res, err := s.jobs.GetResult(c.Request.Context(), id)
	if err != nil {
		s.notFoundOrInternal(c, err)
		return
	}
	if len(res.Artifact) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "job has no filled form artifact"})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+id.String()+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", res.Artifact)
}

func (s *Server) handleGetProfile(c *gin.Context) {
	cat, _ := constants.Canonicalize(c.Param("category"))
	fields, err := s.profiles.Recall(c.Request.Context(), cat)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": cat, "fields": fields})
}

func (s *Server) jobID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.badRequest(c, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": message})
}

func (s *Server) notFoundOrInternal(c *gin.Context, err error) {
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "job not found"})
		return
	}
	s.internalError(c, err)
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("http.handler.error",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "internal error"})
}
