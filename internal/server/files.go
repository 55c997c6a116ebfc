package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/fabworks/fabops/backend/internal/evidence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleServeFile streams a previously generated evidence artifact after
// the full validation chain: path safety, existence, minimum size, and a
// supported extension, each a hard rejection in that order.
func (h *httpHandler) handleServeFile(c *gin.Context) {
	h.streamArtifact(c, c.Param("filename"))
}

func (h *httpHandler) streamArtifact(c *gin.Context, filename string) {
	path, err := h.store.Resolve(filename)
	if err != nil {
		h.logger.Warn("unsafe evidence filename rejected", zap.String("filename", filename), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_filename"})
		return
	}

	info, err := h.store.Verify(path)
	if err != nil {
		switch {
		case errors.Is(err, evidence.ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file_not_found"})
		case errors.Is(err, evidence.ErrFileCorrupt):
			h.logger.Error("corrupt evidence artifact", zap.String("filename", filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "file_corrupt_or_empty"})
		case errors.Is(err, evidence.ErrUnsupportedFileType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_file_type"})
		default:
			h.logger.Error("evidence artifact stat failed", zap.String("filename", filename), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "file_unavailable"})
		}
		return
	}

	name := filepath.Base(path)
	c.Header("Content-Type", evidence.ContentType(path))
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Header("Content-Disposition", evidence.Disposition(path, name))
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	// Headers are committed once streaming starts; transfer errors past
	// this point can only be logged.
	c.File(path)
}
