package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/domain"
	"github.com/fabworks/fabops/backend/internal/evidence"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleQuoteHistory(c *gin.Context) {
	h.respondEntityHistory(c, domain.EntityQuote)
}

func (h *httpHandler) handleOrderHistory(c *gin.Context) {
	h.respondEntityHistory(c, domain.EntityOrder)
}

func (h *httpHandler) handleJobHistory(c *gin.Context) {
	h.respondEntityHistory(c, domain.EntityJob)
}

func (h *httpHandler) respondEntityHistory(c *gin.Context, entityType domain.EntityType) {
	entityID := strings.TrimSpace(c.Param("id"))
	if entityID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	entries, err := h.auditService.EntityHistory(c.Request.Context(), entityType, entityID)
	if err != nil {
		h.logger.Error("entity history lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history_failed", "code": serviceErrorCode(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entityType": entityType, "entityId": entityID, "history": entries})
}

func (h *httpHandler) handleCompleteHistory(c *gin.Context) {
	ids := audit.EntityIDs{
		QuoteID: strings.TrimSpace(c.Query("quoteId")),
		OrderID: strings.TrimSpace(c.Query("orderId")),
		JobID:   strings.TrimSpace(c.Query("jobId")),
	}
	if ids.QuoteID == "" && ids.OrderID == "" && ids.JobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	c.JSON(http.StatusOK, h.auditService.CompleteHistory(c.Request.Context(), ids))
}

type evidencePackageRequest struct {
	EntityType string `json:"entityType" form:"entityType"`
	EntityID   string `json:"entityId" form:"entityId"`
	Format     string `json:"format" form:"format"`
}

func (h *httpHandler) handleEvidencePackage(c *gin.Context) {
	var request evidencePackageRequest
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	} else {
		request.EntityType = c.Query("entityType")
		request.EntityID = c.Query("entityId")
		request.Format = c.Query("format")
	}

	ids, ok := entityIDsFor(request.EntityType, request.EntityID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Format == "" {
		request.Format = string(evidence.FormatPDF)
	}
	format, err := evidence.ParseFormat(request.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_format"})
		return
	}

	filename, pkg, err := h.evidence.Export(c.Request.Context(), ids, format, c.GetString(actorIDContextKey))
	if err != nil {
		h.logger.Error("evidence export failed", zap.Error(err))
		if errors.Is(err, evidence.ErrHashGeneration) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "integrity_error"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"downloadUrl": "/audit/files/" + filename,
		"format":      format,
		"generatedAt": pkg.Metadata.GeneratedAt,
	})
}

// handleDirectDownload generates a PDF evidence package and streams it in
// one request, without the intermediate download URL.
func (h *httpHandler) handleDirectDownload(c *gin.Context) {
	ids, ok := entityIDsFor(c.Param("entityType"), c.Param("entityId"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	filename, _, err := h.evidence.Export(c.Request.Context(), ids, evidence.FormatPDF, c.GetString(actorIDContextKey))
	if err != nil {
		h.logger.Error("direct evidence download failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}

	h.streamArtifact(c, filename)
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	filter := audit.SearchFilter{
		EntityID:  strings.TrimSpace(c.Query("entityId")),
		ChangedBy: strings.TrimSpace(c.Query("changedBy")),
	}
	if value := strings.TrimSpace(c.Query("entityType")); value != "" {
		entityType, ok := parseEntityType(value)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entity_type"})
			return
		}
		filter.EntityType = entityType
	}
	if value := strings.TrimSpace(c.Query("changeType")); value != "" {
		filter.ChangeType = domain.ChangeType(strings.ToUpper(value))
	}

	var ok bool
	if filter.DateFrom, ok = parseDateParam(c.Query("dateFrom")); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}
	if filter.DateTo, ok = parseDateParam(c.Query("dateTo")); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_date"})
		return
	}

	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))

	result, err := h.auditService.Search(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("history search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed", "code": serviceErrorCode(err)})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleStatistics(c *gin.Context) {
	stats, err := h.auditService.Statistics(c.Request.Context())
	if err != nil {
		h.logger.Error("statistics aggregation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "statistics_failed", "code": serviceErrorCode(err)})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func entityIDsFor(entityTypeValue, entityID string) (audit.EntityIDs, bool) {
	entityID = strings.TrimSpace(entityID)
	entityType, ok := parseEntityType(entityTypeValue)
	if !ok || entityID == "" {
		return audit.EntityIDs{}, false
	}
	switch entityType {
	case domain.EntityQuote:
		return audit.EntityIDs{QuoteID: entityID}, true
	case domain.EntityOrder:
		return audit.EntityIDs{OrderID: entityID}, true
	default:
		return audit.EntityIDs{JobID: entityID}, true
	}
}

func parseEntityType(value string) (domain.EntityType, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(domain.EntityQuote):
		return domain.EntityQuote, true
	case string(domain.EntityOrder):
		return domain.EntityOrder, true
	case string(domain.EntityJob):
		return domain.EntityJob, true
	default:
		return "", false
	}
}

// parseDateParam accepts RFC 3339 timestamps or plain dates.
func parseDateParam(value string) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return &parsed, true
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return &parsed, true
	}
	return nil, false
}
