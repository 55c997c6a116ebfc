package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fabworks/fabops/backend/internal/domain"
	"github.com/fabworks/fabops/backend/internal/quotes"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type quoteItemPayload struct {
	MaterialID  string  `json:"materialId"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

type createQuotePayload struct {
	CustomerID string             `json:"customerId"`
	Items      []quoteItemPayload `json:"items"`
	Notes      string             `json:"notes"`
	TaxRate    float64            `json:"taxRate"`
	ValidUntil *time.Time         `json:"validUntil"`
}

func (h *httpHandler) handleCreateQuote(c *gin.Context) {
	var payload createQuotePayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.CustomerID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	input := quotes.CreateQuoteInput{
		CustomerID: payload.CustomerID,
		Notes:      payload.Notes,
		TaxRate:    payload.TaxRate,
		ValidUntil: payload.ValidUntil,
		CreatedBy:  c.GetString(actorIDContextKey),
		Items:      itemInputs(payload.Items),
	}

	quote, err := h.quotes.CreateQuote(c.Request.Context(), input, h.auditContext(c, ""))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quote)
}

type updateQuotePayload struct {
	Notes      *string             `json:"notes"`
	Items      *[]quoteItemPayload `json:"items"`
	TaxRate    float64             `json:"taxRate"`
	ValidUntil *time.Time          `json:"validUntil"`
}

func (h *httpHandler) handleUpdateQuote(c *gin.Context) {
	var payload updateQuotePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	input := quotes.UpdateQuoteInput{
		Notes:      payload.Notes,
		TaxRate:    payload.TaxRate,
		ValidUntil: payload.ValidUntil,
	}
	if payload.Items != nil {
		items := itemInputs(*payload.Items)
		input.Items = &items
	}

	quote, err := h.quotes.UpdateQuote(c.Request.Context(), c.Param("id"), input, h.auditContext(c, ""))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type changeStatusPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *httpHandler) handleChangeQuoteStatus(c *gin.Context) {
	var payload changeStatusPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	status := domain.QuoteStatus(strings.ToUpper(strings.TrimSpace(payload.Status)))
	quote, err := h.quotes.ChangeStatus(c.Request.Context(), c.Param("id"), status, h.auditContext(c, payload.Reason))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type cloneQuotePayload struct {
	Reason string `json:"reason"`
}

func (h *httpHandler) handleCloneQuote(c *gin.Context) {
	var payload cloneQuotePayload
	// The body is optional for clones; a missing reason is recorded as empty.
	_ = c.ShouldBindJSON(&payload)

	quote, err := h.quotes.CloneQuote(c.Request.Context(), c.Param("id"), h.auditContext(c, payload.Reason))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quote)
}

func (h *httpHandler) handleConvertQuote(c *gin.Context) {
	var payload cloneQuotePayload
	_ = c.ShouldBindJSON(&payload)

	order, quote, err := h.quotes.ConvertToOrder(c.Request.Context(), c.Param("id"), h.auditContext(c, payload.Reason))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order, "quote": quote})
}

func (h *httpHandler) handleGetQuote(c *gin.Context) {
	quote, err := h.quotes.GetQuote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *httpHandler) handleQuoteChain(c *gin.Context) {
	chain, err := h.quotes.QuoteChain(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.respondQuoteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reference": c.Param("reference"), "versions": chain})
}

func (h *httpHandler) respondQuoteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quotes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "quote_not_found"})
	case errors.Is(err, quotes.ErrChangeReasonRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "change_reason_required"})
	case errors.Is(err, quotes.ErrNotEditable):
		c.JSON(http.StatusBadRequest, gin.H{"error": "quote_not_editable"})
	case errors.Is(err, quotes.ErrNotLatestVersion):
		c.JSON(http.StatusBadRequest, gin.H{"error": "not_latest_version"})
	case errors.Is(err, quotes.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
	case errors.Is(err, quotes.ErrAlreadyConverted):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already_converted"})
	default:
		h.logger.Error("quote operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quote_operation_failed", "code": serviceErrorCode(err)})
	}
}

func itemInputs(payload []quoteItemPayload) []quotes.ItemInput {
	items := make([]quotes.ItemInput, 0, len(payload))
	for _, item := range payload {
		items = append(items, quotes.ItemInput{
			MaterialID:  item.MaterialID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return items
}
