package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/auth"
	"github.com/fabworks/fabops/backend/internal/evidence"
	"github.com/fabworks/fabops/backend/internal/quotes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actorIDContextKey   = "fabops_actor_id"
	actorNameContextKey = "fabops_actor_name"
)

var (
	errMissingAuditService    = errors.New("audit service dependency required")
	errMissingEvidenceService = errors.New("evidence service dependency required")
	errMissingQuotesService   = errors.New("quotes service dependency required")
	errMissingFileStore       = errors.New("file store dependency required")
)

// Dependencies wires the HTTP surface to the underlying services. The
// token validator is optional: without it every actor resolves to "system".
type Dependencies struct {
	AuditService    *audit.Service
	EvidenceService *evidence.Service
	QuotesService   *quotes.Service
	FileStore       *evidence.FileStore
	TokenValidator  *auth.TokenValidator
	Logger          *zap.Logger
}

// NewHTTPHandler builds the gin router for the audit and quote surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.AuditService == nil {
		return nil, errMissingAuditService
	}
	if deps.EvidenceService == nil {
		return nil, errMissingEvidenceService
	}
	if deps.QuotesService == nil {
		return nil, errMissingQuotesService
	}
	if deps.FileStore == nil {
		return nil, errMissingFileStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		auditService: deps.AuditService,
		evidence:     deps.EvidenceService,
		quotes:       deps.QuotesService,
		store:        deps.FileStore,
		validator:    deps.TokenValidator,
		logger:       logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.Use(handler.identifyActor)

	auditGroup := router.Group("/audit")
	auditGroup.GET("/quote/:id", handler.handleQuoteHistory)
	auditGroup.GET("/order/:id", handler.handleOrderHistory)
	auditGroup.GET("/job/:id", handler.handleJobHistory)
	auditGroup.GET("/complete", handler.handleCompleteHistory)
	auditGroup.GET("/evidence-package", handler.handleEvidencePackage)
	auditGroup.POST("/evidence-package", handler.handleEvidencePackage)
	auditGroup.GET("/download/:entityType/:entityId", handler.handleDirectDownload)
	auditGroup.GET("/files/:filename", handler.handleServeFile)
	auditGroup.GET("/search", handler.handleSearch)
	auditGroup.GET("/statistics", handler.handleStatistics)
	auditGroup.GET("/statistics/trend", handler.handleNotImplemented)
	auditGroup.POST("/verify-signature", handler.handleNotImplemented)

	quoteGroup := router.Group("/quotes")
	quoteGroup.POST("", handler.handleCreateQuote)
	quoteGroup.GET("/:id", handler.handleGetQuote)
	quoteGroup.PUT("/:id", handler.handleUpdateQuote)
	quoteGroup.POST("/:id/status", handler.handleChangeQuoteStatus)
	quoteGroup.POST("/:id/clone", handler.handleCloneQuote)
	quoteGroup.POST("/:id/convert", handler.handleConvertQuote)
	quoteGroup.GET("/reference/:reference", handler.handleQuoteChain)

	return router, nil
}

type httpHandler struct {
	auditService *audit.Service
	evidence     *evidence.Service
	quotes       *quotes.Service
	store        *evidence.FileStore
	validator    *auth.TokenValidator
	logger       *zap.Logger
}

// identifyActor resolves the audit actor from an optional bearer token. It
// never rejects a request: without a valid token the actor is "system".
func (h *httpHandler) identifyActor(c *gin.Context) {
	if h.validator == nil {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.Next()
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		h.logger.Warn("bearer token validation failed", zap.Error(err))
		c.Next()
		return
	}
	c.Set(actorIDContextKey, claims.UserID)
	c.Set(actorNameContextKey, claims.UserDisplayName)
	c.Next()
}

func (h *httpHandler) auditContext(c *gin.Context, reason string) audit.Context {
	return audit.BuildContext(c.Request, c.GetString(actorIDContextKey), c.GetString(actorNameContextKey), reason)
}

func (h *httpHandler) handleNotImplemented(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "not_implemented"})
}

// serviceErrorCode extracts a stable code from coded service errors.
func serviceErrorCode(err error) string {
	var auditErr *audit.ServiceError
	if errors.As(err, &auditErr) {
		return auditErr.Code()
	}
	var quoteErr *quotes.ServiceError
	if errors.As(err, &quoteErr) {
		return quoteErr.Code()
	}
	return ""
}
