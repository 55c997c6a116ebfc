package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fabworks/fabops/backend/internal/audit"
	"github.com/fabworks/fabops/backend/internal/domain"
	"github.com/fabworks/fabops/backend/internal/evidence"
	"github.com/fabworks/fabops/backend/internal/quotes"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type sequentialIDGenerator struct {
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("id-%d", g.next), nil
}

type testHarness struct {
	handler http.Handler
	db      *gorm.DB
	audit   *audit.Service
	store   *evidence.FileStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:fabops_server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&domain.Customer{},
		&domain.Material{},
		&domain.Quote{},
		&domain.QuoteItem{},
		&domain.Order{},
		&domain.Job{},
		&domain.JobMaterial{},
		&domain.Document{},
		&domain.QuoteHistory{},
		&domain.OrderHistory{},
		&domain.JobHistory{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	auditService, err := audit.NewService(audit.ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct audit service: %v", err)
	}

	dispatcher := audit.NewDispatcher(auditService, nil)
	t.Cleanup(dispatcher.Close)

	store, err := evidence.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to construct file store: %v", err)
	}

	evidenceService, err := evidence.NewService(evidence.ServiceConfig{
		Database: db,
		Audit:    auditService,
		Store:    store,
	})
	if err != nil {
		t.Fatalf("failed to construct evidence service: %v", err)
	}

	quoteService, err := quotes.NewService(quotes.ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDGenerator{},
		Auditor:    dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct quote service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		AuditService:    auditService,
		EvidenceService: evidenceService,
		QuotesService:   quoteService,
		FileStore:       store,
	})
	if err != nil {
		t.Fatalf("failed to construct router: %v", err)
	}

	harness := &testHarness{handler: handler, db: db, audit: auditService, store: store}
	customer := domain.Customer{ID: "cust-1", Name: "Acme Fabrication"}
	if err := db.Create(&customer).Error; err != nil {
		t.Fatalf("failed to seed customer: %v", err)
	}
	return harness
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthzResponds(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestCompleteHistoryRequiresAtLeastOneID(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/audit/complete", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestPlaceholderEndpointsRespondNotImplemented(t *testing.T) {
	harness := newTestHarness(t)

	if recorder := harness.do(t, http.MethodGet, "/audit/statistics/trend", ""); recorder.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for trend, got %d", recorder.Code)
	}
	if recorder := harness.do(t, http.MethodPost, "/audit/verify-signature", `{}`); recorder.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for verify-signature, got %d", recorder.Code)
	}
}

func TestSearchRejectsInvalidDate(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/audit/search?dateFrom=not-a-date", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "invalid_date" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestSearchRejectsInvalidEntityType(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/audit/search?entityType=WIDGET", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestCreateQuoteEndpoint(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodPost, "/quotes", `{"customerId":"cust-1","items":[{"materialId":"steel-3mm","description":"3mm sheet","quantity":2,"unitPrice":40}],"taxRate":0.1}`)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["versionNumber"] != float64(1) {
		t.Fatalf("expected version number 1, got %v", payload["versionNumber"])
	}
	if payload["isLatestVersion"] != true {
		t.Fatalf("expected latest version flag")
	}
	if payload["total"] != float64(88) {
		t.Fatalf("expected total 88, got %v", payload["total"])
	}
}

func TestCreateQuoteRejectsMissingCustomer(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodPost, "/quotes", `{"items":[]}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestChangeStatusRequiresReason(t *testing.T) {
	harness := newTestHarness(t)

	created := harness.do(t, http.MethodPost, "/quotes", `{"customerId":"cust-1"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", created.Code)
	}
	quoteID := decodeBody(t, created)["id"].(string)

	recorder := harness.do(t, http.MethodPost, "/quotes/"+quoteID+"/status", `{"status":"SENT"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if payload := decodeBody(t, recorder); payload["error"] != "change_reason_required" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestChangeStatusAppendsVersion(t *testing.T) {
	harness := newTestHarness(t)

	created := harness.do(t, http.MethodPost, "/quotes", `{"customerId":"cust-1"}`)
	quoteID := decodeBody(t, created)["id"].(string)

	recorder := harness.do(t, http.MethodPost, "/quotes/"+quoteID+"/status", `{"status":"SENT","reason":"sent to customer"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["versionNumber"] != float64(2) {
		t.Fatalf("expected version number 2, got %v", payload["versionNumber"])
	}
	if payload["parentQuoteId"] != quoteID {
		t.Fatalf("expected parent link to %s, got %v", quoteID, payload["parentQuoteId"])
	}
}

func TestQuoteHistoryEndpoint(t *testing.T) {
	harness := newTestHarness(t)

	quote := domain.Quote{
		ID:              "quote-1",
		QuoteReference:  "QR-1",
		VersionNumber:   1,
		IsLatestVersion: true,
		Status:          domain.QuoteStatusDraft,
		CustomerID:      "cust-1",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := harness.db.Create(&quote).Error; err != nil {
		t.Fatalf("failed to seed quote: %v", err)
	}
	if _, err := harness.audit.Record(context.Background(), domain.EntityQuote, quote.ID, domain.ChangeCreate, audit.Context{UserID: "user-1"}, nil); err != nil {
		t.Fatalf("failed to record history: %v", err)
	}

	recorder := harness.do(t, http.MethodGet, "/audit/quote/quote-1", "")
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	history, ok := payload["history"].([]any)
	if !ok || len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %v", payload["history"])
	}
}

func TestEvidencePackageRejectsUnknownFormat(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodPost, "/audit/evidence-package", `{"entityType":"QUOTE","entityId":"quote-1","format":"xlsx"}`)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "unsupported_format" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestEvidencePackageAndDownloadRoundTrip(t *testing.T) {
	harness := newTestHarness(t)

	quote := domain.Quote{
		ID:              "quote-1",
		QuoteReference:  "QR-1",
		VersionNumber:   1,
		IsLatestVersion: true,
		Status:          domain.QuoteStatusDraft,
		CustomerID:      "cust-1",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	if err := harness.db.Create(&quote).Error; err != nil {
		t.Fatalf("failed to seed quote: %v", err)
	}
	if _, err := harness.audit.Record(context.Background(), domain.EntityQuote, quote.ID, domain.ChangeCreate, audit.Context{}, nil); err != nil {
		t.Fatalf("failed to record history: %v", err)
	}

	generated := harness.do(t, http.MethodPost, "/audit/evidence-package", `{"entityType":"QUOTE","entityId":"quote-1","format":"csv"}`)
	if generated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", generated.Code, generated.Body.String())
	}
	downloadURL, ok := decodeBody(t, generated)["downloadUrl"].(string)
	if !ok || !strings.HasPrefix(downloadURL, "/audit/files/") {
		t.Fatalf("unexpected download url %v", downloadURL)
	}

	downloaded := harness.do(t, http.MethodGet, downloadURL, "")
	if downloaded.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", downloaded.Code, downloaded.Body.String())
	}
	if got := downloaded.Header().Get("Content-Type"); got != "text/csv" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := downloaded.Header().Get("Content-Disposition"); !strings.HasPrefix(got, "attachment;") {
		t.Fatalf("expected attachment disposition, got %q", got)
	}
	if got := downloaded.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("expected no-store cache control, got %q", got)
	}
}

func TestServeFileRejectsUnsafeName(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/audit/files/a..pdf", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "invalid_filename" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestServeFileMissingArtifact(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/audit/files/missing.pdf", "")
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestServeFileRejectsTruncatedArtifact(t *testing.T) {
	harness := newTestHarness(t)

	path := filepath.Join(harness.store.Dir(), "stub.pdf")
	if err := os.WriteFile(path, []byte("short"), 0o644); err != nil {
		t.Fatalf("failed to write stub: %v", err)
	}

	recorder := harness.do(t, http.MethodGet, "/audit/files/stub.pdf", "")
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "file_corrupt_or_empty" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}

func TestServeFileRejectsUnsupportedType(t *testing.T) {
	harness := newTestHarness(t)

	path := filepath.Join(harness.store.Dir(), "export.txt")
	if err := os.WriteFile(path, make([]byte, 200), 0o644); err != nil {
		t.Fatalf("failed to write stub: %v", err)
	}

	recorder := harness.do(t, http.MethodGet, "/audit/files/export.txt", "")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	if payload := decodeBody(t, recorder); payload["error"] != "unsupported_file_type" {
		t.Fatalf("unexpected error %v", payload["error"])
	}
}
